package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"UIVERIFY_BASE_URL", "UIVERIFY_HEADLESS", "UIVERIFY_BROWSER_BIN",
		"UIVERIFY_ARTIFACTS_DIR", "UIVERIFY_GOVINFO_UPSTREAM", "UIVERIFY_CONGRESS_API_KEY",
	} {
		t.Setenv(k, "")
	}
	// LookupEnv distinguishes unset from empty for the history path.
	t.Setenv("UIVERIFY_HISTORY_DB", "")
	os.Unsetenv("UIVERIFY_HISTORY_DB")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1280, cfg.Browser.ViewportWidth)
	assert.Equal(t, 5*time.Second, cfg.GetStepTimeout())
	assert.Equal(t, 100*time.Millisecond, cfg.GetPollInterval())
	assert.Equal(t, 30*time.Second, cfg.GetNavigationTimeout())
	assert.Equal(t, time.Duration(0), cfg.GetSlowMotion())
	assert.Equal(t, "https://www.govinfo.gov", cfg.Govinfo.Upstream)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "uiverify.yaml")

	cfg := DefaultConfig()
	cfg.Browser.Headless = false
	cfg.Run.StepTimeout = "12s"
	cfg.Run.BaseURL = "http://localhost:5173"
	cfg.Logging.Categories = map[string]bool{"console": false}

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.False(t, loaded.Browser.Headless)
	assert.Equal(t, 12*time.Second, loaded.GetStepTimeout())
	assert.Equal(t, "http://localhost:5173", loaded.Run.BaseURL)
	assert.Equal(t, map[string]bool{"console": false}, loaded.Logging.Categories)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "uiverify.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  artifacts_dir: shots\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "shots", cfg.Run.ArtifactsDir)
	assert.Equal(t, "5s", cfg.Run.StepTimeout)
	assert.True(t, cfg.Browser.Headless)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uiverify.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run: [unclosed"), 0644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestEnvOverrides(t *testing.T) {
	t.Run("base url and artifacts", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("UIVERIFY_BASE_URL", "http://app:8080")
		t.Setenv("UIVERIFY_ARTIFACTS_DIR", "/tmp/shots")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "http://app:8080", cfg.Run.BaseURL)
		assert.Equal(t, "/tmp/shots", cfg.Run.ArtifactsDir)
	})

	t.Run("headless parses booleans and ignores junk", func(t *testing.T) {
		clearEnv(t)
		cfg := DefaultConfig()

		t.Setenv("UIVERIFY_HEADLESS", "false")
		cfg.applyEnvOverrides()
		assert.False(t, cfg.Browser.Headless)

		t.Setenv("UIVERIFY_HEADLESS", "maybe")
		cfg.applyEnvOverrides()
		assert.False(t, cfg.Browser.Headless, "unparsable value leaves setting untouched")
	})

	t.Run("empty history env disables history", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("UIVERIFY_HISTORY_DB", "")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Empty(t, cfg.History.Path)
	})

	t.Run("unset history env keeps default", func(t *testing.T) {
		clearEnv(t)
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, filepath.Join(".uiverify", "history.db"), cfg.History.Path)
	})

	t.Run("browser bin and upstream", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("UIVERIFY_BROWSER_BIN", "/usr/bin/chromium")
		t.Setenv("UIVERIFY_GOVINFO_UPSTREAM", "http://fixture")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "/usr/bin/chromium", cfg.Browser.Bin)
		assert.Equal(t, "http://fixture", cfg.Govinfo.Upstream)
	})

	t.Run("congress api key", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("UIVERIFY_CONGRESS_API_KEY", "k123")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "k123", cfg.Govinfo.CongressAPIKey)
		assert.Equal(t, "https://api.congress.gov/v3", cfg.Govinfo.CongressUpstream)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad step timeout", func(c *Config) { c.Run.StepTimeout = "soon" }, "run.step_timeout"},
		{"bad slow motion", func(c *Config) { c.Browser.SlowMotion = "10" }, "browser.slow_motion"},
		{"negative viewport", func(c *Config) { c.Browser.ViewportWidth = -1 }, "viewport"},
		{"negative parallel", func(c *Config) { c.Run.Parallel = -2 }, "run.parallel"},
		{"base url without host", func(c *Config) { c.Run.BaseURL = "localhost" }, "run.base_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_DurationFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Run.StepTimeout = "garbage"
	cfg.Run.PollInterval = "-5ms"
	cfg.Govinfo.Timeout = ""
	assert.Equal(t, 5*time.Second, cfg.GetStepTimeout())
	assert.Equal(t, 100*time.Millisecond, cfg.GetPollInterval())
	assert.Equal(t, 15*time.Second, cfg.GetGovinfoTimeout())
}
