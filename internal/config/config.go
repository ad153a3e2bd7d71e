package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for a config file when --config is unset.
const DefaultPath = "uiverify.yaml"

// Config holds all uiverify configuration.
type Config struct {
	// Browser launch settings
	Browser BrowserConfig `yaml:"browser"`

	// Script execution defaults
	Run RunConfig `yaml:"run"`

	// Run history database
	History HistoryConfig `yaml:"history"`

	// Bill title service
	Govinfo GovinfoConfig `yaml:"govinfo"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// BrowserConfig configures the headless browser session.
type BrowserConfig struct {
	Bin               string   `yaml:"bin"`          // Chrome/Chromium binary; empty uses rod's lookup
	LaunchFlags       []string `yaml:"launch_flags"` // extra --flag[=value] entries
	DebuggerURL       string   `yaml:"debugger_url"` // connect to a running browser instead of launching
	Headless          bool     `yaml:"headless"`
	ViewportWidth     int      `yaml:"viewport_width"`
	ViewportHeight    int      `yaml:"viewport_height"`
	NavigationTimeout string   `yaml:"navigation_timeout"`
	SlowMotion        string   `yaml:"slow_motion"` // delay between input actions, for debugging
}

// RunConfig configures script execution.
type RunConfig struct {
	BaseURL             string `yaml:"base_url"`     // replaces scheme+host of every script URL
	StepTimeout         string `yaml:"step_timeout"` // default when neither step nor script sets one
	PollInterval        string `yaml:"poll_interval"`
	ArtifactsDir        string `yaml:"artifacts_dir"`
	ReportPath          string `yaml:"report_path"` // JSON report; empty disables
	ScreenshotOnFailure bool   `yaml:"screenshot_on_failure"`
	Parallel            int    `yaml:"parallel"`
	MetricsFile         string `yaml:"metrics_file"` // prometheus textfile; empty disables
}

// HistoryConfig configures the SQLite run history.
type HistoryConfig struct {
	Path string `yaml:"path"` // empty disables history
}

// GovinfoConfig configures the bill title service.
type GovinfoConfig struct {
	Addr     string `yaml:"addr"`
	Upstream string `yaml:"upstream"`
	Timeout  string `yaml:"timeout"`

	// Congress.gov API backing /api/congress
	CongressUpstream string `yaml:"congress_upstream"`
	CongressAPIKey   string `yaml:"congress_api_key"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:          true,
			ViewportWidth:     1280,
			ViewportHeight:    800,
			NavigationTimeout: "30s",
		},
		Run: RunConfig{
			StepTimeout:  "5s",
			PollInterval: "100ms",
			ArtifactsDir: "artifacts",
			Parallel:     1,
		},
		History: HistoryConfig{
			Path: filepath.Join(".uiverify", "history.db"),
		},
		Govinfo: GovinfoConfig{
			Addr:     ":3001",
			Upstream:         "https://www.govinfo.gov",
			Timeout:          "15s",
			CongressUpstream: "https://api.congress.gov/v3",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Defaults if the file doesn't exist
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("UIVERIFY_BASE_URL"); v != "" {
		c.Run.BaseURL = v
	}
	if v := os.Getenv("UIVERIFY_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = b
		}
	}
	if v := os.Getenv("UIVERIFY_BROWSER_BIN"); v != "" {
		c.Browser.Bin = v
	}
	if v := os.Getenv("UIVERIFY_ARTIFACTS_DIR"); v != "" {
		c.Run.ArtifactsDir = v
	}
	if v, ok := os.LookupEnv("UIVERIFY_HISTORY_DB"); ok {
		c.History.Path = v
	}
	if v := os.Getenv("UIVERIFY_GOVINFO_UPSTREAM"); v != "" {
		c.Govinfo.Upstream = v
	}
	if v := os.Getenv("UIVERIFY_CONGRESS_API_KEY"); v != "" {
		c.Govinfo.CongressAPIKey = v
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetStepTimeout returns the default per-step timeout.
func (c *Config) GetStepTimeout() time.Duration {
	return parseDuration(c.Run.StepTimeout, 5*time.Second)
}

// GetPollInterval returns the polling cadence for waits and assertions.
func (c *Config) GetPollInterval() time.Duration {
	return parseDuration(c.Run.PollInterval, 100*time.Millisecond)
}

// GetNavigationTimeout returns the page load timeout.
func (c *Config) GetNavigationTimeout() time.Duration {
	return parseDuration(c.Browser.NavigationTimeout, 30*time.Second)
}

// GetSlowMotion returns the input delay, zero when unset.
func (c *Config) GetSlowMotion() time.Duration {
	return parseDuration(c.Browser.SlowMotion, 0)
}

// GetGovinfoTimeout returns the upstream request timeout.
func (c *Config) GetGovinfoTimeout() time.Duration {
	return parseDuration(c.Govinfo.Timeout, 15*time.Second)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	durations := map[string]string{
		"run.step_timeout":           c.Run.StepTimeout,
		"run.poll_interval":          c.Run.PollInterval,
		"browser.navigation_timeout": c.Browser.NavigationTimeout,
		"browser.slow_motion":        c.Browser.SlowMotion,
		"govinfo.timeout":            c.Govinfo.Timeout,
	}
	for key, v := range durations {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
	}

	if c.Browser.ViewportWidth < 0 || c.Browser.ViewportHeight < 0 {
		return fmt.Errorf("viewport must not be negative (got %dx%d)", c.Browser.ViewportWidth, c.Browser.ViewportHeight)
	}
	if c.Run.Parallel < 0 {
		return fmt.Errorf("run.parallel must not be negative (got %d)", c.Run.Parallel)
	}
	if c.Run.BaseURL != "" {
		u, err := url.Parse(c.Run.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid run.base_url %q: want scheme://host[:port]", c.Run.BaseURL)
		}
	}
	if c.Govinfo.CongressUpstream != "" {
		if _, err := url.Parse(c.Govinfo.CongressUpstream); err != nil {
			return fmt.Errorf("invalid govinfo.congress_upstream %q: %w", c.Govinfo.CongressUpstream, err)
		}
	}
	if c.Govinfo.Upstream != "" {
		if _, err := url.Parse(c.Govinfo.Upstream); err != nil {
			return fmt.Errorf("invalid govinfo.upstream %q: %w", c.Govinfo.Upstream, err)
		}
	}
	return nil
}
