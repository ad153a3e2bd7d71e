package browser

import "time"

// Config holds browser configuration.
type Config struct {
	Bin               string        `json:"bin,omitempty"`
	LaunchFlags       []string      `json:"launch_flags,omitempty"`
	DebuggerURL       string        `json:"debugger_url,omitempty"`
	Headless          bool          `json:"headless"`
	ViewportWidth     int           `json:"viewport_width"`
	ViewportHeight    int           `json:"viewport_height"`
	NavigationTimeout time.Duration `json:"navigation_timeout"`
	SlowMotion        time.Duration `json:"slow_motion,omitempty"`
	PollInterval      time.Duration `json:"poll_interval"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:          true,
		ViewportWidth:     1280,
		ViewportHeight:    800,
		NavigationTimeout: 30 * time.Second,
		PollInterval:      100 * time.Millisecond,
	}
}

// GetViewportWidth returns viewport width.
func (c Config) GetViewportWidth() int {
	if c.ViewportWidth <= 0 {
		return 1280
	}
	return c.ViewportWidth
}

// GetViewportHeight returns viewport height.
func (c Config) GetViewportHeight() int {
	if c.ViewportHeight <= 0 {
		return 800
	}
	return c.ViewportHeight
}

// GetNavigationTimeout returns the navigation timeout.
func (c Config) GetNavigationTimeout() time.Duration {
	if c.NavigationTimeout <= 0 {
		return 30 * time.Second
	}
	return c.NavigationTimeout
}

// GetPollInterval returns how often locators are re-evaluated while waiting.
func (c Config) GetPollInterval() time.Duration {
	if c.PollInterval <= 0 {
		return 100 * time.Millisecond
	}
	return c.PollInterval
}
