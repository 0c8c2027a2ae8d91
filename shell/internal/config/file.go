// Package config handles tvshell configuration from YAML files.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultURL is the site shown when none is configured.
const DefaultURL = "https://www.svtplay.se/"

// Config is the top-level tvshell configuration.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Browser    BrowserConfig    `yaml:"browser"`
	Navigation NavigationConfig `yaml:"navigation"`
	Keys       KeysConfig       `yaml:"keys"`
	Remote     RemoteConfig     `yaml:"remote"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// SiteConfig selects the site and what may leave it.
type SiteConfig struct {
	URL string `yaml:"url"`

	// AllowedHosts are domains kept in the kiosk, subdomains included.
	// Everything else is handed to ExternalOpener.
	AllowedHosts []string `yaml:"allowed_hosts"`

	// ExternalOpener opens foreign links: "" picks xdg-open or open,
	// "none" drops them.
	ExternalOpener string `yaml:"external_opener"`

	// GrantPermissions are browser permission names granted to the site.
	// All others are denied.
	GrantPermissions []string `yaml:"grant_permissions"`

	FocusOutline string `yaml:"focus_outline"` // CSS outline for :focus-visible
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Bin             string        `yaml:"bin"`    // Chrome binary, empty = rod's lookup
	Remote          string        `yaml:"remote"` // DevTools URL of a running browser
	Headless        bool          `yaml:"headless"`
	XvfbDisplay     string        `yaml:"xvfb_display"` // start Xvfb on this display when set
	UserDataDir     string        `yaml:"user_data_dir"`
	WindowWidth     int           `yaml:"window_width"`
	WindowHeight    int           `yaml:"window_height"`
	MemoryLimit     int64         `yaml:"memory_limit"` // page JS heap bytes before a reload
	RecycleInterval time.Duration `yaml:"recycle_interval"`
	MonitorInterval time.Duration `yaml:"monitor_interval"`
	LoadTimeout     time.Duration `yaml:"load_timeout"`
}

// NavigationConfig tunes the focus engine and the key router.
type NavigationConfig struct {
	OverlapThreshold    float64       `yaml:"overlap_threshold"`
	PerpendicularWeight float64       `yaml:"perpendicular_weight"`
	AxisTolerance       float64       `yaml:"axis_tolerance"`
	RowTolerance        float64       `yaml:"row_tolerance"`
	RecoveryFrames      []int         `yaml:"recovery_frames"`
	RetryDelay          time.Duration `yaml:"retry_delay"`
	KeyBuffer           int           `yaml:"key_buffer"` // queued key events per window
}

// KeysConfig remaps shell keys.
type KeysConfig struct {
	Quit []string `yaml:"quit"`
}

// RemoteConfig enables the HTTP remote when Addr is set.
type RemoteConfig struct {
	Addr      string `yaml:"addr"`
	RateLimit int    `yaml:"rate_limit"` // requests per minute per client
}

// TelemetryConfig enables the SQLite telemetry store when Path is set.
type TelemetryConfig struct {
	Path           string        `yaml:"path"`
	FlushInterval  time.Duration `yaml:"flush_interval"`
	SampleInterval time.Duration `yaml:"sample_interval"`
	Retention      time.Duration `yaml:"retention"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Finish re-applies defaults after fields were overridden, for instance by
// command line flags, and validates the result.
func (c *Config) Finish() error {
	c.applyDefaults()
	return c.Validate()
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Site.URL)
	if err != nil {
		return fmt.Errorf("config: site.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: site.url: unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return errors.New("config: site.url: missing host")
	}
	if !c.Site.Allowed(u.Hostname()) {
		return fmt.Errorf("config: site.url host %s is not in site.allowed_hosts", u.Hostname())
	}
	if c.Navigation.OverlapThreshold > 1 {
		return fmt.Errorf("config: navigation.overlap_threshold %v above 1", c.Navigation.OverlapThreshold)
	}
	for _, n := range c.Navigation.RecoveryFrames {
		if n < 0 {
			return fmt.Errorf("config: navigation.recovery_frames: negative frame count %d", n)
		}
	}
	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		return fmt.Errorf("config: browser window %dx%d", c.Browser.WindowWidth, c.Browser.WindowHeight)
	}
	return nil
}

// Allowed reports whether host is one of AllowedHosts or a subdomain of one.
func (s SiteConfig) Allowed(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, h := range s.AllowedHosts {
		h = strings.ToLower(strings.TrimPrefix(h, "."))
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func (c *Config) applyDefaults() {
	if c.Site.URL == "" {
		c.Site.URL = DefaultURL
	}
	if len(c.Site.AllowedHosts) == 0 {
		c.Site.AllowedHosts = defaultHosts(c.Site.URL)
	}
	if c.Site.FocusOutline == "" {
		c.Site.FocusOutline = "2px solid #00bfff"
	}
	if c.Browser.WindowWidth <= 0 {
		c.Browser.WindowWidth = 1920
	}
	if c.Browser.WindowHeight <= 0 {
		c.Browser.WindowHeight = 1080
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 24 * time.Hour
	}
	if c.Browser.MonitorInterval <= 0 {
		c.Browser.MonitorInterval = 30 * time.Second
	}
	if c.Browser.LoadTimeout <= 0 {
		c.Browser.LoadTimeout = 30 * time.Second
	}
	if c.Navigation.RetryDelay <= 0 {
		c.Navigation.RetryDelay = 30 * time.Millisecond
	}
	if c.Navigation.KeyBuffer <= 0 {
		c.Navigation.KeyBuffer = 64
	}
	if len(c.Keys.Quit) == 0 {
		c.Keys.Quit = []string{"q", "Q"}
	}
	if c.Remote.RateLimit <= 0 {
		c.Remote.RateLimit = 600
	}
	if c.Telemetry.FlushInterval <= 0 {
		c.Telemetry.FlushInterval = 5 * time.Second
	}
	if c.Telemetry.SampleInterval <= 0 {
		c.Telemetry.SampleInterval = time.Minute
	}
	if c.Telemetry.Retention <= 0 {
		c.Telemetry.Retention = 30 * 24 * time.Hour
	}
}

// defaultHosts keeps the kiosk on the registrable part of the site host:
// https://www.svtplay.se/ allows svtplay.se and its subdomains.
func defaultHosts(raw string) []string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	if raw == DefaultURL {
		return []string{"svtplay.se", "svt.se"}
	}
	return []string{strings.TrimPrefix(host, "www.")}
}
