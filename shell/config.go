package shell

import (
	"github.com/hazyhaar/tvshell/shell/internal/config"
)

// Config is the top-level tvshell configuration. Re-exported from internal.
type Config = config.Config

// SiteConfig selects the site and what may leave it.
type SiteConfig = config.SiteConfig

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// NavigationConfig tunes the focus engine and the key router.
type NavigationConfig = config.NavigationConfig

// KeysConfig remaps shell keys.
type KeysConfig = config.KeysConfig

// RemoteConfig enables the HTTP remote.
type RemoteConfig = config.RemoteConfig

// TelemetryConfig enables the SQLite telemetry store.
type TelemetryConfig = config.TelemetryConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns the configuration used without a file.
func DefaultConfig() *Config {
	return config.Default()
}
