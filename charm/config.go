// ABOUTME: Connection settings for the Charm KV rule store
// ABOUTME: Derived from the application config so rule sync shares one source of truth

package charm

import (
	"time"

	"github.com/charmbracelet/charm/kv"
	"github.com/harperreed/relance/config"
)

// AppName is the Charm KV database holding rule documents.
const AppName = "relance-rules"

// Config holds charm connection settings.
type Config struct {
	Host string

	// AutoSync pushes to the server after every write.
	AutoSync bool

	StaleThreshold time.Duration
}

// DefaultConfig returns the settings used when no application config is available.
func DefaultConfig() *Config {
	return &Config{
		Host:           config.DefaultCharmHost,
		AutoSync:       true,
		StaleThreshold: kv.DefaultStaleThreshold,
	}
}

// FromAppConfig extracts the charm settings from the application config.
func FromAppConfig(cfg *config.Config) *Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	if cfg.CharmHost != "" {
		c.Host = cfg.CharmHost
	}
	c.AutoSync = cfg.CharmAutoSync
	return c
}
