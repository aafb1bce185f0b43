// ABOUTME: Configuration loading for the relance engine
// ABOUTME: Reads config.json from XDG paths, then .env, then RELANCE_* environment overrides

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
)

const (
	AppName = "relance"

	DefaultTickInterval    = 15 * time.Minute
	DefaultDispatchTimeout = 30 * time.Second
	DefaultWorkers         = 4
	DefaultCharmHost       = "charm.2389.dev"
)

// Duration marshals as a Go duration string ("15m", "30s").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s", string(data))
	}
	*d = Duration(n)
	return nil
}

// Config holds every setting the engine and its transports need.
type Config struct {
	DBPath          string   `json:"db_path"`
	TickInterval    Duration `json:"tick_interval"`
	DispatchTimeout Duration `json:"dispatch_timeout"`
	Workers         int      `json:"workers"`
	DryRun          bool     `json:"dry_run"`

	MailFrom string `json:"mail_from,omitempty"`

	SMSGatewayURL string `json:"sms_gateway_url,omitempty"`
	SMSToken      string `json:"sms_token,omitempty"`
	SMSSender     string `json:"sms_sender,omitempty"`

	GoogleClientID     string `json:"google_client_id,omitempty"`
	GoogleClientSecret string `json:"google_client_secret,omitempty"`
	CalendarID         string `json:"calendar_id,omitempty"`

	CharmHost     string `json:"charm_host,omitempty"`
	CharmAutoSync bool   `json:"charm_auto_sync"`
}

// Dir returns the XDG config directory for relance.
func Dir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.json")
}

// DefaultDBPath returns the default SQLite location under XDG data home.
func DefaultDBPath() string {
	return filepath.Join(xdg.DataHome, AppName, "relance.db")
}

// Default returns a config with defaults for every field.
func Default() *Config {
	return &Config{
		DBPath:          DefaultDBPath(),
		TickInterval:    Duration(DefaultTickInterval),
		DispatchTimeout: Duration(DefaultDispatchTimeout),
		Workers:         DefaultWorkers,
		CharmHost:       DefaultCharmHost,
		CharmAutoSync:   true,
	}
}

// Load reads the config file at path (DefaultPath when empty). A missing file
// yields defaults. A .env file in the working directory is loaded next, then
// RELANCE_* environment variables override file values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// .env is optional
	_ = godotenv.Load()

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = DefaultDBPath()
	}
	if c.TickInterval <= 0 {
		c.TickInterval = Duration(DefaultTickInterval)
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = Duration(DefaultDispatchTimeout)
	}
	if c.Workers < 1 {
		c.Workers = DefaultWorkers
	}
	if c.CharmHost == "" {
		c.CharmHost = DefaultCharmHost
	}
}

// applyEnvOverrides applies RELANCE_* variables on top of file values.
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"RELANCE_DB_PATH":              &cfg.DBPath,
		"RELANCE_MAIL_FROM":            &cfg.MailFrom,
		"RELANCE_SMS_GATEWAY_URL":      &cfg.SMSGatewayURL,
		"RELANCE_SMS_TOKEN":            &cfg.SMSToken,
		"RELANCE_SMS_SENDER":           &cfg.SMSSender,
		"RELANCE_GOOGLE_CLIENT_ID":     &cfg.GoogleClientID,
		"RELANCE_GOOGLE_CLIENT_SECRET": &cfg.GoogleClientSecret,
		"RELANCE_CALENDAR_ID":          &cfg.CalendarID,
		"RELANCE_CHARM_HOST":           &cfg.CharmHost,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	durations := map[string]*Duration{
		"RELANCE_TICK_INTERVAL":    &cfg.TickInterval,
		"RELANCE_DISPATCH_TIMEOUT": &cfg.DispatchTimeout,
	}
	for name, dst := range durations {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", name, err)
			}
			*dst = Duration(d)
		}
	}

	if v := os.Getenv("RELANCE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RELANCE_WORKERS: %w", err)
		}
		cfg.Workers = n
	}
	if v := os.Getenv("RELANCE_DRY_RUN"); v != "" {
		cfg.DryRun = v == "true" || v == "1"
	}
	if v := os.Getenv("RELANCE_CHARM_AUTO_SYNC"); v != "" {
		cfg.CharmAutoSync = v == "true" || v == "1"
	}
	return nil
}

// Save writes the config with owner-only permissions.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// MailConfigured reports whether a Gmail transport can be built.
func (c *Config) MailConfigured() bool {
	return c.MailFrom != "" && c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// SMSConfigured reports whether the SMS gateway transport can be built.
func (c *Config) SMSConfigured() bool {
	return c.SMSGatewayURL != ""
}

// CalendarConfigured reports whether calls and letters are published to Google Calendar.
func (c *Config) CalendarConfigured() bool {
	return c.CalendarID != "" && c.GoogleClientID != "" && c.GoogleClientSecret != ""
}
