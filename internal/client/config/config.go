// Package config loads the client runtime configuration. Values come
// from defaults, then an optional JSON file (-c/-config), then
// command-line flags; later sources win.
package config

import "time"

// Config holds runtime settings for the GarageSync client.
type Config struct {
	// ServerURL is the base URL of the backend API.
	ServerURL string

	// DatabasePath is the SQLite file backing the durable local store.
	DatabasePath string

	// Mode selects the cache backing mode: "offline-tolerant" or
	// "remote-authoritative".
	Mode string

	// OnlineCheckInterval is how often the client probes server
	// reachability.
	OnlineCheckInterval time.Duration

	// PendingRefreshInterval is how often the pending-operation count
	// is re-read for status display.
	PendingRefreshInterval time.Duration

	// ChangePollInterval is how often the remote change sequence is
	// polled to detect out-of-band mutations.
	ChangePollInterval time.Duration

	// RemoteTimeout bounds every remote call.
	RemoteTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.DatabasePath = "garagesync.db"
	c.Mode = "offline-tolerant"
	c.OnlineCheckInterval = 3 * time.Second
	c.PendingRefreshInterval = 30 * time.Second
	c.ChangePollInterval = 15 * time.Second
	c.RemoteTimeout = 10 * time.Second
}

// LoadConfig constructs a Config from defaults, JSON file and flags,
// in that order of precedence.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJSON(cfg)
	parseFlags(cfg)
	return cfg
}
