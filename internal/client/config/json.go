package config

import (
	"encoding/json"
	"os"

	"github.com/oficinahq/garagesync/internal/flagx"
	"github.com/oficinahq/garagesync/internal/timex"
)

// jsonConfig is the DTO used for JSON unmarshalling. Durations accept
// either strings like "3s" or integer nanoseconds.
type jsonConfig struct {
	ServerURL              string         `json:"server_url"`
	DatabasePath           string         `json:"database_path"`
	Mode                   string         `json:"mode"`
	OnlineCheckInterval    timex.Duration `json:"online_check_interval"`
	PendingRefreshInterval timex.Duration `json:"pending_refresh_interval"`
	ChangePollInterval     timex.Duration `json:"change_poll_interval"`
	RemoteTimeout          timex.Duration `json:"remote_timeout"`
}

// parseJSON overlays cfg with values from the JSON file named by the
// -c/-config flags. Missing file path means no JSON is loaded; read or
// decode errors panic (the caller cannot run half-configured).
func parseJSON(cfg *Config) {
	path := flagx.JSONConfigFlags()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var jc jsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	applyJSON(cfg, &jc)
}

func applyJSON(cfg *Config, jc *jsonConfig) {
	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.Mode != "" {
		cfg.Mode = jc.Mode
	}
	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.PendingRefreshInterval.Duration > 0 {
		cfg.PendingRefreshInterval = jc.PendingRefreshInterval.Duration
	}
	if jc.ChangePollInterval.Duration > 0 {
		cfg.ChangePollInterval = jc.ChangePollInterval.Duration
	}
	if jc.RemoteTimeout.Duration > 0 {
		cfg.RemoteTimeout = jc.RemoteTimeout.Duration
	}
}
