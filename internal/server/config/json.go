package config

import (
	"encoding/json"
	"os"

	"github.com/oficinahq/garagesync/internal/flagx"
)

type jsonConfig struct {
	ListenAddr  string `json:"listen_addr"`
	DatabaseDSN string `json:"database_dsn"`
}

// parseJSON overlays cfg with values from the JSON file named by the
// -c/-config flags, if any.
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
	if jc.ListenAddr != "" {
		cfg.ListenAddr = jc.ListenAddr
	}
	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
}
