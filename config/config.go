/*
config.go - runtime configuration

PURPOSE:
  Loads server configuration from environment variables with sane
  defaults, so the binary runs out of the box against a local
  database file and can be tuned per deployment without flags.

SEE ALSO:
  - cmd/server/main.go: consumes Config at startup
*/
package config

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the ledger server.
type Config struct {
	Addr         string        `envconfig:"LEDGER_ADDR" default:":8090"`
	ReadTimeout  time.Duration `envconfig:"LEDGER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"LEDGER_WRITE_TIMEOUT" default:"15s"`

	DBPath string `envconfig:"LEDGER_DB_PATH" default:"fabric-ledger.db"`

	LogLevel  string `envconfig:"LEDGER_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LEDGER_LOG_FORMAT" default:"pretty"`

	ReportDir string `envconfig:"LEDGER_REPORT_DIR" default:"reports"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.DBPath == "" {
		return nil, errors.New("database path must be provided")
	}
	return &cfg, nil
}
