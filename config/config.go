/*
config.go - Runtime configuration shared by the binaries

PURPOSE:
  Every setting is a command-line flag whose default comes from the
  environment, so the same binary runs from a shell or a container.

SETTINGS:
  -port       LEDGER_PORT        HTTP server port (default: 8080)
  -db         LEDGER_DB          SQLite database path (default: ledger.db)
                                 Use ":memory:" for an in-memory database
  -log-level  LEDGER_LOG_LEVEL   debug, info, warn, error (default: info)
  -log-json   LEDGER_LOG_JSON    JSON logs instead of console (default: false)

SEE ALSO:
  - cmd/server/main.go
  - cmd/ledgerctl/main.go
*/
package config

import (
	"flag"
	"os"
	"strconv"

	"github.com/warp/instrument-ledger/logger"
)

type Config struct {
	Port     int
	DBPath   string
	LogLevel string
	LogJSON  bool
}

// Logger returns the logger options for this configuration.
func (c Config) Logger() logger.Options {
	return logger.Options{Level: c.LogLevel, JSON: c.LogJSON}
}

// Register binds the settings to fs with environment defaults.
func Register(fs *flag.FlagSet) *Config {
	c := &Config{}
	fs.IntVar(&c.Port, "port", envInt("LEDGER_PORT", 8080), "HTTP server port")
	fs.StringVar(&c.DBPath, "db", envStr("LEDGER_DB", "ledger.db"), "SQLite database path")
	fs.StringVar(&c.LogLevel, "log-level", envStr("LEDGER_LOG_LEVEL", "info"), "log level")
	fs.BoolVar(&c.LogJSON, "log-json", envBool("LEDGER_LOG_JSON", false), "emit JSON logs")
	return c
}

// Load registers the settings on a fresh flag set and parses args.
func Load(name string, args []string) (*Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	c := Register(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return c, nil
}

func envStr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}

func envBool(key string, def bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return def
}
