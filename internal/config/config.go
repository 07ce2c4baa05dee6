// Package config loads process configuration with spf13/viper: a
// database connection string plus the timeout/search-path knobs the
// sync/query layers need.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds the settings entityctl and library callers need to open
// a connection and run sync/query operations.
type Config struct {
	DSN              string
	SearchPath       string
	StatementTimeout time.Duration
	CompileCacheSize int
}

// Load reads configuration from (in ascending priority) defaults, a
// `.entity.yaml` file in the working directory or `$HOME/.config/entity`,
// and `ENTITY_`-prefixed environment variables.
func Load() (*Config, error) {
	viper.SetConfigName(".entity")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/entity")

	viper.SetEnvPrefix("ENTITY")
	viper.AutomaticEnv()
	_ = viper.BindEnv("dsn", "DATABASE_URL")

	viper.SetDefault("search_path", "public")
	viper.SetDefault("statement_timeout", "30s")
	viper.SetDefault("compile_cache_size", 256)

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, err
		}
	}

	timeout, err := time.ParseDuration(viper.GetString("statement_timeout"))
	if err != nil {
		return nil, err
	}

	return &Config{
		DSN:              viper.GetString("dsn"),
		SearchPath:       viper.GetString("search_path"),
		StatementTimeout: timeout,
		CompileCacheSize: viper.GetInt("compile_cache_size"),
	}, nil
}
