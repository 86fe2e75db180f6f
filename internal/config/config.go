// Package config loads process configuration from environment variables
// only; no credentials are ever hardcoded.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the fully resolved process configuration.
type Config struct {
	BindAddress        string
	DBPath             string
	DBNFilePath        string
	LogFilter          string
	MaxSubscribers     int
	SubscriberQueueCap int
	BatchSize          int
	BatchIntervalMS    int
}

// Load reads configuration from the environment, applying the defaults
// below, and requiring DBN_FILE_PATH to be set.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	v.SetDefault("BIND_ADDRESS", "0.0.0.0:3000")
	v.SetDefault("DB_PATH", "./mbo.db")
	v.SetDefault("LOG_FILTER", "info")
	v.SetDefault("MAX_SUBSCRIBERS", 1024)
	v.SetDefault("SUBSCRIBER_QUEUE_CAP", 1024)
	v.SetDefault("BATCH_SIZE", 1000)
	v.SetDefault("BATCH_INTERVAL_MS", 50)

	dbnPath := v.GetString("DBN_FILE_PATH")
	if dbnPath == "" {
		return Config{}, fmt.Errorf("config: DBN_FILE_PATH is required")
	}

	cfg := Config{
		BindAddress:        v.GetString("BIND_ADDRESS"),
		DBPath:             v.GetString("DB_PATH"),
		DBNFilePath:        dbnPath,
		LogFilter:          v.GetString("LOG_FILTER"),
		MaxSubscribers:     v.GetInt("MAX_SUBSCRIBERS"),
		SubscriberQueueCap: v.GetInt("SUBSCRIBER_QUEUE_CAP"),
		BatchSize:          v.GetInt("BATCH_SIZE"),
		BatchIntervalMS:    v.GetInt("BATCH_INTERVAL_MS"),
	}
	return cfg, nil
}
