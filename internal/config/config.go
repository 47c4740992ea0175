package config

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Config is resolved exactly once at startup and passed by reference from
// then on. Nothing re-reads the environment per call.
type Config struct {
	RingEntries		uint32
	QueueSize		int
	PoolWorkers		int
	RegistrySize	int
	StreamSlots		int
	LogLevel		slog.Level
}

const CFG_NAME = "loopio"
const ENV_PREFIX = "LOOPIO"

func Load() (*Config, error) {
	v := viper.New()
	v.SetDefault("ring_entries", 0x80)
	v.SetDefault("queue_size", 0x100)
	v.SetDefault("pool_workers", 4)
	v.SetDefault("registry_size", 0x400)
	v.SetDefault("stream_slots", 0x100)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix(ENV_PREFIX)
	v.AutomaticEnv()

	v.SetConfigName(CFG_NAME)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) { return nil, err }
		// no config file is fine, defaults + env carry us
	}

	cfg := Config {
		RingEntries: 	uint32(v.GetInt("ring_entries")),
		QueueSize: 		v.GetInt("queue_size"),
		PoolWorkers: 	v.GetInt("pool_workers"),
		RegistrySize: 	v.GetInt("registry_size"),
		StreamSlots: 	v.GetInt("stream_slots"),
		LogLevel: 		parseLevel(v.GetString("log_level")),
	}

	if cfg.RingEntries == 0 || cfg.QueueSize <= 0 || cfg.PoolWorkers <= 0 ||
		cfg.RegistrySize <= 0 || cfg.StreamSlots <= 0 {
		return nil, errors.New("config: sizes must be positive")
	}

	return &cfg, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
