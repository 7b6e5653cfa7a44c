package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
)

type Config struct {
	Environment  string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevelName string        `env:"LOG_LEVEL" envDefault:"info"`
	RedisURL     string        `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	QuestDir     string        `env:"QUEST_DIR" envDefault:"./data/quests"`
	TickInterval time.Duration `env:"TICK_INTERVAL" envDefault:"100ms"`
	SnapshotTTL  time.Duration `env:"SNAPSHOT_TTL" envDefault:"24h"`
	SessionID    string        `env:"SESSION_ID"`
	WorkerID     string        `env:"WORKER_ID"`
	Port         string        `env:"PORT" envDefault:"8080"`

	LogLevel slog.Level `env:"-"`
}

// Load reads the configuration from the environment. An empty SESSION_ID
// gets a fresh uuid.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)

	if cfg.SessionID == "" {
		cfg.SessionID = uuid.New().String()
	} else if _, err := uuid.Parse(cfg.SessionID); err != nil {
		return nil, fmt.Errorf("invalid SESSION_ID %q: %w", cfg.SessionID, err)
	}
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("TICK_INTERVAL must be positive, got %s", cfg.TickInterval)
	}
	return cfg, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
