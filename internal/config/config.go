// Package config loads server configuration from the environment, with
// an optional .env file for development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/classraid/classraid-server/internal/session"
)

type Config struct {
	// Addr is the HTTP listen address.
	Addr string
	// DatabaseDSN is the Postgres connection string.
	DatabaseDSN string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// LogFormat is json or console.
	LogFormat string

	// Per-phase countdown durations, in seconds.
	QuestionSec int
	ChoiceSec   int
	TargetSec   int
	HealSec     int
	// IdleTimeoutMin tears down sessions with no connections.
	IdleTimeoutMin int
}

// Load reads the environment. A missing .env is fine; a malformed
// numeric variable is not.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:        envStr("ADDR", ":8080"),
		DatabaseDSN: os.Getenv("DATABASE_DSN"),
		LogLevel:    envStr("LOG_LEVEL", "info"),
		LogFormat:   envStr("LOG_FORMAT", "json"),
	}
	var err error
	if cfg.QuestionSec, err = envInt("PHASE_QUESTION_SEC", 15); err != nil {
		return Config{}, err
	}
	if cfg.ChoiceSec, err = envInt("PHASE_CHOICE_SEC", 10); err != nil {
		return Config{}, err
	}
	if cfg.TargetSec, err = envInt("PHASE_TARGET_SEC", 8); err != nil {
		return Config{}, err
	}
	if cfg.HealSec, err = envInt("PHASE_HEAL_SEC", 8); err != nil {
		return Config{}, err
	}
	if cfg.IdleTimeoutMin, err = envInt("SESSION_IDLE_MIN", 5); err != nil {
		return Config{}, err
	}
	if cfg.DatabaseDSN == "" {
		return Config{}, fmt.Errorf("DATABASE_DSN is required")
	}
	return cfg, nil
}

// Timing converts the phase durations for the session layer.
func (c Config) Timing() session.Timing {
	return session.Timing{
		Question: time.Duration(c.QuestionSec) * time.Second,
		Choice:   time.Duration(c.ChoiceSec) * time.Second,
		Target:   time.Duration(c.TargetSec) * time.Second,
		Heal:     time.Duration(c.HealSec) * time.Second,
		Idle:     time.Duration(c.IdleTimeoutMin) * time.Minute,
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q: %w", key, v, err)
	}
	return n, nil
}
