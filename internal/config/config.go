package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string
	LogLevel    string
	LogFormat   string

	// Websocket connection limits (per instance).
	WSMaxConnections    int64
	WSMaxPerIP          int
	WSConnectionsPerSec float64
	WSConnectionBurst   int
	WSMaxClientsPerShow int

	// Trending batch cadence. Zero disables the periodic job (on-demand only).
	TrendingInterval time.Duration
}

func Load() (*Config, error) {
	// Best-effort: a missing .env is fine outside development.
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	var err error
	if cfg.WSMaxConnections, err = getEnvInt64("WS_MAX_CONNECTIONS", 10000); err != nil {
		return nil, err
	}
	if cfg.WSMaxPerIP, err = getEnvInt("WS_MAX_PER_IP", 20); err != nil {
		return nil, err
	}
	if cfg.WSConnectionsPerSec, err = getEnvFloat("WS_CONNECTIONS_PER_SEC", 10); err != nil {
		return nil, err
	}
	if cfg.WSConnectionBurst, err = getEnvInt("WS_CONNECTION_BURST", 10); err != nil {
		return nil, err
	}
	if cfg.WSMaxClientsPerShow, err = getEnvInt("WS_MAX_CLIENTS_PER_SHOW", 1000); err != nil {
		return nil, err
	}

	intervalMin, err := getEnvInt("TRENDING_INTERVAL_MINUTES", 60)
	if err != nil {
		return nil, err
	}
	if intervalMin < 0 {
		return nil, fmt.Errorf("TRENDING_INTERVAL_MINUTES must not be negative")
	}
	cfg.TrendingInterval = time.Duration(intervalMin) * time.Minute

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return v, nil
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return v, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return v, nil
}
