package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Channel  string
}

func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

type Config struct {
	Env             string
	HTTPAddr        string
	Storage         string
	DatabaseURL     string
	TokenSecret     string
	TxMaxRetries    int
	AutoMigrate     bool
	ShutdownTimeout time.Duration
	Redis           RedisConfig
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:             getEnv("APP_ENV", "production"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		Storage:         getEnv("STORAGE", StoragePostgres),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		TokenSecret:     getEnv("TOKEN_AUTH_SECRET", ""),
		TxMaxRetries:    getEnvAsInt("TX_MAX_RETRIES", 5),
		AutoMigrate:     getEnvAsBool("AUTO_MIGRATE", false),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Channel:  getEnv("REDIS_EVENTS_CHANNEL", "crackzone:team-events"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for postgres storage")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown STORAGE %q", c.Storage)
	}
	if c.TokenSecret == "" {
		return errors.New("TOKEN_AUTH_SECRET is required")
	}
	if c.TxMaxRetries < 1 {
		return errors.New("TX_MAX_RETRIES must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}
