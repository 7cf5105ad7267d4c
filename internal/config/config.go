package config

import (
	"errors"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	LogLevel string
	HTTPAddr string

	DBType  string // file | postgres
	DBDSN   string
	DataDir string

	AuthMode  string // local | jwt
	AuthToken string
	JWTSecret string
	TokenTTL  time.Duration

	NetworkTimeout time.Duration // per-datastore-operation deadline
	FlushInterval  time.Duration // retry-queue drain / stats heartbeat
	OpMaxRetries   int           // retries per queued op, after the initial failed write
	PresenceTTL    time.Duration
}

var (
	cfg  *Config
	once sync.Once
)

func Load() *Config {
	once.Do(func() {
		_ = godotenv.Load()
		cfg = &Config{
			Env:            getEnv("APP_ENV", "development"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			HTTPAddr:       getEnv("HTTP_ADDR", ":8088"),
			DBType:         getEnv("STORAGE_BACKEND", "file"),
			DBDSN:          getEnv("POSTGRES_DSN", ""),
			DataDir:        getEnv("DATA_DIR", "data"),
			AuthMode:       getEnv("AUTH_MODE", "local"),
			AuthToken:      getEnv("AUTH_TOKEN", "MOCK-TOKEN"),
			JWTSecret:      getEnv("JWT_SECRET", ""),
			TokenTTL:       getDuration("TOKEN_TTL", 24*time.Hour),
			NetworkTimeout: getDuration("NETWORK_TIMEOUT", 10*time.Second),
			FlushInterval:  getDuration("SYNC_FLUSH_INTERVAL", 30*time.Second),
			OpMaxRetries:   getInt("OP_MAX_RETRIES", 3),
			PresenceTTL:    getDuration("PRESENCE_TTL", 90*time.Second),
		}
		if err := cfg.Validate(); err != nil {
			panic("Invalid config: " + err.Error())
		}
	})
	return cfg
}

func (c *Config) Validate() error {
	if c.DBType == "postgres" && c.DBDSN == "" {
		return errors.New("POSTGRES_DSN is required when STORAGE_BACKEND=postgres")
	}
	if c.DBType == "file" && c.DataDir == "" {
		return errors.New("File storage requires DATA_DIR to be set")
	}
	if c.AuthMode == "jwt" && c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required when AUTH_MODE=jwt")
	}
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return errors.New("APP_ENV must be one of: development, staging, production")
	}
	if c.OpMaxRetries < 1 {
		return errors.New("OP_MAX_RETRIES must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
