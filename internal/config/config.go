package config

import (
	"encoding/base64"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the relay.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string // PostgreSQL; empty selects the embedded SQLite directory
	SQLitePath  string
	RedisURL    string // optional ciphertext history mirror

	// RoomKeySecret is the base64 master secret for deriving per-room keys.
	// Empty means each room gets a fresh random key.
	RoomKeySecret []byte

	HistoryLimit    int
	ReplayLimit     int
	MaxMessageBytes int
	TypingTTL       time.Duration
	RoomGracePeriod time.Duration
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SQLitePath:      getEnv("SQLITE_PATH", "./data/huddle.db"),
		RedisURL:        os.Getenv("REDIS_URL"),
		HistoryLimit:    getEnvInt("HISTORY_LIMIT", 100),
		ReplayLimit:     getEnvInt("REPLAY_LIMIT", 50),
		MaxMessageBytes: getEnvInt("MAX_MESSAGE_BYTES", 4096),
		TypingTTL:       getEnvDuration("TYPING_TTL", time.Second),
		RoomGracePeriod: getEnvDuration("ROOM_GRACE_PERIOD", 30*time.Second),
	}

	if secret := os.Getenv("ROOM_KEY_SECRET"); secret != "" {
		decoded, err := base64.StdEncoding.DecodeString(secret)
		if err != nil {
			panic("ROOM_KEY_SECRET must be valid base64")
		}
		cfg.RoomKeySecret = decoded
	}

	if cfg.ReplayLimit > cfg.HistoryLimit {
		cfg.ReplayLimit = cfg.HistoryLimit
	}

	// In production, require a stable master secret when history is mirrored;
	// without it, mirrored ciphertext is undecryptable after a restart.
	if cfg.Env == "production" {
		if cfg.RedisURL != "" && len(cfg.RoomKeySecret) == 0 {
			panic("ROOM_KEY_SECRET is required when REDIS_URL is set in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
