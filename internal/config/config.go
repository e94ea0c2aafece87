package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries all runtime settings, resolved from environment
// variables with sensible defaults.
type Config struct {
	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	// Store selects the persistence backend and the multi-client mode.
	Store struct {
		// Backend: "file", "memory", "gorm" or "redis".
		Backend string
		// Path of the JSON state file for the file backend.
		Path string
		// Shared enables the tiered local-cache + remote mode.
		Shared bool
		// RemoteURL points at a shared-store HTTP endpoint. When set it
		// wins over the redis remote.
		RemoteURL string
		// FreshnessTTL bounds how stale a cached read may be before the
		// remote is consulted again.
		FreshnessTTL time.Duration
		// RemoteTimeout caps every remote round trip.
		RemoteTimeout time.Duration
	}

	DB struct {
		DSN        string // MySQL DSN; empty selects SQLite
		SQLitePath string
		Host       string
		Port       string
		User       string
		Password   string
		Name       string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
		Key      string // key holding the shared document blob
	}

	HTTP struct {
		Host string
		Port string
	}

	Engage struct {
		Throttle      time.Duration // min gap between engagement passes
		PushPerDay    int           // push delivery cap per recipient per day
		RecentSilence time.Duration // window for the same-text suppression rule
	}
}

// New resolves configuration from the environment.
func New() *Config {
	cfg := &Config{}

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "orbit_core")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	// Store
	cfg.Store.Backend = getEnvDefault("STORE_BACKEND", "file")
	cfg.Store.Path = getEnvDefault("STORE_PATH", "data/orbit.json")
	cfg.Store.Shared = isTruthy(os.Getenv("STORE_SHARED"))
	cfg.Store.RemoteURL = os.Getenv("STORE_REMOTE_URL")
	cfg.Store.FreshnessTTL = getEnvDuration("STORE_FRESHNESS_TTL", 1500*time.Millisecond)
	cfg.Store.RemoteTimeout = getEnvDuration("STORE_REMOTE_TIMEOUT", 3*time.Second)

	// Database (gorm blob backend)
	cfg.DB.DSN = os.Getenv("MYSQL_DSN")
	cfg.DB.SQLitePath = getEnvDefault("SQLITE_PATH", "data/orbit.db")
	if cfg.DB.DSN == "" && isTruthy(os.Getenv("DB_USE_MYSQL")) {
		cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
		cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
		cfg.DB.User = getEnvDefault("DB_USER", "root")
		cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
		cfg.DB.Name = getEnvDefault("DB_NAME", "orbit")

		cfg.DB.DSN = fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
		)
	}

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	if dbStr := getEnvDefault("REDIS_DB", "0"); dbStr != "" {
		if dbInt, err := strconv.Atoi(dbStr); err == nil {
			cfg.Redis.DB = dbInt
		}
	}
	cfg.Redis.Key = getEnvDefault("REDIS_STORE_KEY", "orbit:document")

	// HTTP (shared-store endpoint)
	cfg.HTTP.Host = getEnvDefault("HTTP_HOST", "127.0.0.1")
	cfg.HTTP.Port = getEnvDefault("HTTP_PORT", "8090")

	// Engagement scheduler
	cfg.Engage.Throttle = getEnvDuration("ENGAGE_THROTTLE", 15*time.Second)
	cfg.Engage.PushPerDay = getEnvInt("ENGAGE_PUSH_PER_DAY", 2)
	cfg.Engage.RecentSilence = getEnvDuration("ENGAGE_RECENT_SILENCE", 30*time.Minute)

	return cfg
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvDuration(k string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
