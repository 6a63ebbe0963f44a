package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env                   string
	LogLevel              string
	Port                  string
	AllowedOrigin         string
	BackendURL            string
	BackendTimeoutSeconds int
	AuthSecret            string
	ManagerPIN            string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	SnapshotTTLSeconds    int
	NATSURL               string
	StoreID               string
	StoreName             string
}

// Load reads configuration from the environment. A .env file in the working
// directory or its parent is applied first; variables already set win.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		if dir, werr := os.Getwd(); werr == nil {
			_ = godotenv.Load(filepath.Join(dir, "..", ".env"))
		}
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	return Config{
		Env:                   strings.ToLower(getEnv("ENV", "dev")),
		LogLevel:              strings.ToLower(getEnv("LOG_LEVEL", "info")),
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		BackendURL:            strings.TrimSpace(getEnv("BACKEND_URL", "http://127.0.0.1:8000/api/")),
		BackendTimeoutSeconds: getEnvInt("BACKEND_TIMEOUT_SECONDS", 15),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		ManagerPIN:            strings.TrimSpace(os.Getenv("MANAGER_PIN")),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		SnapshotTTLSeconds:    getEnvInt("SNAPSHOT_TTL_SECONDS", 30),
		NATSURL:               os.Getenv("NATS_URL"),
		StoreID:               getEnv("STORE_ID", "main-store"),
		StoreName:             getEnv("STORE_NAME", "Salesdesk"),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) BackendTimeout() time.Duration {
	return time.Duration(c.BackendTimeoutSeconds) * time.Second
}

func (c Config) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLSeconds) * time.Second
}

func (c Config) IsProduction() bool {
	return c.Env == "prod" || c.Env == "production"
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}
