// Package config loads application configuration from environment variables.
// A .env file (or .env.test when APP_ENV=test) is read first; variables that
// are already set in the process environment win.
package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

// Config holds the process-level settings. Concern-specific settings live in
// AuthConfig, RateLimitConfig and QueueConfig.
type Config struct {
	Env         string // application environment (dev, test, prod)
	Port        string // HTTP port to listen on
	LogLevel    string // debug, info, warn or error
	Store       string // StoreMySQL or StoreMemory
	DBUser      string
	DBPass      string // optional
	DBHost      string
	DBPort      string
	DBName      string
	DBMaxConns  int
	AutoMigrate bool // apply embedded migrations on startup
	TrustProxy  bool // take the client IP from X-Forwarded-For / X-Real-IP
}

// LoadDotEnv reads the env file for the current APP_ENV. A missing file is
// not an error.
func LoadDotEnv() {
	file := ".env"
	if os.Getenv("APP_ENV") == "test" {
		file = ".env.test"
	}
	if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
		log.Printf("config: cannot read %s: %v", file, err)
	}
}

// Load reads the process configuration. Missing required variables cause the
// program to exit with a fatal log message.
func Load() Config {
	LoadDotEnv()

	cfg := Config{
		Env:         must("APP_ENV"),
		Port:        envStr("APP_PORT", "8080"),
		LogLevel:    envStr("LOG_LEVEL", "info"),
		Store:       envStr("USER_STORE", StoreMySQL),
		DBPass:      os.Getenv("DB_PASS"),
		DBMaxConns:  envInt("DB_MAX_CONNS", 25),
		AutoMigrate: envBool("DB_AUTO_MIGRATE", false),
		TrustProxy:  envBool("TRUST_PROXY", false),
	}
	switch cfg.Store {
	case StoreMySQL:
		cfg.DBUser = must("DB_USER")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	case StoreMemory:
	default:
		log.Fatalf("invalid USER_STORE: %q", cfg.Store)
	}
	return cfg
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
