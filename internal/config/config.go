// Package config provides process configuration for the revcast engine.
// Process configuration covers the runtime surface only (paths, port, log
// level, schedule, export targets). Business assumptions live in the
// assumptions database and are loaded per run into an immutable snapshot.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir       string // Base directory for the warehouse databases (always absolute)
	Port          int
	LogLevel      string
	DevMode       bool
	RunSchedule   string // cron expression for scheduled pipeline runs; empty disables
	RunOnStart    bool   // execute one pipeline run during startup
	ExportDir     string // artifact pack output directory (defaults to <DataDir>/artifacts)
	ExportEnabled bool
	S3Bucket      string // optional artifact upload target; empty disables S3
	S3Prefix      string
	S3Region      string
}

// Load reads configuration from environment variables (.env supported).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("REVCAST_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	exportDir := getEnv("REVCAST_EXPORT_DIR", "")
	if exportDir == "" {
		exportDir = filepath.Join(absDataDir, "artifacts")
	}

	cfg := &Config{
		DataDir:       absDataDir,
		Port:          getEnvAsInt("REVCAST_PORT", 8040),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DevMode:       getEnvAsBool("DEV_MODE", false),
		RunSchedule:   getEnv("REVCAST_RUN_SCHEDULE", ""), // e.g. "0 2 * * *" for nightly
		RunOnStart:    getEnvAsBool("REVCAST_RUN_ON_START", false),
		ExportDir:     exportDir,
		ExportEnabled: getEnvAsBool("REVCAST_EXPORT_ENABLED", false),
		S3Bucket:      getEnv("REVCAST_S3_BUCKET", ""),
		S3Prefix:      getEnv("REVCAST_S3_PREFIX", "revcast-artifacts"),
		S3Region:      getEnv("AWS_REGION", "eu-central-1"),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
