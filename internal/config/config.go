// Package config provides configuration for the orchestrator.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the orchestrator configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseDSN string

	// Context repository
	ContextRepoPath string

	// Pipeline runner
	PipelineCommand string
	PipelineTimeout time.Duration

	// Approval workflow
	ApprovalTTL   time.Duration
	SweepInterval time.Duration

	// Logging
	LogLevel string
	LogJSON  bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		HTTPPort:        getEnvInt("HTTP_PORT", 8080),
		DatabaseDSN:     getEnv("DATABASE_DSN", "file:orchestrator.db?cache=shared&mode=rwc"),
		ContextRepoPath: getEnv("CONTEXT_REPO_PATH", "../context-repo"),
		PipelineCommand: getEnv("PIPELINE_COMMAND", "pnpm"),
		PipelineTimeout: time.Duration(getEnvInt("PIPELINE_TIMEOUT_MS", 30000)) * time.Millisecond,
		ApprovalTTL:     time.Duration(getEnvInt("APPROVAL_TTL_MS", 900000)) * time.Millisecond,
		SweepInterval:   time.Duration(getEnvInt("APPROVAL_SWEEP_MS", 30000)) * time.Millisecond,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogJSON:         getEnvBool("LOG_JSON", false),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}
