package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// BalanceMode selects the orchestrator's clamping strictness and
// persistence policy.
type BalanceMode string

const (
	ModeRegulator BalanceMode = "REGULATOR"
	ModeInternal  BalanceMode = "INTERNAL"
	ModeAudit     BalanceMode = "AUDIT"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// Server
	Port    int
	DevMode bool

	// Balance engine
	BalanceMode              BalanceMode
	BalanceErrorThresholdPct float64
	HistoricalFallbackMonths int

	// Workbook
	WorkbookPath string

	// Databases
	AppDatabasePath   string
	CacheDatabasePath string

	// Logging
	LogLevel       string
	LogDir         string
	LogRetentionDays int

	// Cache
	CacheDir string

	// Optional archival (internal/archive)
	ArchiveBucket string
	ArchiveRegion string
}

// Load reads configuration from environment variables, optionally seeded
// from a .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                     getEnvAsInt("PORT", 8080),
		DevMode:                  getEnvAsBool("DEV_MODE", false),
		BalanceMode:              BalanceMode(getEnv("BALANCE_MODE", string(ModeRegulator))),
		BalanceErrorThresholdPct: getEnvAsFloat("BALANCE_ERROR_THRESHOLD_PCT", 5.0),
		HistoricalFallbackMonths: getEnvAsInt("BALANCE_HISTORICAL_FALLBACK_MONTHS", 0),
		WorkbookPath:             getEnv("WORKBOOK_PATH", "./data/water_balance.xlsx"),
		AppDatabasePath:          getEnv("APP_DATABASE_PATH", "./data/waterbalance.db"),
		CacheDatabasePath:        getEnv("CACHE_DATABASE_PATH", "./data/storage_cache.db"),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		LogDir:                   getEnv("LOG_DIR", "./data/logs"),
		LogRetentionDays:         getEnvAsInt("LOG_RETENTION_DAYS", 90),
		CacheDir:                 getEnv("CACHE_DIR", "data/"),
		ArchiveBucket:            getEnv("ARCHIVE_S3_BUCKET", ""),
		ArchiveRegion:            getEnv("ARCHIVE_S3_REGION", "us-east-1"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present and consistent.
func (c *Config) Validate() error {
	if c.AppDatabasePath == "" {
		return fmt.Errorf("APP_DATABASE_PATH is required")
	}
	if c.WorkbookPath == "" {
		return fmt.Errorf("WORKBOOK_PATH is required")
	}
	switch c.BalanceMode {
	case ModeRegulator, ModeInternal, ModeAudit:
	default:
		return fmt.Errorf("BALANCE_MODE must be one of REGULATOR, INTERNAL, AUDIT, got %q", c.BalanceMode)
	}
	if c.BalanceErrorThresholdPct <= 0 {
		return fmt.Errorf("BALANCE_ERROR_THRESHOLD_PCT must be > 0")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
