package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	Environment string
	Database    DatabaseConfig
	Redis       RedisConfig
	NATS        NATSConfig
	Catalog     CatalogConfig
	SLA         SLAConfig
	AdminAPIKey string
	LogLevel    string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type NATSConfig struct {
	URL string
}

type CatalogConfig struct {
	BaseURL string
	APIKey  string
}

type SLAConfig struct {
	// TimeZone is the fixed deployment time zone for all SLA arithmetic
	TimeZone string
	// SweepInterval is how often the proactive violation sweep runs
	SweepInterval time.Duration
	// SweepLeaseTTL bounds a crashed sweeper's hold on the sweep lease
	SweepLeaseTTL time.Duration
	// SweepBatchSize caps assignments evaluated per sweep
	SweepBatchSize int
	// ConflictRetries bounds optimistic-concurrency retries on the order aggregate
	ConflictRetries int
	// DisableThreshold is the unresolved-violation count at which a dealer
	// becomes eligible for disable
	DisableThreshold int
}

func Load() (*Config, error) {
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")

	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("NATS_URL", "nats://localhost:4222")
	viper.SetDefault("SLA_TIMEZONE", "Asia/Amman")
	viper.SetDefault("SLA_SWEEP_INTERVAL", "5m")
	viper.SetDefault("SLA_SWEEP_LEASE_TTL", "4m")
	viper.SetDefault("SLA_SWEEP_BATCH_SIZE", "500")
	viper.SetDefault("SLA_CONFLICT_RETRIES", "3")
	viper.SetDefault("SLA_DISABLE_THRESHOLD", "3")
	viper.SetDefault("LOG_LEVEL", "info")

	// Read from environment variables
	viper.AutomaticEnv()

	// Try to read .env file (optional)
	if err := viper.ReadInConfig(); err != nil {
		// It's okay if .env doesn't exist, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	sweepInterval, err := time.ParseDuration(getEnvOrViper("SLA_SWEEP_INTERVAL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SLA_SWEEP_INTERVAL: %w", err)
	}
	sweepLeaseTTL, err := time.ParseDuration(getEnvOrViper("SLA_SWEEP_LEASE_TTL", "4m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SLA_SWEEP_LEASE_TTL: %w", err)
	}

	cfg := &Config{
		Port:        getEnvOrViper("PORT", "8080"),
		Environment: getEnvOrViper("ENVIRONMENT", "development"),
		Database: DatabaseConfig{
			Host:     getEnvOrViper("DB_HOST", "localhost"),
			Port:     getEnvOrViper("DB_PORT", "5432"),
			User:     getEnvOrViper("DB_USER", "postgres"),
			Password: getEnvOrViper("DB_PASSWORD", "postgres"),
			DBName:   getEnvOrViper("DB_NAME", "fulfillment"),
			SSLMode:  getEnvOrViper("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrViper("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrViper("REDIS_PASSWORD", ""),
			DB:       getIntEnvOrViper("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			URL: getEnvOrViper("NATS_URL", "nats://localhost:4222"),
		},
		Catalog: CatalogConfig{
			BaseURL: getEnvOrViper("CATALOG_BASE_URL", ""),
			APIKey:  getEnvOrViper("CATALOG_API_KEY", ""),
		},
		SLA: SLAConfig{
			TimeZone:         getEnvOrViper("SLA_TIMEZONE", "Asia/Amman"),
			SweepInterval:    sweepInterval,
			SweepLeaseTTL:    sweepLeaseTTL,
			SweepBatchSize:   getIntEnvOrViper("SLA_SWEEP_BATCH_SIZE", 500),
			ConflictRetries:  getIntEnvOrViper("SLA_CONFLICT_RETRIES", 3),
			DisableThreshold: getIntEnvOrViper("SLA_DISABLE_THRESHOLD", 3),
		},
		AdminAPIKey: getEnvOrViper("ADMIN_API_KEY", ""),
		LogLevel:    getEnvOrViper("LOG_LEVEL", "info"),
	}

	// Validate required fields
	if _, err := time.LoadLocation(cfg.SLA.TimeZone); err != nil {
		return nil, fmt.Errorf("invalid SLA_TIMEZONE %q: %w", cfg.SLA.TimeZone, err)
	}
	if cfg.SLA.DisableThreshold < 1 {
		return nil, fmt.Errorf("SLA_DISABLE_THRESHOLD must be at least 1")
	}
	if cfg.Environment == "production" && cfg.AdminAPIKey == "" {
		return nil, fmt.Errorf("ADMIN_API_KEY is required in production")
	}

	return cfg, nil
}

func getEnvOrViper(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultValue
}

func getIntEnvOrViper(key string, defaultValue int) int {
	raw := getEnvOrViper(key, strconv.Itoa(defaultValue))
	val, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return val
}
