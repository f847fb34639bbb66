// Copyright 2025 Certen Protocol

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the relayer service.
type Config struct {
	// Chain RPC Configuration
	RPCEndpoint        string
	ProgramID          string
	PayerKeyPath       string
	CommitmentLevel    string // "processed", "confirmed", "finalized"
	InsecureSkipVerify bool   // skip TLS certificate verification against RPCEndpoint; dev/test only

	// Compute Budget Configuration (§6)
	ComputeUnitLimit         uint32
	ComputeUnitPriceMicroLamports uint64

	// Server Configuration
	HealthAddr  string
	MetricsAddr string

	// Database Configuration (Claim Store backend: "postgres" or "embedded")
	StoreBackend string

	DatabaseURL         string
	DatabaseMaxConns    int
	DatabaseMinConns    int
	DatabaseMaxIdleTime int // seconds
	DatabaseMaxLifetime int // seconds

	EmbeddedStoreDir string // data directory for the embedded (cometbft-db) backend

	// Relayer Tunables (§4.6, §5)
	BatchSize           int
	MaxAttempts         int
	RetryDelay          time.Duration
	InterBatchPacing    time.Duration
	ConfirmationTimeout time.Duration
	ConfirmationPoll    time.Duration

	// Service Configuration
	LogLevel string
}

// Load reads configuration from environment variables. Call Validate()
// after Load() before starting the service.
func Load() (*Config, error) {
	cfg := &Config{
		RPCEndpoint:        getEnv("RPC_ENDPOINT", ""),
		ProgramID:          getEnv("VERIFIER_PROGRAM_ID", ""),
		PayerKeyPath:       getEnv("PAYER_KEY_PATH", ""),
		CommitmentLevel:    getEnv("COMMITMENT_LEVEL", "confirmed"),
		InsecureSkipVerify: getEnvBool("RPC_INSECURE_SKIP_VERIFY", false),

		ComputeUnitLimit:              uint32(getEnvInt("COMPUTE_UNIT_LIMIT", 200_000)),
		ComputeUnitPriceMicroLamports: uint64(getEnvInt("COMPUTE_UNIT_PRICE_MICRO_LAMPORTS", 0)),

		HealthAddr:  getEnv("HEALTH_ADDR", "0.0.0.0:8081"),
		MetricsAddr: getEnv("METRICS_ADDR", "0.0.0.0:9090"),

		StoreBackend: getEnv("STORE_BACKEND", "embedded"),

		DatabaseURL:         getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:    getEnvInt("DATABASE_MAX_CONNS", 25),
		DatabaseMinConns:    getEnvInt("DATABASE_MIN_CONNS", 5),
		DatabaseMaxIdleTime: getEnvInt("DATABASE_MAX_IDLE_TIME", 300),
		DatabaseMaxLifetime: getEnvInt("DATABASE_MAX_LIFETIME", 3600),

		EmbeddedStoreDir: getEnv("EMBEDDED_STORE_DIR", "./data/claimstore"),

		BatchSize:           getEnvInt("BATCH_SIZE", 32),
		MaxAttempts:         getEnvInt("MAX_ATTEMPTS", 5),
		RetryDelay:          getEnvDuration("RETRY_DELAY", 2*time.Second),
		InterBatchPacing:    getEnvDuration("INTER_BATCH_PACING", 500*time.Millisecond),
		ConfirmationTimeout: getEnvDuration("CONFIRMATION_TIMEOUT", 60*time.Second),
		ConfirmationPoll:    getEnvDuration("CONFIRMATION_POLL", 2*time.Second),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and internally
// consistent.
func (c *Config) Validate() error {
	var errs []string

	if c.RPCEndpoint == "" {
		errs = append(errs, "RPC_ENDPOINT is required but not set")
	}
	if c.ProgramID == "" {
		errs = append(errs, "VERIFIER_PROGRAM_ID is required but not set")
	}
	if c.PayerKeyPath == "" {
		errs = append(errs, "PAYER_KEY_PATH is required but not set")
	}

	switch c.StoreBackend {
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	case "embedded":
		if c.EmbeddedStoreDir == "" {
			errs = append(errs, "EMBEDDED_STORE_DIR is required when STORE_BACKEND=embedded")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORE_BACKEND must be \"postgres\" or \"embedded\", got %q", c.StoreBackend))
	}

	if c.BatchSize <= 0 {
		errs = append(errs, "BATCH_SIZE must be positive")
	}
	if c.MaxAttempts <= 0 {
		errs = append(errs, "MAX_ATTEMPTS must be positive")
	}

	switch c.CommitmentLevel {
	case "processed", "confirmed", "finalized":
	default:
		errs = append(errs, fmt.Sprintf("COMMITMENT_LEVEL must be processed, confirmed, or finalized, got %q", c.CommitmentLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
