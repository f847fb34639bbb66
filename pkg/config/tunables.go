// Copyright 2025 Certen Protocol
//
// Relayer tunables loader — reads operator-facing batching and retry
// settings from a YAML file, with ${VAR_NAME} / ${VAR_NAME:-default}
// environment substitution before parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Tunables holds the subset of relayer behavior an operator may want to
// adjust per-deployment without rebuilding the binary.
type Tunables struct {
	Relayer    RelayerSettings    `yaml:"relayer"`
	ChainRPC   ChainRPCSettings   `yaml:"chain_rpc"`
	Monitoring MonitoringSettings `yaml:"monitoring"`
}

// RelayerSettings mirrors the main-loop tunables in Config but allows an
// operator to override them without touching the process environment.
type RelayerSettings struct {
	BatchSize           int      `yaml:"batch_size"`
	MaxAttempts         int      `yaml:"max_attempts"`
	RetryDelay          Duration `yaml:"retry_delay"`
	InterBatchPacing    Duration `yaml:"inter_batch_pacing"`
	ConfirmationTimeout Duration `yaml:"confirmation_timeout"`
	ConfirmationPoll    Duration `yaml:"confirmation_poll"`
}

// ChainRPCSettings configures the on-chain submission path.
type ChainRPCSettings struct {
	CommitmentLevel               string `yaml:"commitment_level"`
	ComputeUnitLimit               uint32 `yaml:"compute_unit_limit"`
	ComputeUnitPriceMicroLamports uint64 `yaml:"compute_unit_price_micro_lamports"`
}

// MonitoringSettings configures the health/metrics HTTP surface.
type MonitoringSettings struct {
	HealthAddr  string `yaml:"health_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Duration wraps time.Duration for YAML unmarshaling, accepting the same
// strings as time.ParseDuration ("2s", "500ms", "1m30s").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// LoadTunables reads relayer tunables from a YAML file, expanding
// ${VAR_NAME} and ${VAR_NAME:-default} references against the process
// environment before parsing.
func LoadTunables(path string) (*Tunables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tunables file %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var t Tunables
	if err := yaml.Unmarshal([]byte(expanded), &t); err != nil {
		return nil, fmt.Errorf("failed to parse tunables file %s: %w", path, err)
	}

	return &t, nil
}

// ApplyTunables overlays non-zero Tunables fields onto a Config loaded
// from the environment, giving the YAML file precedence where set.
func ApplyTunables(cfg *Config, t *Tunables) {
	if t == nil {
		return
	}
	if t.Relayer.BatchSize > 0 {
		cfg.BatchSize = t.Relayer.BatchSize
	}
	if t.Relayer.MaxAttempts > 0 {
		cfg.MaxAttempts = t.Relayer.MaxAttempts
	}
	if t.Relayer.RetryDelay > 0 {
		cfg.RetryDelay = t.Relayer.RetryDelay.Duration()
	}
	if t.Relayer.InterBatchPacing > 0 {
		cfg.InterBatchPacing = t.Relayer.InterBatchPacing.Duration()
	}
	if t.Relayer.ConfirmationTimeout > 0 {
		cfg.ConfirmationTimeout = t.Relayer.ConfirmationTimeout.Duration()
	}
	if t.Relayer.ConfirmationPoll > 0 {
		cfg.ConfirmationPoll = t.Relayer.ConfirmationPoll.Duration()
	}
	if t.ChainRPC.CommitmentLevel != "" {
		cfg.CommitmentLevel = t.ChainRPC.CommitmentLevel
	}
	if t.ChainRPC.ComputeUnitLimit > 0 {
		cfg.ComputeUnitLimit = t.ChainRPC.ComputeUnitLimit
	}
	if t.ChainRPC.ComputeUnitPriceMicroLamports > 0 {
		cfg.ComputeUnitPriceMicroLamports = t.ChainRPC.ComputeUnitPriceMicroLamports
	}
	if t.Monitoring.HealthAddr != "" {
		cfg.HealthAddr = t.Monitoring.HealthAddr
	}
	if t.Monitoring.MetricsAddr != "" {
		cfg.MetricsAddr = t.Monitoring.MetricsAddr
	}
}

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}

		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}
