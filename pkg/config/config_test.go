// Copyright 2025 Certen Protocol

package config

import (
	"os"
	"testing"
)

func clearRelayerEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"RPC_ENDPOINT", "VERIFIER_PROGRAM_ID", "PAYER_KEY_PATH",
		"STORE_BACKEND", "DATABASE_URL", "EMBEDDED_STORE_DIR",
		"BATCH_SIZE", "MAX_ATTEMPTS", "COMMITMENT_LEVEL",
	} {
		os.Unsetenv(k)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearRelayerEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BatchSize != 32 {
		t.Errorf("expected default batch size 32, got %d", cfg.BatchSize)
	}
	if cfg.StoreBackend != "embedded" {
		t.Errorf("expected default store backend embedded, got %q", cfg.StoreBackend)
	}
}

func TestValidateRejectsMissingRequired(t *testing.T) {
	clearRelayerEnv(t)
	cfg, _ := Load()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for missing RPC endpoint and program id")
	}
}

func TestValidateAcceptsCompleteEmbeddedConfig(t *testing.T) {
	clearRelayerEnv(t)
	os.Setenv("RPC_ENDPOINT", "http://127.0.0.1:8899")
	os.Setenv("VERIFIER_PROGRAM_ID", "11111111111111111111111111111111")
	os.Setenv("PAYER_KEY_PATH", "/tmp/payer.json")
	defer clearRelayerEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidateRejectsUnknownStoreBackend(t *testing.T) {
	clearRelayerEnv(t)
	os.Setenv("RPC_ENDPOINT", "http://127.0.0.1:8899")
	os.Setenv("VERIFIER_PROGRAM_ID", "11111111111111111111111111111111")
	os.Setenv("PAYER_KEY_PATH", "/tmp/payer.json")
	os.Setenv("STORE_BACKEND", "sqlite")
	defer clearRelayerEnv(t)

	cfg, _ := Load()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown store backend")
	}
}

func TestApplyTunablesOverridesDefaults(t *testing.T) {
	clearRelayerEnv(t)
	cfg, _ := Load()

	tun := &Tunables{Relayer: RelayerSettings{BatchSize: 64, MaxAttempts: 9}}
	ApplyTunables(cfg, tun)

	if cfg.BatchSize != 64 {
		t.Errorf("expected overridden batch size 64, got %d", cfg.BatchSize)
	}
	if cfg.MaxAttempts != 9 {
		t.Errorf("expected overridden max attempts 9, got %d", cfg.MaxAttempts)
	}
}

func TestApplyTunablesNilIsNoop(t *testing.T) {
	clearRelayerEnv(t)
	cfg, _ := Load()
	before := *cfg
	ApplyTunables(cfg, nil)
	if *cfg != before {
		t.Fatal("ApplyTunables(cfg, nil) must not mutate cfg")
	}
}
