// Copyright 2025 Certen Protocol

package main

import (
	"context"
	"crypto/tls"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/certen/merkle-distributor/pkg/artifact"
	"github.com/certen/merkle-distributor/pkg/chainrpc"
	"github.com/certen/merkle-distributor/pkg/claimstore"
	"github.com/certen/merkle-distributor/pkg/claimstore/embedded"
	"github.com/certen/merkle-distributor/pkg/claimstore/postgres"
	"github.com/certen/merkle-distributor/pkg/config"
	"github.com/certen/merkle-distributor/pkg/relayer"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	artifactPath := flag.String("artifact", "", "path to the distribution artifact JSON to seed and relay (overrides ARTIFACT_PATH)")
	tunablesPath := flag.String("tunables", "", "optional path to a YAML tunables file overlaying env-derived config (overrides TUNABLES_PATH)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration:", err)
	}
	if *artifactPath == "" {
		*artifactPath = os.Getenv("ARTIFACT_PATH")
	}
	if *artifactPath == "" {
		log.Fatal("an artifact path is required: pass -artifact or set ARTIFACT_PATH")
	}
	if *tunablesPath == "" {
		*tunablesPath = os.Getenv("TUNABLES_PATH")
	}
	if *tunablesPath != "" {
		tunables, err := config.LoadTunables(*tunablesPath)
		if err != nil {
			log.Fatalf("failed to load tunables from %s: %v", *tunablesPath, err)
		}
		config.ApplyTunables(cfg, tunables)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration:", err)
	}

	programID, err := decodeHex32(cfg.ProgramID)
	if err != nil {
		log.Fatalf("invalid VERIFIER_PROGRAM_ID: %v", err)
	}

	rawKey, err := os.ReadFile(cfg.PayerKeyPath)
	if err != nil {
		log.Fatalf("reading payer key from %s: %v", cfg.PayerKeyPath, err)
	}
	payerKey, err := relayer.ParsePayerKey(rawKey)
	if err != nil {
		log.Fatalf("invalid payer key at %s: %v", cfg.PayerKeyPath, err)
	}

	a, err := loadArtifact(*artifactPath)
	if err != nil {
		log.Fatalf("loading artifact from %s: %v", *artifactPath, err)
	}

	store, closeStore, err := openClaimStore(cfg)
	if err != nil {
		log.Fatal("failed to open claim store:", err)
	}
	defer closeStore()

	backendOpts := []chainrpc.BackendOption{
		chainrpc.WithLogger(log.New(log.Writer(), "[ChainRPC] ", log.LstdFlags)),
	}
	if cfg.InsecureSkipVerify {
		log.Print("WARNING: RPC_INSECURE_SKIP_VERIFY is set, TLS certificate verification is disabled")
		backendOpts = append(backendOpts, chainrpc.WithHTTPClient(&http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}))
	}
	backend, err := chainrpc.NewHTTPBackend(cfg.RPCEndpoint, programID, backendOpts...)
	if err != nil {
		log.Fatal("failed to construct chain RPC backend:", err)
	}

	registry := prometheus.NewRegistry()
	relayerCfg := relayer.Config{
		ProgramID:                     programID,
		PayerKey:                      payerKey,
		BatchSize:                     cfg.BatchSize,
		MaxAttempts:                   uint32(cfg.MaxAttempts),
		RetryDelay:                    cfg.RetryDelay,
		ComputeUnitLimit:              cfg.ComputeUnitLimit,
		ComputeUnitPriceMicroLamports: cfg.ComputeUnitPriceMicroLamports,
		CommitmentLevel:               chainrpc.CommitmentLevel(cfg.CommitmentLevel),
		ConfirmationTimeout:           cfg.ConfirmationTimeout,
		ConfirmationPoll:              cfg.ConfirmationPoll,
		InterBatchPacing:              cfg.InterBatchPacing,
		Logger:                        log.New(log.Writer(), "[Relayer] ", log.LstdFlags),
	}

	rel, err := relayer.New(store, backend, relayerCfg, relayer.WithMetricsRegisterer(registry))
	if err != nil {
		log.Fatal("failed to construct relayer:", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	healthServer := &http.Server{Addr: cfg.HealthAddr, Handler: mux}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	go func() {
		log.Printf("health endpoint listening on %s", cfg.HealthAddr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("health server failed:", err)
		}
	}()
	go func() {
		log.Printf("metrics endpoint listening on %s", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("metrics server failed:", err)
		}
	}()

	runErr := make(chan error, 1)
	go func() {
		runErr <- rel.Run(ctx, a)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Println("shutdown signal received, stopping relayer")
		cancel()
		<-runErr
	case err := <-runErr:
		if err != nil {
			log.Printf("relayer stopped with error: %v", err)
		} else {
			log.Println("distribution fully confirmed, relayer exiting")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("health server shutdown error: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}
}

func loadArtifact(path string) (*artifact.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	a, err := artifact.FromJSON(data)
	if err != nil {
		return nil, err
	}
	// Load-time, fatal validation per spec.md §4.4/§7: an externally
	// produced artifact file must never be seeded or submitted against
	// without checking structural fields, the dense index permutation,
	// the proof-sum/total_amount tie, and every proof against the root.
	if err := artifact.Validate(a, artifact.ValidateOptions{VerifyAllProofs: true}); err != nil {
		return nil, err
	}
	return a, nil
}

func openClaimStore(cfg *config.Config) (claimstore.Store, func(), error) {
	switch cfg.StoreBackend {
	case "postgres":
		client, err := postgres.NewClient(cfg, postgres.WithLogger(
			log.New(log.Writer(), "[ClaimStore:postgres] ", log.LstdFlags),
		))
		if err != nil {
			return nil, nil, err
		}
		store, err := postgres.Open(context.Background(), client)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case "embedded":
		store, err := embedded.Open(cfg.EmbeddedStoreDir, embedded.WithLogger(
			log.New(log.Writer(), "[ClaimStore:embedded] ", log.LstdFlags),
		))
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

func decodeHex32(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("not valid hex: %w", err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
