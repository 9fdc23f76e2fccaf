// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// zkverifyd is the proof-verifying rollup machine: it long-polls a rollup
// node for inputs, verifies each embedded Groth16 receipt against the
// configured program identity, and reports accept or reject upstream.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/luxfi/database/memdb"
	log "github.com/luxfi/log"

	"github.com/luxfi/zkverify/config"
	"github.com/luxfi/zkverify/dispatch"
	"github.com/luxfi/zkverify/groth16"
	"github.com/luxfi/zkverify/metrics"
	"github.com/luxfi/zkverify/payload"
	"github.com/luxfi/zkverify/rollup"
	"github.com/luxfi/zkverify/store"
	"github.com/luxfi/zkverify/verifier"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml (optional; env vars override)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "zkverifyd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := log.NewTestLogger(logLevel(cfg.LogLevel))

	imageID, err := payload.ImageIDFromHex(cfg.ImageID)
	if err != nil {
		return fmt.Errorf("image-id: %w", err)
	}
	keyBytes, err := cfg.VerifyingKeyBytes()
	if err != nil {
		return err
	}
	vk, err := groth16.ParseVerifyingKey(keyBytes)
	if err != nil {
		return fmt.Errorf("verifying key: %w", err)
	}
	schema, err := cfg.Schema()
	if err != nil {
		return err
	}

	v, err := verifier.New(verifier.Config{
		ImageID:   imageID,
		Key:       vk,
		Schema:    schema,
		CacheSize: cfg.CacheSize,
		Log:       logger,
	})
	if err != nil {
		return err
	}

	if cfg.DataDir != "" {
		logger.Warn("data-dir is reserved for a persistent backend, using in-memory store",
			log.String("dataDir", cfg.DataDir),
		)
	}
	st := store.New(memdb.New(), logger)
	defer st.Close()

	client := rollup.NewClient(cfg.RollupURL, logger)
	reporter := dispatch.NewReporter(client, logger)

	registry := dispatch.NewRegistry()
	if err := registry.Register(rollup.RequestAdvance, dispatch.NewAdvanceHandler(v, reporter, st, logger)); err != nil {
		return err
	}
	if err := registry.Register(rollup.RequestInspect, dispatch.NewInspectHandler(v, reporter, st, logger)); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			// Observability never feeds back into request handling; a
			// failed listener is logged, not fatal.
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener failed", log.String("error", err.Error()))
			}
		}()
		defer srv.Close()
		logger.Info("metrics listener started", log.String("addr", cfg.MetricsAddr))
	}

	logger.Info("zkverifyd starting",
		log.String("rollupURL", client.BaseURL()),
		log.String("imageID", imageID.Hex()),
		log.String("journalSchema", schema.String()),
		log.Int("cacheSize", cfg.CacheSize),
	)

	return dispatch.NewLoop(client, registry, logger).Run(ctx)
}

func logLevel(name string) log.Level {
	switch strings.ToLower(name) {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
