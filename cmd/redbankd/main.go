package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mars-protocol/v1-core-sub000/crypto"
	nativecommon "github.com/mars-protocol/v1-core-sub000/native/common"
	"github.com/mars-protocol/v1-core-sub000/native/redbank"
	"github.com/mars-protocol/v1-core-sub000/native/redbank/ledger"
	"github.com/mars-protocol/v1-core-sub000/observability/logging"
	telemetry "github.com/mars-protocol/v1-core-sub000/observability/otel"
	"github.com/mars-protocol/v1-core-sub000/services/redbankd/config"
	"github.com/mars-protocol/v1-core-sub000/services/redbankd/server"
	"github.com/mars-protocol/v1-core-sub000/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/redbankd/config.yaml", "path to redbankd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("REDBANK_ENV"))
	logger := logging.Setup("redbankd", env, logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Level:      logging.ParseLevel(cfg.Log.Level),
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.FromEnv("redbankd", env))
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		log.Fatalf("open database %s: %v", cfg.DataDir, err)
	}
	defer db.Close()

	roles, err := cfg.Roles.Registry()
	if err != nil {
		log.Fatalf("roles: %v", err)
	}
	pauses := nativecommon.NewPauseSet()
	if cfg.Paused {
		pauses.Pause("redbank")
	}
	runtime, err := server.NewRuntime(db, server.RuntimeConfig{
		Contract: crypto.ModuleAddress(cfg.Contract),
		Registry: ledger.StaticRegistry(roles),
		Pauses:   pauses,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("runtime: %v", err)
	}

	genesis, err := redbank.LoadGenesis(cfg.GenesisPath)
	if err != nil {
		log.Fatalf("load genesis: %v", err)
	}
	prices, err := cfg.InitialPrices()
	if err != nil {
		log.Fatalf("prices: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := runtime.Bootstrap(ctx, genesis, prices); err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	logger.Info("redbank ready", "contract", runtime.Contract().String(), "data_dir", cfg.DataDir)

	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		Auth: server.AuthConfig{
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew,
		},
		ShutdownGrace: cfg.ShutdownGrace,
	}, runtime, logger)
	if err != nil {
		log.Fatalf("server: %v", err)
	}
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
