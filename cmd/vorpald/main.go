// vorpald is the AI-governance registry service: entity CRUD, policy
// evaluation, and the tamper-evident audit ledger behind one HTTP API.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/vorpalhq/vorpal/internal/auth"
	"github.com/vorpalhq/vorpal/internal/config"
	"github.com/vorpalhq/vorpal/internal/httpserver"
	"github.com/vorpalhq/vorpal/internal/ledger"
	"github.com/vorpalhq/vorpal/internal/metrics"
	"github.com/vorpalhq/vorpal/internal/packs"
	"github.com/vorpalhq/vorpal/internal/policy"
	"github.com/vorpalhq/vorpal/internal/service"
	"github.com/vorpalhq/vorpal/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Stores: Postgres when configured, in-memory for dev.
	var (
		entityStore store.Store
		ledgerStore ledger.Store
		ledgerPG    *ledger.PGStore
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := db.PingContext(pingCtx); err != nil {
			cancel()
			logger.Error("ping postgres", "error", err)
			os.Exit(1)
		}
		cancel()
		logger.Info("connected to postgres")
		entityStore = store.NewPGStore(db)
		ledgerPG = ledger.NewPGStore(db)
		ledgerStore = ledgerPG
	} else {
		logger.Warn("no database configured, using in-memory stores")
		entityStore = store.NewMemoryStore()
		ledgerStore = ledger.NewMemoryStore()
	}

	led := ledger.New(ledgerStore, ledger.Config{}, logger, m)
	engine := policy.NewEngine(entityStore, policy.NewBasicEvaluator(), logger, m)
	svc := service.New(entityStore, led, engine, logger)

	// Policy packs: seed at startup, optionally hot-reload on change.
	if cfg.PacksDir != "" {
		loader := packs.NewLoader(cfg.PacksDir, logger)
		if err := loader.Seed(ctx, svc); err != nil {
			logger.Error("seed policy packs", "error", err)
			os.Exit(1)
		}
		if cfg.WatchPacks {
			watcher := packs.NewWatcher(loader, svc, logger)
			go func() {
				if err := watcher.Run(ctx); err != nil {
					logger.Error("pack watcher exited", "error", err)
				}
			}()
		}
	}

	// Scheduled chain verification.
	auditor := ledger.NewAuditor(led, cfg.VerifySchedule, logger)
	if err := auditor.Start(ctx); err != nil {
		logger.Error("start auditor", "error", err)
		os.Exit(1)
	}

	// Durable Kafka/S3 streaming of appended events.
	if cfg.StreamingEnabled() {
		if ledgerPG == nil {
			logger.Warn("audit streaming requires postgres, skipping")
		} else {
			producer, err := ledger.NewKafkaProducer(ledger.KafkaProducerConfig{
				Brokers: cfg.KafkaBrokers,
				Topic:   cfg.KafkaTopic,
			})
			if err != nil {
				logger.Error("init kafka producer", "error", err)
				os.Exit(1)
			}
			archiver, err := ledger.NewS3Archiver(ctx, cfg.S3Bucket, cfg.S3Prefix)
			if err != nil {
				logger.Error("init s3 archiver", "error", err)
				os.Exit(1)
			}
			streamer := ledger.NewStreamer(ledgerPG, producer, archiver, ledger.StreamerConfig{
				BatchSize:      cfg.StreamBatchSize,
				PollInterval:   cfg.StreamPollInterval,
				MaxConcurrency: cfg.StreamConcurrency,
			}, logger)
			go func() {
				if err := streamer.Run(ctx); err != nil && err != context.Canceled {
					logger.Error("streamer exited", "error", err)
				}
			}()
			logger.Info("audit streamer started",
				"brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic, "bucket", cfg.S3Bucket)
		}
	}

	resolver := &auth.Resolver{
		JWTSecret: []byte(cfg.JWTSecret),
		APIKeys:   cfg.APIKeys,
		Logger:    logger,
	}
	server := httpserver.New(svc, resolver, logger)

	httpSrv := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Router(),
	}
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	auditor.Stop()
	logger.Info("stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
