package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/ozalerts/exposure-sites-etl/internal/adapter/geocode"
	httpadapter "github.com/ozalerts/exposure-sites-etl/internal/adapter/http"
	kafkaadapter "github.com/ozalerts/exposure-sites-etl/internal/adapter/kafka"
	"github.com/ozalerts/exposure-sites-etl/internal/adapter/postgres"
	"github.com/ozalerts/exposure-sites-etl/internal/adapter/upstream"
	"github.com/ozalerts/exposure-sites-etl/internal/config"
	"github.com/ozalerts/exposure-sites-etl/internal/observability"
	"github.com/ozalerts/exposure-sites-etl/internal/pipeline"
	"github.com/ozalerts/exposure-sites-etl/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Document store: Postgres when configured, in-memory for local runs.
	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open postgres store", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		st = pg
		logger.Info("using postgres document store")
	} else {
		st = store.NewMemory()
		logger.Warn("DATABASE_URL not set, snapshots will not survive restarts")
	}

	geocoder := geocode.NewClient(cfg.GeocodeAPIKey, cfg.GeocodeTimeout, metrics, logger)
	resolver := geocode.NewCachedResolver(geocoder, st, metrics, logger)
	fetcher := upstream.NewClient(cfg.FetchTimeout, metrics, logger)

	publisher := pipeline.NewPublisher(st, resolver, clock, metrics, logger,
		cfg.PageSize, cfg.DeleteBatchSize, pipeline.DefaultPageWriteBudget)
	reader := pipeline.NewReader(st, logger)

	// Snapshot notifications are optional; without brokers the pipeline
	// simply skips them.
	var notifier pipeline.Notifier
	if cfg.NotifierEnabled {
		kn := kafkaadapter.NewNotifier(cfg.KafkaBrokers, cfg.KafkaSnapshotTopic, logger)
		defer func() {
			if err := kn.Close(); err != nil {
				logger.Error("kafka notifier close error", "error", err)
			}
		}()
		notifier = kn
		logger.Info("snapshot notifications enabled", "topic", cfg.KafkaSnapshotTopic)
	}

	p := pipeline.New(fetcher, publisher, reader, notifier, cfg.Feeds,
		cfg.RefreshInterval, clock, metrics, logger)

	states := make([]string, len(cfg.Feeds))
	for i, f := range cfg.Feeds {
		states[i] = f.State
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, reader, states, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
