// Command refresh runs one fetch-fold-geocode-publish cycle and exits.
// Useful for backfilling a fresh database or forcing an update outside the
// service's refresh interval.
//
// Usage:
//
//	GEOCODE_API_KEY=... DATABASE_URL=... go run ./cmd/refresh [-state vic]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/ozalerts/exposure-sites-etl/internal/adapter/geocode"
	"github.com/ozalerts/exposure-sites-etl/internal/adapter/postgres"
	"github.com/ozalerts/exposure-sites-etl/internal/adapter/upstream"
	"github.com/ozalerts/exposure-sites-etl/internal/config"
	"github.com/ozalerts/exposure-sites-etl/internal/observability"
	"github.com/ozalerts/exposure-sites-etl/internal/pipeline"
	"github.com/ozalerts/exposure-sites-etl/internal/store"
)

func main() {
	state := flag.String("state", "", "refresh only this feed state (default: all feeds)")
	flag.Parse()

	if code := run(*state); code != 0 {
		os.Exit(code)
	}
}

func run(state string) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		return 1
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: open postgres store: %v\n", err)
			return 1
		}
		defer pg.Close()
		st = pg
	} else {
		fmt.Fprintln(os.Stderr, "FATAL: DATABASE_URL is required; a one-shot run against the in-memory store publishes nothing durable")
		return 1
	}

	geocoder := geocode.NewClient(cfg.GeocodeAPIKey, cfg.GeocodeTimeout, metrics, logger)
	resolver := geocode.NewCachedResolver(geocoder, st, metrics, logger)
	fetcher := upstream.NewClient(cfg.FetchTimeout, metrics, logger)

	publisher := pipeline.NewPublisher(st, resolver, clock, metrics, logger,
		cfg.PageSize, cfg.DeleteBatchSize, pipeline.DefaultPageWriteBudget)
	reader := pipeline.NewReader(st, logger)
	p := pipeline.New(fetcher, publisher, reader, nil, cfg.Feeds,
		cfg.RefreshInterval, clock, metrics, logger)

	feeds := cfg.Feeds
	if state != "" {
		feeds = nil
		for _, f := range cfg.Feeds {
			if f.State == state {
				feeds = []config.Feed{f}
				break
			}
		}
		if feeds == nil {
			fmt.Fprintf(os.Stderr, "FATAL: unknown state %q\n", state)
			return 1
		}
	}

	failed := 0
	for _, feed := range feeds {
		if err := p.RefreshFeed(ctx, feed); err != nil {
			fmt.Fprintf(os.Stderr, "refresh %s: %v\n", feed.State, err)
			failed++
			continue
		}
		fmt.Printf("refresh %s: ok\n", feed.State)
	}
	if failed > 0 {
		return 1
	}
	return 0
}
