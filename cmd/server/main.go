// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

// Package main is the entry point for the Vantage server.
//
// Vantage tracks view counts and playback positions for a video
// platform. Writes flow through a NATS JetStream event log into a
// BadgerDB fast store and a DuckDB raw log; reads cascade from
// leaderboard snapshots through rollups down to raw scans, so the API
// keeps answering while any single tier is degraded.
//
// The server initializes components in the following order:
//
//  1. Configuration: layered Koanf v2 (defaults, config.yaml, VANTAGE_* env)
//  2. Fast store: BadgerDB (counters, member sets, snapshots, position cache)
//  3. Durable store: DuckDB (raw view log, rollups, watch history, catalog)
//  4. NATS: embedded JetStream server (optional), stream, publisher, consumer
//  5. Supervision: suture tree with jobs, messaging, and API layers
//  6. HTTP server: Chi router with analytics, position, and admin endpoints
//
// Graceful shutdown runs on SIGINT/SIGTERM: the supervisor tree stops
// its services, pending positions flush, and both stores close.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/vantage/internal/api"
	"github.com/tomtom215/vantage/internal/config"
	"github.com/tomtom215/vantage/internal/counter"
	"github.com/tomtom215/vantage/internal/database"
	"github.com/tomtom215/vantage/internal/events"
	"github.com/tomtom215/vantage/internal/fallback"
	"github.com/tomtom215/vantage/internal/leaderboard"
	"github.com/tomtom215/vantage/internal/logging"
	"github.com/tomtom215/vantage/internal/natsembed"
	"github.com/tomtom215/vantage/internal/position"
	"github.com/tomtom215/vantage/internal/rebuild"
	"github.com/tomtom215/vantage/internal/rollup"
	"github.com/tomtom215/vantage/internal/store"
	"github.com/tomtom215/vantage/internal/supervisor"
	"github.com/tomtom215/vantage/internal/supervisor/services"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("server exited with error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Bool("nats", cfg.NATS.Enabled).
		Msg("starting vantage")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Fast store.
	var badgerStore *store.Badger
	if cfg.Badger.InMemory {
		badgerStore, err = store.OpenInMemory()
	} else {
		badgerStore, err = store.Open(cfg.Badger.Path)
	}
	if err != nil {
		return fmt.Errorf("open fast store: %w", err)
	}
	defer func() {
		if err := badgerStore.Close(); err != nil {
			logging.Error().Err(err).Msg("closing fast store")
		}
	}()

	// Durable store.
	db, err := database.New(database.Config{
		Path:      cfg.Database.Path,
		MaxMemory: cfg.Database.MaxMemory,
		Threads:   cfg.Database.Threads,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("closing database")
		}
	}()

	// Domain services.
	viewCounter := counter.New(badgerStore, badgerStore, badgerStore,
		counter.WithDedupTTL(cfg.Counter.DedupTTL))
	lbBuilder := leaderboard.New(db, viewCounter, badgerStore, cfg.Leaderboard.Retention)
	rollupScheduler := rollup.New(db,
		rollup.WithRetentionDays(cfg.Rollup.RetentionDays),
		rollup.WithCleanupInterval(cfg.Rollup.CleanupInterval))
	cascade := fallback.New(badgerStore, viewCounter, db, db, fallback.Config{
		Timeout:          cfg.Fallback.Timeout,
		BreakerThreshold: cfg.Fallback.BreakerThreshold,
		BreakerCooldown:  cfg.Fallback.BreakerCooldown,
	})
	rebuildService := rebuild.New(badgerStore, badgerStore, badgerStore, db,
		cfg.Rebuild.RatePerSecond)
	positionCache := position.New(badgerStore, badgerStore, db,
		position.WithTTL(cfg.Position.TTL))

	// Event log.
	var (
		publisher       *events.Publisher
		consumerService *services.ConsumerService
		embedded        *natsembed.Server
	)
	if cfg.NATS.Enabled {
		natsURL := cfg.NATS.URL
		if cfg.NATS.EmbeddedServer {
			embedded, err = natsembed.New(natsembed.Config{
				Host:              "127.0.0.1",
				Port:              -1,
				StoreDir:          cfg.NATS.StoreDir,
				JetStreamMaxMem:   cfg.NATS.MaxMemory,
				JetStreamMaxStore: cfg.NATS.MaxStore,
			})
			if err != nil {
				return fmt.Errorf("start embedded NATS: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := embedded.Shutdown(shutdownCtx); err != nil {
					logging.Error().Err(err).Msg("shutting down embedded NATS")
				}
			}()
			natsURL = embedded.ClientURL()
		}

		if err := provisionStream(ctx, natsURL, cfg.NATS.StreamRetentionDays); err != nil {
			return err
		}

		wmLogger := events.NewWatermillLogger()

		publisher, err = events.NewPublisher(events.DefaultPublisherConfig(natsURL), wmLogger)
		if err != nil {
			return fmt.Errorf("create publisher: %w", err)
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logging.Error().Err(err).Msg("closing publisher")
			}
		}()

		subCfg := events.DefaultSubscriberConfig(natsURL)
		if cfg.NATS.DurableName != "" {
			subCfg.DurableName = cfg.NATS.DurableName
		}
		if cfg.NATS.QueueGroup != "" {
			subCfg.QueueGroup = cfg.NATS.QueueGroup
		}
		subCfg.AckWaitTimeout = cfg.NATS.AckWait
		subCfg.MaxDeliver = cfg.NATS.MaxDeliver

		subscriber, err := events.NewSubscriber(&subCfg, wmLogger)
		if err != nil {
			return fmt.Errorf("create subscriber: %w", err)
		}
		defer func() {
			if err := subscriber.Close(); err != nil {
				logging.Error().Err(err).Msg("closing subscriber")
			}
		}()

		consumer := events.NewConsumer(viewCounter, db, db)
		consumerService, err = services.NewConsumerService(consumer, subscriber)
		if err != nil {
			return fmt.Errorf("create consumer service: %w", err)
		}
	}

	// HTTP surface. The publisher stays nil when the event log is
	// disabled; the view endpoint reports unavailable in that case.
	var eventPublisher api.EventPublisher
	if publisher != nil {
		eventPublisher = publisher
	}
	handler := api.NewHandler(api.HandlerConfig{
		Analytics:         cascade,
		Positions:         positionCache,
		History:           db,
		Catalog:           db,
		Publisher:         eventPublisher,
		Rebuilder:         rebuildService,
		Backfill:          rollupScheduler,
		DB:                db,
		RebuildWindowDays: cfg.Rebuild.WindowDays,
		RebuildBatchSize:  cfg.Rebuild.BatchSize,
		MaxTopK:           cfg.Leaderboard.MaxTopK,
	})
	router := api.NewRouter(handler, api.NewMiddleware(&api.MiddlewareConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		RateLimitRequests:  cfg.Server.RateLimitReqs,
		RateLimitWindow:    cfg.Server.RateLimitWindow,
	}))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       120 * time.Second,
	}

	// Supervision tree.
	slogger := slog.New(logging.NewSlogHandler())
	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree, err := supervisor.NewTree(slogger, treeCfg)
	if err != nil {
		return fmt.Errorf("build supervisor tree: %w", err)
	}

	refreshSvc, err := services.NewIntervalService("leaderboard-refresh",
		cfg.Leaderboard.RefreshInterval, true, lbBuilder.Refresh)
	if err != nil {
		return err
	}
	tree.AddJobService(refreshSvc)

	rollupSvc, err := services.NewIntervalService("rollup-scheduler",
		cfg.Rollup.PollInterval, false, rollupScheduler.Tick)
	if err != nil {
		return err
	}
	tree.AddJobService(rollupSvc)

	flushSvc, err := services.NewIntervalService("position-flush",
		cfg.Position.FlushInterval, false, func(ctx context.Context) error {
			_, err := positionCache.Flush(ctx, cfg.Position.FlushBatchSize)
			return err
		})
	if err != nil {
		return err
	}
	tree.AddJobService(flushSvc)

	if consumerService != nil {
		tree.AddMessagingService(consumerService)
	}
	tree.AddAPIService(services.NewHTTPServerService(httpServer, cfg.Server.ShutdownTimeout))

	logging.Info().Str("addr", httpServer.Addr).Msg("vantage ready")
	err = tree.Serve(ctx)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("supervisor tree: %w", err)
	}

	// Final drain so positions written in the last flush interval reach
	// the durable store.
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if flushed, err := positionCache.Flush(drainCtx, cfg.Position.FlushBatchSize); err != nil {
		logging.Error().Err(err).Msg("final position flush failed")
	} else if flushed > 0 {
		logging.Info().Int("flushed", flushed).Msg("drained position cache")
	}

	logging.Info().Msg("vantage stopped")
	return nil
}

// provisionStream connects briefly to create or update the media stream
// before the Watermill publisher and subscriber bind to it.
func provisionStream(ctx context.Context, url string, retentionDays int) error {
	nc, err := natsgo.Connect(url,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(5),
		natsgo.ReconnectWait(2*time.Second))
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}

	streamCfg := events.DefaultStreamConfig()
	if retentionDays > 0 {
		streamCfg.MaxAge = time.Duration(retentionDays) * 24 * time.Hour
	}
	initializer, err := events.NewStreamInitializer(js, &streamCfg)
	if err != nil {
		return fmt.Errorf("create stream initializer: %w", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := initializer.EnsureStream(initCtx); err != nil {
		return fmt.Errorf("ensure media stream: %w", err)
	}
	return nil
}
