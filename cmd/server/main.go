// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/docqueue/internal/api"
	"github.com/tomtom215/docqueue/internal/client"
	"github.com/tomtom215/docqueue/internal/config"
	"github.com/tomtom215/docqueue/internal/dispatcher"
	"github.com/tomtom215/docqueue/internal/events"
	"github.com/tomtom215/docqueue/internal/handlers"
	"github.com/tomtom215/docqueue/internal/health"
	"github.com/tomtom215/docqueue/internal/jobs"
	"github.com/tomtom215/docqueue/internal/logging"
	"github.com/tomtom215/docqueue/internal/queue"
	"github.com/tomtom215/docqueue/internal/status"
	"github.com/tomtom215/docqueue/internal/store"
	"github.com/tomtom215/docqueue/internal/supervisor"
	"github.com/tomtom215/docqueue/internal/supervisor/services"
	ws "github.com/tomtom215/docqueue/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("docqueue exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logging.Init(cfg.LoggingOptions())
	logging.Info().
		Str("store", cfg.Store.Backend).
		Str("events", cfg.Events.Backend).
		Int("concurrency", cfg.Worker.Concurrency).
		Msg("Starting docqueue")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opened, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer func() {
		if err := opened.Store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing job store")
		}
	}()

	var q queue.Queue
	if opened.Redis != nil {
		q = queue.NewRedisQueue(opened.Redis, cfg.Store.Redis.KeyPrefix)
	} else {
		q = queue.NewMemoryQueue()
	}

	registry := jobs.NewRegistry()
	if err := handlers.Register(registry, cfg.HandlerOptions()); err != nil {
		return fmt.Errorf("register handlers: %w", err)
	}
	types := registry.Types()
	if len(types) == 0 {
		logging.Warn().Msg("No job types enabled; set DOCUMENT_INGEST_URL or PODCAST_GENERATE_URL")
	}

	restored, err := queue.Rebuild(ctx, opened.Store, q, types)
	if err != nil {
		return fmt.Errorf("rebuild queue index: %w", err)
	}
	logging.Info().Int("jobs", restored).Msg("Queue index rebuilt from store")

	bus, err := events.NewBus(cfg.EventsOptions())
	if err != nil {
		return fmt.Errorf("start event bus: %w", err)
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	disp := dispatcher.New(opened.Store, q, registry, bus, cfg.DispatcherOptions())
	monitor := health.NewMonitor(opened.Store, q, types, cfg.HealthOptions())
	hub := ws.NewHub(bus)

	handler := api.NewHandler(api.HandlerConfig{
		Jobs:     client.New(opened.Store, q, registry, bus, cfg.Worker.MaxAttempts),
		Status:   status.NewService(opened.Store, status.WithMetricsCache(cfg.Server.MetricsCacheTTL)),
		Health:   monitor,
		Hub:      hub,
		Payloads: handlers.ValidatorFor,
		Origins:  cfg.Server.CORSOrigins,
	})
	mw := api.DefaultChiMiddlewareConfig()
	mw.CORSAllowedOrigins = cfg.Server.CORSOrigins
	mw.EnqueueRequests = cfg.Server.EnqueueRateLimit

	// WriteTimeout is left unset so websocket streams are not cut off;
	// handlers bound their own work through the request context.
	server := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewRouter(handler, api.RouterConfig{
			Middleware: mw,
			APIToken:   cfg.Server.APIToken,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewComponentSlogLogger("supervisor"), supervisor.DefaultTreeConfig())
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}
	tree.AddDataService(monitor)
	tree.AddDataService(disp.Sweeper())
	tree.AddWorkerService(disp)
	tree.AddWorkerService(disp.Promoter())
	tree.AddWorkerService(disp.Reconciler())
	tree.AddWorkerService(disp.Reaper())
	tree.AddAPIService(hub)
	tree.AddAPIService(services.NewHTTPServerService(server, server.Addr, cfg.Server.Timeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := <-tree.ServeBackground(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}
	logging.Info().Msg("docqueue stopped")
	return nil
}
