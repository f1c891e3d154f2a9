package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harvestnet/trust-engine/internal/audit"
	"github.com/harvestnet/trust-engine/internal/config"
	"github.com/harvestnet/trust-engine/internal/graph"
	"github.com/harvestnet/trust-engine/internal/handlers"
	"github.com/harvestnet/trust-engine/internal/kafka"
	"github.com/harvestnet/trust-engine/internal/metrics"
	"github.com/harvestnet/trust-engine/internal/registry"
	"github.com/harvestnet/trust-engine/internal/trust"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	logger.Info("starting trust engine service",
		"version", "1.0.0",
		"environment", cfg.Environment)

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)
	sink := audit.NewLogSink(logger)

	reg := registry.NewRegistry(logger, sink)
	trustGraph := graph.NewTrustGraph(reg, logger)
	engine := trust.NewEngine(reg, trustGraph, collector, logger, sink)

	if err := trustGraph.InitializeGraph(context.Background()); err != nil {
		logger.Error("failed to build initial graph", "error", err)
		os.Exit(1)
	}

	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		consumer, err = kafka.NewConsumer(reg, collector, *cfg, logger)
		if err != nil {
			logger.Error("failed to create kafka consumer", "error", err)
			os.Exit(1)
		}
		if err := consumer.Start(); err != nil {
			logger.Error("failed to start kafka consumer", "error", err)
			os.Exit(1)
		}
	}

	router := mux.NewRouter()
	router.Use(handlers.InstrumentationMiddleware(collector))
	httpHandlers := handlers.NewHTTPHandlers(reg, trustGraph, engine, collector, *cfg, logger)
	httpHandlers.RegisterRoutes(router)
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	recalcCtx, stopRecalc := context.WithCancel(context.Background())
	go runRecalculationLoop(recalcCtx, engine, trustGraph, collector, cfg.Engine.RecalculationInterval, logger)

	go func() {
		logger.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	stopRecalc()
	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.Error("failed to stop kafka consumer", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	logger.Info("shutdown complete")
}

// runRecalculationLoop periodically rebuilds the graph and recalculates all
// verified organizations' scores until the context is cancelled.
func runRecalculationLoop(
	ctx context.Context,
	engine *trust.Engine,
	trustGraph *graph.TrustGraph,
	collector *metrics.Collector,
	interval time.Duration,
	logger *slog.Logger,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			if err := trustGraph.InitializeGraph(ctx); err != nil {
				logger.Error("periodic graph rebuild failed", "error", err)
				continue
			}
			stats := trustGraph.GetStatistics()
			collector.GraphRebuilt(time.Since(start), stats.NodeCount, stats.EdgeCount)

			if _, err := engine.RecalculateAllScores(ctx); err != nil {
				logger.Error("periodic recalculation interrupted", "error", err)
			}
		}
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	options := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, options))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, options))
}
