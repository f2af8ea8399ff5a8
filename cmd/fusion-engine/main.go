package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/glowmesh/fusion-engine/internal/api"
	"github.com/glowmesh/fusion-engine/internal/bus"
	"github.com/glowmesh/fusion-engine/internal/config"
	"github.com/glowmesh/fusion-engine/internal/engine"
	"github.com/glowmesh/fusion-engine/internal/export"
	"github.com/glowmesh/fusion-engine/internal/metrics"
	"github.com/glowmesh/fusion-engine/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting fusion-engine", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var publisher export.Publisher = export.NoopPublisher{}
	switch {
	case cfg.Export.Redis.Enabled && cfg.Export.Redis.Addr != "":
		redisPub, err := export.NewRedisPublisher(ctx, cfg.Export.Redis.Addr, cfg.Export.Redis.Password, cfg.Export.Redis.DB)
		if err != nil {
			logger.Warn("redis publisher unavailable", slog.Any("error", err))
		} else {
			publisher = redisPub
		}
	case cfg.Export.File.Enabled:
		fileExp, err := export.NewFileExporter(cfg.Export.File.Dir, export.Format(cfg.Export.File.Format))
		if err != nil {
			logger.Error("failed to open export file", slog.Any("error", err))
			os.Exit(1)
		}
		publisher = fileExp
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("publisher close", slog.Any("error", err))
		}
	}()

	windowBus := bus.New(0)
	defer windowBus.Close()

	eng, err := engine.New(cfg, logger, publisher)
	if err != nil {
		logger.Error("failed to build engine", slog.Any("error", err))
		os.Exit(1)
	}

	go func() {
		if runErr := eng.Run(ctx, windowBus); runErr != nil && !errors.Is(runErr, context.Canceled) {
			logger.Error("engine exited", slog.Any("error", runErr))
			stop()
		}
	}()

	server, err := api.NewServer(cfg.Server, logger, eng, windowBus)
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("fusion-engine stopped")
}
