package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"purchaseprob/config"
	qhttp "purchaseprob/http"
	"purchaseprob/logging"
	"purchaseprob/ml"
	"purchaseprob/monitoring"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML configuration file")
	checkOnly := flag.Bool("check", false, "load the configuration and the model, then exit")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	// 2. Load model
	store, err := ml.NewModelStore(func() (ml.Classifier, error) {
		return ml.LoadModel(cfg.Model.Type, cfg.Model.Path)
	}, cfg.Model.CacheSize)
	if err != nil {
		logger.Fatal("failed to load prediction model",
			zap.String("type", cfg.Model.Type),
			zap.String("path", cfg.Model.Path),
			zap.Error(err),
		)
	}
	logger.Info("model loaded", zap.String("model", store.Info()), zap.Int("cache_size", cfg.Model.CacheSize))
	if *checkOnly {
		return
	}

	metrics := monitoring.NewMetricsCollector()
	metrics.SetCacheSource(store.CacheStats)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Model.Watch {
		go func() {
			if err := ml.WatchModel(ctx, store, cfg.Model.Path, logger, metrics.RecordReload); err != nil {
				logger.Error("model watcher stopped", zap.Error(err))
			}
		}()
	}

	// 3. Start HTTP server
	serverConfig := qhttp.ServerConfig{
		Host:           cfg.HTTP.Host,
		Port:           cfg.HTTP.Port,
		Timeout:        cfg.HTTP.Timeout,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
	}
	server := qhttp.NewServer(serverConfig, qhttp.NewHandlers(store, metrics, logger, serverConfig))
	errs := make(chan error, 1)
	go func() {
		errs <- server.Start()
	}()

	// 4. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errs:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	cancel()
	if err := server.Stop(); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("exiting")
}
