package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"github.com/adred-codev/kvstore-core/internal/config"
	"github.com/adred-codev/kvstore-core/internal/logging"
	"github.com/adred-codev/kvstore-core/internal/metrics"
	"github.com/adred-codev/kvstore-core/internal/object"
	"github.com/adred-codev/kvstore-core/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() // nolint:errcheck

	object.InitShared(cfg.Object.SharedIntMax, cfg.Object.MaxMemorySet)
	object.SetThresholds(object.Thresholds{
		ListMaxZiplistLen:  cfg.Object.ListMaxZiplistLen,
		ListMaxZiplistSize: cfg.Object.ListMaxZiplistSize,
		SetMaxIntsetLen:    cfg.Object.SetMaxIntsetLen,
		HashMaxZiplistLen:  cfg.Object.HashMaxZiplistLen,
		HashMaxZiplistSize: cfg.Object.HashMaxZiplistSize,
		ZSetMaxZiplistLen:  cfg.Object.ZsetMaxZiplistLen,
		ZSetMaxZiplistSize: cfg.Object.ZsetMaxZiplistSize,
	})

	reg := metrics.New()

	srv, err := server.New(cfg, logger, reg)
	if err != nil {
		logger.Fatal("failed to initialize server", zap.Error(err))
	}
	if err := srv.Listen(); err != nil {
		logger.Fatal("failed to listen", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go srv.Run()
	go reg.SampleSystem(ctx, logger, 2*time.Second)

	httpErrCh := make(chan error, 1)
	if cfg.Metrics.Enabled {
		go func() {
			httpErrCh <- runMetricsServer(ctx, cfg, reg, logger)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-httpErrCh:
		if err != nil {
			logger.Error("metrics http server error", zap.Error(err))
		}
		stop()
	}

	srv.Stop()
	srv.Close()
	logger.Info("server stopped")
}

func runMetricsServer(ctx context.Context, cfg config.Config, reg *metrics.Registry, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Endpoint, reg.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	httpServer := &http.Server{
		Addr:         cfg.Metrics.ListenAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics http server starting", zap.String("addr", cfg.Metrics.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics http server shutdown error", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
