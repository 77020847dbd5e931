package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/docsentry/backend/internal/api"
	"github.com/docsentry/backend/internal/api/handlers"
	"github.com/docsentry/backend/internal/metrics"
	"github.com/docsentry/backend/internal/ops"
	"github.com/docsentry/backend/internal/settings"
	"github.com/docsentry/backend/internal/storage/factory"
	"github.com/docsentry/backend/pkg/config"
	"github.com/docsentry/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metrics.Init()

	if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0755); err != nil {
		logger.Fatal("Failed to create data directory", zap.Error(err))
	}

	storageSettings := settings.NewStorageStore(cfg)
	similarity := settings.NewSimilarityStore(cfg.Similarity)
	ignore := settings.NewIgnoreStore(cfg.Ignore.Patterns)

	ctx := context.Background()
	storageMgr, err := factory.NewManager(ctx, storageSettings.Storage(), cfg.SQLite.Path)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storageMgr.Close()

	progress := ops.NewProgressStore()
	opsMgr := ops.NewManager(storageMgr, progress, similarity, storageSettings, ignore)
	if err := opsMgr.Bootstrap(ctx); err != nil {
		logger.Warn("Vocabulary bootstrap failed, scans will match by fingerprint only until the next index",
			zap.Error(err))
	}

	h := handlers.New(opsMgr, storageMgr, similarity, storageSettings, ignore)
	app := api.NewApp(h, cfg.Server)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		logger.Info("Server listening", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
}
