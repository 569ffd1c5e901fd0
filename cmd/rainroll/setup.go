package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fabriziosalmi/rainroll/internal/config"
	"github.com/fabriziosalmi/rainroll/internal/notifications"
	"github.com/fabriziosalmi/rainroll/internal/policy"
	"github.com/fabriziosalmi/rainroll/internal/storage"
	"github.com/fabriziosalmi/rainroll/internal/worker"
	"github.com/fabriziosalmi/rainroll/pkg/logger"
	"go.uber.org/zap"
)

func newStore(ctx context.Context, cfg *config.Config, status *zap.Logger) (storage.ObjectStore, error) {
	switch cfg.Storage.Backend {
	case "s3":
		s3Store := storage.NewS3Store(cfg.S3, "s3-default")
		if cfg.S3.CheckBucket {
			if err := s3Store.CheckBucket(ctx, cfg.S3.Bucket); err != nil {
				return nil, err
			}
		}
		return s3Store, nil
	case "fs":
		fsStore, err := storage.NewFSStore(cfg.Storage.FSRoot)
		if err != nil {
			return nil, fmt.Errorf("init storage backend fs: %w", err)
		}
		status.Info("using filesystem object store", zap.String("root", cfg.Storage.FSRoot))
		return fsStore, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}

func newWorker(cfg *config.Config, store storage.ObjectStore, status *zap.Logger) *worker.UploadWorker {
	var notifier worker.Notifier
	switch {
	case cfg.Alerts.SlackWebhookURL != "":
		notifier = notifications.NewSlackNotifier(cfg.Alerts.SlackWebhookURL)
	case cfg.App.Env != "production":
		notifier = &notifications.ConsoleNotifier{}
	}
	return worker.NewUploadWorker(worker.Options{
		Store:     store,
		RateLimit: cfg.Upload.RateLimit,
		Notifier:  notifier,
		Log:       status.Named("upload"),
	})
}

// bucketName is the bucket segments go to. The fs backend uses it as the
// top-level directory under its root, so an empty name is fine there.
func bucketName(cfg *config.Config) string {
	return cfg.S3.Bucket
}

// drainTimeout is the configured drain bound, or policy.DefaultDrainTimeout
// when none is set.
func drainTimeout(cfg *config.Config) time.Duration {
	if cfg.Rolling.DrainTimeout <= 0 {
		return policy.DefaultDrainTimeout
	}
	return cfg.Rolling.DrainTimeout
}

// uploadFiles pushes files through a one-off worker and waits for it.
func uploadFiles(ctx context.Context, cfg *config.Config, files []string) error {
	status := logger.Must(cfg.App.Env)
	defer status.Sync() //nolint:errcheck

	store, err := newStore(ctx, cfg, status)
	if err != nil {
		return err
	}
	w := newWorker(cfg, store, status)
	w.Start()

	for _, f := range files {
		task := policy.NewUploadTask(bucketName(cfg), cfg.S3.Folder, f)
		if err := w.Enqueue(task); err != nil {
			return err
		}
		status.Info("uploading", zap.String("segment", f), zap.String("key", task.Key))
	}
	return w.DrainAndStop(drainTimeout(cfg))
}
