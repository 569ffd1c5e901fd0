package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fabriziosalmi/rainroll/internal/config"
	"github.com/fabriziosalmi/rainroll/internal/lifecycle"
	"github.com/fabriziosalmi/rainroll/internal/policy"
	"github.com/fabriziosalmi/rainroll/internal/rolling"
	"github.com/fabriziosalmi/rainroll/internal/trigger"
	"github.com/fabriziosalmi/rainroll/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rainroll",
		Short: "Rotate logs on a minute period and ship every segment to S3",
	}
	rootCmd.PersistentFlags().String("config", "", "Config file (default ./rainroll.yaml or /etc/rainroll/rainroll.yaml)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Write a heartbeat log through the rotation policy until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	rootCmd.AddCommand(runCmd)

	uploadCmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Compress and upload files once, using the configured store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return uploadFiles(cmd.Context(), cfg, args)
		},
	}
	rootCmd.AddCommand(uploadCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	status := logger.Must(cfg.App.Env)
	defer status.Sync() //nolint:errcheck

	// 1. Init Storage
	store, err := newStore(ctx, cfg, status)
	if err != nil {
		return err
	}

	// 2. Init Clock & Rotation Engine
	clock := trigger.NewClock()
	clock.SetPeriodMinutes(cfg.Rolling.PeriodMinutes)
	if clock.PeriodMinutes() != cfg.Rolling.PeriodMinutes {
		status.Warn("invalid rotation period ignored",
			zap.Int("configured", cfg.Rolling.PeriodMinutes),
			zap.Int("using", clock.PeriodMinutes()),
		)
	}

	engine, err := rolling.Open(rolling.Options{
		File:            cfg.Rolling.File,
		FileNamePattern: cfg.Rolling.FileNamePattern,
		MaxHistory:      cfg.Rolling.MaxHistory,
		PeriodStart:     clock.BoundaryStart,
		Log:             status.Named("rolling"),
	})
	if err != nil {
		return fmt.Errorf("open rotation engine: %w", err)
	}
	defer engine.Close()

	// 3. Init Upload Worker
	w := newWorker(cfg, store, status)

	// 4. Start Policy
	coordinator, err := policy.New(policy.Options{
		Engine:       engine,
		Worker:       w,
		Clock:        clock,
		Bucket:       bucketName(cfg),
		Folder:       cfg.S3.Folder,
		RollOnExit:   cfg.Rolling.RollOnExit,
		DrainTimeout: cfg.Rolling.DrainTimeout,
		Log:          status.Named("policy"),
	})
	if err != nil {
		return err
	}

	hooks := lifecycle.NewHooks(status)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := coordinator.Start(runCtx, hooks); err != nil {
		return err
	}
	defer hooks.Run(context.Background())

	// 5. Application log through the policy
	appLog := logger.NewWriter(cfg.App.Env, engine).Named(cfg.App.Name)
	go heartbeat(runCtx, appLog, cfg.Heartbeat.Interval)

	// 6. Graceful Shutdown
	sig := lifecycle.WaitForSignal(ctx)
	status.Info("shutting down, uploading the last segment", zap.Any("signal", sig))
	cancel()
	return nil
}

// heartbeat writes one line per interval so that every segment has content.
func heartbeat(ctx context.Context, appLog *zap.Logger, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			appLog.Info("THE QUICK BROWN FOX JUMPS OVER THE LAZY DOG")
		}
	}
}
