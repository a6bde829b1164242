// Package main 制作交接 worker：消费审核通过事件并生成剪辑简报
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"flashflow-studio/internal/config"
	"flashflow-studio/internal/infrastructure/messaging"
	"flashflow-studio/internal/wire"
	"flashflow-studio/pkg/logger"
	"flashflow-studio/pkg/tracer"
)

const dlqAlertThreshold = 10

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "handoff-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	worker, cleanup, err := wire.InitializeWorker(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize worker", err)
	}
	defer cleanup()

	worker.Consumer.RegisterHandler(messaging.TypeCreativeApproved, worker.Briefs.HandleCreativeApproved)
	if err := worker.Consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}

	go worker.Consumer.MonitorDLQ(ctx, dlqAlertThreshold)

	log := logger.FromContext(ctx)
	log.Info("handoff-worker started")

	interval := cfg.Production.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("handoff-worker shutting down")
			worker.Consumer.Stop()
			return
		case <-ticker.C:
			n, err := worker.Briefs.Sweep(ctx, cfg.Production.SweepBatch)
			if err != nil {
				logger.Error(ctx, "production sweep failed", err)
				continue
			}
			if n > 0 {
				log.Info("production sweep done", "processed", n)
			}
			if _, err := worker.Briefs.SweepOverdue(ctx, cfg.Production.SweepBatch); err != nil {
				logger.Error(ctx, "overdue sweep failed", err)
			}
		}
	}
}
