/**
 * @description
 * This is the main entry point for the raffle-scheduler.
 * It is a non-HTTP, long-running process that runs the raffle expiry sweep on a
 * cron schedule. Redis, when configured, provides the per-raffle lock that keeps
 * several scheduler replicas from settling the same raffle.
 */
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/app"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/bootstrap"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/config"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/metrics"
)

const sweepRunTimeout = 10 * time.Minute

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	repository, err := bootstrap.OpenRepository(ctx, cfg)
	if err != nil {
		logger.Error("unable to open store", "error", err)
		os.Exit(1)
	}
	defer repository.Close()
	logger.Info("store opened", "driver", cfg.StoreDriver)

	redisClient := bootstrap.OpenRedis(ctx, cfg)
	if redisClient != nil {
		defer redisClient.Close()
	} else {
		logger.Warn("running without distributed sweep locks; run a single scheduler replica")
	}

	raffleService, err := bootstrap.NewService(ctx, cfg, repository, nil, metrics.New(metrics.NewRegistry()), redisClient)
	if err != nil {
		logger.Error("unable to initialize settlement service", "error", err)
		os.Exit(1)
	}

	jobs := app.NewJobs(raffleService, logger, sweepRunTimeout)
	scheduler := app.NewScheduler(jobs, logger, cfg.SweepSchedule)

	if err := scheduler.Start(); err != nil {
		logger.Error("unable to start scheduler", "schedule", cfg.SweepSchedule, "error", err)
		os.Exit(1)
	}
	logger.Info("scheduler started", "schedule", cfg.SweepSchedule, "grace_period", cfg.SweepGracePeriod.String())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping scheduler")
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	logger.Info("scheduler stopped gracefully")
}
