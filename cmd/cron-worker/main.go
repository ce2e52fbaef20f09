package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dropone-app/dropone-backend/internal/cron"
	"github.com/dropone-app/dropone-backend/internal/fulfillment"
	"github.com/dropone-app/dropone-backend/internal/kvcache"
	"github.com/dropone-app/dropone-backend/internal/ledger"
	"github.com/dropone-app/dropone-backend/internal/orders"
	"github.com/dropone-app/dropone-backend/internal/payouts"
	"github.com/dropone-app/dropone-backend/pkg/config"
	"github.com/dropone-app/dropone-backend/pkg/db"
	"github.com/dropone-app/dropone-backend/pkg/instance"
	"github.com/dropone-app/dropone-backend/pkg/logger"
	"github.com/dropone-app/dropone-backend/pkg/metrics"
	"github.com/dropone-app/dropone-backend/pkg/migrate"
	"github.com/dropone-app/dropone-backend/pkg/outbox"
	"github.com/dropone-app/dropone-backend/pkg/redis"
	"github.com/dropone-app/dropone-backend/pkg/supplier"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	domainMetrics := metrics.NewDomainMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	jobs, err := buildJobs(cfg, logg, dbClient, domainMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron jobs", err)
		os.Exit(1)
	}

	registry, err := cron.NewRegistry(jobs...)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Fulfillment.PollInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, domainMetrics *metrics.DomainMetrics) ([]cron.Job, error) {
	gormDB := dbClient.DB()
	outboxRepo := outbox.NewRepository(gormDB)
	outboxService := outbox.NewService(outboxRepo, logg)

	ledgerService, err := ledger.NewService(ledger.NewRepository(gormDB))
	if err != nil {
		return nil, err
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Repository:  outboxRepo,
		Retention:   cfg.Outbox.RetentionDays,
		MinAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	// Stale payout detection only reads, so no rails are wired.
	payoutProcessor, err := payouts.NewProcessor(payouts.ProcessorParams{
		Repo:    payouts.NewRepository(gormDB),
		Ledger:  ledgerService,
		Outbox:  outboxService,
		Tx:      dbClient,
		Config:  cfg.Payout,
		Logger:  logg,
		Metrics: domainMetrics,
	})
	if err != nil {
		return nil, err
	}
	stalePayouts, err := cron.NewStalePayoutJob(cron.StalePayoutJobParams{
		Logger:  logg,
		Payouts: payoutProcessor,
		Age:     cfg.Payout.StaleAfter,
	})
	if err != nil {
		return nil, err
	}

	jobs := []cron.Job{retention, stalePayouts}

	if !cfg.Supplier.Enabled() {
		logg.Warn(context.Background(), "supplier credentials missing, tracking jobs disabled")
		return jobs, nil
	}

	ordersService, err := orders.NewService(orders.NewRepository(gormDB), dbClient, outboxService, ledgerService, logg, domainMetrics)
	if err != nil {
		return nil, err
	}
	supplierClient, err := supplier.NewClient(cfg.Supplier, kvcache.NewStore(gormDB))
	if err != nil {
		return nil, err
	}
	retry := fulfillment.DefaultPolicy
	retry.CallTimeout = cfg.Supplier.Timeout
	bridge, err := fulfillment.NewBridge(fulfillment.BridgeParams{
		Orders:   ordersService,
		Supplier: supplierClient,
		Retry:    retry,
		Logger:   logg,
		Metrics:  domainMetrics,
	})
	if err != nil {
		return nil, err
	}

	tracking, err := cron.NewTrackingPollJob(cron.TrackingPollJobParams{
		Logger:      logg,
		Bridge:      bridge,
		BatchSize:   cfg.Fulfillment.PollBatchSize,
		Concurrency: cfg.Fulfillment.PollConcurrency,
	})
	if err != nil {
		return nil, err
	}
	sweep, err := cron.NewPendingSweepJob(cron.PendingSweepJobParams{
		Logger: logg,
		Bridge: bridge,
		Age:    cfg.Fulfillment.PendingSweepAge,
		Limit:  cfg.Fulfillment.PendingSweepSize,
	})
	if err != nil {
		return nil, err
	}

	return append(jobs, tracking, sweep), nil
}
