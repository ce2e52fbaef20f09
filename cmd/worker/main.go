package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropone-app/dropone-backend/internal/fulfillment"
	"github.com/dropone-app/dropone-backend/internal/kvcache"
	"github.com/dropone-app/dropone-backend/internal/ledger"
	"github.com/dropone-app/dropone-backend/internal/orders"
	"github.com/dropone-app/dropone-backend/pkg/config"
	"github.com/dropone-app/dropone-backend/pkg/db"
	"github.com/dropone-app/dropone-backend/pkg/instance"
	"github.com/dropone-app/dropone-backend/pkg/logger"
	"github.com/dropone-app/dropone-backend/pkg/metrics"
	"github.com/dropone-app/dropone-backend/pkg/migrate"
	"github.com/dropone-app/dropone-backend/pkg/outbox"
	"github.com/dropone-app/dropone-backend/pkg/outbox/idempotency"
	"github.com/dropone-app/dropone-backend/pkg/pubsub"
	"github.com/dropone-app/dropone-backend/pkg/redis"
	"github.com/dropone-app/dropone-backend/pkg/supplier"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if !cfg.Supplier.Enabled() {
		logg.Error(context.Background(), "supplier credentials are required for the fulfillment worker", errors.New("supplier not configured"))
		os.Exit(1)
	}

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

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	registry := prometheus.NewRegistry()
	domainMetrics := metrics.NewDomainMetrics(registry)

	bridge, err := newBridge(cfg, logg, dbClient, domainMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to build fulfillment bridge", err)
		os.Exit(1)
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	consumer, err := fulfillment.NewConsumer(bridge, pubsubClient.OrdersSubscription(), manager, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create fulfillment consumer", err)
		os.Exit(1)
	}

	admin := chi.NewRouter()
	admin.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	admin.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	service, err := NewService(ServiceParams{
		Logger:   logg,
		DB:       dbClient,
		Redis:    redisClient,
		PubSub:   pubsubClient,
		Consumer: consumer,
		Admin: &http.Server{
			Addr:              ":" + cfg.App.Port,
			Handler:           admin,
			ReadHeaderTimeout: 5 * time.Second,
		},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"serviceKind":  cfg.Service.Kind,
		"subscription": cfg.PubSub.OrdersSubscription,
		"instance":     instance.GetID(),
	})
	logg.Info(ctx, "starting worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}

func newBridge(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, domainMetrics *metrics.DomainMetrics) (*fulfillment.Bridge, error) {
	gormDB := dbClient.DB()
	ledgerService, err := ledger.NewService(ledger.NewRepository(gormDB))
	if err != nil {
		return nil, err
	}
	ordersService, err := orders.NewService(
		orders.NewRepository(gormDB),
		dbClient,
		outbox.NewService(outbox.NewRepository(gormDB), logg),
		ledgerService,
		logg,
		domainMetrics,
	)
	if err != nil {
		return nil, err
	}
	supplierClient, err := supplier.NewClient(cfg.Supplier, kvcache.NewStore(gormDB))
	if err != nil {
		return nil, err
	}
	retry := fulfillment.DefaultPolicy
	retry.CallTimeout = cfg.Supplier.Timeout
	return fulfillment.NewBridge(fulfillment.BridgeParams{
		Orders:   ordersService,
		Supplier: supplierClient,
		Retry:    retry,
		Logger:   logg,
		Metrics:  domainMetrics,
	})
}
