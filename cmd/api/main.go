package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dropone-app/dropone-backend/api/routes"
	"github.com/dropone-app/dropone-backend/internal/checkout"
	"github.com/dropone-app/dropone-backend/internal/fulfillment"
	"github.com/dropone-app/dropone-backend/internal/kvcache"
	"github.com/dropone-app/dropone-backend/internal/ledger"
	"github.com/dropone-app/dropone-backend/internal/orders"
	"github.com/dropone-app/dropone-backend/internal/payments"
	"github.com/dropone-app/dropone-backend/internal/payouts"
	"github.com/dropone-app/dropone-backend/internal/sellers"
	paypalwebhook "github.com/dropone-app/dropone-backend/internal/webhooks/paypal"
	stripewebhook "github.com/dropone-app/dropone-backend/internal/webhooks/stripe"
	"github.com/dropone-app/dropone-backend/pkg/backoff"
	"github.com/dropone-app/dropone-backend/pkg/config"
	"github.com/dropone-app/dropone-backend/pkg/db"
	"github.com/dropone-app/dropone-backend/pkg/instance"
	"github.com/dropone-app/dropone-backend/pkg/logger"
	"github.com/dropone-app/dropone-backend/pkg/metrics"
	"github.com/dropone-app/dropone-backend/pkg/migrate"
	"github.com/dropone-app/dropone-backend/pkg/outbox"
	"github.com/dropone-app/dropone-backend/pkg/paypal"
	"github.com/dropone-app/dropone-backend/pkg/redis"
	"github.com/dropone-app/dropone-backend/pkg/stripe"
	"github.com/dropone-app/dropone-backend/pkg/supplier"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe client", err)
		os.Exit(1)
	}

	var paypalClient *paypal.Client
	if cfg.PayPal.Enabled() {
		paypalClient, err = paypal.NewClient(cfg.PayPal)
		if err != nil {
			logg.Error(context.Background(), "failed to create paypal client", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "paypal credentials missing, paypal checkout and payouts disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	domainMetrics := metrics.NewDomainMetrics(registry)
	httpMetrics := metrics.NewHTTPMetrics(registry)

	deps, err := buildDependencies(cfg, logg, dbClient, redisClient, stripeClient, paypalClient, domainMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}
	deps.Gatherer = registry
	deps.HTTPMetrics = httpMetrics

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

func buildDependencies(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	stripeClient *stripe.Client,
	paypalClient *paypal.Client,
	domainMetrics *metrics.DomainMetrics,
) (routes.Dependencies, error) {
	gormDB := dbClient.DB()
	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)

	ledgerService, err := ledger.NewService(ledger.NewRepository(gormDB))
	if err != nil {
		return routes.Dependencies{}, err
	}

	ordersRepo := orders.NewRepository(gormDB)
	ordersService, err := orders.NewService(ordersRepo, dbClient, outboxService, ledgerService, logg, domainMetrics)
	if err != nil {
		return routes.Dependencies{}, err
	}

	splitter, err := payments.NewSplitter(cfg.Commission)
	if err != nil {
		return routes.Dependencies{}, err
	}
	guard, err := payments.NewGuard(redisClient, cfg.Eventing.WebhookGuardTTL)
	if err != nil {
		return routes.Dependencies{}, err
	}
	paymentsService, err := payments.NewService(payments.ServiceParams{
		Repo:     payments.NewRepository(gormDB),
		Orders:   ordersRepo,
		Ledger:   ledgerService,
		Outbox:   outboxService,
		Tx:       dbClient,
		Splitter: splitter,
		Guard:    guard,
		Logger:   logg,
		Metrics:  domainMetrics,
		Currency: cfg.Payout.Currency,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	stripeWebhooks, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Verifier: stripeClient,
		Payments: paymentsService,
		Logger:   logg,
		Metrics:  domainMetrics,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	checkoutParams := checkout.ServiceParams{
		Repo:     checkout.NewRepository(gormDB),
		Stripe:   stripeClient,
		Splitter: splitter,
		App:      cfg.App,
		Currency: cfg.Payout.Currency,
		Logger:   logg,
	}

	var paypalWebhooks *paypalwebhook.Service
	rails := []payouts.Rail{payouts.NewStripeRail(stripeClient)}
	if paypalClient != nil {
		checkoutParams.PayPal = paypalClient
		rails = append(rails, payouts.NewPayPalRail(paypalClient))
		paypalWebhooks, err = paypalwebhook.NewService(paypalwebhook.ServiceParams{
			PayPal:   paypalClient,
			Payments: paymentsService,
			Logger:   logg,
			Metrics:  domainMetrics,
		})
		if err != nil {
			return routes.Dependencies{}, err
		}
	}

	checkoutService, err := checkout.NewService(checkoutParams)
	if err != nil {
		return routes.Dependencies{}, err
	}

	sellersService, err := sellers.NewService(sellers.ServiceParams{
		Repo:       sellers.NewRepository(gormDB),
		Connect:    stripeClient,
		Payout:     cfg.Payout,
		RefreshURL: cfg.App.URL("/seller/payout-methods/stripe/refresh"),
		ReturnURL:  cfg.App.URL("/seller/payout-methods/stripe/return"),
		Logger:     logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	limiter, err := payouts.NewWithdrawLimiter(redisClient, cfg.RateLimit.WithdrawLimit, cfg.RateLimit.WithdrawWindow)
	if err != nil {
		return routes.Dependencies{}, err
	}
	payoutProcessor, err := payouts.NewProcessor(payouts.ProcessorParams{
		Repo:    payouts.NewRepository(gormDB),
		Ledger:  ledgerService,
		Outbox:  outboxService,
		Tx:      dbClient,
		Rails:   rails,
		Limiter: limiter,
		Config:  cfg.Payout,
		Retry:   backoff.Policy{MaxAttempts: 3},
		Logger:  logg,
		Metrics: domainMetrics,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	deps := routes.Dependencies{
		DB:             dbClient,
		Redis:          redisClient,
		StripeWebhooks: stripeWebhooks,
		PayPalWebhooks: paypalWebhooks,
		Checkout:       checkoutService,
		Orders:         ordersService,
		Ledger:         ledgerService,
		Payouts:        payoutProcessor,
		Sellers:        sellersService,
	}

	if cfg.Supplier.Enabled() {
		supplierClient, err := supplier.NewClient(cfg.Supplier, kvcache.NewStore(gormDB))
		if err != nil {
			return routes.Dependencies{}, err
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
			return routes.Dependencies{}, err
		}
		deps.Bridge = bridge
	} else {
		logg.Warn(context.Background(), "supplier credentials missing, fulfillment routes disabled")
	}

	return deps, nil
}
