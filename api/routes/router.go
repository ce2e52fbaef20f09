package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropone-app/dropone-backend/api/controllers"
	sellercontrollers "github.com/dropone-app/dropone-backend/api/controllers/sellers"
	webhookcontrollers "github.com/dropone-app/dropone-backend/api/controllers/webhooks"
	"github.com/dropone-app/dropone-backend/api/middleware"
	checkoutsvc "github.com/dropone-app/dropone-backend/internal/checkout"
	"github.com/dropone-app/dropone-backend/internal/fulfillment"
	"github.com/dropone-app/dropone-backend/internal/ledger"
	"github.com/dropone-app/dropone-backend/internal/orders"
	"github.com/dropone-app/dropone-backend/internal/payments"
	"github.com/dropone-app/dropone-backend/internal/payouts"
	"github.com/dropone-app/dropone-backend/internal/sellers"
	paypalwebhook "github.com/dropone-app/dropone-backend/internal/webhooks/paypal"
	stripewebhook "github.com/dropone-app/dropone-backend/internal/webhooks/stripe"
	"github.com/dropone-app/dropone-backend/pkg/config"
	"github.com/dropone-app/dropone-backend/pkg/db"
	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/enums"
	"github.com/dropone-app/dropone-backend/pkg/logger"
	"github.com/dropone-app/dropone-backend/pkg/metrics"
	"github.com/dropone-app/dropone-backend/pkg/redis"
)

// redisStore is the Redis surface the HTTP layer uses for idempotency
// replay, rate limiting and readiness.
type redisStore interface {
	middleware.ReplayStore
	redis.Pinger
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Dependencies bundles what the router hands to controllers. Nil services
// answer 500 on their routes.
type Dependencies struct {
	DB    db.Pinger
	Redis redisStore

	StripeWebhooks *stripewebhook.Service
	PayPalWebhooks *paypalwebhook.Service
	Checkout       checkoutsvc.Service
	Orders         orders.Service
	Bridge         *fulfillment.Bridge
	Ledger         ledger.Service
	Payouts        payouts.Processor
	Sellers        sellers.Service

	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.HTTPMetrics),
	)

	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.RateLimit.CheckoutWindow,
		cfg.RateLimit.CheckoutIPLimit,
		"store_slug",
		cfg.RateLimit.CheckoutStoreLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(optionalStripe(deps.StripeWebhooks), logg))
		r.Post("/paypal", webhookcontrollers.PayPalWebhook(optionalPayPal(deps.PayPalWebhooks), logg))
		r.Post("/supplier", webhookcontrollers.SupplierWebhook(optionalBridge(deps.Bridge), cfg.Supplier.WebhookToken, logg))
	})

	r.Route("/api/checkout", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.App.CORSOrigins))
		r.With(middleware.RateLimit(checkoutPolicy, deps.Redis, logg)).Post("/", controllers.Checkout(deps.Checkout, logg))
		r.Post("/paypal/{paypalOrderID}/capture", controllers.PayPalCapture(optionalPayPal(deps.PayPalWebhooks), logg))
	})

	r.Route("/api/seller", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.App.CORSOrigins))
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.AccountRoleSeller))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Get("/balance", sellercontrollers.Balance(deps.Sellers, logg))
		r.Get("/payouts", sellercontrollers.Payouts(deps.Payouts, logg))
		r.Get("/orders", sellercontrollers.Orders(deps.Orders, logg))
		r.Post("/withdraw", sellercontrollers.Withdraw(deps.Payouts, logg))
		r.Post("/payout-methods/paypal", sellercontrollers.SetPayPalMethod(deps.Sellers, logg))
		r.Post("/payout-methods/stripe", sellercontrollers.StartStripeOnboarding(deps.Sellers, logg))
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.App.CORSOrigins))
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.AccountRoleAdmin))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Post("/orders/{orderID}/refund", controllers.AdminRefundOrder(deps.Orders, logg))
		r.Post("/orders/{orderID}/fulfillment/retry", controllers.AdminRetryFulfillment(optionalBridge(deps.Bridge), logg))
		r.Get("/sellers/{email}/reconcile", controllers.AdminReconcileSeller(deps.Ledger, logg))
	})

	return r
}

// The optional* helpers keep a nil service pointer from becoming a non-nil
// interface value.

func optionalStripe(svc *stripewebhook.Service) webhookcontrollers.StripeWebhookService {
	if svc == nil {
		return nil
	}
	return svc
}

func optionalPayPal(svc *paypalwebhook.Service) paypalService {
	if svc == nil {
		return nil
	}
	return svc
}

func optionalBridge(bridge *fulfillment.Bridge) bridgeService {
	if bridge == nil {
		return nil
	}
	return bridge
}

type paypalService interface {
	webhookcontrollers.PayPalWebhookService
	ConfirmOrder(ctx context.Context, orderID string) (payments.Outcome, error)
}

type bridgeService interface {
	webhookcontrollers.SupplierEventHandler
	Submit(ctx context.Context, orderRef string) (*models.Order, error)
}
