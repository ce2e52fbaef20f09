package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	internalorders "github.com/dropone-app/dropone-backend/internal/orders"
	"github.com/dropone-app/dropone-backend/internal/sellers"
	pkgAuth "github.com/dropone-app/dropone-backend/pkg/auth"
	"github.com/dropone-app/dropone-backend/pkg/config"
	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/enums"
	"github.com/dropone-app/dropone-backend/pkg/logger"
	"github.com/dropone-app/dropone-backend/pkg/metrics"
	"github.com/dropone-app/dropone-backend/pkg/outbox"
	"github.com/dropone-app/dropone-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type memoryRedis struct {
	mu     sync.Mutex
	data   map[string]string
	counts map[string]int64
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: map[string]string{}, counts: map[string]int64{}}
}

func (m *memoryRedis) Ping(context.Context) error { return nil }

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	m.data[key] = str
	return true, nil
}

func (m *memoryRedis) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	str, _ := value.(string)
	m.data[key] = str
	return nil
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string {
	return "test:idempotency:" + scope + ":" + id
}

func (m *memoryRedis) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[scope]++
	return m.counts[scope] <= limit, m.counts[scope], nil
}

// stubOrders overrides the methods the HTTP layer calls. The embedded
// interface panics if anything else is reached.
type stubOrders struct {
	internalorders.Service
	refunds int
}

func (s *stubOrders) Refund(ctx context.Context, orderRef string, actor *outbox.ActorRef) (*internalorders.RefundResult, error) {
	s.refunds++
	return &internalorders.RefundResult{
		Order:   &models.Order{OrderRef: orderRef, Status: enums.OrderStatusRefunded},
		OrderID: orderRef,
	}, nil
}

func (s *stubOrders) ListSellerOrders(ctx context.Context, sellerEmail string, params pagination.Params, status *enums.OrderStatus) (*internalorders.OrderList, error) {
	return &internalorders.OrderList{Items: []internalorders.OrderSummary{}}, nil
}

type stubSellers struct {
	sellers.Service
}

func (stubSellers) Balance(ctx context.Context, email string) (*sellers.BalanceView, error) {
	return &sellers.BalanceView{Email: email, BalanceCents: 1234, Currency: "EUR"}, nil
}

type fixture struct {
	handler http.Handler
	cfg     *config.Config
	orders  *stubOrders
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{
		App:      config.AppConfig{Env: "test", BaseURL: "http://localhost:8080"},
		JWT:      config.JWTConfig{Secret: "secret", Issuer: "dropone-test", ExpirationMinutes: 15},
		Supplier: config.SupplierConfig{WebhookToken: "supplier-secret"},
	}
	reg := prometheus.NewRegistry()
	orders := &stubOrders{}
	handler := NewRouter(cfg, logger.Nop(), Dependencies{
		DB:          stubPinger{},
		Redis:       newMemoryRedis(),
		Orders:      orders,
		Sellers:     stubSellers{},
		Gatherer:    reg,
		HTTPMetrics: metrics.NewHTTPMetrics(reg),
	})
	return &fixture{handler: handler, cfg: cfg, orders: orders}
}

func (f *fixture) token(t *testing.T, email string, role enums.AccountRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(f.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{Email: email, Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := f.do(httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, rec.Code)
		}
	}

	rec := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "dropone_http_requests_total") {
		t.Fatalf("expected http metrics to be exported")
	}
}

func TestSellerRoutesRequireToken(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/seller/balance", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/seller/balance", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, "seller@example.com", enums.AccountRoleSeller))
	rec = f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"balance_cents":1234`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestWithdrawRequiresIdempotencyKey(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/seller/withdraw", strings.NewReader(`{"amount_cents":1000}`))
	req.Header.Set("Authorization", "Bearer "+f.token(t, "seller@example.com", enums.AccountRoleSeller))
	rec := f.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/orders/DO-1/refund", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, "seller@example.com", enums.AccountRoleSeller))
	req.Header.Set("Idempotency-Key", "refund-1")
	rec := f.do(req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rec.Code)
	}

	adminToken := f.token(t, "ops@example.com", enums.AccountRoleAdmin)
	for i := 0; i < 2; i++ {
		req = httptest.NewRequest(http.MethodPost, "/api/admin/orders/DO-1/refund", nil)
		req.Header.Set("Authorization", "Bearer "+adminToken)
		req.Header.Set("Idempotency-Key", "refund-1")
		rec = f.do(req)
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200 got %d (%s)", i, rec.Code, rec.Body.String())
		}
	}
	if f.orders.refunds != 1 {
		t.Fatalf("expected replayed refund to run once, got %d", f.orders.refunds)
	}
}

func TestUnconfiguredServicesFailClosed(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=x")
	rec := f.do(req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/webhooks/supplier", strings.NewReader(`{}`))
	req.Header.Set("X-Supplier-Token", "supplier-secret")
	rec = f.do(req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
}
