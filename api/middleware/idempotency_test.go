package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/dropone-app/dropone-backend/pkg/enums"
	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
	ttl  map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = fmt.Sprint(value)
	f.ttl[key] = ttl
	return true, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.data[key] = fmt.Sprint(value)
	f.ttl[key] = ttl
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func withdrawRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/seller/withdraw", strings.NewReader(body))
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{"/api/seller/withdraw"}
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	return payload.Error.Code
}

func TestIdempotencyTTLSelection(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{"withdraw", http.MethodPost, "/api/seller/withdraw", criticalIdempotencyTTL, true},
		{"refund pattern", http.MethodPost, "/api/admin/orders/{orderID}/refund", criticalIdempotencyTTL, true},
		{"refund concrete path", http.MethodPost, "/api/admin/orders/DO-1A2B3C4D/refund", criticalIdempotencyTTL, true},
		{"fulfillment retry", http.MethodPost, "/api/admin/orders/DO-1A2B3C4D/fulfillment/retry", defaultIdempotencyTTL, true},
		{"paypal method", http.MethodPost, "/api/seller/payout-methods/paypal", defaultIdempotencyTTL, true},
		{"stripe onboarding", http.MethodPost, "/api/seller/payout-methods/stripe", defaultIdempotencyTTL, true},
		{"balance read", http.MethodGet, "/api/seller/balance", 0, false},
		{"refund with extra segment", http.MethodPost, "/api/admin/orders/DO-1/refund/extra", 0, false},
		{"webhook", http.MethodPost, "/api/webhooks/stripe", 0, false},
		{"empty", http.MethodPost, "", 0, false},
	}

	for _, tt := range tests {
		ttl, ok := idempotencyTTL(tt.method, tt.path)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && ttl != tt.want {
			t.Fatalf("%s: expected ttl=%v got %v", tt.name, tt.want, ttl)
		}
	}
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	called := false
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withdrawRequest("", `{"amount_cents":1000}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if called {
		t.Fatalf("handler should not run without idempotency key")
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"amount_cents":1000}` {
			t.Errorf("handler saw body %q", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"payout_id":"PO-1"}}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, withdrawRequest("abc", `{"amount_cents":1000}`))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected first response 201 got %d", first.Code)
	}

	replay := httptest.NewRecorder()
	handler.ServeHTTP(replay, withdrawRequest("abc", `{"amount_cents":1000}`))
	if replay.Code != http.StatusCreated {
		t.Fatalf("expected replay status 201 got %d", replay.Code)
	}
	if replay.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content-type preserved")
	}
	if replay.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replay marker header")
	}
	if replay.Body.String() != `{"data":{"payout_id":"PO-1"}}` {
		t.Fatalf("expected stored body got %s", replay.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}

	for key, ttl := range store.ttl {
		if ttl != criticalIdempotencyTTL {
			t.Fatalf("expected %s stored for %v got %v", key, criticalIdempotencyTTL, ttl)
		}
	}
}

func TestIdempotencyRejectsBodyChange(t *testing.T) {
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), withdrawRequest("xyz", `{"amount_cents":1000}`))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withdrawRequest("xyz", `{"amount_cents":5000}`))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected %s got %s", pkgerrors.CodeIdempotency, code)
	}
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run while the key is reserved")
	}))

	req := withdrawRequest("busy", `{"amount_cents":1000}`)
	store.data[store.IdempotencyKey(replayScope(req), "busy")] = inFlightMarker

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeConflict) {
		t.Fatalf("expected %s got %s", pkgerrors.CodeConflict, code)
	}
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, withdrawRequest("retry-me", `{"amount_cents":1000}`))
	if first.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 got %d", first.Code)
	}
	if len(store.data) != 0 {
		t.Fatalf("expected key released after 5xx, store=%v", store.data)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, withdrawRequest("retry-me", `{"amount_cents":1000}`))
	if second.Code != http.StatusCreated || calls != 2 {
		t.Fatalf("expected retry to reach handler, code=%d calls=%d", second.Code, calls)
	}
}

func TestIdempotencyScopesKeysPerSeller(t *testing.T) {
	calls := 0
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for _, email := range []string{"a@example.com", "b@example.com"} {
		req := withdrawRequest("same-key", `{"amount_cents":1000}`)
		req = req.WithContext(WithIdentity(req.Context(), email, enums.AccountRoleSeller))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	if calls != 2 {
		t.Fatalf("expected each seller to execute once, got %d calls", calls)
	}
}

func TestIdempotencyIgnoresReadRoutes(t *testing.T) {
	called := false
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/seller/balance", nil))
	if !called {
		t.Fatalf("expected read route to pass through without a key")
	}
}
