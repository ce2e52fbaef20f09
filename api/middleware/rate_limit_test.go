package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
)

type memoryWindow struct {
	mu     sync.Mutex
	hits   map[string]int64
	failed error
}

func newMemoryWindow() *memoryWindow {
	return &memoryWindow{hits: map[string]int64{}}
}

func (m *memoryWindow) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed != nil {
		return false, 0, m.failed
	}
	m.hits[scope]++
	return m.hits[scope] <= limit, m.hits[scope], nil
}

func checkoutRequest(body, remote string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(body))
	req.RemoteAddr = remote
	return req
}

func okHandler(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestRateLimitPreservesBody(t *testing.T) {
	policy := NewRateLimitPolicy("checkout", time.Minute, 5, "store_slug", 5)
	handler := RateLimit(policy, newMemoryWindow(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"store_slug":"sunset-lamps","provider":"stripe"}` {
			t.Errorf("handler saw %q", body)
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest(`{"store_slug":"sunset-lamps","provider":"stripe"}`, "1.2.3.4:5678"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRateLimitPerStoreAcrossClients(t *testing.T) {
	policy := NewRateLimitPolicy("checkout", time.Minute, 0, "store_slug", 2)
	handler := RateLimit(policy, newMemoryWindow(), nil)(http.HandlerFunc(okHandler))

	remotes := []string{"1.1.1.1:1", "2.2.2.2:2", "3.3.3.3:3"}
	slugs := []string{"busy-store", " Busy-Store ", "BUSY-STORE"}
	for i := range remotes {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, checkoutRequest(`{"store_slug":"`+slugs[i]+`"}`, remotes[i]))
		if i < 2 && rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
		if i == 2 {
			if rec.Code != http.StatusTooManyRequests {
				t.Fatalf("expected 429 once the store limit is hit, got %d", rec.Code)
			}
			if code := errorCode(t, rec); code != string(pkgerrors.CodeRateLimit) {
				t.Fatalf("unexpected code %s", code)
			}
			if rec.Header().Get("Retry-After") != "60" {
				t.Fatalf("expected Retry-After 60, got %q", rec.Header().Get("Retry-After"))
			}
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest(`{"store_slug":"quiet-store"}`, "1.1.1.1:1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("other stores keep their own window, got %d", rec.Code)
	}
}

func TestRateLimitPerForwardedIP(t *testing.T) {
	policy := NewRateLimitPolicy("checkout", time.Minute, 1, "", 0)
	handler := RateLimit(policy, newMemoryWindow(), nil)(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := checkoutRequest(`{}`, "10.0.0.1:443")
		req.Header.Set("X-Forwarded-For", "5.6.7.8, 10.0.0.1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("expected [200 429], got %v", codes)
	}
}

func TestRateLimitAdmitsWhenStoreDown(t *testing.T) {
	window := newMemoryWindow()
	window.failed = errors.New("redis down")
	handler := RateLimit(NewRateLimitPolicy("checkout", time.Minute, 1, "store_slug", 1), window, nil)(http.HandlerFunc(okHandler))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, checkoutRequest(`{"store_slug":"a-store"}`, "1.2.3.4:1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected fail-open 200, got %d", rec.Code)
		}
	}
}

func TestRateLimitDisabledPolicies(t *testing.T) {
	policies := map[string]RateLimitPolicy{
		"no window":    NewRateLimitPolicy("checkout", 0, 1, "store_slug", 1),
		"no limits":    NewRateLimitPolicy("checkout", time.Minute, 0, "store_slug", 0),
		"field no cap": NewRateLimitPolicy("checkout", time.Minute, 0, "store_slug", -1),
	}
	for name, policy := range policies {
		called := false
		handler := RateLimit(policy, newMemoryWindow(), nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			called = true
		}))
		handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest(`{}`, "1.2.3.4:1"))
		if !called {
			t.Fatalf("%s: expected pass-through", name)
		}
	}
}

func TestFieldDigestIgnoresNonStrings(t *testing.T) {
	for _, body := range []string{`{"store_slug":42}`, `{"other":"x"}`, `not json`, `{"store_slug":"  "}`} {
		if got := fieldDigest([]byte(body), "store_slug"); got != "" {
			t.Fatalf("%s: expected no digest, got %q", body, got)
		}
	}
	if fieldDigest([]byte(`{"store_slug":"Glow"}`), "store_slug") != fieldDigest([]byte(`{"store_slug":"glow "}`), "store_slug") {
		t.Fatal("expected normalized values to share a digest")
	}
}
