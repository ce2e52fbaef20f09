package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dropone-app/dropone-backend/pkg/logger"
	"github.com/dropone-app/dropone-backend/pkg/metrics"
)

func TestLoggingRecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(reg)

	r := chi.NewRouter()
	r.Use(Logging(logger.Nop(), httpMetrics))
	r.Get("/api/admin/orders/{orderID}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	})
	r.Post("/api/admin/orders/{orderID}/refund", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/admin/orders/DO-1A2B3C4D", nil),
		httptest.NewRequest(http.MethodGet, "/api/admin/orders/DO-9Z8Y7X6W", nil),
		httptest.NewRequest(http.MethodPost, "/api/admin/orders/DO-1A2B3C4D/refund", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	n, err := testutil.GatherAndCount(reg, "dropone_http_requests_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 series keyed by route pattern, got %d", n)
	}
}

func TestStatusWriterDefaultsToOK(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec}
	if sw.Status() != http.StatusOK {
		t.Fatalf("expected implicit 200, got %d", sw.Status())
	}

	_, _ = sw.Write([]byte("hello"))
	sw.WriteHeader(http.StatusTeapot)
	if sw.Status() != http.StatusOK || sw.written != 5 {
		t.Fatalf("first status wins: status=%d written=%d", sw.Status(), sw.written)
	}
	if sw.Unwrap() != rec {
		t.Fatal("expected Unwrap to expose the recorder")
	}
}
