package paypal

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropone-app/dropone-backend/pkg/config"
)

const capturedOrderJSON = `{
  "id": "5O190127TN364715T",
  "status": "COMPLETED",
  "payer": {"email_address": "buyer@example.com", "name": {"given_name": "Ada", "surname": "Lovelace"}},
  "purchase_units": [{
    "reference_id": "demo-store",
    "custom_id": "demo-store|st_1|20.00|3.00|27.00",
    "amount": {"currency_code": "EUR", "value": "50.00"},
    "shipping": {
      "name": {"full_name": "Ada Lovelace"},
      "address": {"address_line_1": "1 Rue de Rivoli", "admin_area_2": "Paris", "postal_code": "75001", "country_code": "fr"}
    },
    "payments": {"captures": [{"id": "CAP-1", "status": "COMPLETED", "amount": {"currency_code": "EUR", "value": "50.00"}}]}
  }]
}`

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(config.PayPalConfig{ClientID: "id", ClientSecret: "secret"}, WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	require.NoError(t, err)
	return client
}

func tokenHandler(t *testing.T, calls *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "id", user)
		assert.Equal(t, "secret", pass)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		_, _ = io.WriteString(w, `{"access_token":"tok","expires_in":32400}`)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(config.PayPalConfig{})
	require.Error(t, err)
}

func TestGetOrderNormalizesCapture(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", tokenHandler(t, &tokenCalls))
	mux.HandleFunc("/v2/checkout/orders/5O190127TN364715T", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, capturedOrderJSON)
	})
	client := newTestClient(t, mux)

	order, err := client.GetOrder(t.Context(), "5O190127TN364715T")
	require.NoError(t, err)
	assert.True(t, order.Captured())
	assert.Equal(t, "demo-store", order.StoreSlug())
	assert.Equal(t, int64(5000), order.AmountCents)
	assert.Equal(t, "EUR", order.Currency)
	assert.Equal(t, "CAP-1", order.CaptureID)
	assert.Equal(t, "buyer@example.com", order.PayerEmail)
	assert.Equal(t, "Ada Lovelace", order.PayerName)
	assert.Equal(t, "Paris", order.ShippingAddress.City)
	assert.Equal(t, "FR", order.ShippingAddress.CountryCode)

	_, err = client.GetOrder(t.Context(), "5O190127TN364715T")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls), "token should be cached")
}

func TestCaptureOrderSendsRequestID(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", tokenHandler(t, &tokenCalls))
	mux.HandleFunc("/v2/checkout/orders/5O190127TN364715T/capture", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "capture-5O190127TN364715T", r.Header.Get("PayPal-Request-Id"))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, capturedOrderJSON)
	})
	client := newTestClient(t, mux)

	order, err := client.CaptureOrder(t.Context(), "5O190127TN364715T")
	require.NoError(t, err)
	assert.True(t, order.Captured())
}

func TestCreateOrderCarriesStoreSlug(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", tokenHandler(t, &tokenCalls))
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Intent        string `json:"intent"`
			PurchaseUnits []struct {
				CustomID string `json:"custom_id"`
				Amount   Money  `json:"amount"`
			} `json:"purchase_units"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "CAPTURE", body.Intent)
		if !assert.Len(t, body.PurchaseUnits, 1) {
			return
		}
		assert.Equal(t, "demo-store", body.PurchaseUnits[0].CustomID)
		assert.Equal(t, "49.90", body.PurchaseUnits[0].Amount.Value)
		assert.Equal(t, "EUR", body.PurchaseUnits[0].Amount.CurrencyCode)

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"ORDER-1","status":"CREATED","links":[{"href":"https://paypal.test/approve","rel":"approve"}]}`)
	})
	client := newTestClient(t, mux)

	created, err := client.CreateOrder(t.Context(), CreateOrderRequest{StoreSlug: "demo-store", AmountCents: 4990, Description: "Lamp"})
	require.NoError(t, err)
	assert.Equal(t, "ORDER-1", created.ID)
	assert.Equal(t, "https://paypal.test/approve", created.ApproveURL)
}

func TestCreatePayout(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", tokenHandler(t, &tokenCalls))
	mux.HandleFunc("/v1/payments/payouts", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Header struct {
				SenderBatchID string `json:"sender_batch_id"`
			} `json:"sender_batch_header"`
			Items []struct {
				RecipientType string            `json:"recipient_type"`
				Receiver      string            `json:"receiver"`
				Amount        map[string]string `json:"amount"`
			} `json:"items"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "PO-ABCDEF12", body.Header.SenderBatchID)
		if !assert.Len(t, body.Items, 1) {
			return
		}
		assert.Equal(t, "EMAIL", body.Items[0].RecipientType)
		assert.Equal(t, "seller@example.com", body.Items[0].Receiver)
		assert.Equal(t, "20.00", body.Items[0].Amount["value"])

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"batch_header":{"payout_batch_id":"BATCH-9","batch_status":"PENDING"}}`)
	})
	client := newTestClient(t, mux)

	batch, err := client.CreatePayout(t.Context(), PayoutRequest{SenderBatchID: "PO-ABCDEF12", ReceiverEmail: "seller@example.com", AmountCents: 2000})
	require.NoError(t, err)
	assert.Equal(t, "BATCH-9", batch.BatchID)
}

func TestErrorClassification(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", tokenHandler(t, &tokenCalls))
	mux.HandleFunc("/v2/checkout/orders/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"name":"RESOURCE_NOT_FOUND"}`)
	})
	mux.HandleFunc("/v2/checkout/orders/flaky", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	client := newTestClient(t, mux)

	_, err := client.GetOrder(t.Context(), "missing")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.Equal(t, http.StatusNotFound, StatusCode(err))

	_, err = client.GetOrder(t.Context(), "flaky")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(err))
}

func TestTokenRefreshedNearExpiry(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		_, _ = io.WriteString(w, `{"access_token":"tok","expires_in":120}`)
	})
	mux.HandleFunc("/v2/checkout/orders/o1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"o1","status":"APPROVED"}`)
	})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	client, err := NewClient(config.PayPalConfig{ClientID: "id", ClientSecret: "secret"}, WithBaseURL(server.URL), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	_, err = client.GetOrder(t.Context(), "o1")
	require.NoError(t, err)
	now = now.Add(90 * time.Second)
	_, err = client.GetOrder(t.Context(), "o1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&tokenCalls))
}
