package stripe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/dropone-app/dropone-backend/pkg/config"
)

func TestNewClientValidatesKeys(t *testing.T) {
	ctx := context.Background()

	_, err := NewClient(ctx, config.StripeConfig{APIKey: "sk_live_abc", Secret: "whsec_x", Env: "test"}, nil)
	require.Error(t, err)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_test_abc", Env: "test"}, nil)
	require.ErrorIs(t, err, errSecretRequired)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_test_abc", Secret: "whsec_x", Env: "staging"}, nil)
	require.ErrorIs(t, err, errInvalidStripeEnv)

	client, err := NewClient(ctx, config.StripeConfig{APIKey: "sk_test_abc", Secret: "whsec_x", Currency: "EUR"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "test", client.Environment())
	assert.Equal(t, "eur", client.Currency())
}

func TestVerifyEvent(t *testing.T) {
	client := &Client{signingSecret: "whsec_test_secret"}
	payload := []byte(`{"id":"evt_123","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_test_1","object":"checkout.session"}}}`)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_test_secret",
		Timestamp: time.Now(),
	})

	event, err := client.VerifyEvent(signed.Payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, "evt_123", event.ID)
	assert.Equal(t, "checkout.session.completed", string(event.Type))

	tampered := []byte(`{"id":"evt_999","object":"event","type":"checkout.session.completed","data":{"object":{}}}`)
	_, err = client.VerifyEvent(tampered, signed.Header)
	require.Error(t, err)

	_, err = (&Client{}).VerifyEvent(payload, signed.Header)
	require.ErrorIs(t, err, errSecretRequired)
}
