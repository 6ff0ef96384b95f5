package stripe

import (
	"errors"
	"fmt"
	"testing"
	"time"

	billingdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/billingsync/domain"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testSecret = "whsec_test_secret"

func sign(t *testing.T, payload string) ([]byte, string) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Payload, signed.Header
}

func newTestGateway() billingdomain.Gateway {
	cfg := config.Config{}
	cfg.Stripe.WebhookSecret = testSecret
	return NewGateway(cfg)
}

func TestParseWebhookSubscriptionUpdated(t *testing.T) {
	payload := fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"type": "customer.subscription.updated",
		"created": %d,
		"data": {"object": {
			"id": "sub_1",
			"object": "subscription",
			"customer": "cus_1",
			"status": "active",
			"metadata": {"user_id": "user-1"},
			"items": {"data": [{
				"current_period_start": 1717200000,
				"current_period_end": 1719792000,
				"price": {"id": "price_plus_monthly"}
			}]}
		}}
	}`, 1717300000)

	body, header := sign(t, payload)
	evt, err := newTestGateway().ParseWebhook(body, header)
	require.NoError(t, err)

	assert.Equal(t, "evt_1", evt.ID)
	assert.Equal(t, billingdomain.EventSubscriptionUpdated, evt.Type)
	assert.Equal(t, time.Unix(1717300000, 0).UTC(), evt.OccurredAt)
	assert.Equal(t, "cus_1", evt.CustomerID)
	assert.Equal(t, "sub_1", evt.SubscriptionID)
	assert.Equal(t, "active", evt.Status)
	assert.Equal(t, []string{"price_plus_monthly"}, evt.PriceIDs)
	assert.Equal(t, "user-1", evt.UserID)
	require.NotNil(t, evt.PeriodStart)
	require.NotNil(t, evt.PeriodEnd)
	assert.Equal(t, time.Unix(1717200000, 0).UTC(), *evt.PeriodStart)
	assert.Equal(t, time.Unix(1719792000, 0).UTC(), *evt.PeriodEnd)
}

func TestParseWebhookLegacyPeriodFields(t *testing.T) {
	payload := `{
		"id": "evt_2",
		"object": "event",
		"type": "customer.subscription.created",
		"created": 1717300000,
		"data": {"object": {
			"id": "sub_2",
			"customer": "cus_2",
			"status": "trialing",
			"current_period_start": 1717200000,
			"current_period_end": 1719792000,
			"items": {"data": [{"price": {"id": "price_basic_monthly"}}]}
		}}
	}`

	body, header := sign(t, payload)
	evt, err := newTestGateway().ParseWebhook(body, header)
	require.NoError(t, err)
	require.NotNil(t, evt.PeriodStart)
	assert.Equal(t, time.Unix(1717200000, 0).UTC(), *evt.PeriodStart)
	assert.Empty(t, evt.UserID)
}

func TestParseWebhookCheckoutSession(t *testing.T) {
	payload := `{
		"id": "evt_3",
		"object": "event",
		"type": "checkout.session.completed",
		"created": 1717300000,
		"data": {"object": {
			"id": "cs_1",
			"customer": "cus_3",
			"subscription": "sub_3",
			"client_reference_id": "user-3"
		}}
	}`

	body, header := sign(t, payload)
	evt, err := newTestGateway().ParseWebhook(body, header)
	require.NoError(t, err)
	assert.Equal(t, billingdomain.EventCheckoutCompleted, evt.Type)
	assert.Equal(t, "cus_3", evt.CustomerID)
	assert.Equal(t, "sub_3", evt.SubscriptionID)
	assert.Equal(t, "user-3", evt.UserID)
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	body, _ := sign(t, `{"id":"evt_4","object":"event","type":"customer.subscription.updated","data":{"object":{}}}`)

	_, err := newTestGateway().ParseWebhook(body, "t=1,v1=deadbeef")
	assert.True(t, errors.Is(err, billingdomain.ErrInvalidSignature))

	_, err = newTestGateway().ParseWebhook(body, "")
	assert.True(t, errors.Is(err, billingdomain.ErrInvalidSignature))
}

func TestParseWebhookWithoutSecret(t *testing.T) {
	body, header := sign(t, `{"id":"evt_5","object":"event","type":"customer.subscription.updated","data":{"object":{}}}`)

	_, err := NewGateway(config.Config{}).ParseWebhook(body, header)
	assert.ErrorIs(t, err, billingdomain.ErrGatewayNotConfigured)
}
