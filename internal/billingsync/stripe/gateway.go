// Package stripe adapts Stripe webhooks and the subscriptions API to the
// billing sync gateway.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	billingdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/billingsync/domain"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/config"
	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// metadataUserIDKey is set on checkout sessions and subscriptions by the
// storefront so events can be tied to a user before the customer is linked.
const metadataUserIDKey = "user_id"

type subscriptionLister interface {
	List(params *stripego.SubscriptionListParams) *subscription.Iter
}

type Gateway struct {
	subs          subscriptionLister
	webhookSecret string
}

func NewGateway(cfg config.Config) billingdomain.Gateway {
	return &Gateway{
		subs: &subscription.Client{
			B:   stripego.GetBackend(stripego.APIBackend),
			Key: cfg.Stripe.SecretKey,
		},
		webhookSecret: cfg.Stripe.WebhookSecret,
	}
}

func (g *Gateway) ParseWebhook(payload []byte, signature string) (billingdomain.Event, error) {
	if g.webhookSecret == "" {
		return billingdomain.Event{}, billingdomain.ErrGatewayNotConfigured
	}
	if strings.TrimSpace(signature) == "" {
		return billingdomain.Event{}, billingdomain.ErrInvalidSignature
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return billingdomain.Event{}, fmt.Errorf("%w: %v", billingdomain.ErrInvalidSignature, err)
	}
	return decodeEvent(evt, payload)
}

func decodeEvent(evt stripego.Event, payload []byte) (billingdomain.Event, error) {
	out := billingdomain.Event{
		ID:         evt.ID,
		Type:       billingdomain.EventType(evt.Type),
		OccurredAt: time.Unix(evt.Created, 0).UTC(),
		Payload:    payload,
	}
	if evt.Data == nil {
		return out, nil
	}

	switch {
	case out.Type.SubscriptionEvent():
		var sub webhookSubscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			return billingdomain.Event{}, fmt.Errorf("%w: decode subscription: %v", billingdomain.ErrInvalidEvent, err)
		}
		out.CustomerID = strings.TrimSpace(sub.Customer)
		out.SubscriptionID = strings.TrimSpace(sub.ID)
		out.Status = strings.TrimSpace(sub.Status)
		out.PriceIDs = sub.priceIDs()
		out.PeriodStart, out.PeriodEnd = sub.period()
		out.UserID = strings.TrimSpace(sub.Metadata[metadataUserIDKey])
	case out.Type == billingdomain.EventCheckoutCompleted:
		var session webhookCheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			return billingdomain.Event{}, fmt.Errorf("%w: decode checkout session: %v", billingdomain.ErrInvalidEvent, err)
		}
		out.CustomerID = strings.TrimSpace(session.Customer)
		out.SubscriptionID = strings.TrimSpace(session.Subscription)
		out.UserID = strings.TrimSpace(session.ClientReferenceID)
		if out.UserID == "" {
			out.UserID = strings.TrimSpace(session.Metadata[metadataUserIDKey])
		}
	}
	return out, nil
}

func (g *Gateway) ListSubscriptions(ctx context.Context, customerID string) ([]billingdomain.Subscription, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, errors.New("customer id is required")
	}

	params := &stripego.SubscriptionListParams{
		Customer: stripego.String(customerID),
		Status:   stripego.String("all"),
	}
	params.Context = ctx
	params.Limit = stripego.Int64(100)

	var out []billingdomain.Subscription
	iter := g.subs.List(params)
	for iter.Next() {
		out = append(out, toSubscription(iter.Subscription()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list stripe subscriptions: %w", err)
	}
	return out, nil
}

func toSubscription(s *stripego.Subscription) billingdomain.Subscription {
	out := billingdomain.Subscription{
		ID:        s.ID,
		Status:    string(s.Status),
		CreatedAt: time.Unix(s.Created, 0).UTC(),
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Items == nil {
		return out
	}
	for _, item := range s.Items.Data {
		if item == nil {
			continue
		}
		if item.Price != nil && item.Price.ID != "" {
			out.PriceIDs = append(out.PriceIDs, item.Price.ID)
		}
		if out.PeriodStart == nil && item.CurrentPeriodStart > 0 {
			out.PeriodStart = unixPtr(item.CurrentPeriodStart)
		}
		if out.PeriodEnd == nil && item.CurrentPeriodEnd > 0 {
			out.PeriodEnd = unixPtr(item.CurrentPeriodEnd)
		}
	}
	return out
}

type webhookCheckoutSession struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// webhookSubscription reads period bounds from the items, where current API
// versions put them, and falls back to the legacy top-level fields.
type webhookSubscription struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
			Price              struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

func (s webhookSubscription) priceIDs() []string {
	var ids []string
	for _, item := range s.Items.Data {
		if id := strings.TrimSpace(item.Price.ID); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s webhookSubscription) period() (*time.Time, *time.Time) {
	start, end := s.CurrentPeriodStart, s.CurrentPeriodEnd
	for _, item := range s.Items.Data {
		if start == 0 {
			start = item.CurrentPeriodStart
		}
		if end == 0 {
			end = item.CurrentPeriodEnd
		}
	}
	return unixPtr(start), unixPtr(end)
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
