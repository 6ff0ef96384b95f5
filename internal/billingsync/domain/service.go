package domain

import (
	"context"
	"errors"

	tierdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/tier/domain"
	"gorm.io/gorm"
)

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks

// Gateway is the payment provider as seen by billing sync.
type Gateway interface {
	// ParseWebhook verifies the signature of a raw webhook body and decodes it.
	ParseWebhook(payload []byte, signature string) (Event, error)
	// ListSubscriptions returns every subscription of the customer, in any status.
	ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *BillingEvent) error
	FindByProviderEventID(ctx context.Context, db *gorm.DB, providerEventID string) (*BillingEvent, error)
}

type Service interface {
	// HandleWebhook verifies and applies one provider notification.
	HandleWebhook(ctx context.Context, payload []byte, signature string) (Result, error)
	// ApplyBillingEvent writes the subscription snapshot carried by event onto
	// the owning profile. Applying the same event twice is a no-op.
	ApplyBillingEvent(ctx context.Context, event Event) (Result, error)
	// ReconcileFromSource overwrites the user's local subscription state with
	// what the provider currently reports and returns the resulting tier.
	ReconcileFromSource(ctx context.Context, userID string) (*tierdomain.Tier, error)
}

var (
	ErrInvalidSignature     = errors.New("invalid_webhook_signature")
	ErrInvalidEvent         = errors.New("invalid_billing_event")
	ErrInvalidUserID        = errors.New("invalid_user_id")
	ErrGatewayNotConfigured = errors.New("billing_gateway_not_configured")
	ErrReconcileInProgress  = errors.New("reconcile_in_progress")
	ErrReconcileThrottled   = errors.New("reconcile_throttled")
)
