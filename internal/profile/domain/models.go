// Package domain holds the subset of a user's profile that entitlement
// decisions depend on.
package domain

import (
	"time"
)

type SubscriptionStatus string

const (
	StatusActive   SubscriptionStatus = "active"
	StatusTrialing SubscriptionStatus = "trialing"
	StatusCanceled SubscriptionStatus = "canceled"
	StatusInactive SubscriptionStatus = "inactive"
)

// Paid reports whether the status confers the subscribed tier.
func (s SubscriptionStatus) Paid() bool {
	return s == StatusActive || s == StatusTrialing
}

// UserProfile carries exactly one tier assignment per user. A missing row is
// a data-integrity failure, not an implicit free tier.
type UserProfile struct {
	UserID                string             `gorm:"primaryKey;size:191" json:"user_id"`
	TierID                string             `gorm:"size:191;not null;index" json:"tier_id"`
	BillingCustomerID     *string            `gorm:"size:191;uniqueIndex" json:"billing_customer_id"`
	BillingSubscriptionID *string            `gorm:"size:191" json:"billing_subscription_id"`
	SubscriptionStatus    SubscriptionStatus `gorm:"size:191;not null;default:inactive" json:"subscription_status"`
	PeriodStart           *time.Time         `gorm:"" json:"period_start"`
	PeriodEnd             *time.Time         `gorm:"" json:"period_end"`
	LastBillingEventAt    *time.Time         `gorm:"" json:"last_billing_event_at"`
	BillingSyncedAt       *time.Time         `gorm:"" json:"billing_synced_at"`
	CreatedAt             time.Time          `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time          `gorm:"not null" json:"updated_at"`
}

func (UserProfile) TableName() string { return "user_profiles" }

// SubscriptionState is the billing-owned slice of a profile. Billing sync
// writes it as a whole snapshot.
type SubscriptionState struct {
	TierID                string
	BillingCustomerID     *string
	BillingSubscriptionID *string
	Status                SubscriptionStatus
	PeriodStart           *time.Time
	PeriodEnd             *time.Time
	LastBillingEventAt    *time.Time
	SyncedAt              time.Time
}
