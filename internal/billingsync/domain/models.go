// Package domain describes how subscription state from the payment provider
// is mirrored onto user profiles.
package domain

import (
	"time"

	profiledomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/profile/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type EventType string

const (
	EventSubscriptionCreated EventType = "customer.subscription.created"
	EventSubscriptionUpdated EventType = "customer.subscription.updated"
	EventSubscriptionDeleted EventType = "customer.subscription.deleted"
	EventCheckoutCompleted   EventType = "checkout.session.completed"
)

// SubscriptionEvent reports whether t carries a full subscription snapshot.
func (t EventType) SubscriptionEvent() bool {
	switch t {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		return true
	default:
		return false
	}
}

type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeStale   Outcome = "skipped_stale"
	OutcomeIgnored Outcome = "ignored"
	OutcomeLinked  Outcome = "linked"
)

// Event is a verified provider notification reduced to the fields billing
// sync acts on. Subscription events carry the subscription's full state at
// OccurredAt, so applying one is a snapshot write rather than a delta.
type Event struct {
	ID             string
	Type           EventType
	OccurredAt     time.Time
	CustomerID     string
	SubscriptionID string
	Status         string
	PriceIDs       []string
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
	// UserID is set when the provider object names our user, through
	// metadata or a checkout client reference.
	UserID  string
	Payload []byte
}

// Subscription is the provider's current view of one subscription.
type Subscription struct {
	ID          string
	CustomerID  string
	Status      string
	PriceIDs    []string
	PeriodStart *time.Time
	PeriodEnd   *time.Time
	CreatedAt   time.Time
}

// Result describes what an event or reconcile did to a profile.
type Result struct {
	EventID string
	Outcome Outcome
	UserID  string
	TierID  string
	// Duplicate is set when the event was already journaled and nothing ran.
	Duplicate bool
}

// BillingEvent journals each provider event that was processed successfully.
// Failed events are never journaled so provider redelivery retries them.
type BillingEvent struct {
	ID              snowflake.ID   `gorm:"primaryKey;autoIncrement:false"`
	ProviderEventID string         `gorm:"size:191;not null;uniqueIndex"`
	Type            string         `gorm:"size:191;not null"`
	CustomerID      string         `gorm:"size:191;not null;default:''"`
	UserID          string         `gorm:"size:191;not null;default:'';index"`
	Outcome         string         `gorm:"size:191;not null"`
	Payload         datatypes.JSON
	OccurredAt      time.Time      `gorm:"not null"`
	ProcessedAt     time.Time      `gorm:"not null"`
}

func (BillingEvent) TableName() string { return "billing_events" }

// MapStatus folds provider subscription statuses into the four local ones.
// Anything that is not clearly paying, such as past_due, unpaid, incomplete
// or paused, maps to inactive.
func MapStatus(status string) profiledomain.SubscriptionStatus {
	switch status {
	case "active":
		return profiledomain.StatusActive
	case "trialing":
		return profiledomain.StatusTrialing
	case "canceled":
		return profiledomain.StatusCanceled
	default:
		return profiledomain.StatusInactive
	}
}
