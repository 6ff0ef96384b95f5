package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, profile *UserProfile) error
	FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*UserProfile, error)
	FindByUserIDForUpdate(ctx context.Context, db *gorm.DB, userID string) (*UserProfile, error)
	FindByBillingCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*UserProfile, error)
	UpdateSubscriptionState(ctx context.Context, db *gorm.DB, userID string, state SubscriptionState) error
	LinkBillingCustomer(ctx context.Context, db *gorm.DB, userID, customerID string) error
	// ListLapsedPaid returns paid profiles whose period ended and whose last
	// sync happened before cutoff, oldest period first.
	ListLapsedPaid(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]UserProfile, error)
}

type Service interface {
	GetProfile(ctx context.Context, userID string) (*UserProfile, error)
	// Register creates the profile for a newly signed-up user on the free tier.
	// It is a no-op when the profile already exists.
	Register(ctx context.Context, userID string) (*UserProfile, error)
}

var (
	ErrInvalidUserID    = errors.New("invalid_user_id")
	ErrCustomerConflict = errors.New("billing_customer_already_linked")
)
