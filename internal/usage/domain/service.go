package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Get(ctx context.Context, db *gorm.DB, key CounterKey) (int64, error)
	Increment(ctx context.Context, db *gorm.DB, key CounterKey, amount int64, at time.Time) (int64, error)
	Adjust(ctx context.Context, db *gorm.DB, key CounterKey, delta int64, at time.Time) (int64, error)
}

// Service is the usage ledger. Increments are atomic per key and safe across
// processes; callers never read-modify-write.
type Service interface {
	GetCount(ctx context.Context, key CounterKey) (int64, error)
	IncrementCount(ctx context.Context, key CounterKey, amount int64) (int64, error)
	GetLifetimeCount(ctx context.Context, userID string, kind ResourceKind) (int64, error)
	AdjustCount(ctx context.Context, req AdjustRequest) (int64, error)
	CurrentPeriod() Period
}

var (
	ErrInvalidUserID       = errors.New("invalid_user_id")
	ErrInvalidResourceKind = errors.New("invalid_resource_kind")
	ErrInvalidPeriodKey    = errors.New("invalid_period_key")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidReason       = errors.New("invalid_adjust_reason")
)
