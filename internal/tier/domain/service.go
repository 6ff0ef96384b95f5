package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Tier, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]Tier, error)
	Upsert(ctx context.Context, db *gorm.DB, tier *Tier) error
}

// Service resolves tier definitions. It never falls back to a default tier.
type Service interface {
	GetTierByID(ctx context.Context, tierID string) (*Tier, error)
	GetUserTier(ctx context.Context, userID string) (*Tier, error)
	ListActiveTiers(ctx context.Context) ([]Tier, error)
	UpsertTier(ctx context.Context, tier Tier) (*Tier, error)
}

var (
	ErrInvalidTierID = errors.New("invalid_tier_id")
	ErrInvalidUserID = errors.New("invalid_user_id")
	ErrInvalidLimit  = errors.New("invalid_limit")
	ErrInvalidName   = errors.New("invalid_tier_name")
)
