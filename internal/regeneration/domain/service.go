// Package domain covers avatar regeneration allowances. Each character
// profile gets its own monthly allowance from the owner's tier.
package domain

import (
	"context"
	"errors"
	"time"
)

// ReasonLimitReached is reported when a character has used its monthly
// allowance.
const ReasonLimitReached = "monthly_limit_reached"

type Status struct {
	CharacterID  string    `json:"character_id"`
	Used         int64     `json:"used"`
	Limit        int64     `json:"limit"`
	Remaining    int64     `json:"remaining"`
	ResetsInDays int       `json:"resets_in_days"`
	ResetsAt     time.Time `json:"resets_at"`
}

// Service mirrors the story entitlement flow for avatar regeneration.
// IncrementUsage reports failure as false instead of an error.
type Service interface {
	GetRemainingRegenerations(ctx context.Context, userID, characterID string) (Status, error)
	CanGenerate(ctx context.Context, userID, characterID string) (bool, error)
	IncrementUsage(ctx context.Context, userID, characterID string) bool
}

var (
	ErrInvalidUserID      = errors.New("invalid_user_id")
	ErrInvalidCharacterID = errors.New("invalid_character_id")
)
