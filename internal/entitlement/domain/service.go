package domain

import (
	"context"
	"errors"

	tierdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/tier/domain"
)

// Service decides and records story consumption.
//
// CanGenerateStory never mutates state. Callers run the generation and then
// call RecordUsage; the gap between the two calls is an accepted soft limit.
type Service interface {
	CanGenerateStory(ctx context.Context, userID string, req StoryRequest) (Decision, error)
	RecordUsage(ctx context.Context, userID string, req StoryRequest) error
	ValidateFeatureAccess(ctx context.Context, userID string, feature tierdomain.Feature) bool
	CheckProfileLimit(ctx context.Context, userID string, kind ProfileKind, existing int) (ProfileDecision, error)
	GetUsageSummary(ctx context.Context, userID string) (UsageSummary, error)
}

var (
	ErrInvalidUserID      = errors.New("invalid_user_id")
	ErrInvalidProfileKind = errors.New("invalid_profile_kind")
	ErrInvalidCount       = errors.New("invalid_existing_count")
)
