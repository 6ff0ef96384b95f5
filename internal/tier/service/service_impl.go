package service

import (
	"context"
	"errors"
	"strings"

	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/apperr"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/cache"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/clock"
	profiledomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/profile/domain"
	tierdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/tier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Repo        tierdomain.Repository
	ProfileRepo profiledomain.Repository
	Cache       cache.TierCache `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	repo        tierdomain.Repository
	profileRepo profiledomain.Repository
	cache       cache.TierCache
}

func NewService(p ServiceParam) tierdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("tier.service"),
		clock:       p.Clock,
		repo:        p.Repo,
		profileRepo: p.ProfileRepo,
		cache:       p.Cache,
	}
}

func (s *Service) GetTierByID(ctx context.Context, tierID string) (*tierdomain.Tier, error) {
	tierID = strings.TrimSpace(tierID)
	if tierID == "" {
		return nil, tierdomain.ErrInvalidTierID
	}

	if s.cache != nil {
		if cached, ok := s.cache.GetTier(tierID); ok {
			return &cached, nil
		}
	}

	tier, err := s.repo.FindByID(ctx, s.db, tierID)
	if err != nil {
		return nil, apperr.Storage("find_tier", err)
	}
	if tier == nil || !tier.Resolvable() {
		return nil, apperr.NotFound("tier", tierID)
	}

	if s.cache != nil {
		s.cache.SetTier(*tier)
	}
	return tier, nil
}

// GetUserTier fails when the profile is missing instead of assuming the free
// tier; a missing profile usually means billing sync never ran.
func (s *Service) GetUserTier(ctx context.Context, userID string) (*tierdomain.Tier, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, tierdomain.ErrInvalidUserID
	}

	profile, err := s.profileRepo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return nil, apperr.Storage("find_profile", err)
	}
	if profile == nil {
		return nil, apperr.NotFound("user_profile", userID)
	}

	tier, err := s.GetTierByID(ctx, profile.TierID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			s.log.Error("user assigned to unknown tier",
				zap.String("user_id", userID),
				zap.String("tier_id", profile.TierID),
			)
		}
		return nil, err
	}
	return tier, nil
}

func (s *Service) ListActiveTiers(ctx context.Context) ([]tierdomain.Tier, error) {
	tiers, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		return nil, apperr.Storage("list_tiers", err)
	}
	return tiers, nil
}

func (s *Service) UpsertTier(ctx context.Context, tier tierdomain.Tier) (*tierdomain.Tier, error) {
	if err := validateTier(tier); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	tier.ID = strings.TrimSpace(tier.ID)
	if tier.CreatedAt.IsZero() {
		tier.CreatedAt = now
	}
	tier.UpdatedAt = now

	if err := s.repo.Upsert(ctx, s.db, &tier); err != nil {
		return nil, apperr.Storage("upsert_tier", err)
	}
	if s.cache != nil {
		s.cache.Invalidate(tier.ID)
	}

	s.log.Info("tier upserted", zap.String("tier_id", tier.ID), zap.Bool("active", tier.IsActive))
	return &tier, nil
}

func validateTier(tier tierdomain.Tier) error {
	if strings.TrimSpace(tier.ID) == "" {
		return tierdomain.ErrInvalidTierID
	}
	if strings.TrimSpace(tier.Name) == "" {
		return tierdomain.ErrInvalidName
	}
	for _, limit := range []*int{tier.IllustratedLimitMonth, tier.IllustratedLimitTotal, tier.TextLimitMonth} {
		if limit != nil && *limit < 0 {
			return tierdomain.ErrInvalidLimit
		}
	}
	if tier.AvatarRegenerationsMonth < 0 || tier.MaxChildProfiles < 0 || tier.MaxOtherProfiles < 0 {
		return tierdomain.ErrInvalidLimit
	}
	if tier.PriceMonthlyCents < 0 || tier.PriceYearlyCents < 0 {
		return tierdomain.ErrInvalidLimit
	}
	return nil
}
