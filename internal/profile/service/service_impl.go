package service

import (
	"context"
	"strings"

	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/apperr"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/clock"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/config"
	profiledomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/profile/domain"
	"github.com/benjask5360/tuckandtaleMVP-sub002/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Repo        profiledomain.Repository
	BillingConf *config.BillingConfigHolder
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	repo        profiledomain.Repository
	billingConf *config.BillingConfigHolder
}

func NewService(p ServiceParam) profiledomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("profile.service"),
		clock:       p.Clock,
		repo:        p.Repo,
		billingConf: p.BillingConf,
	}
}

func (s *Service) GetProfile(ctx context.Context, userID string) (*profiledomain.UserProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, profiledomain.ErrInvalidUserID
	}

	profile, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return nil, apperr.Storage("find_profile", err)
	}
	if profile == nil {
		return nil, apperr.NotFound("user_profile", userID)
	}
	return profile, nil
}

func (s *Service) Register(ctx context.Context, userID string) (*profiledomain.UserProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, profiledomain.ErrInvalidUserID
	}

	now := s.clock.Now()
	profile := &profiledomain.UserProfile{
		UserID:             userID,
		TierID:             s.billingConf.Get().FreeTierID,
		SubscriptionStatus: profiledomain.StatusInactive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Insert(ctx, s.db, profile); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return s.GetProfile(ctx, userID)
		}
		return nil, apperr.Storage("insert_profile", err)
	}

	s.log.Info("profile registered", zap.String("user_id", userID), zap.String("tier_id", profile.TierID))
	return profile, nil
}
