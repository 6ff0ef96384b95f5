package service

import (
	"context"
	"strings"

	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/clock"
	obslogger "github.com/benjask5360/tuckandtaleMVP-sub002/internal/observability/logger"
	obsmetrics "github.com/benjask5360/tuckandtaleMVP-sub002/internal/observability/metrics"
	regendomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/regeneration/domain"
	tierdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/tier/domain"
	usagedomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	TierSvc    tierdomain.Service
	UsageSvc   usagedomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	clock      clock.Clock
	tierSvc    tierdomain.Service
	usageSvc   usagedomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) regendomain.Service {
	return &Service{
		log:        p.Log.Named("regeneration.service"),
		clock:      p.Clock,
		tierSvc:    p.TierSvc,
		usageSvc:   p.UsageSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) GetRemainingRegenerations(ctx context.Context, userID, characterID string) (regendomain.Status, error) {
	key, period, err := s.key(userID, characterID)
	if err != nil {
		return regendomain.Status{}, err
	}

	tier, err := s.tierSvc.GetUserTier(ctx, key.UserID)
	if err != nil {
		return regendomain.Status{}, err
	}
	used, err := s.usageSvc.GetCount(ctx, key)
	if err != nil {
		return regendomain.Status{}, err
	}

	limit := int64(tier.AvatarRegenerationsMonth)
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return regendomain.Status{
		CharacterID:  key.SubjectID,
		Used:         used,
		Limit:        limit,
		Remaining:    remaining,
		ResetsInDays: period.DaysUntilReset(s.clock.Now()),
		ResetsAt:     period.End,
	}, nil
}

func (s *Service) CanGenerate(ctx context.Context, userID, characterID string) (bool, error) {
	status, err := s.GetRemainingRegenerations(ctx, userID, characterID)
	if err != nil {
		return false, err
	}
	allowed := status.Remaining > 0
	s.obsMetrics.RecordDecision(ctx, string(usagedomain.ResourceAvatarRegeneration), allowed, denialReason(allowed))
	return allowed, nil
}

// IncrementUsage charges one regeneration to the character for the current
// period. Storage failures are logged and reported as false.
func (s *Service) IncrementUsage(ctx context.Context, userID, characterID string) bool {
	key, _, err := s.key(userID, characterID)
	if err != nil {
		return false
	}

	consumed, err := s.usageSvc.IncrementCount(ctx, key, 1)
	if err != nil {
		s.obsMetrics.RecordUsageFailure(ctx, string(key.Kind))
		obslogger.WithContext(ctx, s.log).Error("failed to record avatar regeneration",
			zap.String("user_id", key.UserID),
			zap.String("character_id", key.SubjectID),
			zap.Error(err),
		)
		return false
	}

	s.log.Debug("avatar regeneration recorded",
		zap.String("user_id", key.UserID),
		zap.String("character_id", key.SubjectID),
		zap.Int64("consumed", consumed),
	)
	return true
}

func (s *Service) key(userID, characterID string) (usagedomain.CounterKey, usagedomain.Period, error) {
	userID = strings.TrimSpace(userID)
	characterID = strings.TrimSpace(characterID)
	if userID == "" {
		return usagedomain.CounterKey{}, usagedomain.Period{}, regendomain.ErrInvalidUserID
	}
	if characterID == "" {
		return usagedomain.CounterKey{}, usagedomain.Period{}, regendomain.ErrInvalidCharacterID
	}

	period := s.usageSvc.CurrentPeriod()
	return usagedomain.CounterKey{
		UserID:    userID,
		Kind:      usagedomain.ResourceAvatarRegeneration,
		SubjectID: characterID,
		PeriodKey: period.Key,
	}, period, nil
}

func denialReason(allowed bool) string {
	if allowed {
		return ""
	}
	return regendomain.ReasonLimitReached
}
