package service

import (
	"context"
	"strings"

	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/clock"
	entitlementdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/entitlement/domain"
	obslogger "github.com/benjask5360/tuckandtaleMVP-sub002/internal/observability/logger"
	obsmetrics "github.com/benjask5360/tuckandtaleMVP-sub002/internal/observability/metrics"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/observability/tracing"
	tierdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/tier/domain"
	usagedomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/usage/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
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

func NewService(p ServiceParam) entitlementdomain.Service {
	return &Service{
		log:        p.Log.Named("entitlement.service"),
		clock:      p.Clock,
		tierSvc:    p.TierSvc,
		usageSvc:   p.UsageSvc,
		obsMetrics: p.ObsMetrics,
	}
}

// CanGenerateStory fails closed: any error resolving the tier or reading a
// counter is returned with a denied decision.
func (s *Service) CanGenerateStory(ctx context.Context, userID string, req entitlementdomain.StoryRequest) (entitlementdomain.Decision, error) {
	bucket := req.Bucket()
	ctx, span := tracing.Start(ctx, "entitlement.CanGenerateStory",
		attribute.String("entitlement.bucket", string(bucket)),
	)
	defer span.End()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return entitlementdomain.Decision{Bucket: bucket}, entitlementdomain.ErrInvalidUserID
	}

	decision, err := s.decideStory(ctx, userID, bucket)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "entitlement check failed")
		obslogger.WithContext(ctx, s.log).Warn("story entitlement check failed, denying",
			zap.String("user_id", userID),
			zap.String("bucket", string(bucket)),
			zap.Error(err),
		)
		return entitlementdomain.Decision{Bucket: bucket}, err
	}

	span.SetAttributes(
		attribute.Bool("entitlement.allowed", decision.Allowed),
		attribute.String("entitlement.reason", string(decision.Reason)),
	)
	s.obsMetrics.RecordDecision(ctx, string(bucket), decision.Allowed, string(decision.Reason))
	if !decision.Allowed {
		obslogger.WithContext(ctx, s.log).Info("story generation denied",
			zap.String("user_id", userID),
			zap.String("tier_id", decision.TierID),
			zap.String("bucket", string(bucket)),
			zap.String("reason", string(decision.Reason)),
			zap.Int64("used", decision.Used),
		)
	}
	return decision, nil
}

func (s *Service) decideStory(ctx context.Context, userID string, bucket usagedomain.ResourceKind) (entitlementdomain.Decision, error) {
	tier, err := s.tierSvc.GetUserTier(ctx, userID)
	if err != nil {
		return entitlementdomain.Decision{}, err
	}

	period := s.usageSvc.CurrentPeriod()
	decision := entitlementdomain.Decision{
		Bucket:         bucket,
		TierID:         tier.ID,
		MonthlyLimit:   toLimit(monthlyLimit(tier, bucket)),
		PeriodKey:      period.Key,
		DaysUntilReset: period.DaysUntilReset(s.clock.Now()),
		ResetsAt:       period.End,
	}

	// The free tier's monthly allowance is carved out of a small lifetime
	// allowance, so the lifetime cap is checked first.
	var lifetimeRemaining *int64
	if bucket == usagedomain.ResourceIllustratedStory && tier.IllustratedLimitTotal != nil {
		lifetimeUsed, err := s.usageSvc.GetLifetimeCount(ctx, userID, bucket)
		if err != nil {
			return entitlementdomain.Decision{}, err
		}
		decision.LifetimeUsed = lifetimeUsed
		decision.LifetimeLimit = toLimit(tier.IllustratedLimitTotal)
		lifetimeRemaining = remaining(decision.LifetimeLimit, lifetimeUsed)

		if *lifetimeRemaining == 0 {
			decision.Reason = entitlementdomain.ReasonLifetimeLimitReached
			decision.Remaining = lifetimeRemaining
			return decision, nil
		}
	}

	used, err := s.usageSvc.GetCount(ctx, usagedomain.CounterKey{
		UserID:    userID,
		Kind:      bucket,
		PeriodKey: period.Key,
	})
	if err != nil {
		return entitlementdomain.Decision{}, err
	}
	decision.Used = used
	decision.Remaining = minRemaining(remaining(decision.MonthlyLimit, used), lifetimeRemaining)

	if decision.MonthlyLimit != nil && used >= *decision.MonthlyLimit {
		decision.Reason = entitlementdomain.ReasonMonthlyLimitReached
		return decision, nil
	}

	decision.Allowed = true
	return decision, nil
}

// RecordUsage charges the monthly bucket and, for illustrated stories, the
// lifetime counter on every tier. A failure here never revokes a story that
// was already delivered; it is logged and returned for the caller to report.
func (s *Service) RecordUsage(ctx context.Context, userID string, req entitlementdomain.StoryRequest) error {
	bucket := req.Bucket()
	ctx, span := tracing.Start(ctx, "entitlement.RecordUsage",
		attribute.String("entitlement.bucket", string(bucket)),
	)
	defer span.End()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return entitlementdomain.ErrInvalidUserID
	}

	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("user_id", userID),
		zap.String("bucket", string(bucket)),
	)
	period := s.usageSvc.CurrentPeriod()

	monthly, err := s.usageSvc.IncrementCount(ctx, usagedomain.CounterKey{
		UserID:    userID,
		Kind:      bucket,
		PeriodKey: period.Key,
	}, 1)
	if err != nil {
		s.recordFailure(ctx, span, log, bucket, period.Key, err)
		return err
	}

	fields := []zap.Field{zap.String("period_key", period.Key), zap.Int64("consumed", monthly)}
	if bucket == usagedomain.ResourceIllustratedStory {
		lifetime, err := s.usageSvc.IncrementCount(ctx, usagedomain.CounterKey{
			UserID:    userID,
			Kind:      bucket,
			PeriodKey: usagedomain.LifetimePeriod,
		}, 1)
		if err != nil {
			s.recordFailure(ctx, span, log, bucket, usagedomain.LifetimePeriod, err)
			return err
		}
		fields = append(fields, zap.Int64("lifetime_consumed", lifetime))
	}

	log.Debug("story usage recorded", fields...)
	return nil
}

func (s *Service) recordFailure(ctx context.Context, span trace.Span, log *zap.Logger, bucket usagedomain.ResourceKind, periodKey string, err error) {
	span.RecordError(tracing.SafeError(err))
	span.SetStatus(codes.Error, "record usage failed")
	s.obsMetrics.RecordUsageFailure(ctx, string(bucket))
	log.Error("failed to record story usage",
		zap.String("period_key", periodKey),
		zap.Error(err),
	)
}

// ValidateFeatureAccess answers false on any failure. It gates UI features,
// not billable work, so it reports instead of erroring.
func (s *Service) ValidateFeatureAccess(ctx context.Context, userID string, feature tierdomain.Feature) bool {
	tier, err := s.tierSvc.GetUserTier(ctx, strings.TrimSpace(userID))
	if err != nil {
		obslogger.WithContext(ctx, s.log).Warn("feature check failed, denying",
			zap.String("user_id", userID),
			zap.String("feature", string(feature)),
			zap.Error(err),
		)
		return false
	}
	return tier.Allows(feature)
}

func (s *Service) CheckProfileLimit(ctx context.Context, userID string, kind entitlementdomain.ProfileKind, existing int) (entitlementdomain.ProfileDecision, error) {
	if !kind.Valid() {
		return entitlementdomain.ProfileDecision{}, entitlementdomain.ErrInvalidProfileKind
	}
	if existing < 0 {
		return entitlementdomain.ProfileDecision{}, entitlementdomain.ErrInvalidCount
	}

	tier, err := s.tierSvc.GetUserTier(ctx, strings.TrimSpace(userID))
	if err != nil {
		return entitlementdomain.ProfileDecision{Kind: kind, Existing: existing}, err
	}

	decision := entitlementdomain.ProfileDecision{Kind: kind, Existing: existing}
	switch kind {
	case entitlementdomain.ProfileChild:
		decision.Limit = tier.MaxChildProfiles
	case entitlementdomain.ProfilePet:
		if !tier.Allows(tierdomain.FeaturePets) {
			decision.Reason = entitlementdomain.ReasonFeatureNotAllowed
			return decision, nil
		}
		decision.Limit = tier.MaxOtherProfiles
	case entitlementdomain.ProfileMagicalCreature:
		if !tier.Allows(tierdomain.FeatureMagicalCreatures) {
			decision.Reason = entitlementdomain.ReasonFeatureNotAllowed
			return decision, nil
		}
		decision.Limit = tier.MaxOtherProfiles
	}

	if existing >= decision.Limit {
		decision.Reason = entitlementdomain.ReasonProfileLimitReached
		return decision, nil
	}
	decision.Allowed = true
	return decision, nil
}

func (s *Service) GetUsageSummary(ctx context.Context, userID string) (entitlementdomain.UsageSummary, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return entitlementdomain.UsageSummary{}, entitlementdomain.ErrInvalidUserID
	}

	tier, err := s.tierSvc.GetUserTier(ctx, userID)
	if err != nil {
		return entitlementdomain.UsageSummary{}, err
	}
	period := s.usageSvc.CurrentPeriod()

	summary := entitlementdomain.UsageSummary{
		UserID:         userID,
		TierID:         tier.ID,
		TierName:       tier.Name,
		PeriodKey:      period.Key,
		DaysUntilReset: period.DaysUntilReset(s.clock.Now()),
		ResetsAt:       period.End,
	}

	reads := []struct {
		target *entitlementdomain.BucketUsage
		kind   usagedomain.ResourceKind
		period string
		limit  *int
	}{
		{&summary.IllustratedStories, usagedomain.ResourceIllustratedStory, period.Key, tier.IllustratedLimitMonth},
		{&summary.TextStories, usagedomain.ResourceTextStory, period.Key, tier.TextLimitMonth},
		{&summary.LifetimeIllustrated, usagedomain.ResourceIllustratedStory, usagedomain.LifetimePeriod, tier.IllustratedLimitTotal},
	}
	for _, r := range reads {
		used, err := s.usageSvc.GetCount(ctx, usagedomain.CounterKey{UserID: userID, Kind: r.kind, PeriodKey: r.period})
		if err != nil {
			return entitlementdomain.UsageSummary{}, err
		}
		limit := toLimit(r.limit)
		*r.target = entitlementdomain.BucketUsage{Used: used, Limit: limit, Remaining: remaining(limit, used)}
	}
	return summary, nil
}

func monthlyLimit(tier *tierdomain.Tier, bucket usagedomain.ResourceKind) *int {
	switch bucket {
	case usagedomain.ResourceIllustratedStory:
		return tier.IllustratedLimitMonth
	case usagedomain.ResourceTextStory:
		return tier.TextLimitMonth
	default:
		return nil
	}
}

func toLimit(limit *int) *int64 {
	if limit == nil {
		return nil
	}
	v := int64(*limit)
	return &v
}

// remaining is max(0, limit-used); nil when unlimited.
func remaining(limit *int64, used int64) *int64 {
	if limit == nil {
		return nil
	}
	left := *limit - used
	if left < 0 {
		left = 0
	}
	return &left
}

func minRemaining(a, b *int64) *int64 {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *a <= *b:
		return a
	default:
		return b
	}
}
