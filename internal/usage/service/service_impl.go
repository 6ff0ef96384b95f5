package service

import (
	"context"
	"strings"
	"time"

	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/apperr"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/clock"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/config"
	obsmetrics "github.com/benjask5360/tuckandtaleMVP-sub002/internal/observability/metrics"
	usagedomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/usage/domain"
	"github.com/benjask5360/tuckandtaleMVP-sub002/pkg/db"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxIncrementAttempts = 5

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Cfg        config.Config
	Repo       usagedomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	loc        *time.Location
	repo       usagedomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("usage.service"),
		clock:      p.Clock,
		loc:        p.Cfg.UsageLocation(),
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CurrentPeriod() usagedomain.Period {
	return usagedomain.PeriodAt(s.clock.Now(), s.loc)
}

// GetCount returns zero for counters that were never written.
func (s *Service) GetCount(ctx context.Context, key usagedomain.CounterKey) (int64, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return 0, err
	}
	consumed, err := s.repo.Get(ctx, s.db, key)
	if err != nil {
		return 0, apperr.Storage("get_count", err)
	}
	return consumed, nil
}

func (s *Service) GetLifetimeCount(ctx context.Context, userID string, kind usagedomain.ResourceKind) (int64, error) {
	return s.GetCount(ctx, usagedomain.CounterKey{
		UserID:    userID,
		Kind:      kind,
		PeriodKey: usagedomain.LifetimePeriod,
	})
}

// IncrementCount creates or bumps the counter atomically and returns the new
// value. Serialization failures are retried with jittered backoff before
// surfacing as a storage error.
func (s *Service) IncrementCount(ctx context.Context, key usagedomain.CounterKey, amount int64) (int64, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, usagedomain.ErrInvalidAmount
	}

	consumed, err := s.withRetry(ctx, "increment", func(tx *gorm.DB) (int64, error) {
		return s.repo.Increment(ctx, tx, key, amount, s.clock.Now())
	})
	if err != nil {
		return 0, err
	}
	s.obsMetrics.RecordUsage(ctx, string(key.Kind))
	return consumed, nil
}

// AdjustCount is the only path that may lower a counter.
func (s *Service) AdjustCount(ctx context.Context, req usagedomain.AdjustRequest) (int64, error) {
	key, err := normalizeKey(req.Key)
	if err != nil {
		return 0, err
	}
	if req.Delta == 0 {
		return 0, usagedomain.ErrInvalidAmount
	}
	if strings.TrimSpace(req.Reason) == "" {
		return 0, usagedomain.ErrInvalidReason
	}

	consumed, err := s.withRetry(ctx, "adjust", func(tx *gorm.DB) (int64, error) {
		return s.repo.Adjust(ctx, tx, key, req.Delta, s.clock.Now())
	})
	if err != nil {
		return 0, err
	}

	s.log.Warn("usage counter adjusted",
		zap.String("user_id", key.UserID),
		zap.String("resource_kind", string(key.Kind)),
		zap.String("subject_id", key.SubjectID),
		zap.String("period_key", key.PeriodKey),
		zap.Int64("delta", req.Delta),
		zap.Int64("consumed", consumed),
		zap.String("reason", req.Reason),
		zap.String("actor", req.Actor),
	)
	return consumed, nil
}

func (s *Service) withRetry(ctx context.Context, op string, fn func(tx *gorm.DB) (int64, error)) (int64, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 200 * time.Millisecond

	attempt := 0
	consumed, err := backoff.Retry(ctx, func() (int64, error) {
		attempt++
		var out int64
		txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			v, err := fn(tx)
			if err != nil {
				return err
			}
			out = v
			return nil
		})
		if txErr == nil {
			return out, nil
		}
		if db.IsRetryableErr(txErr) {
			s.log.Debug("usage write conflict, retrying", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(txErr))
			return 0, txErr
		}
		return 0, backoff.Permanent(txErr)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(maxIncrementAttempts),
	)
	if err != nil {
		return 0, apperr.Storage(op, err)
	}
	return consumed, nil
}

func normalizeKey(key usagedomain.CounterKey) (usagedomain.CounterKey, error) {
	key.UserID = strings.TrimSpace(key.UserID)
	key.SubjectID = strings.TrimSpace(key.SubjectID)
	key.PeriodKey = strings.TrimSpace(key.PeriodKey)

	if key.UserID == "" {
		return key, usagedomain.ErrInvalidUserID
	}
	if !key.Kind.Valid() {
		return key, usagedomain.ErrInvalidResourceKind
	}
	if !usagedomain.ValidPeriodKey(key.PeriodKey) {
		return key, usagedomain.ErrInvalidPeriodKey
	}
	return key, nil
}
