// Package scheduler runs periodic maintenance jobs in-process.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	billingdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/billingsync/domain"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/clock"
	obsmetrics "github.com/benjask5360/tuckandtaleMVP-sub002/internal/observability/metrics"
	profiledomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/profile/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

const jobBillingDrift = "billing_drift"

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	GenID       *snowflake.Node
	ProfileRepo profiledomain.Repository
	BillingSvc  billingdomain.Service
	Metrics     *obsmetrics.SchedulerMetrics `optional:"true"`
	Config      Config                       `optional:"true"`
}

type Scheduler struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         Config
	clock       clock.Clock
	genID       *snowflake.Node
	profileRepo profiledomain.Repository
	billingSvc  billingdomain.Service
	metrics     *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.GenID == nil || p.ProfileRepo == nil || p.BillingSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:          p.DB,
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         p.Config.withDefaults(),
		clock:       p.Clock,
		genID:       p.GenID,
		profileRepo: p.ProfileRepo,
		billingSvc:  p.BillingSvc,
		metrics:     p.Metrics,
	}, nil
}

// runJob treats a deadline as a soft timeout: the job is cut short and
// picked up again on the next tick.
func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context, log *zap.Logger) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	log := s.log.With(
		zap.String("job", name),
		zap.String("run_id", s.genID.Generate().String()),
	)
	s.metrics.IncJobRun(name)

	err := fn(ctx, log)
	s.metrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		log.Debug("job finished", zap.Duration("duration", time.Since(start)))
		return nil
	}

	s.metrics.IncJobError(name)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.metrics.IncJobTimeout(name)
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, jobBillingDrift, s.cfg.JobTimeout, s.BillingDriftJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
