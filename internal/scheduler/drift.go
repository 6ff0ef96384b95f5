package scheduler

import (
	"context"
	"errors"
	"fmt"

	billingdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/billingsync/domain"
	"go.uber.org/zap"
)

const (
	driftRepaired = "repaired"
	driftSkipped  = "skipped"
	driftFailed   = "failed"
)

// BillingDriftJob reconciles paid profiles whose billing period ended more
// than the grace period ago without any sync. These are users whose renewal
// or cancellation webhook never arrived.
func (s *Scheduler) BillingDriftJob(ctx context.Context, log *zap.Logger) error {
	cutoff := s.clock.Now().Add(-s.cfg.DriftGrace)
	profiles, err := s.profileRepo.ListLapsedPaid(ctx, s.db, cutoff, s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list lapsed profiles: %w", err)
	}
	if len(profiles) == 0 {
		return nil
	}

	var repaired, skipped, failed int
	for _, profile := range profiles {
		if err := ctx.Err(); err != nil {
			return err
		}

		_, err := s.billingSvc.ReconcileFromSource(ctx, profile.UserID)
		switch {
		case err == nil:
			repaired++
			s.metrics.ObserveDrift(driftRepaired)
		case errors.Is(err, billingdomain.ErrReconcileThrottled),
			errors.Is(err, billingdomain.ErrReconcileInProgress):
			skipped++
			s.metrics.ObserveDrift(driftSkipped)
		default:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			failed++
			s.metrics.ObserveDrift(driftFailed)
			log.Warn("drift reconcile failed",
				zap.String("user_id", profile.UserID),
				zap.Error(err),
			)
		}
	}

	log.Info("billing drift sweep",
		zap.Int("candidates", len(profiles)),
		zap.Int("repaired", repaired),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)
	if failed > 0 {
		return fmt.Errorf("%d of %d profiles failed to reconcile", failed, len(profiles))
	}
	return nil
}
