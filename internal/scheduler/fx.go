package scheduler

import (
	"context"

	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(NewScheduler),
)

// NewScheduler starts the run loop unless it is disabled or there is no
// billing provider to reconcile against.
func NewScheduler(lc fx.Lifecycle, cfg config.Config, sched *Scheduler, log *zap.Logger) {
	if !cfg.Scheduler.Enabled {
		return
	}
	if cfg.Stripe.SecretKey == "" {
		log.Info("scheduler disabled: stripe secret key not configured")
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
