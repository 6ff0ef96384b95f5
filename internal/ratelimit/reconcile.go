package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyReconcileBucket = "billing:reconcile:bucket:%s"
	keyReconcileLock   = "billing:reconcile:lock:%s"
)

var (
	ErrThrottled = errors.New("rate_limited")
	ErrLocked    = errors.New("lock_held")
)

// ReconcileGuard bounds user-triggered billing repairs: a per-user token
// bucket plus a lease so one user never has two repairs in flight. A nil
// guard admits everything.
type ReconcileGuard struct {
	log     *zap.Logger
	bucket  *TokenBucket
	locker  *Locker
	rate    float64
	burst   int
	lockTTL time.Duration
}

// NewRedisClient returns nil when Redis is disabled.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis ping: %w", err)
			}
			log.Info("redis connected", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func NewReconcileGuard(cfg config.Config, client *redis.Client, log *zap.Logger) (*ReconcileGuard, error) {
	if client == nil {
		return nil, nil
	}
	if cfg.Reconcile.RatePerMinute <= 0 || cfg.Reconcile.Burst <= 0 {
		return nil, errors.New("reconcile rate limit must be positive")
	}
	if cfg.Reconcile.LockTTL <= 0 {
		return nil, errors.New("reconcile lock ttl must be positive")
	}

	return &ReconcileGuard{
		log:     log.Named("ratelimit.reconcile"),
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		rate:    float64(cfg.Reconcile.RatePerMinute) / 60,
		burst:   int(cfg.Reconcile.Burst),
		lockTTL: cfg.Reconcile.LockTTL,
	}, nil
}

func (g *ReconcileGuard) Enabled() bool {
	return g != nil && g.bucket != nil && g.locker != nil
}

// Acquire admits one reconcile for userID. The returned release func is
// always safe to call.
func (g *ReconcileGuard) Acquire(ctx context.Context, userID string) (func(), error) {
	noop := func() {}
	if !g.Enabled() {
		return noop, nil
	}
	userID = strings.TrimSpace(userID)

	res, err := g.bucket.Allow(ctx, fmt.Sprintf(keyReconcileBucket, userID), g.rate, g.burst)
	if err != nil {
		return noop, err
	}
	if !res.Allowed {
		return noop, ErrThrottled
	}

	key := fmt.Sprintf(keyReconcileLock, userID)
	token, ok, err := g.locker.TryLock(ctx, key, g.lockTTL)
	if err != nil {
		return noop, err
	}
	if !ok {
		return noop, ErrLocked
	}

	return func() {
		// The caller's ctx may already be done.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := g.locker.Release(releaseCtx, key, token); err != nil {
			g.log.Warn("failed to release reconcile lock", zap.String("user_id", userID), zap.Error(err))
		}
	}, nil
}
