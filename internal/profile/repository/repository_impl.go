package repository

import (
	"context"
	"time"

	profiledomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/profile/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() profiledomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, profile *profiledomain.UserProfile) error {
	return db.WithContext(ctx).Create(profile).Error
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*profiledomain.UserProfile, error) {
	return r.findOne(db.WithContext(ctx).Where("user_id = ?", userID))
}

func (r *repo) FindByUserIDForUpdate(ctx context.Context, db *gorm.DB, userID string) (*profiledomain.UserProfile, error) {
	return r.findOne(db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID))
}

func (r *repo) FindByBillingCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*profiledomain.UserProfile, error) {
	return r.findOne(db.WithContext(ctx).Where("billing_customer_id = ?", customerID))
}

func (r *repo) findOne(q *gorm.DB) (*profiledomain.UserProfile, error) {
	var rows []profiledomain.UserProfile
	if err := q.Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) UpdateSubscriptionState(ctx context.Context, db *gorm.DB, userID string, state profiledomain.SubscriptionState) error {
	return db.WithContext(ctx).Exec(
		`UPDATE user_profiles
		 SET tier_id = ?,
		     billing_customer_id = COALESCE(?, billing_customer_id),
		     billing_subscription_id = ?,
		     subscription_status = ?,
		     period_start = ?,
		     period_end = ?,
		     last_billing_event_at = ?,
		     billing_synced_at = ?,
		     updated_at = ?
		 WHERE user_id = ?`,
		state.TierID,
		state.BillingCustomerID,
		state.BillingSubscriptionID,
		state.Status,
		state.PeriodStart,
		state.PeriodEnd,
		state.LastBillingEventAt,
		state.SyncedAt,
		state.SyncedAt,
		userID,
	).Error
}

func (r *repo) LinkBillingCustomer(ctx context.Context, db *gorm.DB, userID, customerID string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE user_profiles SET billing_customer_id = ? WHERE user_id = ?`,
		customerID,
		userID,
	).Error
}

func (r *repo) ListLapsedPaid(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]profiledomain.UserProfile, error) {
	var rows []profiledomain.UserProfile
	err := db.WithContext(ctx).
		Where("subscription_status IN ?", []profiledomain.SubscriptionStatus{profiledomain.StatusActive, profiledomain.StatusTrialing}).
		Where("billing_customer_id IS NOT NULL").
		Where("period_end IS NOT NULL AND period_end < ?", cutoff).
		Where("(billing_synced_at IS NULL OR billing_synced_at < ?)", cutoff).
		Order("period_end ASC").
		Order("user_id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
