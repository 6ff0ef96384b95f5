package repository

import (
	"context"

	billingdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/billingsync/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() billingdomain.Repository {
	return &repo{}
}

// Insert journals event. A second insert of the same provider event is
// silently dropped so replays stay idempotent.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *billingdomain.BillingEvent) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_event_id"}},
			DoNothing: true,
		}).
		Create(event).Error
}

func (r *repo) FindByProviderEventID(ctx context.Context, db *gorm.DB, providerEventID string) (*billingdomain.BillingEvent, error) {
	var rows []billingdomain.BillingEvent
	err := db.WithContext(ctx).
		Where("provider_event_id = ?", providerEventID).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
