package repository

import (
	"context"

	tierdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/tier/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() tierdomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*tierdomain.Tier, error) {
	var tiers []tierdomain.Tier
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&tiers).Error
	if err != nil {
		return nil, err
	}
	if len(tiers) == 0 {
		return nil, nil
	}
	return &tiers[0], nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]tierdomain.Tier, error) {
	var tiers []tierdomain.Tier
	err := db.WithContext(ctx).
		Where("is_active = ? AND is_hidden = ?", true, false).
		Order("display_order ASC").
		Order("id ASC").
		Find(&tiers).Error
	if err != nil {
		return nil, err
	}
	return tiers, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, tier *tierdomain.Tier) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "display_order", "is_active", "is_hidden",
			"illustrated_limit_month", "illustrated_limit_total", "text_limit_month",
			"avatar_regenerations_month", "max_child_profiles", "max_other_profiles",
			"allows_pets", "allows_magical_creatures", "allows_growth_topics",
			"allows_genre_selection", "allows_custom_instructions",
			"price_monthly_cents", "price_yearly_cents",
			"promo_price_monthly_cents", "promo_price_yearly_cents",
			"metadata", "updated_at",
		}),
	}).Create(tier).Error
}
