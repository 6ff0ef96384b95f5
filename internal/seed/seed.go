// Package seed ensures the built-in tier catalog exists on startup.
package seed

import (
	"context"
	"errors"
	"time"

	tierdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/tier/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultTiers is the catalog a fresh install starts with. Operators change
// limits through the admin API afterwards; seeding never overwrites them.
func DefaultTiers(now time.Time) []tierdomain.Tier {
	return []tierdomain.Tier{
		{
			ID:                       "tier_free",
			Name:                     "Free",
			DisplayOrder:             0,
			IsActive:                 true,
			IllustratedLimitMonth:    tierdomain.IntPtr(3),
			IllustratedLimitTotal:    tierdomain.IntPtr(3),
			TextLimitMonth:           tierdomain.IntPtr(5),
			AvatarRegenerationsMonth: 2,
			MaxChildProfiles:         1,
			CreatedAt:                now,
			UpdatedAt:                now,
		},
		{
			ID:                       "tier_basic",
			Name:                     "Basic",
			DisplayOrder:             1,
			IsActive:                 true,
			IllustratedLimitMonth:    tierdomain.IntPtr(5),
			AvatarRegenerationsMonth: 5,
			MaxChildProfiles:         3,
			MaxOtherProfiles:         3,
			AllowsPets:               true,
			AllowsGenreSelection:     true,
			PriceMonthlyCents:        799,
			PriceYearlyCents:         7999,
			CreatedAt:                now,
			UpdatedAt:                now,
		},
		{
			ID:                       "tier_plus",
			Name:                     "Plus",
			DisplayOrder:             2,
			IsActive:                 true,
			IllustratedLimitMonth:    tierdomain.IntPtr(15),
			AvatarRegenerationsMonth: 15,
			MaxChildProfiles:         6,
			MaxOtherProfiles:         10,
			AllowsPets:               true,
			AllowsMagicalCreatures:   true,
			AllowsGrowthTopics:       true,
			AllowsGenreSelection:     true,
			AllowsCustomInstructions: true,
			PriceMonthlyCents:        1499,
			PriceYearlyCents:         14999,
			CreatedAt:                now,
			UpdatedAt:                now,
		},
	}
}

// EnsureDefaultTiers inserts any missing default tier and leaves existing
// rows untouched.
func EnsureDefaultTiers(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	tiers := DefaultTiers(time.Now().UTC())
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range tiers {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoNothing: true,
			}).Create(&tiers[i]).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}
