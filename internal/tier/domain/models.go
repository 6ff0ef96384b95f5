// Package domain defines subscription tiers: named bundles of usage limits
// and feature flags.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Tier is keyed by a stable string ID because billing metadata refers to it.
// A nil limit means unlimited.
type Tier struct {
	ID           string `gorm:"primaryKey;size:191" json:"id"`
	Name         string `gorm:"size:191;not null" json:"name"`
	DisplayOrder int    `gorm:"not null;default:0" json:"display_order"`
	IsActive     bool   `gorm:"not null" json:"is_active"`
	IsHidden     bool   `gorm:"not null;default:false" json:"is_hidden"`

	IllustratedLimitMonth    *int `gorm:"" json:"illustrated_limit_month"`
	IllustratedLimitTotal    *int `gorm:"" json:"illustrated_limit_total"`
	TextLimitMonth           *int `gorm:"" json:"text_limit_month"`
	AvatarRegenerationsMonth int  `gorm:"not null;default:0" json:"avatar_regenerations_month"`
	MaxChildProfiles         int  `gorm:"not null;default:0" json:"max_child_profiles"`
	MaxOtherProfiles         int  `gorm:"not null;default:0" json:"max_other_profiles"`

	AllowsPets               bool `gorm:"not null;default:false" json:"allows_pets"`
	AllowsMagicalCreatures   bool `gorm:"not null;default:false" json:"allows_magical_creatures"`
	AllowsGrowthTopics       bool `gorm:"not null;default:false" json:"allows_growth_topics"`
	AllowsGenreSelection     bool `gorm:"not null;default:false" json:"allows_genre_selection"`
	AllowsCustomInstructions bool `gorm:"not null;default:false" json:"allows_custom_instructions"`

	PriceMonthlyCents      int64  `gorm:"not null;default:0" json:"price_monthly_cents"`
	PriceYearlyCents       int64  `gorm:"not null;default:0" json:"price_yearly_cents"`
	PromoPriceMonthlyCents *int64 `gorm:"" json:"promo_price_monthly_cents"`
	PromoPriceYearlyCents  *int64 `gorm:"" json:"promo_price_yearly_cents"`

	Metadata  datatypes.JSONMap `json:"metadata"`
	CreatedAt time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null" json:"updated_at"`
}

func (Tier) TableName() string { return "tiers" }

// Resolvable reports whether the tier can be assigned or looked up.
// Inactive tiers stay resolvable while visible so grandfathered users keep
// working; only inactive-and-hidden tiers disappear.
func (t Tier) Resolvable() bool {
	return t.IsActive || !t.IsHidden
}

// Feature is a boolean capability gated by tier.
type Feature string

const (
	FeaturePets               Feature = "pets"
	FeatureMagicalCreatures   Feature = "magical_creatures"
	FeatureGrowthTopics       Feature = "growth_topics"
	FeatureGenreSelection     Feature = "genre_selection"
	FeatureCustomInstructions Feature = "custom_instructions"
)

var AllFeatures = []Feature{
	FeaturePets,
	FeatureMagicalCreatures,
	FeatureGrowthTopics,
	FeatureGenreSelection,
	FeatureCustomInstructions,
}

func ParseFeature(raw string) (Feature, bool) {
	for _, f := range AllFeatures {
		if string(f) == raw {
			return f, true
		}
	}
	return "", false
}

// Allows reports whether the tier grants f. Unknown features are denied.
func (t Tier) Allows(f Feature) bool {
	switch f {
	case FeaturePets:
		return t.AllowsPets
	case FeatureMagicalCreatures:
		return t.AllowsMagicalCreatures
	case FeatureGrowthTopics:
		return t.AllowsGrowthTopics
	case FeatureGenreSelection:
		return t.AllowsGenreSelection
	case FeatureCustomInstructions:
		return t.AllowsCustomInstructions
	default:
		return false
	}
}

// IntPtr is a convenience for building limits.
func IntPtr(v int) *int { return &v }
