package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierAllows(t *testing.T) {
	tier := Tier{AllowsPets: true, AllowsCustomInstructions: true}

	assert.True(t, tier.Allows(FeaturePets))
	assert.False(t, tier.Allows(FeatureMagicalCreatures))
	assert.True(t, tier.Allows(FeatureCustomInstructions))
	assert.False(t, tier.Allows(Feature("unknown")))
}

func TestParseFeature(t *testing.T) {
	f, ok := ParseFeature("growth_topics")
	assert.True(t, ok)
	assert.Equal(t, FeatureGrowthTopics, f)

	_, ok = ParseFeature("Growth Topics")
	assert.False(t, ok)
}

func TestTierResolvable(t *testing.T) {
	assert.True(t, Tier{IsActive: true}.Resolvable())
	assert.True(t, Tier{IsActive: true, IsHidden: true}.Resolvable())
	assert.True(t, Tier{IsActive: false}.Resolvable())
	assert.False(t, Tier{IsActive: false, IsHidden: true}.Resolvable())
}
