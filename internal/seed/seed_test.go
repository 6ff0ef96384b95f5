package seed_test

import (
	"testing"
	"time"

	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/seed"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/testutil"
	tierdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/tier/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDefaultTiersIsIdempotent(t *testing.T) {
	db := testutil.OpenDB(t)

	require.NoError(t, seed.EnsureDefaultTiers(db))
	require.NoError(t, db.Model(&tierdomain.Tier{}).Where("id = ?", "tier_basic").
		Update("illustrated_limit_month", 8).Error)
	require.NoError(t, seed.EnsureDefaultTiers(db))

	var count int64
	require.NoError(t, db.Model(&tierdomain.Tier{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)

	var basic tierdomain.Tier
	require.NoError(t, db.First(&basic, "id = ?", "tier_basic").Error)
	require.NotNil(t, basic.IllustratedLimitMonth)
	assert.Equal(t, 8, *basic.IllustratedLimitMonth)
	assert.Nil(t, basic.TextLimitMonth)
}

func TestFreeTierLifetimeCapsMonthly(t *testing.T) {
	for _, tier := range seed.DefaultTiers(time.Now()) {
		if tier.ID != "tier_free" {
			continue
		}
		require.NotNil(t, tier.IllustratedLimitTotal)
		require.NotNil(t, tier.IllustratedLimitMonth)
		assert.LessOrEqual(t, *tier.IllustratedLimitMonth, *tier.IllustratedLimitTotal)
		return
	}
	t.Fatal("tier_free missing from defaults")
}
