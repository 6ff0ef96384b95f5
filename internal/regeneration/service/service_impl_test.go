package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/apperr"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/clock"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/config"
	profiledomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/profile/domain"
	profilerepo "github.com/benjask5360/tuckandtaleMVP-sub002/internal/profile/repository"
	regendomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/regeneration/domain"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/testutil"
	tierdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/tier/domain"
	tierrepo "github.com/benjask5360/tuckandtaleMVP-sub002/internal/tier/repository"
	tierservice "github.com/benjask5360/tuckandtaleMVP-sub002/internal/tier/service"
	usagerepo "github.com/benjask5360/tuckandtaleMVP-sub002/internal/usage/repository"
	usageservice "github.com/benjask5360/tuckandtaleMVP-sub002/internal/usage/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var start = time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)

func setupLimiter(t *testing.T) (regendomain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	db := testutil.OpenDB(t)
	fake := clock.NewFakeClock(start)
	log := zap.NewNop()

	tiers := tierservice.NewService(tierservice.ServiceParam{
		DB: db, Log: log, Clock: fake, Repo: tierrepo.Provide(), ProfileRepo: profilerepo.Provide(),
	})
	usage := usageservice.NewService(usageservice.ServiceParam{
		DB: db, Log: log, Clock: fake, Cfg: config.Config{}, Repo: usagerepo.Provide(),
	})
	svc := NewService(ServiceParam{Log: log, Clock: fake, TierSvc: tiers, UsageSvc: usage})

	require.NoError(t, db.Create(&tierdomain.Tier{
		ID: "tier_free", Name: "Free", IsActive: true, AvatarRegenerationsMonth: 2,
		CreatedAt: start, UpdatedAt: start,
	}).Error)
	require.NoError(t, db.Create(&profiledomain.UserProfile{
		UserID: "user-1", TierID: "tier_free", SubscriptionStatus: profiledomain.StatusInactive,
		CreatedAt: start, UpdatedAt: start,
	}).Error)
	return svc, db, fake
}

func TestRegenerationAllowancePerCharacter(t *testing.T) {
	svc, _, _ := setupLimiter(t)
	ctx := context.Background()

	status, err := svc.GetRemainingRegenerations(ctx, "user-1", "char-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), status.Limit)
	assert.Equal(t, int64(2), status.Remaining)
	assert.Equal(t, 11, status.ResetsInDays)

	assert.True(t, svc.IncrementUsage(ctx, "user-1", "char-a"))
	assert.True(t, svc.IncrementUsage(ctx, "user-1", "char-a"))

	ok, err := svc.CanGenerate(ctx, "user-1", "char-a")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.CanGenerate(ctx, "user-1", "char-b")
	require.NoError(t, err)
	assert.True(t, ok)

	status, err = svc.GetRemainingRegenerations(ctx, "user-1", "char-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), status.Used)
	assert.Equal(t, int64(0), status.Remaining)
}

func TestRegenerationResetsWithPeriod(t *testing.T) {
	svc, _, fake := setupLimiter(t)
	ctx := context.Background()

	assert.True(t, svc.IncrementUsage(ctx, "user-1", "char-a"))
	assert.True(t, svc.IncrementUsage(ctx, "user-1", "char-a"))

	fake.Set(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))
	ok, err := svc.CanGenerate(ctx, "user-1", "char-a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIncrementUsageReturnsFalseOnStorageFailure(t *testing.T) {
	svc, db, _ := setupLimiter(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	assert.NotPanics(t, func() {
		assert.False(t, svc.IncrementUsage(context.Background(), "user-1", "char-a"))
	})
}

func TestCanGenerateFailsClosed(t *testing.T) {
	svc, _, _ := setupLimiter(t)

	ok, err := svc.CanGenerate(context.Background(), "ghost", "char-a")
	assert.False(t, ok)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = svc.CanGenerate(context.Background(), "user-1", "")
	assert.ErrorIs(t, err, regendomain.ErrInvalidCharacterID)
	assert.False(t, svc.IncrementUsage(context.Background(), "", "char-a"))
}
