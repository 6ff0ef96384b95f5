package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/apperr"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/clock"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/config"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/testutil"
	usagedomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/usage/domain"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/usage/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupUsageService(t *testing.T, now time.Time) (usagedomain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	db := testutil.OpenDB(t)
	fake := clock.NewFakeClock(now)
	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fake,
		Cfg:   config.Config{UsageTimeZone: "UTC"},
		Repo:  repository.Provide(),
	})
	return svc, db, fake
}

func storyKey(userID, period string) usagedomain.CounterKey {
	return usagedomain.CounterKey{
		UserID:    userID,
		Kind:      usagedomain.ResourceIllustratedStory,
		PeriodKey: period,
	}
}

func TestGetCountMissingRowIsZero(t *testing.T) {
	svc, _, _ := setupUsageService(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC))

	got, err := svc.GetCount(context.Background(), storyKey("user-1", "2025-06"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)

	lifetime, err := svc.GetLifetimeCount(context.Background(), "user-1", usagedomain.ResourceIllustratedStory)
	require.NoError(t, err)
	assert.Equal(t, int64(0), lifetime)
}

func TestIncrementCountReturnsNewValue(t *testing.T) {
	svc, _, _ := setupUsageService(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	key := storyKey("user-1", "2025-06")

	first, err := svc.IncrementCount(ctx, key, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	second, err := svc.IncrementCount(ctx, key, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), second)

	got, err := svc.GetCount(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got)
}

func TestIncrementCountAcrossConnectionsLosesNothing(t *testing.T) {
	const conns = 4
	db := testutil.OpenFileDB(t, conns)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.Equal(t, conns, sqlDB.Stats().MaxOpenConnections)

	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)),
		Cfg:   config.Config{UsageTimeZone: "UTC"},
		Repo:  repository.Provide(),
	})
	ctx := context.Background()
	key := storyKey("user-1", "2025-06")

	const workers = 16
	const perWorker = 10

	start := make(chan struct{})
	var wg sync.WaitGroup
	var mu sync.Mutex
	var failures []error
	seen := map[int64]int{}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < perWorker; j++ {
				v, err := svc.IncrementCount(ctx, key, 1)
				mu.Lock()
				if err != nil {
					failures = append(failures, err)
				} else {
					seen[v]++
				}
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, failures)
	assert.Len(t, seen, workers*perWorker)
	for v, n := range seen {
		assert.Equal(t, 1, n, "value %d returned %d times", v, n)
	}

	got, err := svc.GetCount(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), got)
}

func TestIncrementCountConcurrentCallersSumExactly(t *testing.T) {
	svc, _, _ := setupUsageService(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	key := storyKey("user-1", "2025-06")

	const workers = 20
	const perWorker = 5

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	seen := make(chan int64, workers*perWorker)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				v, err := svc.IncrementCount(ctx, key, 1)
				if err != nil {
					errs <- err
					continue
				}
				seen <- v
			}
		}()
	}
	wg.Wait()
	close(errs)
	close(seen)

	for err := range errs {
		t.Fatalf("increment: %v", err)
	}

	// Every caller observes a distinct post-increment value.
	values := map[int64]bool{}
	for v := range seen {
		assert.False(t, values[v], "value %d returned twice", v)
		values[v] = true
	}
	assert.Len(t, values, workers*perWorker)

	got, err := svc.GetCount(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), got)
}

func TestPeriodIsolation(t *testing.T) {
	svc, _, _ := setupUsageService(t, time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := svc.IncrementCount(ctx, storyKey("user-1", "2025-06"), 2)
	require.NoError(t, err)
	_, err = svc.IncrementCount(ctx, storyKey("user-1", "2025-07"), 5)
	require.NoError(t, err)

	june, err := svc.GetCount(ctx, storyKey("user-1", "2025-06"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), june)

	july, err := svc.GetCount(ctx, storyKey("user-1", "2025-07"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), july)
}

func TestCountersAreScopedBySubjectAndKind(t *testing.T) {
	svc, _, _ := setupUsageService(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	regen := func(subject string) usagedomain.CounterKey {
		return usagedomain.CounterKey{UserID: "user-1", Kind: usagedomain.ResourceAvatarRegeneration, SubjectID: subject, PeriodKey: "2025-06"}
	}
	_, err := svc.IncrementCount(ctx, regen("char-a"), 1)
	require.NoError(t, err)

	b, err := svc.GetCount(ctx, regen("char-b"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), b)

	text, err := svc.GetCount(ctx, usagedomain.CounterKey{UserID: "user-1", Kind: usagedomain.ResourceTextStory, PeriodKey: "2025-06"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), text)
}

func TestAdjustCountClampsAtZero(t *testing.T) {
	svc, _, _ := setupUsageService(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	key := storyKey("user-1", "2025-06")

	_, err := svc.IncrementCount(ctx, key, 2)
	require.NoError(t, err)

	got, err := svc.AdjustCount(ctx, usagedomain.AdjustRequest{Key: key, Delta: -5, Reason: "refund failed generation", Actor: "support"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)

	_, err = svc.AdjustCount(ctx, usagedomain.AdjustRequest{Key: key, Delta: -1})
	assert.ErrorIs(t, err, usagedomain.ErrInvalidReason)
}

func TestIncrementCountValidation(t *testing.T) {
	svc, _, _ := setupUsageService(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := svc.IncrementCount(ctx, storyKey("", "2025-06"), 1)
	assert.ErrorIs(t, err, usagedomain.ErrInvalidUserID)

	_, err = svc.IncrementCount(ctx, storyKey("user-1", "June"), 1)
	assert.ErrorIs(t, err, usagedomain.ErrInvalidPeriodKey)

	_, err = svc.IncrementCount(ctx, storyKey("user-1", "2025-06"), 0)
	assert.ErrorIs(t, err, usagedomain.ErrInvalidAmount)

	_, err = svc.IncrementCount(ctx, usagedomain.CounterKey{UserID: "user-1", Kind: "video", PeriodKey: "2025-06"}, 1)
	assert.ErrorIs(t, err, usagedomain.ErrInvalidResourceKind)
}

func TestStorageFailureSurfacesAsStorageError(t *testing.T) {
	svc, db, _ := setupUsageService(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = svc.GetCount(context.Background(), storyKey("user-1", "2025-06"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrStorage))

	_, err = svc.IncrementCount(context.Background(), storyKey("user-1", "2025-06"), 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrStorage))
}

func TestCurrentPeriodFollowsClock(t *testing.T) {
	svc, _, fake := setupUsageService(t, time.Date(2025, 6, 30, 23, 0, 0, 0, time.UTC))

	p := svc.CurrentPeriod()
	assert.Equal(t, "2025-06", p.Key)
	assert.Equal(t, 1, p.DaysUntilReset(fake.Now()))

	fake.Advance(2 * time.Hour)
	assert.Equal(t, "2025-07", svc.CurrentPeriod().Key)
}
