package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/apperr"
	billingdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/billingsync/domain"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/billingsync/domain/mocks"
	billingrepo "github.com/benjask5360/tuckandtaleMVP-sub002/internal/billingsync/repository"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/clock"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/config"
	obsmetrics "github.com/benjask5360/tuckandtaleMVP-sub002/internal/observability/metrics"
	profiledomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/profile/domain"
	profilerepo "github.com/benjask5360/tuckandtaleMVP-sub002/internal/profile/repository"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/testutil"
	tierdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/tier/domain"
	tierrepo "github.com/benjask5360/tuckandtaleMVP-sub002/internal/tier/repository"
	tierservice "github.com/benjask5360/tuckandtaleMVP-sub002/internal/tier/service"
	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var june10 = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc     billingdomain.Service
	db      *gorm.DB
	gateway *mocks.MockGateway
	clock   *clock.FakeClock
}

func setup(t *testing.T) fixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockGateway(ctrl)

	db := testutil.OpenDB(t)
	fake := clock.NewFakeClock(june10)
	log := zap.NewNop()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	billingConf, err := config.NewStaticBillingConfigHolder(config.BillingConfig{
		FreeTierID: "tier_free",
		Prices: []config.PriceMapping{
			{PriceID: "price_basic_monthly", TierID: "tier_basic", Interval: "month"},
			{PriceID: "price_plus_monthly", TierID: "tier_plus", Interval: "month"},
			{PriceID: "price_retired", TierID: "tier_retired", Interval: "month"},
		},
	})
	require.NoError(t, err)

	tiers := tierservice.NewService(tierservice.ServiceParam{
		DB:          db,
		Log:         log,
		Clock:       fake,
		Repo:        tierrepo.Provide(),
		ProfileRepo: profilerepo.Provide(),
	})

	svc := NewService(ServiceParam{
		DB:          db,
		Log:         log,
		Clock:       fake,
		GenID:       node,
		BillingConf: billingConf,
		Repo:        billingrepo.Provide(),
		ProfileRepo: profilerepo.Provide(),
		TierSvc:     tiers,
		Gateway:     gateway,
		ObsMetrics:  obsmetrics.NewNoop(),
	})

	for _, tier := range []tierdomain.Tier{
		{ID: "tier_free", Name: "Free", DisplayOrder: 0, IsActive: true, IllustratedLimitMonth: tierdomain.IntPtr(3), IllustratedLimitTotal: tierdomain.IntPtr(3)},
		{ID: "tier_basic", Name: "Basic", DisplayOrder: 1, IsActive: true, IllustratedLimitMonth: tierdomain.IntPtr(5)},
		{ID: "tier_plus", Name: "Plus", DisplayOrder: 2, IsActive: true, IllustratedLimitMonth: tierdomain.IntPtr(15)},
	} {
		tier.CreatedAt = june10
		tier.UpdatedAt = june10
		require.NoError(t, db.Create(&tier).Error)
	}

	return fixture{svc: svc, db: db, gateway: gateway, clock: fake}
}

func seedProfile(t *testing.T, db *gorm.DB, userID, tierID string, customerID *string) {
	t.Helper()
	require.NoError(t, db.Create(&profiledomain.UserProfile{
		UserID:             userID,
		TierID:             tierID,
		BillingCustomerID:  customerID,
		SubscriptionStatus: profiledomain.StatusInactive,
		CreatedAt:          june10,
		UpdatedAt:          june10,
	}).Error)
}

func loadProfile(t *testing.T, db *gorm.DB, userID string) profiledomain.UserProfile {
	t.Helper()
	var p profiledomain.UserProfile
	require.NoError(t, db.Where("user_id = ?", userID).First(&p).Error)
	return p
}

func strPtr(v string) *string { return &v }

func subEvent(id string, typ billingdomain.EventType, status, priceID string, at time.Time) billingdomain.Event {
	start := at.Add(-time.Hour)
	end := start.AddDate(0, 1, 0)
	return billingdomain.Event{
		ID:             id,
		Type:           typ,
		OccurredAt:     at,
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		Status:         status,
		PriceIDs:       []string{priceID},
		PeriodStart:    &start,
		PeriodEnd:      &end,
	}
}

func TestApplyBillingEventUpgradesTier(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	seedProfile(t, f.db, "user-1", "tier_free", strPtr("cus_1"))

	res, err := f.svc.ApplyBillingEvent(ctx, subEvent("evt_1", billingdomain.EventSubscriptionCreated, "active", "price_basic_monthly", june10))
	require.NoError(t, err)
	assert.Equal(t, billingdomain.OutcomeApplied, res.Outcome)
	assert.Equal(t, "user-1", res.UserID)
	assert.Equal(t, "tier_basic", res.TierID)

	p := loadProfile(t, f.db, "user-1")
	assert.Equal(t, "tier_basic", p.TierID)
	assert.Equal(t, profiledomain.StatusActive, p.SubscriptionStatus)
	require.NotNil(t, p.BillingSubscriptionID)
	assert.Equal(t, "sub_1", *p.BillingSubscriptionID)
	require.NotNil(t, p.PeriodEnd)
	require.NotNil(t, p.LastBillingEventAt)
	assert.True(t, p.LastBillingEventAt.Equal(june10))
}

func TestApplyBillingEventIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	seedProfile(t, f.db, "user-1", "tier_free", strPtr("cus_1"))

	evt := subEvent("evt_1", billingdomain.EventSubscriptionUpdated, "active", "price_plus_monthly", june10)
	_, err := f.svc.ApplyBillingEvent(ctx, evt)
	require.NoError(t, err)
	first := loadProfile(t, f.db, "user-1")

	f.clock.Advance(time.Hour)
	res, err := f.svc.ApplyBillingEvent(ctx, evt)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, billingdomain.OutcomeApplied, res.Outcome)

	second := loadProfile(t, f.db, "user-1")
	assert.Equal(t, first.TierID, second.TierID)
	assert.Equal(t, first.SubscriptionStatus, second.SubscriptionStatus)
	assert.True(t, first.BillingSyncedAt.Equal(*second.BillingSyncedAt))

	var journaled int64
	require.NoError(t, f.db.Model(&billingdomain.BillingEvent{}).Where("provider_event_id = ?", "evt_1").Count(&journaled).Error)
	assert.Equal(t, int64(1), journaled)
}

func TestApplyBillingEventSkipsOutOfOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	seedProfile(t, f.db, "user-1", "tier_free", strPtr("cus_1"))

	_, err := f.svc.ApplyBillingEvent(ctx, subEvent("evt_new", billingdomain.EventSubscriptionUpdated, "active", "price_plus_monthly", june10))
	require.NoError(t, err)

	res, err := f.svc.ApplyBillingEvent(ctx, subEvent("evt_old", billingdomain.EventSubscriptionUpdated, "active", "price_basic_monthly", june10.Add(-time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, billingdomain.OutcomeStale, res.Outcome)
	assert.Equal(t, "tier_plus", loadProfile(t, f.db, "user-1").TierID)
}

func TestApplyBillingEventDeletedDowngradesToFree(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	seedProfile(t, f.db, "user-1", "tier_free", strPtr("cus_1"))

	_, err := f.svc.ApplyBillingEvent(ctx, subEvent("evt_1", billingdomain.EventSubscriptionCreated, "active", "price_basic_monthly", june10))
	require.NoError(t, err)

	res, err := f.svc.ApplyBillingEvent(ctx, subEvent("evt_2", billingdomain.EventSubscriptionDeleted, "canceled", "price_basic_monthly", june10.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "tier_free", res.TierID)

	p := loadProfile(t, f.db, "user-1")
	assert.Equal(t, "tier_free", p.TierID)
	assert.Equal(t, profiledomain.StatusCanceled, p.SubscriptionStatus)
}

func TestApplyBillingEventPastDueFailsClosedToFree(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	seedProfile(t, f.db, "user-1", "tier_basic", strPtr("cus_1"))

	_, err := f.svc.ApplyBillingEvent(ctx, subEvent("evt_1", billingdomain.EventSubscriptionUpdated, "past_due", "price_basic_monthly", june10))
	require.NoError(t, err)

	p := loadProfile(t, f.db, "user-1")
	assert.Equal(t, "tier_free", p.TierID)
	assert.Equal(t, profiledomain.StatusInactive, p.SubscriptionStatus)
}

func TestApplyBillingEventIgnoresOtherSubscriptionCancellation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	seedProfile(t, f.db, "user-1", "tier_free", strPtr("cus_1"))

	_, err := f.svc.ApplyBillingEvent(ctx, subEvent("evt_1", billingdomain.EventSubscriptionCreated, "active", "price_plus_monthly", june10))
	require.NoError(t, err)

	old := subEvent("evt_2", billingdomain.EventSubscriptionDeleted, "canceled", "price_basic_monthly", june10.Add(time.Minute))
	old.SubscriptionID = "sub_old"
	res, err := f.svc.ApplyBillingEvent(ctx, old)
	require.NoError(t, err)
	assert.Equal(t, billingdomain.OutcomeIgnored, res.Outcome)
	assert.Equal(t, "tier_plus", loadProfile(t, f.db, "user-1").TierID)
}

func TestApplyBillingEventUnmappedPriceIsConfigurationError(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	seedProfile(t, f.db, "user-1", "tier_basic", strPtr("cus_1"))

	_, err := f.svc.ApplyBillingEvent(ctx, subEvent("evt_1", billingdomain.EventSubscriptionUpdated, "active", "price_unknown", june10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConfiguration))

	var cfgErr *apperr.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "price_unknown", cfgErr.PriceID)

	// Never silently defaulted and never journaled.
	assert.Equal(t, "tier_basic", loadProfile(t, f.db, "user-1").TierID)
	var journaled int64
	require.NoError(t, f.db.Model(&billingdomain.BillingEvent{}).Count(&journaled).Error)
	assert.Zero(t, journaled)
}

func TestApplyBillingEventPriceMappedToMissingTier(t *testing.T) {
	f := setup(t)
	seedProfile(t, f.db, "user-1", "tier_free", strPtr("cus_1"))

	_, err := f.svc.ApplyBillingEvent(context.Background(), subEvent("evt_1", billingdomain.EventSubscriptionUpdated, "active", "price_retired", june10))
	assert.True(t, errors.Is(err, apperr.ErrConfiguration))
}

func TestApplyBillingEventLinksCustomerThroughMetadata(t *testing.T) {
	f := setup(t)
	seedProfile(t, f.db, "user-1", "tier_free", nil)

	evt := subEvent("evt_1", billingdomain.EventSubscriptionCreated, "trialing", "price_basic_monthly", june10)
	evt.UserID = "user-1"
	_, err := f.svc.ApplyBillingEvent(context.Background(), evt)
	require.NoError(t, err)

	p := loadProfile(t, f.db, "user-1")
	require.NotNil(t, p.BillingCustomerID)
	assert.Equal(t, "cus_1", *p.BillingCustomerID)
	assert.Equal(t, "tier_basic", p.TierID)
	assert.Equal(t, profiledomain.StatusTrialing, p.SubscriptionStatus)
}

func TestApplyBillingEventUnknownCustomer(t *testing.T) {
	f := setup(t)

	_, err := f.svc.ApplyBillingEvent(context.Background(), subEvent("evt_1", billingdomain.EventSubscriptionCreated, "active", "price_basic_monthly", june10))
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestApplyBillingEventValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	bad := subEvent("", billingdomain.EventSubscriptionCreated, "active", "price_basic_monthly", june10)
	_, err := f.svc.ApplyBillingEvent(ctx, bad)
	assert.ErrorIs(t, err, billingdomain.ErrInvalidEvent)

	bad = subEvent("evt_1", billingdomain.EventCheckoutCompleted, "active", "price_basic_monthly", june10)
	_, err = f.svc.ApplyBillingEvent(ctx, bad)
	assert.ErrorIs(t, err, billingdomain.ErrInvalidEvent)

	bad = subEvent("evt_1", billingdomain.EventSubscriptionCreated, "active", "price_basic_monthly", time.Time{})
	_, err = f.svc.ApplyBillingEvent(ctx, bad)
	assert.ErrorIs(t, err, billingdomain.ErrInvalidEvent)
}

func TestReconcileOverridesStaleLocalTier(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	seedProfile(t, f.db, "user-1", "tier_basic", strPtr("cus_1"))

	start := june10.AddDate(0, 0, -9)
	end := start.AddDate(0, 1, 0)
	f.gateway.EXPECT().ListSubscriptions(gomock.Any(), "cus_1").Return([]billingdomain.Subscription{
		{ID: "sub_old", CustomerID: "cus_1", Status: "canceled", PriceIDs: []string{"price_basic_monthly"}, CreatedAt: june10.AddDate(0, -3, 0)},
		{ID: "sub_new", CustomerID: "cus_1", Status: "active", PriceIDs: []string{"price_plus_monthly"}, PeriodStart: &start, PeriodEnd: &end, CreatedAt: start},
	}, nil)

	tier, err := f.svc.ReconcileFromSource(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, tier)
	assert.Equal(t, "tier_plus", tier.ID)

	p := loadProfile(t, f.db, "user-1")
	assert.Equal(t, "tier_plus", p.TierID)
	assert.Equal(t, profiledomain.StatusActive, p.SubscriptionStatus)
	require.NotNil(t, p.BillingSubscriptionID)
	assert.Equal(t, "sub_new", *p.BillingSubscriptionID)
	require.NotNil(t, p.BillingSyncedAt)
}

func TestReconcileWithoutPayingSubscriptionFallsToFree(t *testing.T) {
	f := setup(t)
	seedProfile(t, f.db, "user-1", "tier_plus", strPtr("cus_1"))

	f.gateway.EXPECT().ListSubscriptions(gomock.Any(), "cus_1").Return([]billingdomain.Subscription{
		{ID: "sub_1", Status: "canceled", PriceIDs: []string{"price_plus_monthly"}, CreatedAt: june10.AddDate(0, -1, 0)},
	}, nil)

	tier, err := f.svc.ReconcileFromSource(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "tier_free", tier.ID)
	assert.Equal(t, profiledomain.StatusCanceled, loadProfile(t, f.db, "user-1").SubscriptionStatus)
}

func TestReconcileWithoutCustomerKeepsTier(t *testing.T) {
	f := setup(t)
	seedProfile(t, f.db, "user-1", "tier_free", nil)

	tier, err := f.svc.ReconcileFromSource(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "tier_free", tier.ID)
}

func TestReconcileGatewayFailureLeavesStateUntouched(t *testing.T) {
	f := setup(t)
	seedProfile(t, f.db, "user-1", "tier_basic", strPtr("cus_1"))

	f.gateway.EXPECT().ListSubscriptions(gomock.Any(), "cus_1").Return(nil, errors.New("stripe unavailable"))

	_, err := f.svc.ReconcileFromSource(context.Background(), "user-1")
	require.Error(t, err)
	assert.Equal(t, "tier_basic", loadProfile(t, f.db, "user-1").TierID)
}

func TestReconcileMakesOlderWebhooksStale(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	seedProfile(t, f.db, "user-1", "tier_basic", strPtr("cus_1"))

	f.gateway.EXPECT().ListSubscriptions(gomock.Any(), "cus_1").Return([]billingdomain.Subscription{
		{ID: "sub_1", Status: "active", PriceIDs: []string{"price_plus_monthly"}, CreatedAt: june10.AddDate(0, 0, -1)},
	}, nil)
	_, err := f.svc.ReconcileFromSource(ctx, "user-1")
	require.NoError(t, err)

	res, err := f.svc.ApplyBillingEvent(ctx, subEvent("evt_late", billingdomain.EventSubscriptionUpdated, "active", "price_basic_monthly", june10.Add(-time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, billingdomain.OutcomeStale, res.Outcome)
	assert.Equal(t, "tier_plus", loadProfile(t, f.db, "user-1").TierID)
}

func TestReconcileKeepsEventsFromTheSnapshotSecond(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	seedProfile(t, f.db, "user-1", "tier_basic", strPtr("cus_1"))
	f.clock.Set(june10.Add(500 * time.Millisecond))

	f.gateway.EXPECT().ListSubscriptions(gomock.Any(), "cus_1").DoAndReturn(
		func(context.Context, string) ([]billingdomain.Subscription, error) {
			f.clock.Advance(800 * time.Millisecond)
			return []billingdomain.Subscription{
				{ID: "sub_1", Status: "active", PriceIDs: []string{"price_plus_monthly"}, CreatedAt: june10.AddDate(0, 0, -1)},
			}, nil
		})
	_, err := f.svc.ReconcileFromSource(ctx, "user-1")
	require.NoError(t, err)

	p := loadProfile(t, f.db, "user-1")
	require.NotNil(t, p.LastBillingEventAt)
	assert.True(t, p.LastBillingEventAt.Equal(june10), "watermark %s", p.LastBillingEventAt)

	res, err := f.svc.ApplyBillingEvent(ctx, subEvent("evt_cancel", billingdomain.EventSubscriptionDeleted, "canceled", "price_plus_monthly", june10))
	require.NoError(t, err)
	assert.Equal(t, billingdomain.OutcomeApplied, res.Outcome)

	p = loadProfile(t, f.db, "user-1")
	assert.Equal(t, "tier_free", p.TierID)
	assert.Equal(t, profiledomain.StatusCanceled, p.SubscriptionStatus)
}

func TestReconcileErrors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.ReconcileFromSource(ctx, " ")
	assert.ErrorIs(t, err, billingdomain.ErrInvalidUserID)

	_, err = f.svc.ReconcileFromSource(ctx, "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestHandleWebhookCheckoutLinksAndReconciles(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	seedProfile(t, f.db, "user-1", "tier_free", nil)

	f.gateway.EXPECT().ParseWebhook([]byte("body"), "sig").Return(billingdomain.Event{
		ID:             "evt_checkout",
		Type:           billingdomain.EventCheckoutCompleted,
		OccurredAt:     june10,
		CustomerID:     "cus_9",
		SubscriptionID: "sub_9",
		UserID:         "user-1",
	}, nil)
	f.gateway.EXPECT().ListSubscriptions(gomock.Any(), "cus_9").Return([]billingdomain.Subscription{
		{ID: "sub_9", Status: "active", PriceIDs: []string{"price_basic_monthly"}, CreatedAt: june10},
	}, nil)

	res, err := f.svc.HandleWebhook(ctx, []byte("body"), "sig")
	require.NoError(t, err)
	assert.Equal(t, billingdomain.OutcomeLinked, res.Outcome)
	assert.Equal(t, "tier_basic", res.TierID)

	p := loadProfile(t, f.db, "user-1")
	require.NotNil(t, p.BillingCustomerID)
	assert.Equal(t, "cus_9", *p.BillingCustomerID)
	assert.Equal(t, "tier_basic", p.TierID)
}

func TestHandleWebhookCheckoutCustomerConflict(t *testing.T) {
	f := setup(t)
	seedProfile(t, f.db, "user-1", "tier_free", strPtr("cus_other"))

	f.gateway.EXPECT().ParseWebhook(gomock.Any(), gomock.Any()).Return(billingdomain.Event{
		ID:         "evt_checkout",
		Type:       billingdomain.EventCheckoutCompleted,
		OccurredAt: june10,
		CustomerID: "cus_9",
		UserID:     "user-1",
	}, nil)

	_, err := f.svc.HandleWebhook(context.Background(), []byte("body"), "sig")
	assert.ErrorIs(t, err, profiledomain.ErrCustomerConflict)
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	f := setup(t)

	f.gateway.EXPECT().ParseWebhook(gomock.Any(), "bad").Return(billingdomain.Event{}, billingdomain.ErrInvalidSignature)

	_, err := f.svc.HandleWebhook(context.Background(), []byte("body"), "bad")
	assert.ErrorIs(t, err, billingdomain.ErrInvalidSignature)
}

func TestHandleWebhookIgnoresUnrelatedEvents(t *testing.T) {
	f := setup(t)

	f.gateway.EXPECT().ParseWebhook(gomock.Any(), gomock.Any()).Return(billingdomain.Event{
		ID:   "evt_invoice",
		Type: billingdomain.EventType("invoice.paid"),
	}, nil)

	res, err := f.svc.HandleWebhook(context.Background(), []byte("body"), "sig")
	require.NoError(t, err)
	assert.Equal(t, billingdomain.OutcomeIgnored, res.Outcome)
}
