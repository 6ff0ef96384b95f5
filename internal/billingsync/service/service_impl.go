package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/apperr"
	billingdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/billingsync/domain"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/clock"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/config"
	obsmetrics "github.com/benjask5360/tuckandtaleMVP-sub002/internal/observability/metrics"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/observability/tracing"
	profiledomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/profile/domain"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/ratelimit"
	tierdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/tier/domain"
	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	GenID       *snowflake.Node
	BillingConf *config.BillingConfigHolder
	Repo        billingdomain.Repository
	ProfileRepo profiledomain.Repository
	TierSvc     tierdomain.Service
	Gateway     billingdomain.Gateway
	Guard       *ratelimit.ReconcileGuard `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics       `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	genID       *snowflake.Node
	billingConf *config.BillingConfigHolder
	repo        billingdomain.Repository
	profileRepo profiledomain.Repository
	tierSvc     tierdomain.Service
	gateway     billingdomain.Gateway
	guard       *ratelimit.ReconcileGuard
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p ServiceParam) billingdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("billingsync.service"),
		clock:       p.Clock,
		genID:       p.GenID,
		billingConf: p.BillingConf,
		repo:        p.Repo,
		profileRepo: p.ProfileRepo,
		tierSvc:     p.TierSvc,
		gateway:     p.Gateway,
		guard:       p.Guard,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (billingdomain.Result, error) {
	evt, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		s.obsMetrics.RecordBillingEvent(ctx, "unknown", "rejected")
		s.log.Warn("rejected billing webhook", zap.Error(err))
		return billingdomain.Result{}, err
	}

	switch {
	case evt.Type.SubscriptionEvent():
		return s.ApplyBillingEvent(ctx, evt)
	case evt.Type == billingdomain.EventCheckoutCompleted:
		return s.handleCheckout(ctx, evt)
	default:
		s.log.Debug("ignoring billing event", zap.String("event_id", evt.ID), zap.String("event_type", string(evt.Type)))
		s.obsMetrics.RecordBillingEvent(ctx, string(evt.Type), string(billingdomain.OutcomeIgnored))
		return billingdomain.Result{EventID: evt.ID, Outcome: billingdomain.OutcomeIgnored}, nil
	}
}

// ApplyBillingEvent writes the event's subscription snapshot inside one
// transaction together with its journal row. Events older than the last one
// applied to the profile are skipped. Nothing is journaled on failure, so the
// provider's redelivery retries it.
func (s *Service) ApplyBillingEvent(ctx context.Context, evt billingdomain.Event) (billingdomain.Result, error) {
	ctx, span := tracing.Start(ctx, "billingsync.ApplyBillingEvent",
		attribute.String("billing.event_type", string(evt.Type)),
	)
	defer span.End()

	if err := validateEvent(evt); err != nil {
		return billingdomain.Result{}, err
	}
	if dup, ok, err := s.journaled(ctx, evt.ID); err != nil || ok {
		return dup, err
	}

	// Resolved before the transaction so catalog reads never wait on it.
	status := effectiveStatus(evt)
	tierID, err := s.tierFor(ctx, status, evt.PriceIDs)
	if err != nil {
		s.obsMetrics.RecordBillingEvent(ctx, string(evt.Type), "failed")
		return billingdomain.Result{}, err
	}

	result := billingdomain.Result{EventID: evt.ID}
	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, err := s.resolveProfile(ctx, tx, evt.CustomerID, evt.UserID)
		if err != nil {
			return err
		}
		result.UserID = profile.UserID
		result.TierID = profile.TierID

		state, outcome := s.nextState(*profile, evt, status, tierID, now)
		result.Outcome = outcome
		if outcome == billingdomain.OutcomeApplied {
			if err := s.profileRepo.UpdateSubscriptionState(ctx, tx, profile.UserID, state); err != nil {
				return apperr.Storage("update_subscription_state", err)
			}
			result.TierID = state.TierID
		}
		return s.journal(ctx, tx, evt, profile.UserID, outcome, now)
	})
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "apply billing event failed")
		s.obsMetrics.RecordBillingEvent(ctx, string(evt.Type), "failed")
		s.log.Error("failed to apply billing event",
			zap.String("event_id", evt.ID),
			zap.String("event_type", string(evt.Type)),
			zap.String("customer_id", evt.CustomerID),
			zap.Error(err),
		)
		return billingdomain.Result{}, err
	}

	s.obsMetrics.RecordBillingEvent(ctx, string(evt.Type), string(result.Outcome))
	s.log.Info("billing event processed",
		zap.String("event_id", evt.ID),
		zap.String("event_type", string(evt.Type)),
		zap.String("user_id", result.UserID),
		zap.String("tier_id", result.TierID),
		zap.String("outcome", string(result.Outcome)),
	)
	return result, nil
}

func validateEvent(evt billingdomain.Event) error {
	switch {
	case strings.TrimSpace(evt.ID) == "":
		return fmt.Errorf("%w: missing event id", billingdomain.ErrInvalidEvent)
	case !evt.Type.SubscriptionEvent():
		return fmt.Errorf("%w: unsupported type %q", billingdomain.ErrInvalidEvent, evt.Type)
	case strings.TrimSpace(evt.SubscriptionID) == "":
		return fmt.Errorf("%w: missing subscription id", billingdomain.ErrInvalidEvent)
	case strings.TrimSpace(evt.CustomerID) == "" && strings.TrimSpace(evt.UserID) == "":
		return fmt.Errorf("%w: event names neither customer nor user", billingdomain.ErrInvalidEvent)
	case evt.OccurredAt.IsZero():
		return fmt.Errorf("%w: missing event time", billingdomain.ErrInvalidEvent)
	}
	return nil
}

func effectiveStatus(evt billingdomain.Event) profiledomain.SubscriptionStatus {
	if evt.Type == billingdomain.EventSubscriptionDeleted {
		return profiledomain.StatusCanceled
	}
	return billingdomain.MapStatus(evt.Status)
}

// nextState decides what a subscription snapshot does to profile. A snapshot
// for a subscription other than the current one may replace it only when it
// is paying or the current one is not.
func (s *Service) nextState(profile profiledomain.UserProfile, evt billingdomain.Event, status profiledomain.SubscriptionStatus, tierID string, now time.Time) (profiledomain.SubscriptionState, billingdomain.Outcome) {
	if profile.LastBillingEventAt != nil && evt.OccurredAt.Before(*profile.LastBillingEventAt) {
		s.log.Info("skipping out-of-order billing event",
			zap.String("event_id", evt.ID),
			zap.String("user_id", profile.UserID),
			zap.Time("occurred_at", evt.OccurredAt),
			zap.Time("last_billing_event_at", *profile.LastBillingEventAt),
		)
		return profiledomain.SubscriptionState{}, billingdomain.OutcomeStale
	}

	current := profile.BillingSubscriptionID
	isCurrent := current == nil || *current == evt.SubscriptionID
	if !isCurrent && !status.Paid() && profile.SubscriptionStatus.Paid() {
		s.log.Info("ignoring billing event for non-current subscription",
			zap.String("event_id", evt.ID),
			zap.String("user_id", profile.UserID),
			zap.String("subscription_id", evt.SubscriptionID),
			zap.String("current_subscription_id", *current),
		)
		return profiledomain.SubscriptionState{}, billingdomain.OutcomeIgnored
	}

	occurredAt := evt.OccurredAt
	subID := evt.SubscriptionID
	return profiledomain.SubscriptionState{
		TierID:                tierID,
		BillingCustomerID:     optionalString(evt.CustomerID),
		BillingSubscriptionID: &subID,
		Status:                status,
		PeriodStart:           evt.PeriodStart,
		PeriodEnd:             evt.PeriodEnd,
		LastBillingEventAt:    &occurredAt,
		SyncedAt:              now,
	}, billingdomain.OutcomeApplied
}

// tierFor maps a subscription to a tier. Only paying statuses confer a paid
// tier. A paying subscription whose prices map to no known tier is a
// configuration error and never falls back to free.
func (s *Service) tierFor(ctx context.Context, status profiledomain.SubscriptionStatus, priceIDs []string) (string, error) {
	conf := s.billingConf.Get()
	if !status.Paid() {
		return conf.FreeTierID, nil
	}

	for _, priceID := range priceIDs {
		tierID, ok := conf.TierForPrice(priceID)
		if !ok {
			continue
		}
		if _, err := s.tierSvc.GetTierByID(ctx, tierID); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return "", s.configurationError(ctx, &apperr.ConfigurationError{
					PriceID: priceID,
					Msg:     fmt.Sprintf("price maps to unknown tier %q", tierID),
				})
			}
			return "", err
		}
		return tierID, nil
	}

	first := ""
	if len(priceIDs) > 0 {
		first = priceIDs[0]
	}
	return "", s.configurationError(ctx, &apperr.ConfigurationError{
		PriceID: first,
		Msg:     "no tier mapped to subscription price",
	})
}

func (s *Service) configurationError(ctx context.Context, err *apperr.ConfigurationError) error {
	s.obsMetrics.RecordConfigurationError(ctx, "price_mapping")
	s.log.Error("billing price mapping misconfigured",
		zap.String("price_id", err.PriceID),
		zap.String("reason", err.Msg),
	)
	return err
}

// resolveProfile finds the profile owning a billing customer, linking the
// customer through userID on first sight.
func (s *Service) resolveProfile(ctx context.Context, tx *gorm.DB, customerID, userID string) (*profiledomain.UserProfile, error) {
	customerID = strings.TrimSpace(customerID)
	userID = strings.TrimSpace(userID)

	if customerID != "" {
		owner, err := s.profileRepo.FindByBillingCustomerID(ctx, tx, customerID)
		if err != nil {
			return nil, apperr.Storage("find_profile_by_customer", err)
		}
		if owner != nil {
			if userID != "" && owner.UserID != userID {
				s.log.Warn("billing customer metadata names a different user",
					zap.String("customer_id", customerID),
					zap.String("user_id", owner.UserID),
					zap.String("metadata_user_id", userID),
				)
			}
			return s.lockProfile(ctx, tx, owner.UserID)
		}
	}
	if userID == "" {
		return nil, apperr.NotFound("billing_customer", customerID)
	}

	profile, err := s.lockProfile(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if customerID == "" {
		return profile, nil
	}
	if profile.BillingCustomerID != nil && *profile.BillingCustomerID != customerID {
		return nil, profiledomain.ErrCustomerConflict
	}
	if profile.BillingCustomerID == nil {
		if err := s.profileRepo.LinkBillingCustomer(ctx, tx, userID, customerID); err != nil {
			return nil, apperr.Storage("link_billing_customer", err)
		}
		profile.BillingCustomerID = &customerID
	}
	return profile, nil
}

func (s *Service) lockProfile(ctx context.Context, tx *gorm.DB, userID string) (*profiledomain.UserProfile, error) {
	profile, err := s.profileRepo.FindByUserIDForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, apperr.Storage("find_profile", err)
	}
	if profile == nil {
		return nil, apperr.NotFound("user_profile", userID)
	}
	return profile, nil
}

// handleCheckout links the checkout's customer to the user named by the
// session, then pulls the resulting subscription from the provider.
func (s *Service) handleCheckout(ctx context.Context, evt billingdomain.Event) (billingdomain.Result, error) {
	if dup, ok, err := s.journaled(ctx, evt.ID); err != nil || ok {
		return dup, err
	}
	if evt.CustomerID == "" || evt.UserID == "" {
		s.log.Warn("checkout session without customer or user reference",
			zap.String("event_id", evt.ID),
			zap.String("customer_id", evt.CustomerID),
			zap.String("user_id", evt.UserID),
		)
		s.obsMetrics.RecordBillingEvent(ctx, string(evt.Type), string(billingdomain.OutcomeIgnored))
		return billingdomain.Result{EventID: evt.ID, Outcome: billingdomain.OutcomeIgnored}, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.resolveProfile(ctx, tx, evt.CustomerID, evt.UserID)
		return err
	})
	if err == nil {
		_, err = s.reconcile(ctx, evt.UserID)
	}
	if err != nil {
		s.obsMetrics.RecordBillingEvent(ctx, string(evt.Type), "failed")
		s.log.Error("failed to process checkout", zap.String("event_id", evt.ID), zap.String("user_id", evt.UserID), zap.Error(err))
		return billingdomain.Result{}, err
	}

	profile, err := s.profileRepo.FindByUserID(ctx, s.db.WithContext(ctx), evt.UserID)
	if err != nil {
		return billingdomain.Result{}, apperr.Storage("find_profile", err)
	}
	if err := s.journal(ctx, s.db, evt, evt.UserID, billingdomain.OutcomeLinked, s.clock.Now()); err != nil {
		return billingdomain.Result{}, err
	}

	s.obsMetrics.RecordBillingEvent(ctx, string(evt.Type), string(billingdomain.OutcomeLinked))
	result := billingdomain.Result{EventID: evt.ID, Outcome: billingdomain.OutcomeLinked, UserID: evt.UserID}
	if profile != nil {
		result.TierID = profile.TierID
	}
	return result, nil
}

// ReconcileFromSource is the user-triggered repair path. It is throttled per
// user when a guard is configured.
func (s *Service) ReconcileFromSource(ctx context.Context, userID string) (*tierdomain.Tier, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, billingdomain.ErrInvalidUserID
	}

	release, err := s.guard.Acquire(ctx, userID)
	switch {
	case errors.Is(err, ratelimit.ErrThrottled):
		s.obsMetrics.RecordReconciliation(ctx, "throttled")
		return nil, billingdomain.ErrReconcileThrottled
	case errors.Is(err, ratelimit.ErrLocked):
		s.obsMetrics.RecordReconciliation(ctx, "in_progress")
		return nil, billingdomain.ErrReconcileInProgress
	case err != nil:
		// A guard outage must not block a user from repairing their tier.
		s.log.Warn("reconcile guard unavailable", zap.String("user_id", userID), zap.Error(err))
	}
	defer release()

	return s.reconcile(ctx, userID)
}

func (s *Service) reconcile(ctx context.Context, userID string) (*tierdomain.Tier, error) {
	ctx, span := tracing.Start(ctx, "billingsync.Reconcile")
	defer span.End()

	profile, err := s.profileRepo.FindByUserID(ctx, s.db.WithContext(ctx), userID)
	if err != nil {
		return nil, apperr.Storage("find_profile", err)
	}
	if profile == nil {
		return nil, apperr.NotFound("user_profile", userID)
	}
	if profile.BillingCustomerID == nil {
		s.obsMetrics.RecordReconciliation(ctx, "no_customer")
		s.log.Info("reconcile skipped, user has no billing customer", zap.String("user_id", userID))
		return s.tierSvc.GetTierByID(ctx, profile.TierID)
	}
	customerID := *profile.BillingCustomerID

	// Provider event times have whole-second resolution. Events from the
	// second the snapshot was requested onward stay applicable.
	observed := s.clock.Now().Truncate(time.Second)
	subs, err := s.gateway.ListSubscriptions(ctx, customerID)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "list subscriptions failed")
		s.obsMetrics.RecordReconciliation(ctx, "gateway_error")
		s.log.Error("reconcile failed to reach billing provider",
			zap.String("user_id", userID),
			zap.String("customer_id", customerID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	state, err := s.stateFromSubscriptions(ctx, subs, observed, s.clock.Now())
	if err != nil {
		s.obsMetrics.RecordReconciliation(ctx, "failed")
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.lockProfile(ctx, tx, userID)
		if err != nil {
			return err
		}
		if locked.LastBillingEventAt != nil && locked.LastBillingEventAt.After(*state.LastBillingEventAt) {
			state.LastBillingEventAt = locked.LastBillingEventAt
		}
		if err := s.profileRepo.UpdateSubscriptionState(ctx, tx, userID, state); err != nil {
			return apperr.Storage("update_subscription_state", err)
		}
		return nil
	})
	if err != nil {
		s.obsMetrics.RecordReconciliation(ctx, "failed")
		return nil, err
	}

	outcome := "unchanged"
	if profile.TierID != state.TierID || profile.SubscriptionStatus != state.Status {
		outcome = "changed"
		s.log.Info("reconcile corrected subscription state",
			zap.String("user_id", userID),
			zap.String("from_tier_id", profile.TierID),
			zap.String("to_tier_id", state.TierID),
			zap.String("from_status", string(profile.SubscriptionStatus)),
			zap.String("to_status", string(state.Status)),
		)
	}
	s.obsMetrics.RecordReconciliation(ctx, outcome)

	return s.tierSvc.GetTierByID(ctx, state.TierID)
}

// stateFromSubscriptions picks the most recently created paying subscription.
// Without one the user is on the free tier and the newest subscription, if
// any, supplies status and period.
func (s *Service) stateFromSubscriptions(ctx context.Context, subs []billingdomain.Subscription, observed, now time.Time) (profiledomain.SubscriptionState, error) {
	sorted := append([]billingdomain.Subscription(nil), subs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return newer(sorted[i], sorted[j])
	})

	chosen := -1
	for i := range sorted {
		if billingdomain.MapStatus(sorted[i].Status).Paid() {
			chosen = i
			break
		}
	}
	if chosen < 0 && len(sorted) > 0 {
		chosen = 0
	}

	state := profiledomain.SubscriptionState{
		TierID:             s.billingConf.Get().FreeTierID,
		Status:             profiledomain.StatusInactive,
		LastBillingEventAt: &observed,
		SyncedAt:           now,
	}
	if chosen < 0 {
		return state, nil
	}

	sub := sorted[chosen]
	status := billingdomain.MapStatus(sub.Status)
	tierID, err := s.tierFor(ctx, status, sub.PriceIDs)
	if err != nil {
		return profiledomain.SubscriptionState{}, err
	}
	subID := sub.ID
	state.TierID = tierID
	state.Status = status
	state.BillingSubscriptionID = &subID
	state.PeriodStart = sub.PeriodStart
	state.PeriodEnd = sub.PeriodEnd
	return state, nil
}

func newer(a, b billingdomain.Subscription) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	if a.PeriodStart != nil && b.PeriodStart != nil {
		return a.PeriodStart.After(*b.PeriodStart)
	}
	return a.PeriodStart != nil
}

// journaled reports a previously processed event as a duplicate.
func (s *Service) journaled(ctx context.Context, eventID string) (billingdomain.Result, bool, error) {
	row, err := s.repo.FindByProviderEventID(ctx, s.db, eventID)
	if err != nil {
		return billingdomain.Result{}, false, apperr.Storage("find_billing_event", err)
	}
	if row == nil {
		return billingdomain.Result{}, false, nil
	}
	s.log.Debug("duplicate billing event", zap.String("event_id", eventID))
	return billingdomain.Result{
		EventID:   eventID,
		Outcome:   billingdomain.Outcome(row.Outcome),
		UserID:    row.UserID,
		Duplicate: true,
	}, true, nil
}

func (s *Service) journal(ctx context.Context, tx *gorm.DB, evt billingdomain.Event, userID string, outcome billingdomain.Outcome, now time.Time) error {
	var payload datatypes.JSON
	if len(evt.Payload) > 0 {
		payload = datatypes.JSON(evt.Payload)
	}
	row := &billingdomain.BillingEvent{
		ID:              s.genID.Generate(),
		ProviderEventID: evt.ID,
		Type:            string(evt.Type),
		CustomerID:      evt.CustomerID,
		UserID:          userID,
		Outcome:         string(outcome),
		Payload:         payload,
		OccurredAt:      evt.OccurredAt,
		ProcessedAt:     now,
	}
	if err := s.repo.Insert(ctx, tx, row); err != nil {
		return apperr.Storage("insert_billing_event", err)
	}
	return nil
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
