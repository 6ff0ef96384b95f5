// Package domain describes entitlement decisions: whether a user may start a
// billable generation and which usage bucket it is charged to.
package domain

import (
	"time"

	usagedomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/usage/domain"
)

// DenialReason is a value, not an error. A denied decision always carries
// enough numbers to render an upgrade prompt.
type DenialReason string

const (
	ReasonNone                 DenialReason = ""
	ReasonLifetimeLimitReached DenialReason = "lifetime_limit_reached"
	ReasonMonthlyLimitReached  DenialReason = "monthly_limit_reached"
	ReasonFeatureNotAllowed    DenialReason = "feature_not_allowed"
	ReasonProfileLimitReached  DenialReason = "profile_limit_reached"
)

type StoryRequest struct {
	IncludeIllustrations bool `json:"include_illustrations"`
}

// Bucket selects the counter a story request is charged to.
func (r StoryRequest) Bucket() usagedomain.ResourceKind {
	if r.IncludeIllustrations {
		return usagedomain.ResourceIllustratedStory
	}
	return usagedomain.ResourceTextStory
}

// Decision is the outcome of a story eligibility check. Nil limits and nil
// remaining mean unlimited.
type Decision struct {
	Allowed bool                     `json:"allowed"`
	Reason  DenialReason             `json:"reason,omitempty"`
	Bucket  usagedomain.ResourceKind `json:"bucket"`
	TierID  string                   `json:"tier_id"`

	Used         int64  `json:"used"`
	MonthlyLimit *int64 `json:"monthly_limit"`
	Remaining    *int64 `json:"remaining"`

	LifetimeUsed  int64  `json:"lifetime_used,omitempty"`
	LifetimeLimit *int64 `json:"lifetime_limit,omitempty"`

	PeriodKey      string    `json:"period_key"`
	DaysUntilReset int       `json:"days_until_reset"`
	ResetsAt       time.Time `json:"resets_at"`
}

// ProfileKind is the kind of character profile a user wants to create.
type ProfileKind string

const (
	ProfileChild           ProfileKind = "child"
	ProfilePet             ProfileKind = "pet"
	ProfileMagicalCreature ProfileKind = "magical_creature"
)

func (k ProfileKind) Valid() bool {
	switch k {
	case ProfileChild, ProfilePet, ProfileMagicalCreature:
		return true
	default:
		return false
	}
}

type ProfileDecision struct {
	Allowed  bool         `json:"allowed"`
	Reason   DenialReason `json:"reason,omitempty"`
	Kind     ProfileKind  `json:"kind"`
	Existing int          `json:"existing"`
	Limit    int          `json:"limit"`
}

type BucketUsage struct {
	Used      int64  `json:"used"`
	Limit     *int64 `json:"limit"`
	Remaining *int64 `json:"remaining"`
}

// UsageSummary is a read-only view of a user's consumption this period.
type UsageSummary struct {
	UserID              string      `json:"user_id"`
	TierID              string      `json:"tier_id"`
	TierName            string      `json:"tier_name"`
	PeriodKey           string      `json:"period_key"`
	IllustratedStories  BucketUsage `json:"illustrated_stories"`
	TextStories         BucketUsage `json:"text_stories"`
	LifetimeIllustrated BucketUsage `json:"lifetime_illustrated"`
	DaysUntilReset      int         `json:"days_until_reset"`
	ResetsAt            time.Time   `json:"resets_at"`
}
