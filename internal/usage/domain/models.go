// Package domain models per-user usage counters. A counter is addressed by
// (user, resource kind, subject, period); a missing row reads as zero.
package domain

import "time"

type ResourceKind string

const (
	ResourceIllustratedStory   ResourceKind = "illustrated_story"
	ResourceTextStory          ResourceKind = "text_story"
	ResourceAvatarRegeneration ResourceKind = "avatar_regeneration"
)

func (k ResourceKind) Valid() bool {
	switch k {
	case ResourceIllustratedStory, ResourceTextStory, ResourceAvatarRegeneration:
		return true
	default:
		return false
	}
}

// NoSubject is the subject of counters that are not scoped below the user.
const NoSubject = ""

// UsageCounter is one row of the ledger. Consumed only grows within a
// period, except through an administrative adjustment.
type UsageCounter struct {
	UserID       string       `gorm:"primaryKey;size:191"`
	ResourceKind ResourceKind `gorm:"primaryKey;size:191"`
	SubjectID    string       `gorm:"primaryKey;size:191;default:''"`
	PeriodKey    string       `gorm:"primaryKey;size:191"`
	Consumed     int64        `gorm:"not null;default:0"`
	CreatedAt    time.Time    `gorm:"not null"`
	UpdatedAt    time.Time    `gorm:"not null"`
}

func (UsageCounter) TableName() string { return "usage_counters" }

// CounterKey addresses a single counter.
type CounterKey struct {
	UserID    string
	Kind      ResourceKind
	SubjectID string
	PeriodKey string
}

// AdjustRequest is an administrative correction. Delta may be negative; the
// stored value never drops below zero.
type AdjustRequest struct {
	Key    CounterKey
	Delta  int64
	Reason string
	Actor  string
}
