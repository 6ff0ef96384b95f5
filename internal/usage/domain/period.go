package domain

import (
	"math"
	"time"
)

// LifetimePeriod is the period key of counters that never reset.
const LifetimePeriod = "lifetime"

const periodLayout = "2006-01"

// Period is the calendar month that usage is currently charged to.
type Period struct {
	Key   string
	Start time.Time
	// End is the first instant of the next period, when counters roll over.
	End time.Time
}

// PeriodAt derives the period containing t in loc. Rollover is implicit:
// nothing is reset, the key simply changes.
func PeriodAt(t time.Time, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return Period{
		Key:   start.Format(periodLayout),
		Start: start,
		End:   start.AddDate(0, 1, 0),
	}
}

// PeriodKey is the YYYY-MM key for t in loc.
func PeriodKey(t time.Time, loc *time.Location) string {
	return PeriodAt(t, loc).Key
}

// DaysUntilReset rounds the time left in the period up to whole days, so the
// last day of a month reports 1, never 0.
func (p Period) DaysUntilReset(now time.Time) int {
	remaining := p.End.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}

// ValidPeriodKey accepts YYYY-MM keys and the lifetime sentinel.
func ValidPeriodKey(key string) bool {
	if key == LifetimePeriod {
		return true
	}
	if len(key) != len(periodLayout) {
		return false
	}
	_, err := time.Parse(periodLayout, key)
	return err == nil
}
