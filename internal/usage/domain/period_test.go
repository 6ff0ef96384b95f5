package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodAt(t *testing.T) {
	p := PeriodAt(time.Date(2025, 12, 15, 12, 0, 0, 0, time.UTC), time.UTC)
	assert.Equal(t, "2025-12", p.Key)
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), p.Start)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), p.End)
}

func TestPeriodKeyUsesCanonicalZone(t *testing.T) {
	// 23:30 UTC on the last day of June is already July in UTC+2.
	at := time.Date(2025, 6, 30, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2025-06", PeriodKey(at, time.UTC))
	assert.Equal(t, "2025-07", PeriodKey(at, time.FixedZone("UTC+2", 2*60*60)))
	assert.Equal(t, "2025-06", PeriodKey(at, nil))
}

func TestDaysUntilReset(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{name: "start of month", now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), want: 30},
		{name: "mid month", now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC), want: 16},
		{name: "last minute", now: time.Date(2025, 6, 30, 23, 59, 0, 0, time.UTC), want: 1},
		{name: "february leap", now: time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC), want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PeriodAt(tt.now, time.UTC)
			assert.Equal(t, tt.want, p.DaysUntilReset(tt.now))
		})
	}
}

func TestValidPeriodKey(t *testing.T) {
	assert.True(t, ValidPeriodKey("2025-06"))
	assert.True(t, ValidPeriodKey(LifetimePeriod))
	assert.False(t, ValidPeriodKey("2025-6"))
	assert.False(t, ValidPeriodKey("2025-13"))
	assert.False(t, ValidPeriodKey(""))
}
