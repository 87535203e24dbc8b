package quota

import (
	"time"

	"codetutor/internal/types"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// Granularity is the length of a quota accounting period.
type Granularity string

const (
	Daily   Granularity = "day"
	Monthly Granularity = "month"
)

// Period is one closed accounting window. Key is the calendar label
// ("2024-06-01" or "2024-06") and End is the exclusive UTC boundary at which
// the next period starts.
type Period struct {
	Granularity Granularity
	Key         string
	Start       time.Time
	End         time.Time
}

// GranularityFor returns the accounting period for a counted feature. API
// calls are counted per month, everything else per day.
func GranularityFor(f types.Feature) Granularity {
	if f == types.FeatureAPI {
		return Monthly
	}
	return Daily
}

// CurrentPeriod returns the period containing now. Periods are always
// computed in UTC so all server instances agree on boundaries.
func CurrentPeriod(g Granularity, now time.Time) Period {
	now = now.UTC()
	switch g {
	case Monthly:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Period{
			Granularity: Monthly,
			Key:         start.Format(monthLayout),
			Start:       start,
			End:         start.AddDate(0, 1, 0),
		}
	default:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return Period{
			Granularity: Daily,
			Key:         start.Format(dayLayout),
			Start:       start,
			End:         start.AddDate(0, 0, 1),
		}
	}
}

// RetryAfter is the time remaining until the period boundary.
func (p Period) RetryAfter(now time.Time) time.Duration {
	d := p.End.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Key identifies one usage counter. Feature is part of the key so daily
// counters of different features never share a row.
type Key struct {
	UserID  string
	Feature types.Feature
	Period  string
}

// NewKey builds the counter key for userID and feature in the period
// containing now.
func NewKey(userID string, f types.Feature, now time.Time) (Key, Period) {
	p := CurrentPeriod(GranularityFor(f), now)
	return Key{UserID: userID, Feature: f, Period: p.Key}, p
}

// String renders the key in the flat form used by key/value stores.
func (k Key) String() string {
	return "usage:" + string(k.Feature) + ":" + k.UserID + ":" + k.Period
}
