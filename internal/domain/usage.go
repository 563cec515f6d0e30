package domain

import "time"

// UsageRecord tracks a single anonymous generation. A record counts against
// the free-prompt limit only while it is active (see ActiveAt).
type UsageRecord struct {
	ID          int64
	SessionKey  string
	IPAddress   string
	Fingerprint string
	Prompt      string
	CreatedAt   time.Time
}

// ActiveAt reports whether the record still counts against the anonymous
// limit at the given instant. Every query path must apply this rule so that
// expiry holds even before the sweeper physically deletes the row.
func (r UsageRecord) ActiveAt(now time.Time, window time.Duration) bool {
	return r.CreatedAt.After(now.Add(-window))
}

// ActiveCutoff returns the oldest creation time that still counts as active.
func ActiveCutoff(now time.Time, window time.Duration) time.Time {
	return now.Add(-window)
}
