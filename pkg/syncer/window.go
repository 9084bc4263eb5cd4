package syncer

import (
	"math"
	"time"
)

const (
	// MaxWindowDays caps how far back a sync refetches.
	MaxWindowDays = 30
	// MinWindowDays is the shortest window ever requested.
	MinWindowDays = 1
	// FallbackLookback is used when there is no sync history and the ledger
	// is empty.
	FallbackLookback = MaxWindowDays * 24 * time.Hour
)

// Window returns how many days back to fetch. The window starts at the last
// sync, or else at the latest ledger date, or else FallbackLookback before
// now; a zero time means "absent". The result is clamped to
// [MinWindowDays, MaxWindowDays]. A start after now is a *ClockSkewError.
func Window(now, lastSync, latestTxn time.Time) (int, error) {
	start := now.Add(-FallbackLookback)
	switch {
	case !lastSync.IsZero():
		start = lastSync
	case !latestTxn.IsZero():
		// Ledger dates are calendar days; read them in now's zone.
		y, m, d := latestTxn.Date()
		start = time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	}

	delta := now.Sub(start)
	if delta < 0 {
		return 0, &ClockSkewError{Now: now, Start: start}
	}

	days := int(math.Ceil(delta.Hours() / 24))
	return min(max(days, MinWindowDays), MaxWindowDays), nil
}
