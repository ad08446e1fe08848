package usage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reading-leveler/internal/storage"
)

// Retention controls how many past periods survive a prune. The current
// day and month are never removed.
type Retention struct {
	Days   int
	Months int
}

// Prune deletes stale day and month counters from every namespace of store.
// Keys that do not end in a usage period are left alone.
func Prune(ctx context.Context, store storage.Store, now time.Time, keep Retention) (int, error) {
	keys, err := store.Keys(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("list keys: %w", err)
	}

	u := now.UTC()
	today := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	dayCutoff := today.AddDate(0, 0, -max(keep.Days, 0))
	monthCutoff := time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -max(keep.Months, 0), 0)

	removed := 0
	for _, key := range keys {
		idx := strings.LastIndex(key, keyPrefix)
		if idx < 0 {
			continue
		}
		period := key[idx+len(keyPrefix):]

		stale := false
		if d, err := time.Parse(dayLayout, period); err == nil {
			stale = d.Before(dayCutoff)
		} else if m, err := time.Parse(monthLayout, period); err == nil {
			stale = m.Before(monthCutoff)
		}
		if !stale {
			continue
		}
		if err := store.Delete(ctx, key); err != nil {
			return removed, fmt.Errorf("delete %s: %w", key, err)
		}
		removed++
	}
	return removed, nil
}
