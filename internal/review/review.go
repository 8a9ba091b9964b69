// Package review tracks the daily review reminder: after the configured
// time of day the review is due until it is marked complete for that day.
package review

import (
	"context"
	"fmt"
	"time"

	"nexustodo/internal/store"
)

// DateLayout is the format of the stored completion date.
const DateLayout = "2006-01-02"

// ParseTime parses an HH:MM time of day.
func ParseTime(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid review time %q (use HH:MM)", s)
	}
	return t.Hour(), t.Minute(), nil
}

// Due reports whether the review is due at now: the time of day has been
// reached and lastDone is not today's date.
func Due(now time.Time, reviewTime, lastDone string) (bool, error) {
	hour, minute, err := ParseTime(reviewTime)
	if err != nil {
		return false, err
	}
	moment := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	return !now.Before(moment) && lastDone != now.Format(DateLayout), nil
}

// LastDone returns the date of the last completed review, "" if none.
func LastDone(ctx context.Context, kv store.KV) string {
	return store.GetString(ctx, kv, store.KeyLastReviewDone)
}

// Complete records now's date as the last completed review.
func Complete(ctx context.Context, kv store.KV, now time.Time) string {
	today := now.Format(DateLayout)
	store.Put(ctx, kv, store.KeyLastReviewDone, today)
	return today
}
