// Package countstore tracks rolling counters for moderation activity,
// bucketed by hour, day, and all-time. The engine uses it to enforce
// per-community action quotas (eg, max bans per day) and to keep a
// distinct tally of offenders.
package countstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	PeriodTotal = "total"
	PeriodDay   = "day"
	PeriodHour  = "hour"
)

// CountStore is the shared interface for counter backends. Counters are
// keyed by a name (eg "action/ban") and a value (eg a community ID), and
// stamped with the caller's event clock so that bucket assignment does
// not depend on wall time.
type CountStore interface {
	GetCount(ctx context.Context, name, val, period string, now time.Time) (int64, error)
	Increment(ctx context.Context, name, val string, now time.Time) error
	GetCountDistinct(ctx context.Context, name, val, period string, now time.Time) (int64, error)
	IncrementDistinct(ctx context.Context, name, bucket, val string, now time.Time) error
}

func periodBucket(name, val, period string, now time.Time) string {
	switch period {
	case PeriodTotal:
		return fmt.Sprintf("%s/%s", name, val)
	case PeriodDay:
		t := now.UTC().Format(time.DateOnly)
		return fmt.Sprintf("%s/%s/%s", name, val, t)
	case PeriodHour:
		t := now.UTC().Format(time.RFC3339)[0:13]
		return fmt.Sprintf("%s/%s/%s", name, val, t)
	default:
		slog.Warn("unhandled counter period", "period", period)
		return fmt.Sprintf("%s/%s", name, val)
	}
}
