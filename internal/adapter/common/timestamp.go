package common

import (
	"strconv"
	"strings"
	"time"

	"github.com/lsj5031/remi/internal/jsonval"
)

// Epoch magnitude thresholds used to auto-scale a bare integer timestamp
// into the right unit. A real Unix timestamp in seconds is on the order
// of 1e9 today; anything at or above 1e12 is almost certainly
// milliseconds, 1e15 microseconds, 1e18 nanoseconds.
const (
	thresholdNanos  = 1_000_000_000_000_000_000
	thresholdMicros = 1_000_000_000_000_000
	thresholdMillis = 1_000_000_000_000
)

// ParseEpoch converts a bare integer timestamp of unknown unit into a
// UTC time.Time, auto-scaling by magnitude. Handles negative epochs
// (dates before 1970) by using floor division so the sub-second
// remainder is always non-negative, matching div_euclid/rem_euclid
// semantics used by the implementation this was ported from.
func ParseEpoch(n int64) time.Time {
	abs := n
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= thresholdNanos:
		sec, nsec := floorDivMod(n, 1_000_000_000)
		return time.Unix(sec, nsec).UTC()
	case abs >= thresholdMicros:
		sec, nsec := floorDivMod(n, 1_000_000)
		return time.Unix(sec, nsec*1_000).UTC()
	case abs >= thresholdMillis:
		sec, nsec := floorDivMod(n, 1_000)
		return time.Unix(sec, nsec*1_000_000).UTC()
	default:
		return time.Unix(n, 0).UTC()
	}
}

// floorDivMod returns (q, r) such that n == q*d + r and 0 <= r < d,
// i.e. Euclidean division, so negative epochs don't produce a negative
// sub-unit remainder.
func floorDivMod(n, d int64) (int64, int64) {
	q := n / d
	r := n % d
	if r < 0 {
		q--
		r += d
	}
	return q, r
}

// ParseTimestampValue interprets a dynamic value as either an RFC3339
// string or a numeric epoch (string or number) of unknown scale.
func ParseTimestampValue(v jsonval.Value) (time.Time, bool) {
	if s, ok := v.AsString(); ok {
		s = strings.TrimSpace(s)
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC(), true
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC(), true
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return ParseEpoch(n), true
		}
		return time.Time{}, false
	}
	if n, ok := v.AsInt64(); ok {
		return ParseEpoch(n), true
	}
	return time.Time{}, false
}

// ExtractTs implements the adapter-common default timestamp resolution:
// a top-level "timestamp" string, else a "message.timestamp" field
// treated as epoch milliseconds.
func ExtractTs(v jsonval.Value) (time.Time, bool) {
	if s, ok := v.Field("timestamp").AsString(); ok {
		if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s)); err == nil {
			return t.UTC(), true
		}
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(s)); err == nil {
			return t.UTC(), true
		}
	}
	if ms, ok := v.Get("message", "timestamp").AsInt64(); ok {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}
