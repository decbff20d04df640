// Package common holds the file-walking, cursor, timestamp, and content
// extraction utilities shared by every per-agent adapter.
package common

import (
	"strings"
	"time"

	"github.com/lsj5031/remi/internal/adapter"
)

// cursorSeparator is the unit separator (U+001F) delimiting the two
// halves of an encoded cursor.
const cursorSeparator = "\x1f"

// EncodeCursor renders a cursor as "{rfc3339}\x1f{source_id}".
func EncodeCursor(ts time.Time, sourceID string) string {
	return ts.UTC().Format(time.RFC3339Nano) + cursorSeparator + sourceID
}

// ParseCursor splits an encoded cursor back into its timestamp and
// source id. It rejects a bare timestamp with no separator, since that
// can't distinguish ties on the same instant.
func ParseCursor(encoded string) (*adapter.Cursor, bool) {
	idx := strings.Index(encoded, cursorSeparator)
	if idx < 0 {
		return nil, false
	}
	tsPart, idPart := encoded[:idx], encoded[idx+1:]
	ts, err := time.Parse(time.RFC3339Nano, tsPart)
	if err != nil {
		ts, err = time.Parse(time.RFC3339, tsPart)
		if err != nil {
			return nil, false
		}
	}
	return &adapter.Cursor{Ts: ts.UTC(), SourceID: idPart}, true
}

// ShouldSkip reports whether a record at (ts, sourceID) has already been
// seen as of cursor: strictly before it, or tied on timestamp with a
// source id that sorts at or before the cursor's.
func ShouldSkip(ts time.Time, sourceID string, cursor *adapter.Cursor) bool {
	if cursor == nil {
		return false
	}
	if ts.Before(cursor.Ts) {
		return true
	}
	if ts.Equal(cursor.Ts) && sourceID <= cursor.SourceID {
		return true
	}
	return false
}

// CheckpointCursorFromRecords finds the record with the greatest
// (UpdatedAt, SourceID) and encodes it as the new cursor. Returns nil for
// an empty slice, so an empty scan never advances the checkpoint.
func CheckpointCursorFromRecords(records []adapter.NativeRecord) *adapter.Cursor {
	if len(records) == 0 {
		return nil
	}
	best := records[0]
	for _, r := range records[1:] {
		if r.UpdatedAt.After(best.UpdatedAt) ||
			(r.UpdatedAt.Equal(best.UpdatedAt) && r.SourceID > best.SourceID) {
			best = r
		}
	}
	return &adapter.Cursor{Ts: best.UpdatedAt, SourceID: best.SourceID}
}
