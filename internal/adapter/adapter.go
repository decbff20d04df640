// Package adapter defines the capability every per-agent transcript
// reader implements, and the intermediate types (NativeRecord, Cursor)
// that flow between its stages.
package adapter

import (
	"context"
	"time"

	"github.com/lsj5031/remi/internal/jsonval"
	"github.com/lsj5031/remi/internal/model"
)

// ArchiveCapability describes how an adapter's archive lifecycle behaves.
type ArchiveCapability int

const (
	// Native means the adapter can delete its own source files on archive.
	Native ArchiveCapability = iota
	// CentralizedCopy means the adapter never touches source files; Remi's
	// own store and archive bundles are the only copies it ever deletes.
	CentralizedCopy
)

// Cursor is the opaque (timestamp, source id) pair incremental sync
// compares records against.
type Cursor struct {
	Ts       time.Time
	SourceID string
}

// NativeRecord is one candidate record produced by a scan, before
// normalization: a source id, the timestamp used for ordering and cursor
// comparison, and the dynamic payload normalize will read from.
type NativeRecord struct {
	SourceID  string
	UpdatedAt time.Time
	Payload   jsonval.Value
}

// Adapter is the capability set every per-agent transcript reader
// implements.
type Adapter interface {
	// Kind identifies which agent this adapter reads.
	Kind() model.AgentKind

	// DiscoverSourcePaths enumerates candidate files under well-known
	// locations relative to the user's home directory. Returns a stable
	// sorted list.
	DiscoverSourcePaths(ctx context.Context) ([]string, error)

	// ScanChangesSince streams candidate records strictly newer than
	// cursor, sorted by (UpdatedAt asc, SourceID asc). cursor may be nil.
	ScanChangesSince(ctx context.Context, paths []string, cursor *Cursor) ([]NativeRecord, error)

	// Normalize converts records into canonical entities.
	Normalize(records []NativeRecord) model.NormalizedBatch

	// CheckpointCursor derives the new cursor from the returned records,
	// or nil if records is empty (an empty scan must never advance the
	// checkpoint).
	CheckpointCursor(records []NativeRecord) *Cursor

	// ArchiveCapability reports this adapter's archive lifecycle mode.
	ArchiveCapability() ArchiveCapability
}
