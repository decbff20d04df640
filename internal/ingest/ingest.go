// Package ingest drives the sync cycle that turns one adapter's native
// records into rows in the store: discover, scan since the last
// checkpoint, normalize, save, embed, checkpoint.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lsj5031/remi/internal/adapter"
	"github.com/lsj5031/remi/internal/adapter/common"
	"github.com/lsj5031/remi/internal/model"
	"github.com/lsj5031/remi/internal/store"
)

// Phase names the stage a Progress event reports.
type Phase string

const (
	PhaseDiscovering Phase = "discovering"
	PhaseScanning    Phase = "scanning"
	PhaseNormalizing Phase = "normalizing"
	PhaseSaving      Phase = "saving"
	PhaseDone        Phase = "done"
)

// Progress is one event emitted during Sync. Only the field relevant to
// Phase is populated; the rest are zero.
type Progress struct {
	Phase        Phase
	FileCount    int
	RecordCount  int
	MessageCount int
	TotalRecords int
}

// ProgressFunc receives Progress events as Sync advances through its
// stages. May be nil, in which case Sync runs silently.
type ProgressFunc func(Progress)

// Embedder computes a vector embedding for a message's text content. An
// error from Embed is swallowed by Sync so one bad message never fails
// an entire sync cycle.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]byte, error)
}

func emit(sink ProgressFunc, p Progress) {
	if sink != nil {
		sink(p)
	}
}

// Sync runs one full ingestion cycle for a single adapter and returns
// the number of native records scanned. embedder may be nil to skip the
// embedding stage entirely; sink may be nil to run silently.
func Sync(ctx context.Context, a adapter.Adapter, st *store.Store, embedder Embedder, sink ProgressFunc) (int, error) {
	emit(sink, Progress{Phase: PhaseDiscovering})
	paths, err := a.DiscoverSourcePaths(ctx)
	if err != nil {
		return 0, fmt.Errorf("ingest: discover %s: %w", a.Kind(), err)
	}

	emit(sink, Progress{Phase: PhaseScanning, FileCount: len(paths)})
	cursor, err := loadCursor(ctx, st, a.Kind())
	if err != nil {
		return 0, fmt.Errorf("ingest: load checkpoint %s: %w", a.Kind(), err)
	}

	records, err := a.ScanChangesSince(ctx, paths, cursor)
	if err != nil {
		return 0, fmt.Errorf("ingest: scan %s: %w", a.Kind(), err)
	}

	emit(sink, Progress{Phase: PhaseNormalizing, RecordCount: len(records)})
	batch := a.Normalize(records)

	emit(sink, Progress{Phase: PhaseSaving, MessageCount: len(batch.Messages)})
	if err := st.SaveBatch(ctx, batch); err != nil {
		return 0, fmt.Errorf("ingest: save batch %s: %w", a.Kind(), err)
	}

	if embedder != nil {
		embedMessages(ctx, st, embedder, batch.Messages)
	}

	if next := a.CheckpointCursor(records); next != nil {
		cp := model.Checkpoint{
			Agent:     a.Kind(),
			Cursor:    common.EncodeCursor(next.Ts, next.SourceID),
			UpdatedAt: time.Now().UTC(),
		}
		if err := st.UpsertCheckpoint(ctx, cp); err != nil {
			return 0, fmt.Errorf("ingest: upsert checkpoint %s: %w", a.Kind(), err)
		}
	}

	emit(sink, Progress{Phase: PhaseDone, TotalRecords: len(records)})
	return len(records), nil
}

// embedMessages computes and persists a vector for every message with
// non-blank content, ignoring individual embedding failures so one bad
// message never aborts the sync.
func embedMessages(ctx context.Context, st *store.Store, embedder Embedder, messages []model.Message) {
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		vec, err := embedder.Embed(ctx, m.Content)
		if err != nil {
			continue
		}
		_ = st.SaveEmbedding(ctx, m.ID, vec)
	}
}

// loadCursor fetches the persisted checkpoint for kind, if any, and
// decodes it back into an adapter.Cursor. A checkpoint whose cursor
// string fails to parse is treated the same as no checkpoint: the next
// scan starts from the beginning rather than erroring out.
func loadCursor(ctx context.Context, st *store.Store, kind model.AgentKind) (*adapter.Cursor, error) {
	cp, err := st.GetCheckpoint(ctx, kind)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, nil
	}
	cursor, ok := common.ParseCursor(cp.Cursor)
	if !ok {
		return nil, nil
	}
	return cursor, nil
}
