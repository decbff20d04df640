// Package droid reads Factory Droid's flat-JSONL session transcripts.
// It is the thinnest adapter in the repository: discovery plus a direct
// delegation to the shared flat-JSONL scan/normalize helpers.
package droid

import (
	"context"

	"github.com/lsj5031/remi/internal/adapter"
	"github.com/lsj5031/remi/internal/adapter/common"
	"github.com/lsj5031/remi/internal/model"
)

var discoveryPatterns = []string{
	".factory/sessions/**/*.jsonl",
	".local/share/factory-droid/sessions/**/*.jsonl",
}

// Adapter reads Droid's on-disk session transcripts.
type Adapter struct {
	Home string // overrides the user's home directory; empty means auto-detect
}

// New returns a Droid adapter rooted at the user's home directory.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) home() string {
	if a.Home != "" {
		return a.Home
	}
	return common.HomeDir()
}

func (a *Adapter) Kind() model.AgentKind { return model.AgentDroid }

func (a *Adapter) DiscoverSourcePaths(ctx context.Context) ([]string, error) {
	return common.Discover(a.home(), discoveryPatterns...)
}

func (a *Adapter) ScanChangesSince(ctx context.Context, paths []string, cursor *adapter.Cursor) ([]adapter.NativeRecord, error) {
	return common.LoadJSONL(ctx, paths, cursor)
}

func (a *Adapter) Normalize(records []adapter.NativeRecord) model.NormalizedBatch {
	return common.NormalizeJSONLRecords(model.AgentDroid, records)
}

func (a *Adapter) CheckpointCursor(records []adapter.NativeRecord) *adapter.Cursor {
	return common.CheckpointCursorFromRecords(records)
}

func (a *Adapter) ArchiveCapability() adapter.ArchiveCapability {
	return adapter.CentralizedCopy
}

var _ adapter.Adapter = (*Adapter)(nil)
