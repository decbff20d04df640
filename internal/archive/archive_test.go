package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsj5031/remi/internal/model"
	"github.com/lsj5031/remi/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "remi.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedSession(t *testing.T, s *store.Store, id string, updatedAt time.Time) {
	t.Helper()
	batch := model.NormalizedBatch{
		Sessions: []model.Session{{
			ID: id, Agent: model.AgentPi, SourceRef: "fake", Title: "old session",
			CreatedAt: updatedAt, UpdatedAt: updatedAt,
		}},
		Messages: []model.Message{{
			ID: id + "-m1", SessionID: id, Role: model.RoleUser, Content: "hello", Ts: updatedAt,
		}},
	}
	require.NoError(t, s.SaveBatch(context.Background(), batch))
}

func TestPlanRunRestoreRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-90 * 24 * time.Hour)
	seedSession(t, s, "sess-old", old)

	archiveDir := t.TempDir()
	eng := New(s, archiveDir)

	runID, err := eng.Plan(ctx, 30*24*time.Hour, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	dryMsg, err := eng.Run(ctx, runID, false, false)
	require.NoError(t, err)
	assert.NotEmpty(t, dryMsg)

	execMsg, err := eng.Run(ctx, runID, true, true)
	require.NoError(t, err)
	assert.NotEmpty(t, execMsg)

	_, err = s.GetSession(ctx, "sess-old")
	assert.Error(t, err, "expected session to be deleted after execute with delete_source")

	bundlePath := filepath.Join(archiveDir, runID, "sessions.json")
	_, err = os.Stat(bundlePath)
	assert.NoError(t, err, "expected bundle file to exist")

	manifestPath := filepath.Join(archiveDir, runID, "manifest.json")
	_, err = os.Stat(manifestPath)
	assert.NoError(t, err, "expected manifest file to exist")

	restoreMsg, err := eng.Restore(ctx, bundlePath)
	require.NoError(t, err)
	assert.NotEmpty(t, restoreMsg)

	restored, err := s.GetSession(ctx, "sess-old")
	require.NoError(t, err, "expected session to reappear after restore")
	assert.Equal(t, "sess-old", restored.ID)
}

func TestPlanSkipsSessionAlreadyInUnexecutedRun(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-90 * 24 * time.Hour)
	seedSession(t, s, "sess-old", old)

	eng := New(s, t.TempDir())

	firstRun, err := eng.Plan(ctx, 30*24*time.Hour, 0)
	require.NoError(t, err)
	items, err := s.GetArchiveItems(ctx, firstRun)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	secondRun, err := eng.Plan(ctx, 30*24*time.Hour, 0)
	require.NoError(t, err)
	items, err = s.GetArchiveItems(ctx, secondRun)
	require.NoError(t, err)
	assert.Empty(t, items, "expected second plan to skip the already-planned session")
}

func TestPlanKeepsLatestSessionsUnarchived(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	veryOld := time.Now().UTC().Add(-90 * 24 * time.Hour)
	old := time.Now().UTC().Add(-60 * 24 * time.Hour)
	seedSession(t, s, "sess-a", veryOld)
	seedSession(t, s, "sess-b", old)

	eng := New(s, t.TempDir())

	runID, err := eng.Plan(ctx, 30*24*time.Hour, 1)
	require.NoError(t, err)
	items, err := s.GetArchiveItems(ctx, runID)
	require.NoError(t, err)
	require.Len(t, items, 1, "expected keep_latest=1 to leave exactly one session planned")
	assert.Equal(t, "sess-a", items[0].SessionID, "expected the older session to be planned")
}

func TestRunDryRunDoesNotWriteOrDelete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-90 * 24 * time.Hour)
	seedSession(t, s, "sess-old", old)

	archiveDir := t.TempDir()
	eng := New(s, archiveDir)

	runID, err := eng.Plan(ctx, 30*24*time.Hour, 0)
	require.NoError(t, err)
	_, err = eng.Run(ctx, runID, false, false)
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(archiveDir, runID, "sessions.json"))
	assert.True(t, os.IsNotExist(statErr), "expected dry-run to not write a bundle")

	_, err = s.GetSession(ctx, "sess-old")
	assert.NoError(t, err, "expected session to survive a dry-run")
}
