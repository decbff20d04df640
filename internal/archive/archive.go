// Package archive plans, executes, and restores cold-storage bundles of
// old sessions: plan selects sessions past a per-agent retention window,
// run materializes and verifies a bundle before optionally deleting the
// source rows, and restore replays a bundle back into the store.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lsj5031/remi/internal/model"
	"github.com/lsj5031/remi/internal/storage"
	"github.com/lsj5031/remi/internal/store"
)

const (
	writeRetryInitialInterval = 100 * time.Millisecond
	writeRetryMaxInterval     = 2 * time.Second
	writeRetryMaxElapsedTime  = 10 * time.Second
)

// newWriteBackoff builds a short exponential backoff for the bundle write
// step, which can transiently fail under lock contention from a concurrent
// archive run or a slow disk.
func newWriteBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = writeRetryInitialInterval
	b.MaxInterval = writeRetryMaxInterval
	b.MaxElapsedTime = writeRetryMaxElapsedTime
	return backoff.WithContext(b, ctx)
}

// Bundle is the full archived content of one run's selected sessions.
type Bundle struct {
	RunID      string            `json:"run_id"`
	Sessions   []model.Session   `json:"sessions"`
	Messages   []model.Message   `json:"messages"`
	Events     []model.Event     `json:"events"`
	Artifacts  []model.Artifact  `json:"artifacts"`
	Provenance []model.Provenance `json:"provenance"`
}

// Manifest is the small companion file recording what a bundle contains
// and its checksum, without needing to reopen the bundle itself.
type Manifest struct {
	RunID    string   `json:"run_id"`
	Sessions []string `json:"sessions"`
	Checksum string   `json:"checksum"`
}

// Engine plans and executes archive runs against a Store, writing
// executed bundles under ArchiveDir/<run_id>/ via a locked, path-addressed
// Storage instance.
type Engine struct {
	store   *store.Store
	bundles *storage.Storage
}

func New(st *store.Store, archiveDir string) *Engine {
	return &Engine{store: st, bundles: storage.New(archiveDir)}
}

// Plan selects sessions for archival and records one ArchiveRun plus one
// ArchiveItem per selected session, returning the run id.
//
// Within each agent's sessions (sorted updated_at desc), everything past
// position keepLatest is a candidate; a candidate is actually selected
// only if its updated_at is older than now-olderThan, and only if it is
// not already part of some other unexecuted run.
func (e *Engine) Plan(ctx context.Context, olderThan time.Duration, keepLatest int) (string, error) {
	now := time.Now().UTC()
	runID := model.DeterministicID(
		"archive_run",
		strconv.FormatInt(now.UnixNano(), 10),
		strconv.FormatInt(int64(olderThan.Seconds()), 10),
		strconv.Itoa(keepLatest),
	)
	cutoff := now.Add(-olderThan)

	bySession, err := e.store.SessionsByAgent(ctx)
	if err != nil {
		return "", fmt.Errorf("archive: plan: list sessions: %w", err)
	}

	var items []model.ArchiveItem
	for _, sessions := range bySession {
		sort.Slice(sessions, func(i, j int) bool { return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt) })
		for i, sess := range sessions {
			if i < keepLatest {
				continue
			}
			if !sess.UpdatedAt.Before(cutoff) {
				continue
			}
			already, err := e.store.SessionInUnexecutedRun(ctx, sess.ID)
			if err != nil {
				return "", fmt.Errorf("archive: plan: check existing run for %s: %w", sess.ID, err)
			}
			if already {
				continue
			}
			items = append(items, model.ArchiveItem{
				ID:            model.DeterministicID(runID, sess.ID),
				RunID:         runID,
				SessionID:     sess.ID,
				PlannedDelete: true,
			})
		}
	}

	run := model.ArchiveRun{
		ID:            runID,
		CreatedAt:     now,
		OlderThanSecs: int64(olderThan.Seconds()),
		KeepLatest:    keepLatest,
		DryRun:        true,
		Executed:      false,
	}
	if err := e.store.CreateArchiveRun(ctx, run, items); err != nil {
		return "", fmt.Errorf("archive: plan: create run: %w", err)
	}
	return runID, nil
}

// Run executes (or dry-runs) a previously planned run. On execute it
// writes sessions.json and manifest.json under archiveDir/<runID>/,
// re-reads the bundle to verify its checksum before any deletion, and
// only then deletes source sessions (when deleteSource is set) and
// marks the run executed.
func (e *Engine) Run(ctx context.Context, runID string, execute, deleteSource bool) (string, error) {
	items, err := e.store.GetArchiveItems(ctx, runID)
	if err != nil {
		return "", fmt.Errorf("archive: run: get items %s: %w", runID, err)
	}

	if !execute {
		return fmt.Sprintf("dry-run: would archive %d sessions for run %s", len(items), runID), nil
	}

	bundle := Bundle{RunID: runID}
	for _, item := range items {
		sess, err := e.store.GetSession(ctx, item.SessionID)
		if err != nil {
			return "", fmt.Errorf("archive: run: get session %s: %w", item.SessionID, err)
		}
		bundle.Sessions = append(bundle.Sessions, sess)

		msgs, err := e.store.GetSessionMessages(ctx, item.SessionID)
		if err != nil {
			return "", fmt.Errorf("archive: run: get messages %s: %w", item.SessionID, err)
		}
		bundle.Messages = append(bundle.Messages, msgs...)

		events, err := e.store.GetSessionEvents(ctx, item.SessionID)
		if err != nil {
			return "", fmt.Errorf("archive: run: get events %s: %w", item.SessionID, err)
		}
		bundle.Events = append(bundle.Events, events...)

		artifacts, err := e.store.GetSessionArtifacts(ctx, item.SessionID)
		if err != nil {
			return "", fmt.Errorf("archive: run: get artifacts %s: %w", item.SessionID, err)
		}
		bundle.Artifacts = append(bundle.Artifacts, artifacts...)

		prov, err := e.store.GetProvenanceForSession(ctx, item.SessionID)
		if err != nil {
			return "", fmt.Errorf("archive: run: get provenance %s: %w", item.SessionID, err)
		}
		bundle.Provenance = append(bundle.Provenance, prov...)
	}

	payload, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return "", fmt.Errorf("archive: run: marshal bundle: %w", err)
	}
	checksum := checksumHex(payload)

	sessionsPath := []string{runID, "sessions"}
	writeErr := backoff.Retry(func() error {
		return e.bundles.PutRaw(ctx, sessionsPath, payload)
	}, newWriteBackoff(ctx))
	if writeErr != nil {
		return "", fmt.Errorf("archive: run: write bundle: %w", writeErr)
	}

	reloaded, err := e.bundles.GetRaw(ctx, sessionsPath)
	if err != nil {
		return "", fmt.Errorf("archive: run: verify read: %w", err)
	}
	if checksumHex(reloaded) != checksum {
		return "", fmt.Errorf("archive: run: verification failed for run %s, refusing to delete source", runID)
	}

	manifest := Manifest{RunID: runID, Sessions: sessionIDs(bundle.Sessions), Checksum: checksum}
	if err := e.bundles.Put(ctx, []string{runID, "manifest"}, manifest); err != nil {
		return "", fmt.Errorf("archive: run: write manifest: %w", err)
	}

	if deleteSource {
		for _, item := range items {
			if !item.PlannedDelete {
				continue
			}
			if err := e.store.DeleteSessionCascade(ctx, item.SessionID); err != nil {
				return "", fmt.Errorf("archive: run: delete session %s: %w", item.SessionID, err)
			}
		}
	}

	if err := e.store.MarkArchiveRunExecuted(ctx, runID); err != nil {
		return "", fmt.Errorf("archive: run: mark executed %s: %w", runID, err)
	}
	return fmt.Sprintf("executed: archived run %s", runID), nil
}

// Restore parses a sessions.json bundle and replays its content back
// into the store via SaveBatch.
func (e *Engine) Restore(ctx context.Context, bundlePath string) (string, error) {
	raw, err := os.ReadFile(bundlePath)
	if err != nil {
		return "", fmt.Errorf("archive: restore: read bundle %s: %w", bundlePath, err)
	}
	var bundle Bundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return "", fmt.Errorf("archive: restore: parse bundle %s: %w", bundlePath, err)
	}

	batch := model.NormalizedBatch{
		Sessions:   bundle.Sessions,
		Messages:   bundle.Messages,
		Events:     bundle.Events,
		Artifacts:  bundle.Artifacts,
		Provenance: bundle.Provenance,
	}
	if err := e.store.SaveBatch(ctx, batch); err != nil {
		return "", fmt.Errorf("archive: restore: save batch: %w", err)
	}
	return fmt.Sprintf("restored %d sessions", len(batch.Sessions)), nil
}

func checksumHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func sessionIDs(sessions []model.Session) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.ID
	}
	return out
}
