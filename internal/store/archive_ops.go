package store

import (
	"context"
	"fmt"

	"github.com/lsj5031/remi/internal/model"
)

// SessionsByAgent groups every session by agent, each group sorted by
// updated_at desc, for archive planning's per-agent retention window.
func (s *Store) SessionsByAgent(ctx context.Context) (map[model.AgentKind][]model.Session, error) {
	sessions, err := s.ListSessions(ctx, -1)
	if err != nil {
		return nil, err
	}
	out := make(map[model.AgentKind][]model.Session)
	for _, sess := range sessions {
		out[sess.Agent] = append(out[sess.Agent], sess)
	}
	return out, nil
}

// SessionInUnexecutedRun reports whether sessionID is already an item of
// some archive run that has not yet been executed, for plan idempotency.
func (s *Store) SessionInUnexecutedRun(ctx context.Context, sessionID string) (bool, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM archive_items ai
		JOIN archive_runs ar ON ar.id = ai.run_id
		WHERE ai.session_id = ? AND ar.executed = 0
	`, sessionID)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("store: session in unexecuted run %s: %w", sessionID, err)
	}
	return count > 0, nil
}

// CreateArchiveRun inserts one archive_runs row plus one archive_items
// row per session id, all in a single transaction.
func (s *Store) CreateArchiveRun(ctx context.Context, run model.ArchiveRun, items []model.ArchiveItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin archive run: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO archive_runs(id, created_at, older_than_secs, keep_latest, dry_run, executed)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.CreatedAt, run.OlderThanSecs, run.KeepLatest, run.DryRun, run.Executed); err != nil {
		return fmt.Errorf("store: insert archive run %s: %w", run.ID, err)
	}
	for _, item := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO archive_items(id, run_id, session_id, planned_delete) VALUES (?, ?, ?, ?)
		`, item.ID, item.RunID, item.SessionID, item.PlannedDelete); err != nil {
			return fmt.Errorf("store: insert archive item %s: %w", item.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit archive run %s: %w", run.ID, err)
	}
	return nil
}

func (s *Store) GetArchiveItems(ctx context.Context, runID string) ([]model.ArchiveItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, run_id, session_id, planned_delete FROM archive_items WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: get archive items %s: %w", runID, err)
	}
	defer rows.Close()

	var out []model.ArchiveItem
	for rows.Next() {
		var item model.ArchiveItem
		if err := rows.Scan(&item.ID, &item.RunID, &item.SessionID, &item.PlannedDelete); err != nil {
			return nil, fmt.Errorf("store: scan archive item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) MarkArchiveRunExecuted(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE archive_runs SET executed = 1 WHERE id = ?`, runID)
	if err != nil {
		return fmt.Errorf("store: mark archive run executed %s: %w", runID, err)
	}
	return nil
}

