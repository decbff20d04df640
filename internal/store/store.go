// Package store persists normalized sessions/messages/events/artifacts in
// an embedded SQLite database, with a full-text index over message
// content and the tables the archive engine needs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lsj5031/remi/internal/model"
)

// Store wraps a single *sql.DB opened once per process. SQLite plus WAL
// tolerates one writer at a time, matching the "single exclusive writer"
// resource policy: SetMaxOpenConns(1) turns that assumption into an
// enforced invariant instead of a hope.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path,
// applies the concurrency pragmas, creates the schema, and seeds every
// known agent kind so every agent-kind foreign key is always satisfiable.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: schema: %w", err)
		}
	}

	for _, kind := range model.AllAgentKinds {
		if _, err := db.ExecContext(ctx, upsertAgentKindSQL, kind.String()); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: seed agent %s: %w", kind, err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveBatch upserts every entity in batch inside a single transaction.
// Message FTS rows are always deleted then reinserted so the index never
// drifts from updated content. Insertion order equals batch order.
func (s *Store) SaveBatch(ctx context.Context, batch model.NormalizedBatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	for _, sess := range batch.Sessions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sessions(id, agent, source_ref, title, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				source_ref = excluded.source_ref,
				title = excluded.title,
				created_at = MIN(sessions.created_at, excluded.created_at),
				updated_at = MAX(sessions.updated_at, excluded.updated_at)
		`, sess.ID, sess.Agent.String(), sess.SourceRef, sess.Title, sess.CreatedAt, sess.UpdatedAt); err != nil {
			return fmt.Errorf("store: upsert session %s: %w", sess.ID, err)
		}
	}

	for _, msg := range batch.Messages {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages(id, session_id, role, content, ts)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				role = excluded.role, content = excluded.content, ts = excluded.ts
		`, msg.ID, msg.SessionID, string(msg.Role), msg.Content, msg.Ts); err != nil {
			return fmt.Errorf("store: upsert message %s: %w", msg.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM fts_messages WHERE message_id = ?`, msg.ID); err != nil {
			return fmt.Errorf("store: clear fts row %s: %w", msg.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO fts_messages(message_id, session_id, content, ts) VALUES (?, ?, ?, ?)
		`, msg.ID, msg.SessionID, msg.Content, msg.Ts.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("store: insert fts row %s: %w", msg.ID, err)
		}
	}

	for _, ev := range batch.Events {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO events(id, session_id, kind, payload, ts) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET kind = excluded.kind, payload = excluded.payload, ts = excluded.ts
		`, ev.ID, ev.SessionID, ev.Kind, ev.Payload, ev.Ts); err != nil {
			return fmt.Errorf("store: upsert event %s: %w", ev.ID, err)
		}
	}

	for _, art := range batch.Artifacts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO artifacts(id, session_id, path, checksum, metadata) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET path = excluded.path, checksum = excluded.checksum, metadata = excluded.metadata
		`, art.ID, art.SessionID, art.Path, art.Checksum, art.Metadata); err != nil {
			return fmt.Errorf("store: upsert artifact %s: %w", art.ID, err)
		}
	}

	for _, prov := range batch.Provenance {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO provenance(id, entity_type, entity_id, agent, source_path, source_id) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				entity_type = excluded.entity_type, entity_id = excluded.entity_id,
				agent = excluded.agent, source_path = excluded.source_path, source_id = excluded.source_id
		`, prov.ID, prov.EntityType, prov.EntityID, prov.Agent.String(), prov.SourcePath, prov.SourceID); err != nil {
			return fmt.Errorf("store: upsert provenance %s: %w", prov.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (model.Session, error) {
	var sess model.Session
	var agent string
	row := s.db.QueryRowContext(ctx, `SELECT id, agent, source_ref, title, created_at, updated_at FROM sessions WHERE id = ?`, id)
	if err := row.Scan(&sess.ID, &agent, &sess.SourceRef, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return model.Session{}, fmt.Errorf("store: get session %s: %w", id, err)
	}
	sess.Agent = model.AgentKind(agent)
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context, limit int) ([]model.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent, source_ref, title, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		var sess model.Session
		var agent string
		if err := rows.Scan(&sess.ID, &agent, &sess.SourceRef, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan session: %w", err)
		}
		sess.Agent = model.AgentKind(agent)
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) GetSessionMessages(ctx context.Context, sessionID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, ts FROM messages WHERE session_id = ? ORDER BY ts ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: get session messages %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var msg model.Message
		var role string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &msg.Ts); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		msg.Role = model.Role(role)
		out = append(out, msg)
	}
	return out, rows.Err()
}

// AllMessages returns every stored message, ordered by id, for a full
// embedding rebuild.
func (s *Store) AllMessages(ctx context.Context) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, ts FROM messages ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("store: all messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var msg model.Message
		var role string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &msg.Ts); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		msg.Role = model.Role(role)
		out = append(out, msg)
	}
	return out, rows.Err()
}

// GetMessageByID fetches a single message row, used to hydrate hits that
// the semantic fusion pass surfaces by id alone.
func (s *Store) GetMessageByID(ctx context.Context, messageID string) (model.Message, error) {
	var msg model.Message
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, role, content, ts FROM messages WHERE id = ?
	`, messageID).Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &msg.Ts)
	if err != nil {
		return model.Message{}, fmt.Errorf("store: get message %s: %w", messageID, err)
	}
	msg.Role = model.Role(role)
	return msg, nil
}

func (s *Store) GetProvenanceForSession(ctx context.Context, sessionID string) ([]model.Provenance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.entity_type, p.entity_id, p.agent, p.source_path, p.source_id
		FROM provenance p
		JOIN messages m ON m.id = p.entity_id AND p.entity_type = 'message'
		WHERE m.session_id = ?
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: get provenance for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []model.Provenance
	for rows.Next() {
		var p model.Provenance
		var agent string
		if err := rows.Scan(&p.ID, &p.EntityType, &p.EntityID, &agent, &p.SourcePath, &p.SourceID); err != nil {
			return nil, fmt.Errorf("store: scan provenance: %w", err)
		}
		p.Agent = model.AgentKind(agent)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetSessionEvents(ctx context.Context, sessionID string) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, kind, payload, ts FROM events WHERE session_id = ? ORDER BY ts ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: get session events %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var ev model.Event
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.Kind, &ev.Payload, &ev.Ts); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) GetSessionArtifacts(ctx context.Context, sessionID string) ([]model.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, path, checksum, metadata FROM artifacts WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: get session artifacts %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []model.Artifact
	for rows.Next() {
		var art model.Artifact
		if err := rows.Scan(&art.ID, &art.SessionID, &art.Path, &art.Checksum, &art.Metadata); err != nil {
			return nil, fmt.Errorf("store: scan artifact: %w", err)
		}
		out = append(out, art)
	}
	return out, rows.Err()
}

func (s *Store) GetCheckpoint(ctx context.Context, agent model.AgentKind) (*model.Checkpoint, error) {
	var cp model.Checkpoint
	var agentStr string
	row := s.db.QueryRowContext(ctx, `SELECT agent, cursor, updated_at FROM checkpoints WHERE agent = ?`, agent.String())
	if err := row.Scan(&agentStr, &cp.Cursor, &cp.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get checkpoint %s: %w", agent, err)
	}
	cp.Agent = model.AgentKind(agentStr)
	return &cp, nil
}

func (s *Store) UpsertCheckpoint(ctx context.Context, cp model.Checkpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints(agent, cursor, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(agent) DO UPDATE SET cursor = excluded.cursor, updated_at = excluded.updated_at
	`, cp.Agent.String(), cp.Cursor, cp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: upsert checkpoint %s: %w", cp.Agent, err)
	}
	return nil
}

// Hit is one ranked retrieval result, used by both search_lexical and
// recent_messages; Score is meaningful only for the former.
type Hit struct {
	MessageID string
	SessionID string
	Content   string
	Ts        time.Time
	Score     float64
}

// SearchLexical runs ftsQuery against the FTS5 index, returning up to
// limit hits scored by BM25 rank (negated so larger is always better).
func (s *Store) SearchLexical(ctx context.Context, ftsQuery string, limit int) ([]Hit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, session_id, content, ts, -rank AS score
		FROM fts_messages WHERE fts_messages MATCH ?
		ORDER BY rank LIMIT ?
	`, ftsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search lexical: %w", err)
	}
	defer rows.Close()
	return scanHits(rows)
}

// RecentMessages returns up to limit messages ordered by ts desc. Score
// is left zero; callers assign a rank-based synthetic score.
func (s *Store) RecentMessages(ctx context.Context, limit int) ([]Hit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, content, ts FROM messages ORDER BY ts DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent messages: %w", err)
	}
	defer rows.Close()

	var out []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.MessageID, &h.SessionID, &h.Content, &h.Ts); err != nil {
			return nil, fmt.Errorf("store: scan recent message: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// SearchSubstring is the last-resort, case-insensitive fallback for FTS
// misses or an empty sanitized query.
func (s *Store) SearchSubstring(ctx context.Context, query string, limit int) ([]Hit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, content, ts FROM messages
		WHERE content LIKE '%' || ? || '%' COLLATE NOCASE
		ORDER BY ts DESC LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search substring: %w", err)
	}
	defer rows.Close()

	var out []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.MessageID, &h.SessionID, &h.Content, &h.Ts); err != nil {
			return nil, fmt.Errorf("store: scan substring hit: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanHits(rows *sql.Rows) ([]Hit, error) {
	var out []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.MessageID, &h.SessionID, &h.Content, &h.Ts, &h.Score); err != nil {
			return nil, fmt.Errorf("store: scan hit: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) SaveEmbedding(ctx context.Context, messageID string, vector []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings(message_id, vector) VALUES (?, ?)
		ON CONFLICT(message_id) DO UPDATE SET vector = excluded.vector
	`, messageID, vector)
	if err != nil {
		return fmt.Errorf("store: save embedding %s: %w", messageID, err)
	}
	return nil
}

// Embedding pairs a message id with its stored vector blob.
type Embedding struct {
	MessageID string
	Vector    []byte
}

func (s *Store) LoadAllEmbeddings(ctx context.Context) ([]Embedding, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT message_id, vector FROM embeddings`)
	if err != nil {
		return nil, fmt.Errorf("store: load all embeddings: %w", err)
	}
	defer rows.Close()

	var out []Embedding
	for rows.Next() {
		var e Embedding
		if err := rows.Scan(&e.MessageID, &e.Vector); err != nil {
			return nil, fmt.Errorf("store: scan embedding: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteSessionCascade removes a session and every row that references
// it, including its FTS rows, inside one transaction.
func (s *Store) DeleteSessionCascade(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	stmts := []struct {
		sql  string
		args []any
	}{
		{`DELETE FROM fts_messages WHERE message_id IN (SELECT id FROM messages WHERE session_id = ?)`, []any{sessionID}},
		{`DELETE FROM embeddings WHERE message_id IN (SELECT id FROM messages WHERE session_id = ?)`, []any{sessionID}},
		{`DELETE FROM provenance WHERE entity_type = 'message' AND entity_id IN (SELECT id FROM messages WHERE session_id = ?)`, []any{sessionID}},
		{`DELETE FROM messages WHERE session_id = ?`, []any{sessionID}},
		{`DELETE FROM events WHERE session_id = ?`, []any{sessionID}},
		{`DELETE FROM artifacts WHERE session_id = ?`, []any{sessionID}},
		{`DELETE FROM archive_items WHERE session_id = ?`, []any{sessionID}},
		{`DELETE FROM sessions WHERE id = ?`, []any{sessionID}},
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.sql, st.args...); err != nil {
			return fmt.Errorf("store: delete session cascade %s: %w", sessionID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit delete %s: %w", sessionID, err)
	}
	return nil
}

// IntegrityCheck reports SQLite's own self-check result, "ok" when clean.
func (s *Store) IntegrityCheck(ctx context.Context) (string, error) {
	var result string
	row := s.db.QueryRowContext(ctx, `PRAGMA integrity_check`)
	if err := row.Scan(&result); err != nil {
		return "", fmt.Errorf("store: integrity check: %w", err)
	}
	return result, nil
}
