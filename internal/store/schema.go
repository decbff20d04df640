package store

// schemaStatements creates every table and index, executed one statement
// at a time (SQLite's driver does not support multi-statement Exec).
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS agents (
		kind TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		agent TEXT NOT NULL REFERENCES agents(kind),
		source_ref TEXT NOT NULL,
		title TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at DESC)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		ts TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_session_ts ON messages(session_id, ts ASC)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_ts ON messages(ts DESC)`,
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		kind TEXT NOT NULL,
		payload BLOB,
		ts TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id)`,
	`CREATE TABLE IF NOT EXISTS artifacts (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		path TEXT NOT NULL,
		checksum TEXT NOT NULL,
		metadata BLOB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_artifacts_session ON artifacts(session_id)`,
	`CREATE TABLE IF NOT EXISTS provenance (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		agent TEXT NOT NULL REFERENCES agents(kind),
		source_path TEXT NOT NULL,
		source_id TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_provenance_entity ON provenance(entity_type, entity_id)`,
	`CREATE TABLE IF NOT EXISTS checkpoints (
		agent TEXT PRIMARY KEY REFERENCES agents(kind),
		cursor TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS archive_runs (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		older_than_secs INTEGER NOT NULL,
		keep_latest INTEGER NOT NULL,
		dry_run BOOLEAN NOT NULL,
		executed BOOLEAN NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS archive_items (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES archive_runs(id),
		session_id TEXT NOT NULL REFERENCES sessions(id),
		planned_delete BOOLEAN NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_archive_items_run ON archive_items(run_id)`,
	`CREATE TABLE IF NOT EXISTS embeddings (
		message_id TEXT PRIMARY KEY REFERENCES messages(id),
		vector BLOB NOT NULL
	)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS fts_messages USING fts5(
		message_id UNINDEXED,
		session_id UNINDEXED,
		content,
		ts UNINDEXED,
		tokenize = "unicode61 tokenchars '_./:-'"
	)`,
}

// upsertAgentKindSQL seeds every agent kind at Open time so every foreign
// key reference against agents(kind) is always satisfiable.
const upsertAgentKindSQL = `INSERT INTO agents(kind) VALUES (?) ON CONFLICT(kind) DO NOTHING`
