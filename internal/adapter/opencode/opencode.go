// Package opencode reads OpenCode's session transcripts, in either of
// two storage forms: a SQLite database (opencode.db, preferred when
// present) or the legacy per-message JSON tree
// (storage/{message,session,part}/**.json).
package opencode

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lsj5031/remi/internal/adapter"
	"github.com/lsj5031/remi/internal/adapter/common"
	"github.com/lsj5031/remi/internal/jsonval"
	"github.com/lsj5031/remi/internal/model"
)

const (
	dbPath       = ".local/share/opencode/opencode.db"
	messageGlob  = ".local/share/opencode/storage/message/**/*.json"
	sessionGlob  = ".local/share/opencode/storage/session/**/*.json"
	partGlobBase = ".local/share/opencode/storage/part"
)

// Adapter reads OpenCode session transcripts, dispatching to DB mode or
// legacy JSON mode depending on what's present on disk.
type Adapter struct {
	Home string

	// index is the session-meta index. scanLegacy builds it on the first
	// legacy-mode scan and later scans of this Adapter reuse it; it is
	// not a package singleton, and New takes no prebuilt index.
	index *SessionIndex
}

func New() *Adapter { return &Adapter{} }

func (a *Adapter) home() string {
	if a.Home != "" {
		return a.Home
	}
	return common.HomeDir()
}

func (a *Adapter) Kind() model.AgentKind { return model.AgentOpenCode }

// DiscoverSourcePaths returns the DB file alone if it is present,
// otherwise every legacy message JSON file found under the storage tree.
func (a *Adapter) DiscoverSourcePaths(ctx context.Context) ([]string, error) {
	full := filepath.Join(a.home(), dbPath)
	if info, err := os.Stat(full); err == nil && !info.IsDir() {
		return []string{full}, nil
	}
	return common.Discover(a.home(), messageGlob)
}

func (a *Adapter) ScanChangesSince(ctx context.Context, paths []string, cursor *adapter.Cursor) ([]adapter.NativeRecord, error) {
	if len(paths) == 1 && strings.HasSuffix(paths[0], ".db") {
		return a.scanDB(paths[0], cursor)
	}
	return a.scanLegacy(paths, cursor)
}

// --- legacy JSON mode ---

func (a *Adapter) scanLegacy(paths []string, cursor *adapter.Cursor) ([]adapter.NativeRecord, error) {
	if a.index == nil {
		a.index = BuildSessionIndex(a.home())
	}

	results := make([][]adapter.NativeRecord, len(paths))
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(maxInt(1, runtime.GOMAXPROCS(0)))
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			results[i] = loadLegacyMessage(path, a.index, cursor)
			return nil
		})
	}
	_ = g.Wait()

	var combined []adapter.NativeRecord
	for _, r := range results {
		combined = append(combined, r...)
	}
	sortRecords(combined)
	return combined, nil
}

func loadLegacyMessage(path string, idx *SessionIndex, cursor *adapter.Cursor) []adapter.NativeRecord {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil || !jsonval.Valid(data) {
		return nil
	}
	msg, err := jsonval.Parse(data)
	if err != nil {
		return nil
	}

	messageID, ok := common.ExtractID(msg, "id")
	if !ok {
		messageID = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	rawSessionID, _ := common.ExtractID(msg, "sessionID", "session_id", "sessionId")
	sessionKey := idx.Resolve(rawSessionID)
	role := msg.StringField("role", "user")

	content := common.ExtractContentText(msg.Field("content"))
	content = appendLegacyParts(content, path, messageID)
	if strings.TrimSpace(content) == "" {
		return nil
	}

	ts, ok := common.ParseTimestampValue(msg.Get("time", "created"))
	if !ok {
		ts, ok = common.ParseTimestampValue(msg.Field("time_created"))
	}
	if !ok {
		ts = info.ModTime()
	}

	title := idx.Title(sessionKey)

	sourceID := sessionKey + ":" + messageID
	if common.ShouldSkip(ts, sourceID, cursor) {
		return nil
	}

	raw := map[string]any{
		"role":           role,
		"content":        content,
		"__thread_id":    sessionKey,
		"__thread_title": title,
		"__source_path":  path,
	}
	return []adapter.NativeRecord{{SourceID: sourceID, UpdatedAt: ts, Payload: jsonval.Wrap(raw)}}
}

// appendLegacyParts renders tool-call parts found in the JSON files
// directly inside storage/part/<message_id>/ onto content, using the same
// "tool_use: "/"tool_result: " markers as DB mode. The storage root is the
// parent of the nearest "message" directory above messagePath, so flat
// and per-session message layouts resolve to the same part directory.
// Files in subdirectories of the part directory are not read.
func appendLegacyParts(content, messagePath, messageID string) string {
	root := filepath.Dir(messagePath)
	for filepath.Base(root) != "message" && filepath.Dir(root) != root {
		root = filepath.Dir(root)
	}
	partDir := filepath.Join(filepath.Dir(root), "part", messageID)
	entries, err := os.ReadDir(partDir)
	if err != nil {
		return content
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(content)
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(partDir, name))
		if err != nil || !jsonval.Valid(data) {
			continue
		}
		part, err := jsonval.Parse(data)
		if err != nil {
			continue
		}
		if rendered, ok := renderToolPart(part); ok {
			b.WriteString("\n")
			b.WriteString(rendered)
		}
	}
	return b.String()
}

// renderToolPart implements the canonical tool-call rendering: a part
// whose type is "tool" emits "tool_use: {tool} {input}", then
// "tool_result: {output}" when state is completed, or
// "tool_result: {error}" when state is error.
func renderToolPart(part jsonval.Value) (string, bool) {
	if t, _ := part.Field("type").AsString(); t != "tool" {
		return "", false
	}
	tool, _ := part.Field("tool").AsString()
	input := part.Field("input")
	inputStr := formatInput(input)

	var b strings.Builder
	fmt.Fprintf(&b, "tool_use: %s %s", tool, inputStr)

	switch state := part.Field("state").StringField("status", ""); state {
	case "completed":
		output, _ := part.Field("state").Field("output").AsString()
		fmt.Fprintf(&b, "\ntool_result: %s", output)
	case "error":
		errMsg, _ := part.Field("state").Field("error").AsString()
		fmt.Fprintf(&b, "\ntool_result: %s", errMsg)
	}
	return b.String(), true
}

func formatInput(v jsonval.Value) string {
	if s, ok := v.AsString(); ok {
		return s
	}
	if obj, ok := v.AsObject(); ok {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s, ok := obj[k].AsString(); ok {
				parts = append(parts, k+"="+s)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}

// --- SQLite DB mode ---

func (a *Adapter) scanDB(path string, cursor *adapter.Cursor) ([]adapter.NativeRecord, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&immutable=1")
	if err != nil {
		return nil, nil
	}
	defer db.Close()

	rows, err := db.Query(`SELECT id, session_id, role, time_created FROM message ORDER BY time_created ASC, id ASC`)
	if err != nil {
		return nil, nil
	}
	defer rows.Close()

	var out []adapter.NativeRecord
	for rows.Next() {
		var id, sessionID, role string
		var timeCreated int64
		if err := rows.Scan(&id, &sessionID, &role, &timeCreated); err != nil {
			continue
		}
		ts := common.ParseEpoch(timeCreated)
		content, err := renderDBParts(db, id)
		if err != nil || strings.TrimSpace(content) == "" {
			continue
		}
		title := sessionTitleFromDB(db, sessionID)

		sourceID := sessionID + ":" + id
		if common.ShouldSkip(ts, sourceID, cursor) {
			continue
		}
		raw := map[string]any{
			"role":           role,
			"content":        content,
			"__thread_id":    sessionID,
			"__thread_title": title,
			"__source_path":  path,
		}
		out = append(out, adapter.NativeRecord{SourceID: sourceID, UpdatedAt: ts, Payload: jsonval.Wrap(raw)})
	}
	sortRecords(out)
	return out, rows.Err()
}

func renderDBParts(db *sql.DB, messageID string) (string, error) {
	rows, err := db.Query(`SELECT type, tool, state, input, output, error FROM part WHERE message_id = ? ORDER BY time_created ASC, rowid ASC`, messageID)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var b strings.Builder
	for rows.Next() {
		var partType, tool, state, input, output, errMsg sql.NullString
		if err := rows.Scan(&partType, &tool, &state, &input, &output, &errMsg); err != nil {
			continue
		}
		if partType.String == "text" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(input.String)
			continue
		}
		if partType.String != "tool" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "tool_use: %s %s", tool.String, input.String)
		switch state.String {
		case "completed":
			fmt.Fprintf(&b, "\ntool_result: %s", output.String)
		case "error":
			fmt.Fprintf(&b, "\ntool_result: %s", errMsg.String)
		}
	}
	return b.String(), rows.Err()
}

func sessionTitleFromDB(db *sql.DB, sessionID string) string {
	var title sql.NullString
	row := db.QueryRow(`SELECT title FROM session WHERE id = ?`, sessionID)
	if err := row.Scan(&title); err != nil || !title.Valid || strings.TrimSpace(title.String) == "" {
		return sessionID
	}
	return title.String
}

func sortRecords(records []adapter.NativeRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].UpdatedAt.Equal(records[j].UpdatedAt) {
			return records[i].UpdatedAt.Before(records[j].UpdatedAt)
		}
		return records[i].SourceID < records[j].SourceID
	})
}

func (a *Adapter) Normalize(records []adapter.NativeRecord) model.NormalizedBatch {
	sessions := make(map[string]*model.Session)
	var order []string
	var batch model.NormalizedBatch

	for _, rec := range records {
		payload := rec.Payload
		role := payload.StringField("role", "user")
		content, _ := payload.Field("content").AsString()
		threadID, ok := payload.FirstNonEmptyString("__thread_id")
		if !ok {
			threadID = rec.SourceID
		}
		title, ok := payload.FirstNonEmptyString("__thread_title")
		if !ok {
			title = threadID
		}

		sessionID := model.DeterministicID(model.AgentOpenCode.String(), "session", threadID)
		messageID := model.DeterministicID(model.AgentOpenCode.String(), "message", rec.SourceID)

		s, exists := sessions[sessionID]
		if !exists {
			s = &model.Session{ID: sessionID, Agent: model.AgentOpenCode, SourceRef: threadID, Title: title, CreatedAt: rec.UpdatedAt, UpdatedAt: rec.UpdatedAt}
			sessions[sessionID] = s
			order = append(order, sessionID)
		} else {
			if rec.UpdatedAt.Before(s.CreatedAt) {
				s.CreatedAt = rec.UpdatedAt
			}
			if rec.UpdatedAt.After(s.UpdatedAt) {
				s.UpdatedAt = rec.UpdatedAt
			}
		}

		batch.Messages = append(batch.Messages, model.Message{
			ID: messageID, SessionID: sessionID, Role: model.NormalizeRole(role), Content: content, Ts: rec.UpdatedAt,
		})
		sourcePath, ok := payload.FirstNonEmptyString("__source_path")
		if !ok {
			sourcePath = model.AgentOpenCode.String()
		}
		batch.Provenance = append(batch.Provenance, model.Provenance{
			ID: model.DeterministicID("prov", messageID), EntityType: "message", EntityID: messageID,
			Agent: model.AgentOpenCode, SourcePath: sourcePath, SourceID: rec.SourceID,
		})
	}

	sort.Slice(order, func(i, j int) bool {
		si, sj := sessions[order[i]], sessions[order[j]]
		if !si.UpdatedAt.Equal(sj.UpdatedAt) {
			return si.UpdatedAt.Before(sj.UpdatedAt)
		}
		return si.ID < sj.ID
	})
	for _, id := range order {
		batch.Sessions = append(batch.Sessions, *sessions[id])
	}
	return batch
}

func (a *Adapter) CheckpointCursor(records []adapter.NativeRecord) *adapter.Cursor {
	return common.CheckpointCursorFromRecords(records)
}

func (a *Adapter) ArchiveCapability() adapter.ArchiveCapability {
	return adapter.CentralizedCopy
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

var _ adapter.Adapter = (*Adapter)(nil)
