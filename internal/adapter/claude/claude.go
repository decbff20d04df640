// Package claude reads Claude Code's JSONL session transcripts. Unlike
// every other adapter, the same logical conversation can be discovered
// under more than one root, so a scan here ends with a cross-source
// dedupe pass the other adapters don't need.
package claude

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lsj5031/remi/internal/adapter"
	"github.com/lsj5031/remi/internal/adapter/common"
	"github.com/lsj5031/remi/internal/jsonval"
	"github.com/lsj5031/remi/internal/model"
)

// sourceRoot is one of the three directories Claude Code may have
// written transcripts under, with the priority used to break dedupe
// ties between identical records discovered in more than one of them.
type sourceRoot struct {
	rel      string
	priority int
}

var sourceRoots = []sourceRoot{
	{rel: ".claude/projects", priority: 3},
	{rel: ".claude/transcripts", priority: 2},
	{rel: ".local/share/claude-code", priority: 1},
}

var sessionKeyFields = []string{"sessionId", "sessionID", "session", "conversationId", "chatId", "projectId"}

const (
	titleMaxLen        = 80
	richnessContentCap = 1000
	nestedMessageBonus = 50
	slugBonus          = 10
)

// Adapter reads Claude Code's JSONL session transcripts across all three
// known roots and deduplicates across them.
type Adapter struct {
	Home string
}

func New() *Adapter { return &Adapter{} }

func (a *Adapter) home() string {
	if a.Home != "" {
		return a.Home
	}
	return common.HomeDir()
}

func (a *Adapter) Kind() model.AgentKind { return model.AgentClaude }

func (a *Adapter) DiscoverSourcePaths(ctx context.Context) ([]string, error) {
	var patterns []string
	for _, root := range sourceRoots {
		patterns = append(patterns, root.rel+"/**/*.jsonl")
	}
	return common.Discover(a.home(), patterns...)
}

// priorityForPath reports the source priority of path by checking which
// of the three known roots it falls under. Paths that don't come from
// DiscoverSourcePaths (e.g. in tests) default to the lowest priority
// rather than erroring.
func priorityForPath(home, path string) int {
	for _, root := range sourceRoots {
		prefix := filepath.Join(home, root.rel)
		rel, err := filepath.Rel(prefix, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return root.priority
	}
	return 1
}

func (a *Adapter) ScanChangesSince(ctx context.Context, paths []string, cursor *adapter.Cursor) ([]adapter.NativeRecord, error) {
	home := a.home()
	results := make([][]adapter.NativeRecord, len(paths))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(maxInt(1, runtime.GOMAXPROCS(0)))
	for i, path := range paths {
		i, path := i, path
		priority := priorityForPath(home, path)
		g.Go(func() error {
			results[i] = loadOneFile(path, priority, cursor)
			return nil
		})
	}
	_ = g.Wait()

	var combined []adapter.NativeRecord
	for _, r := range results {
		combined = append(combined, r...)
	}

	deduped := dedupe(combined)
	sort.Slice(deduped, func(i, j int) bool {
		if !deduped[i].UpdatedAt.Equal(deduped[j].UpdatedAt) {
			return deduped[i].UpdatedAt.Before(deduped[j].UpdatedAt)
		}
		return deduped[i].SourceID < deduped[j].SourceID
	})
	return deduped, nil
}

func loadOneFile(path string, priority int, cursor *adapter.Cursor) []adapter.NativeRecord {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	if cursor != nil && info.ModTime().Before(cursor.Ts) {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var out []adapter.NativeRecord
	lines := strings.Split(string(data), "\n")
	for lineNo, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || !jsonval.Valid([]byte(line)) {
			continue
		}
		val, err := jsonval.Parse([]byte(line))
		if err != nil {
			continue
		}

		role, content := extractRoleContent(val)
		if strings.TrimSpace(content) == "" {
			continue
		}

		ts, ok := common.ExtractTs(val)
		if !ok {
			ts = info.ModTime()
		}

		identity, hasIdentity := common.ExtractID(val, "messageId", "id", "uuid")
		sourceID := identity
		if !hasIdentity {
			sourceID = common.FallbackRecordID(model.AgentClaude, stem, lineNo, []byte(line))
		}
		if common.ShouldSkip(ts, sourceID, cursor) {
			continue
		}

		sessionKey := resolveSessionKey(val, stem)
		key := dedupeKey(identity, hasIdentity, sessionKey, ts, role, content, lineNo)
		richness := richnessScore(val, content)

		injected, ierr := jsonval.Inject([]byte(line), "__source_path", path)
		if ierr == nil {
			injected, ierr = jsonval.Inject(injected, "__source_priority", priority)
		}
		if ierr == nil {
			injected, ierr = jsonval.Inject(injected, "__dedupe_key", key)
		}
		if ierr == nil {
			injected, ierr = jsonval.Inject(injected, "__richness", richness)
		}
		if ierr == nil {
			injected, ierr = jsonval.Inject(injected, "__session_key", sessionKey)
		}
		if ierr == nil {
			injected, ierr = jsonval.Inject(injected, "__role", role)
		}
		if ierr == nil {
			injected, ierr = jsonval.Inject(injected, "__content", content)
		}
		if ierr != nil {
			injected = []byte(line)
		}
		payload, perr := jsonval.Parse(injected)
		if perr != nil {
			payload = val
		}

		out = append(out, adapter.NativeRecord{SourceID: sourceID, UpdatedAt: ts, Payload: payload})
	}
	return out
}

// extractRoleContent reads a Claude Code entry's role and text: a
// top-level "type" of user/assistant with a nested "message" object
// carrying role and content parts. Anything else (summary lines,
// queue-operation bookkeeping, tool-only entries) yields empty content
// and is dropped by the caller.
func extractRoleContent(v jsonval.Value) (role, content string) {
	entryType, _ := v.Field("type").AsString()
	if entryType != "user" && entryType != "assistant" {
		return "", ""
	}
	msg := v.Field("message")
	role = msg.StringField("role", entryType)
	content = common.ExtractContentText(msg.Field("content"))
	return role, content
}

// resolveSessionKey implements the session-key resolution chain: an
// explicit synthetic key, then a named field (string or nested .id),
// then a synthetic seed, then the file's stem, then the literal
// session-root fallback.
func resolveSessionKey(v jsonval.Value, pathStem string) string {
	if s, ok := v.FirstNonEmptyString("__session_key"); ok {
		return s
	}
	for _, field := range sessionKeyFields {
		node := v.Field(field)
		if s, ok := node.AsString(); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
		if s, ok := node.Field("id").AsString(); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	if s, ok := v.FirstNonEmptyString("__session_seed"); ok {
		return s
	}
	if pathStem != "" {
		return pathStem
	}
	return "session-root"
}

// dedupeKey computes the cross-source dedupe key: an explicit message
// identity wins outright; otherwise a hash of everything that makes two
// entries logically the same record.
func dedupeKey(identity string, hasIdentity bool, sessionKey string, ts time.Time, role, content string, lineNo int) string {
	if hasIdentity {
		return "id:" + identity
	}
	return model.DeterministicID(
		model.AgentClaude.String(), "dedupe", sessionKey,
		ts.UTC().Format(time.RFC3339Nano), role, content, strconv.Itoa(lineNo),
	)
}

// richnessScore favors the candidate that carries the most information:
// raw object field count, a bonus for a nested "message" subtree, a
// bonus for a "slug" field, and content length capped so one enormous
// message can't dominate the comparison.
func richnessScore(v jsonval.Value, content string) int {
	score := 0
	if obj, ok := v.AsObject(); ok {
		score += len(obj)
	}
	if _, ok := v.Field("message").AsObject(); ok {
		score += nestedMessageBonus
	}
	if _, ok := v.Field("slug").AsString(); ok {
		score += slugBonus
	}
	capped := len(content)
	if capped > richnessContentCap {
		capped = richnessContentCap
	}
	score += capped
	return score
}

// dedupe groups records by their dedupe key and keeps the best of each
// group: higher source priority, then higher richness, then newer
// updated_at, then lexicographically smaller source id.
func dedupe(records []adapter.NativeRecord) []adapter.NativeRecord {
	type candidate struct {
		rec      adapter.NativeRecord
		priority int64
		richness int64
	}
	best := make(map[string]candidate)
	var order []string

	for _, rec := range records {
		key, _ := rec.Payload.Field("__dedupe_key").AsString()
		priority, _ := rec.Payload.Field("__source_priority").AsInt64()
		richness, _ := rec.Payload.Field("__richness").AsInt64()

		cur, exists := best[key]
		if !exists {
			best[key] = candidate{rec: rec, priority: priority, richness: richness}
			order = append(order, key)
			continue
		}
		if betterCandidate(priority, richness, rec, cur.priority, cur.richness, cur.rec) {
			best[key] = candidate{rec: rec, priority: priority, richness: richness}
		}
	}

	out := make([]adapter.NativeRecord, 0, len(order))
	for _, key := range order {
		out = append(out, best[key].rec)
	}
	return out
}

func betterCandidate(priority, richness int64, rec adapter.NativeRecord, curPriority, curRichness int64, cur adapter.NativeRecord) bool {
	if priority != curPriority {
		return priority > curPriority
	}
	if richness != curRichness {
		return richness > curRichness
	}
	if !rec.UpdatedAt.Equal(cur.UpdatedAt) {
		return rec.UpdatedAt.After(cur.UpdatedAt)
	}
	return rec.SourceID < cur.SourceID
}

func (a *Adapter) Normalize(records []adapter.NativeRecord) model.NormalizedBatch {
	sessions := make(map[string]*model.Session)
	var order []string
	var batch model.NormalizedBatch

	for _, rec := range records {
		payload := rec.Payload
		role, _ := payload.Field("__role").AsString()
		content, _ := payload.Field("__content").AsString()
		sessionKey, ok := payload.FirstNonEmptyString("__session_key")
		if !ok {
			sessionKey = "session-root"
		}

		sessionID := model.DeterministicID(model.AgentClaude.String(), "session", sessionKey)
		messageID := model.DeterministicID(model.AgentClaude.String(), "message", rec.SourceID)

		s, exists := sessions[sessionID]
		if !exists {
			s = &model.Session{
				ID: sessionID, Agent: model.AgentClaude, SourceRef: sessionKey, Title: sessionKey,
				CreatedAt: rec.UpdatedAt, UpdatedAt: rec.UpdatedAt,
			}
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
		if role == string(model.RoleUser) && s.Title == sessionKey {
			if title, ok := payload.Field("__content").AsString(); ok && strings.TrimSpace(title) != "" {
				s.Title = common.TruncateTitle(title, titleMaxLen)
			}
		}

		batch.Messages = append(batch.Messages, model.Message{
			ID: messageID, SessionID: sessionID, Role: model.NormalizeRole(role), Content: content, Ts: rec.UpdatedAt,
		})

		sourcePath, ok := payload.FirstNonEmptyString("__source_path")
		if !ok {
			sourcePath = model.AgentClaude.String()
		}
		batch.Provenance = append(batch.Provenance, model.Provenance{
			ID: model.DeterministicID("prov", messageID), EntityType: "message", EntityID: messageID,
			Agent: model.AgentClaude, SourcePath: sourcePath, SourceID: rec.SourceID,
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
