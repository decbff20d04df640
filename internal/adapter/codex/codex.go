// Package codex reads Codex CLI's rollout-format session transcripts: a
// sequence of typed lines where session_meta records carry the session
// id and working directory, and response_item records wrap a message
// payload.
package codex

import (
	"context"
	"os"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lsj5031/remi/internal/adapter"
	"github.com/lsj5031/remi/internal/adapter/common"
	"github.com/lsj5031/remi/internal/jsonval"
	"github.com/lsj5031/remi/internal/model"
)

var discoveryPatterns = []string{".codex/sessions/**/*.jsonl"}

const titleMaxLen = 80

// Adapter reads Codex CLI's rollout-format session transcripts.
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

func (a *Adapter) Kind() model.AgentKind { return model.AgentCodex }

func (a *Adapter) DiscoverSourcePaths(ctx context.Context) ([]string, error) {
	return common.Discover(a.home(), discoveryPatterns...)
}

func (a *Adapter) ScanChangesSince(ctx context.Context, paths []string, cursor *adapter.Cursor) ([]adapter.NativeRecord, error) {
	results := make([][]adapter.NativeRecord, len(paths))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(maxInt(1, runtime.GOMAXPROCS(0)))
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			results[i] = loadRollout(path, cursor)
			return nil
		})
	}
	_ = g.Wait()

	var combined []adapter.NativeRecord
	for _, r := range results {
		combined = append(combined, r...)
	}
	sort.Slice(combined, func(i, j int) bool {
		if !combined[i].UpdatedAt.Equal(combined[j].UpdatedAt) {
			return combined[i].UpdatedAt.Before(combined[j].UpdatedAt)
		}
		return combined[i].SourceID < combined[j].SourceID
	})
	return combined, nil
}

// extractCodexText reads input_text/output_text array parts, the Codex
// rollout's equivalent of Claude's text/thinking parts.
func extractCodexText(content jsonval.Value) string {
	if s, ok := content.AsString(); ok {
		return s
	}
	items, ok := content.AsArray()
	if !ok {
		return ""
	}
	var parts []string
	for _, item := range items {
		t, _ := item.Field("type").AsString()
		if t != "input_text" && t != "output_text" {
			continue
		}
		if text, ok := item.Field("text").AsString(); ok && strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

func loadRollout(path string, cursor *adapter.Cursor) []adapter.NativeRecord {
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

	var (
		sessionID     string
		sessionTs     = info.ModTime()
		sessionTsSeen bool
		workspacePath string
		firstUserText string
		msgIndex      int
	)

	var out []adapter.NativeRecord
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !jsonval.Valid([]byte(line)) {
			continue
		}
		val, err := jsonval.Parse([]byte(line))
		if err != nil {
			continue
		}
		lineType, _ := val.Field("type").AsString()
		payload := val.Field("payload")

		switch lineType {
		case "session_meta":
			if !sessionTsSeen {
				if id, ok := payload.FirstNonEmptyString("id"); ok {
					sessionID = id
				}
				if cwd, ok := payload.FirstNonEmptyString("cwd"); ok {
					workspacePath = cwd
				}
				if ts, ok := common.ExtractTs(val); ok {
					sessionTs = ts
				}
				sessionTsSeen = true
			}
		case "response_item":
			if t, _ := payload.Field("type").AsString(); t != "message" {
				continue
			}
			role := payload.StringField("role", "user")
			if role == "developer" || role == "system" {
				continue
			}
			text := extractCodexText(payload.Field("content"))
			if strings.TrimSpace(text) == "" {
				continue
			}
			if role == "user" && firstUserText == "" {
				firstUserText = text
			}
			if sessionID == "" {
				sessionID = path
			}
			sourceID := sessionID + ":" + itoa(msgIndex)
			msgIndex++

			injected, ierr := jsonval.Inject([]byte(line), "__thread_id", sessionID)
			if ierr == nil {
				title := sessionID
				if firstUserText != "" {
					title = common.TruncateTitle(firstUserText, titleMaxLen)
				}
				injected, ierr = jsonval.Inject(injected, "__thread_title", title)
			}
			if ierr == nil && workspacePath != "" {
				injected, ierr = jsonval.Inject(injected, "__workspace_path", workspacePath)
			}
			if ierr == nil {
				injected, ierr = jsonval.Inject(injected, "__role", role)
			}
			if ierr == nil {
				injected, ierr = jsonval.Inject(injected, "__content", text)
			}
			if ierr != nil {
				injected = []byte(line)
			}
			recPayload, perr := jsonval.Parse(injected)
			if perr != nil {
				recPayload = val
			}

			ts := sessionTs
			if recTs, ok := common.ExtractTs(val); ok {
				ts = recTs
			}
			if common.ShouldSkip(ts, sourceID, cursor) {
				continue
			}
			out = append(out, adapter.NativeRecord{SourceID: sourceID, UpdatedAt: ts, Payload: recPayload})
		}
	}
	return out
}

func (a *Adapter) Normalize(records []adapter.NativeRecord) model.NormalizedBatch {
	sessions := make(map[string]*model.Session)
	var order []string
	var batch model.NormalizedBatch

	for _, rec := range records {
		payload := rec.Payload
		role, _ := payload.Field("__role").AsString()
		content, _ := payload.Field("__content").AsString()
		threadID, ok := payload.FirstNonEmptyString("__thread_id")
		if !ok {
			threadID = rec.SourceID
		}
		title, ok := payload.FirstNonEmptyString("__thread_title")
		if !ok {
			title = threadID
		}

		sessionID := model.DeterministicID(model.AgentCodex.String(), "session", threadID)
		messageID := model.DeterministicID(model.AgentCodex.String(), "message", rec.SourceID)

		s, exists := sessions[sessionID]
		if !exists {
			s = &model.Session{ID: sessionID, Agent: model.AgentCodex, SourceRef: threadID, Title: title, CreatedAt: rec.UpdatedAt, UpdatedAt: rec.UpdatedAt}
			sessions[sessionID] = s
			order = append(order, sessionID)
		} else {
			if rec.UpdatedAt.Before(s.CreatedAt) {
				s.CreatedAt = rec.UpdatedAt
			}
			if rec.UpdatedAt.After(s.UpdatedAt) {
				s.UpdatedAt = rec.UpdatedAt
			}
			if s.Title == "" {
				s.Title = title
			}
		}

		batch.Messages = append(batch.Messages, model.Message{
			ID: messageID, SessionID: sessionID, Role: model.NormalizeRole(role), Content: content, Ts: rec.UpdatedAt,
		})
		sourcePath, ok := payload.FirstNonEmptyString("__workspace_path")
		if !ok {
			sourcePath = model.AgentCodex.String()
		}
		batch.Provenance = append(batch.Provenance, model.Provenance{
			ID: model.DeterministicID("prov", messageID), EntityType: "message", EntityID: messageID,
			Agent: model.AgentCodex, SourcePath: sourcePath, SourceID: rec.SourceID,
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

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

var _ adapter.Adapter = (*Adapter)(nil)
