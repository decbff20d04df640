// Package amp reads Amp's thread-JSON session transcripts. Each thread
// file is a single JSON object carrying a messages array and a sibling
// usageLedger array used to reconstruct timestamps the messages
// themselves don't carry.
package amp

import (
	"context"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lsj5031/remi/internal/adapter"
	"github.com/lsj5031/remi/internal/adapter/common"
	"github.com/lsj5031/remi/internal/jsonval"
	"github.com/lsj5031/remi/internal/model"
)

var discoveryPatterns = []string{".local/share/amp/threads/**/*.json"}

// Adapter reads Amp's thread-JSON session transcripts.
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

func (a *Adapter) Kind() model.AgentKind { return model.AgentAmp }

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
			results[i] = loadThread(path, cursor)
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

// extractTimestamp tries Amp's full per-field chain, richer than the
// common-contract default: timestamp, ts, sentAt, meta.sentAt,
// meta.timestamp, created, createdAt, time.created, time.timestamp.
func extractTimestamp(v jsonval.Value) (time.Time, bool) {
	fields := [][]string{
		{"timestamp"}, {"ts"}, {"sentAt"},
		{"meta", "sentAt"}, {"meta", "timestamp"},
		{"created"}, {"createdAt"},
		{"time", "created"}, {"time", "timestamp"},
	}
	for _, path := range fields {
		if ts, ok := common.ParseTimestampValue(v.Get(path...)); ok {
			return ts, true
		}
	}
	return time.Time{}, false
}

// parseMessageID tries messageId/id/uuid in order, string or number.
func parseMessageID(v jsonval.Value) (string, bool) {
	return common.ExtractID(v, "messageId", "id", "uuid")
}

// usageIndex maps a message id, and a message's array index, to a
// timestamp reconstructed from the thread's usageLedger.
type usageIndex struct {
	byMessageID map[string]time.Time
	byIndex     map[int]time.Time
}

func buildUsageIndex(thread jsonval.Value) usageIndex {
	idx := usageIndex{byMessageID: map[string]time.Time{}, byIndex: map[int]time.Time{}}
	ledger, ok := thread.Field("usageLedger").AsArray()
	if !ok {
		return idx
	}
	for _, entry := range ledger {
		ts, ok := extractTimestamp(entry)
		if !ok {
			continue
		}
		if id, ok := common.ExtractID(entry, "messageId", "id", "message_id"); ok {
			idx.byMessageID[id] = ts
		} else if id, ok := common.ExtractID(entry.Field("message"), "messageId", "id", "uuid"); ok {
			idx.byMessageID[id] = ts
		}
		// byIndex only trusts an explicit messageIndex: the ledger's own
		// array position isn't the message's position and the two must
		// never be conflated.
		if n, ok := entry.Field("messageIndex").AsInt64(); ok {
			idx.byIndex[int(n)] = ts
		}
	}
	return idx
}

func loadThread(path string, cursor *adapter.Cursor) []adapter.NativeRecord {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	if cursor != nil && info.ModTime().Before(cursor.Ts) {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil || !jsonval.Valid(data) {
		return nil
	}
	thread, err := jsonval.Parse(data)
	if err != nil {
		return nil
	}

	threadID, ok := parseMessageID(thread)
	if !ok {
		threadID = strings.TrimSuffix(path, ".json")
	}
	title, ok := thread.FirstNonEmptyString("title")
	if !ok {
		title = threadID
	}
	threadTs, hasThreadTs := extractTimestamp(thread)

	idx := buildUsageIndex(thread)

	messages, ok := thread.Field("messages").AsArray()
	if !ok {
		return nil
	}

	var out []adapter.NativeRecord
	for i, msg := range messages {
		messageID, ok := parseMessageID(msg)
		if !ok {
			messageID = common.FallbackRecordID(model.AgentAmp, threadID, i, mustRawBytes(msg))
		}
		role := msg.StringField("role", "user")
		content := common.ExtractContentText(msg.Field("content"))

		var ts time.Time
		switch {
		case func() bool { t, ok := extractTimestamp(msg); ts = t; return ok }():
		case func() bool { t, ok := idx.byMessageID[messageID]; ts = t; return ok }():
		case func() bool { t, ok := idx.byIndex[i]; ts = t; return ok }():
		case hasThreadTs:
			ts = threadTs.Add(time.Duration(i) * time.Millisecond)
		default:
			ts = info.ModTime()
			if ts.IsZero() {
				ts = time.Unix(0, 0).UTC().Add(time.Duration(i) * time.Millisecond)
			}
		}

		sourceID := threadID + ":" + messageID
		if common.ShouldSkip(ts, sourceID, cursor) {
			continue
		}

		raw := map[string]any{
			"role":           role,
			"content":        content,
			"__thread_id":    threadID,
			"__thread_title": title,
			"__source_path":  path,
		}
		out = append(out, adapter.NativeRecord{SourceID: sourceID, UpdatedAt: ts, Payload: jsonval.Wrap(raw)})
	}
	return out
}

func mustRawBytes(v jsonval.Value) []byte {
	// A stable-enough representation for the fallback hash: distinct
	// messages at distinct positions never collide because the index is
	// always part of the hash input too (see common.FallbackRecordID).
	if s, ok := v.AsString(); ok {
		return []byte(s)
	}
	return []byte{}
}

func (a *Adapter) Normalize(records []adapter.NativeRecord) model.NormalizedBatch {
	sessions := make(map[string]*model.Session)
	var order []string
	var batch model.NormalizedBatch

	for _, rec := range records {
		payload := rec.Payload
		role := payload.StringField("role", "user")
		content, _ := payload.Field("content").AsString()
		if strings.TrimSpace(content) == "" {
			continue
		}
		threadID, _ := payload.FirstNonEmptyString("__thread_id")
		if threadID == "" {
			threadID = rec.SourceID
		}
		title, ok := payload.FirstNonEmptyString("__thread_title")
		if !ok {
			title = threadID
		}

		sessionID := model.DeterministicID(model.AgentAmp.String(), "session", threadID)
		messageID := model.DeterministicID(model.AgentAmp.String(), "message", rec.SourceID)

		s, exists := sessions[sessionID]
		if !exists {
			s = &model.Session{ID: sessionID, Agent: model.AgentAmp, SourceRef: threadID, Title: title, CreatedAt: rec.UpdatedAt, UpdatedAt: rec.UpdatedAt}
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
		sourcePath, ok := payload.FirstNonEmptyString("__source_path")
		if !ok {
			sourcePath = model.AgentAmp.String()
		}
		batch.Provenance = append(batch.Provenance, model.Provenance{
			ID: model.DeterministicID("prov", messageID), EntityType: "message", EntityID: messageID,
			Agent: model.AgentAmp, SourcePath: sourcePath, SourceID: rec.SourceID,
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
