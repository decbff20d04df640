package common

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lsj5031/remi/internal/adapter"
	"github.com/lsj5031/remi/internal/jsonval"
	"github.com/lsj5031/remi/internal/model"
)

// LoadJSONL is the flat-JSONL scan shared by Droid and any other adapter
// whose source is one JSON object per line. Files are read in parallel
// (bounded by GOMAXPROCS); each worker only appends to its own slice, and
// the combined result is sorted once, sequentially, after the fan-in —
// no shared mutable accumulator during the parallel phase.
func LoadJSONL(ctx context.Context, paths []string, cursor *adapter.Cursor) ([]adapter.NativeRecord, error) {
	results := make([][]adapter.NativeRecord, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, runtime.GOMAXPROCS(0)))
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			results[i] = loadOneJSONLFile(path, cursor)
			return nil
		})
	}
	_ = g.Wait() // per-file failures are swallowed inside loadOneJSONLFile

	var combined []adapter.NativeRecord
	for _, r := range results {
		combined = append(combined, r...)
	}
	sortRecords(combined)
	return combined, nil
}

func loadOneJSONLFile(path string, cursor *adapter.Cursor) []adapter.NativeRecord {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	if cursor != nil && info.ModTime().Before(cursor.Ts) {
		return nil // fast-skip whole file
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
		if line == "" {
			continue
		}
		if !jsonval.Valid([]byte(line)) {
			continue
		}
		val, err := jsonval.Parse([]byte(line))
		if err != nil {
			continue
		}
		ts, ok := ExtractTs(val)
		if !ok {
			ts = info.ModTime()
		}
		sourceID, ok := ExtractID(val, "id")
		if !ok {
			sourceID = model.DeterministicID(path, strconv.Itoa(lineNo))
		}
		if ShouldSkip(ts, sourceID, cursor) {
			continue
		}
		raw, err := jsonval.Inject([]byte(line), "__source_path", path)
		if err == nil {
			raw, err = jsonval.Inject(raw, "__session_seed", stem)
		}
		if err != nil {
			raw = []byte(line)
		}
		payload, err := jsonval.Parse(raw)
		if err != nil {
			payload = val
		}
		out = append(out, adapter.NativeRecord{SourceID: sourceID, UpdatedAt: ts, Payload: payload})
	}
	return out
}

func sortRecords(records []adapter.NativeRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].UpdatedAt.Equal(records[j].UpdatedAt) {
			return records[i].UpdatedAt.Before(records[j].UpdatedAt)
		}
		return records[i].SourceID < records[j].SourceID
	})
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// NormalizeJSONLRecords is the flat-JSONL normalize shared by Droid: each
// record must carry type=="message" and a "message" object; role defaults
// to "user"; empty content discards the record. Sessions accumulate
// across records sharing a session seed, widening their time bounds.
func NormalizeJSONLRecords(kind model.AgentKind, records []adapter.NativeRecord) model.NormalizedBatch {
	sessions := make(map[string]*model.Session)
	var order []string
	var batch model.NormalizedBatch

	for _, rec := range records {
		payload := rec.Payload
		if t, _ := payload.Field("type").AsString(); t != "message" {
			continue
		}
		msgNode := payload.Field("message")
		if _, ok := msgNode.AsObject(); !ok {
			continue
		}
		role := msgNode.StringField("role", "user")
		content := ExtractContentText(msgNode.Field("content"))
		if strings.TrimSpace(content) == "" {
			continue
		}

		sessionSeed, ok := payload.FirstNonEmptyString("sessionId", "session", "__session_seed")
		if !ok {
			sessionSeed = rec.SourceID
		}
		title, ok := payload.FirstNonEmptyString("sessionTitle")
		if !ok {
			title = sessionSeed
		}

		sessionID := model.DeterministicID(kind.String(), "session", sessionSeed)
		messageID := model.DeterministicID(kind.String(), "message", rec.SourceID)

		s, exists := sessions[sessionID]
		if !exists {
			s = &model.Session{ID: sessionID, Agent: kind, SourceRef: sessionSeed, Title: title, CreatedAt: rec.UpdatedAt, UpdatedAt: rec.UpdatedAt}
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
		sourcePath, _ := payload.FirstNonEmptyString("__source_path")
		if sourcePath == "" {
			sourcePath = kind.String()
		}
		batch.Provenance = append(batch.Provenance, model.Provenance{
			ID: model.DeterministicID("prov", messageID), EntityType: "message", EntityID: messageID,
			Agent: kind, SourcePath: sourcePath, SourceID: rec.SourceID,
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
