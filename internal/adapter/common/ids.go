package common

import (
	"strings"

	"github.com/lsj5031/remi/internal/jsonval"
	"github.com/lsj5031/remi/internal/model"
)

// ExtractID tries each named field in order, accepting a string or
// integer value (a float with a zero fractional part is rendered as an
// integer string). Whitespace is trimmed and empty results rejected.
func ExtractID(v jsonval.Value, fields ...string) (string, bool) {
	for _, f := range fields {
		field := v.Field(f)
		if s, ok := field.AsString(); ok {
			s = strings.TrimSpace(s)
			if s != "" {
				return s, true
			}
			continue
		}
		if n, ok := field.AsInt64(); ok {
			return formatInt(n), true
		}
	}
	return "", false
}

func formatInt(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// FallbackRecordID builds a deterministic hash id for a record lacking an
// explicit id: repeated identical records from the same file position
// hash identically, yet different records never collide.
func FallbackRecordID(agent model.AgentKind, threadID string, index int, raw []byte) string {
	return model.DeterministicID(agent.String(), "message-fallback", threadID, formatInt(int64(index)), string(raw))
}
