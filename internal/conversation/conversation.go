package conversation

import (
	"encoding/json"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MaxEncodedBytes bounds the serialized history so it fits a long-text store
// column. Oldest turns are dropped first when the transcript outgrows it.
const MaxEncodedBytes = 90_000

// Turn is one entry of a conversation transcript. A plain turn carries a role
// and text content. A turn that arrived from a backend in a richer shape
// keeps its original JSON and re-emits it byte for byte on marshal, so
// backend-specific items survive a store round-trip without this package
// interpreting them.
type Turn struct {
	Role    string
	Content string
	raw     json.RawMessage
}

func NewTurn(role, content string) Turn {
	return Turn{Role: role, Content: content}
}

// RawTurn wraps an opaque backend item. Role and Content are best-effort
// projections for replay and display; the original bytes win on marshal.
func RawTurn(data json.RawMessage) Turn {
	t := Turn{raw: append(json.RawMessage(nil), data...)}
	var fields map[string]json.RawMessage
	if json.Unmarshal(data, &fields) == nil {
		var s string
		if json.Unmarshal(fields["role"], &s) == nil {
			t.Role = s
		}
		if json.Unmarshal(fields["content"], &s) == nil {
			t.Content = s
		}
	}
	return t
}

// IsRaw reports whether the turn carries an opaque backend item.
func (t Turn) IsRaw() bool { return t.raw != nil }

// Raw returns the original backend item bytes, or nil for a plain turn.
func (t Turn) Raw() json.RawMessage { return t.raw }

type plainTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (t Turn) MarshalJSON() ([]byte, error) {
	if t.raw != nil {
		return t.raw, nil
	}
	return json.Marshal(plainTurn{Role: t.Role, Content: t.Content})
}

func (t *Turn) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		// Not an object; keep it opaque.
		*t = RawTurn(data)
		return nil
	}
	var p plainTurn
	if len(fields) == 2 && json.Unmarshal(data, &p) == nil &&
		(p.Role == RoleUser || p.Role == RoleAssistant) {
		*t = Turn{Role: p.Role, Content: p.Content}
		return nil
	}
	*t = RawTurn(data)
	return nil
}

// Record is the persisted conversation state of one external user.
// ID is the store's own row handle and stays empty until the first save;
// SessionHandle is a backend continuation token, unused by stateless
// backends.
type Record struct {
	ID            string
	UserID        string
	SessionHandle string
	Turns         []Turn
}

// EncodeHistory serializes turns to a JSON text bounded by MaxEncodedBytes.
func EncodeHistory(turns []Turn) (string, error) {
	return EncodeHistoryLimit(turns, MaxEncodedBytes)
}

// EncodeHistoryLimit serializes turns, dropping oldest turns until the
// encoding fits within maxBytes.
func EncodeHistoryLimit(turns []Turn, maxBytes int) (string, error) {
	for {
		data, err := json.Marshal(turns)
		if err != nil {
			return "", err
		}
		if len(data) <= maxBytes || len(turns) == 0 {
			return string(data), nil
		}
		turns = turns[1:]
	}
}

// DecodeHistory parses a serialized history. Malformed input degrades to an
// empty history rather than failing the request.
func DecodeHistory(s string) []Turn {
	if s == "" {
		return nil
	}
	var turns []Turn
	if err := json.Unmarshal([]byte(s), &turns); err != nil {
		return nil
	}
	return turns
}
