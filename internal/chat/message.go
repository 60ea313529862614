package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Message is a single chat line. Messages returned by the server carry an ID;
// messages queued locally before the server confirmed them carry a LocalID.
type Message struct {
	ID        string    `json:"id,omitempty"`
	LocalID   string    `json:"localId,omitempty"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	Timestamp Timestamp `json:"timestamp"`

	// Estimated is set when the server sent no usable timestamp and
	// Timestamp holds the time the message was first received.
	Estimated bool `json:"-"`
}

// UnmarshalJSON decodes a wire message, substituting the receive time for a
// missing, null, zero or unparseable timestamp and marking it Estimated.
func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var w struct {
		plain
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ts, ok, err := decodeTimestamp(w.Timestamp)
	if err != nil {
		return err
	}
	*m = Message(w.plain)
	m.Timestamp, m.Estimated = ts, !ok
	if !ok {
		m.Timestamp = Now()
	}
	return nil
}

// Pending reports whether the message is an optimistic local entry.
func (m Message) Pending() bool {
	return m.LocalID != "" && m.ID == ""
}

// Time returns the message timestamp as a time.Time.
func (m Message) Time() time.Time {
	return time.UnixMilli(int64(m.Timestamp))
}

// Timestamp is a point in time in epoch milliseconds. On the wire the server
// may send either an ISO-8601 string or a numeric epoch value.
type Timestamp int64

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return Timestamp(time.Now().UnixMilli())
}

// isoLayouts are tried in order when the server sends a string timestamp.
// Values without a zone are read as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp converts an ISO-8601 string to epoch milliseconds.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp(t.UnixMilli()), nil
		}
	}
	return 0, fmt.Errorf("chat: unrecognised timestamp %q", s)
}

// UnmarshalJSON accepts a JSON string (ISO-8601) or number (epoch ms). Null,
// zero and unparseable values fall back to the receive time.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	parsed, ok, err := decodeTimestamp(data)
	if err != nil {
		return err
	}
	if !ok {
		parsed = Now()
	}
	*ts = parsed
	return nil
}

// decodeTimestamp reports ok=false when data carries no usable time.
func decodeTimestamp(data []byte) (Timestamp, bool, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0, false, nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return 0, false, fmt.Errorf("chat: timestamp: %w", err)
		}
		parsed, err := ParseTimestamp(s)
		if err != nil {
			return 0, false, nil
		}
		return parsed, true, nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return 0, false, fmt.Errorf("chat: timestamp: %w", err)
	}
	if f == 0 {
		return 0, false, nil
	}
	return Timestamp(int64(f)), true, nil
}

// PartnerID returns the first participant that is not self, or "" when the
// room has nobody else in it.
func PartnerID(participants []string, self string) string {
	for _, id := range participants {
		if id != "" && id != self {
			return id
		}
	}
	return ""
}
