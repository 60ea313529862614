package chat

import "encoding/json"

// Queued is an optimistic message waiting to appear in a server snapshot.
// Base is the length of the server snapshot at the time it was queued; only
// snapshot entries at or after Base can confirm it. Sent is set once the
// server accepted the message.
type Queued struct {
	Message
	Base int  `json:"base"`
	Sent bool `json:"sent,omitempty"`
}

// UnmarshalJSON keeps Base and Sent, which the embedded Message decoder
// would otherwise swallow.
func (q *Queued) UnmarshalJSON(data []byte) error {
	var meta struct {
		Base int  `json:"base"`
		Sent bool `json:"sent"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return err
	}
	if err := q.Message.UnmarshalJSON(data); err != nil {
		return err
	}
	q.Base, q.Sent = meta.Base, meta.Sent
	return nil
}

// Transcript returns the messages to display: the server snapshot in server
// order followed by every queued entry the snapshot does not yet contain.
// Each snapshot entry confirms at most one queued entry.
func Transcript(snapshot []Message, queued []Queued) []Message {
	out := make([]Message, 0, len(snapshot)+len(queued))
	out = append(out, snapshot...)
	if len(queued) == 0 {
		return out
	}

	used := make(map[int]bool)
	for _, q := range queued {
		if i := confirmedAt(snapshot, q, used); i >= 0 {
			used[i] = true
			continue
		}
		out = append(out, q.Message)
	}
	return out
}

// Unconfirmed drops the queued entries that the snapshot already contains.
func Unconfirmed(snapshot []Message, queued []Queued) []Queued {
	if len(queued) == 0 {
		return nil
	}
	used := make(map[int]bool)
	var out []Queued
	for _, q := range queued {
		if i := confirmedAt(snapshot, q, used); i >= 0 {
			used[i] = true
			continue
		}
		out = append(out, q)
	}
	return out
}

func confirmedAt(snapshot []Message, q Queued, used map[int]bool) int {
	start := q.Base
	if start < 0 {
		start = 0
	}
	for i := start; i < len(snapshot); i++ {
		m := snapshot[i]
		if used[i] {
			continue
		}
		if m.SenderID == q.SenderID && m.Content == q.Content {
			return i
		}
	}
	return -1
}

// KeepEstimates returns next with the receive time of every Estimated
// message carried over from its copy in prev, so a message without a server
// timestamp keeps the time it was first seen. Messages match by ID, or by
// position, sender and content when they have none. next is not modified.
func KeepEstimates(prev, next []Message) []Message {
	out := next
	copied := false
	for i, m := range next {
		if !m.Estimated {
			continue
		}
		j := sameMessage(prev, m, i)
		if j < 0 || prev[j].Timestamp == m.Timestamp {
			continue
		}
		if !copied {
			out = append([]Message(nil), next...)
			copied = true
		}
		out[i].Timestamp = prev[j].Timestamp
	}
	return out
}

func sameMessage(prev []Message, m Message, i int) int {
	if m.ID != "" {
		for j, p := range prev {
			if p.ID == m.ID {
				return j
			}
		}
		return -1
	}
	if i < len(prev) && prev[i].ID == "" && prev[i].SenderID == m.SenderID && prev[i].Content == m.Content {
		return i
	}
	return -1
}
