package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranscript_AppendsUnconfirmed(t *testing.T) {
	snapshot := []Message{{ID: "m1", SenderID: "u2", Content: "hello"}}
	queued := []Queued{{Message: Message{LocalID: "l1", SenderID: "u1", Content: "hi"}, Base: 1}}

	got := Transcript(snapshot, queued)
	if assert.Len(t, got, 2) {
		assert.Equal(t, "m1", got[0].ID)
		assert.Equal(t, "l1", got[1].LocalID)
	}
}

func TestTranscript_DedupsConfirmed(t *testing.T) {
	queued := []Queued{{Message: Message{LocalID: "l1", SenderID: "u1", Content: "hi"}, Base: 1}}
	snapshot := []Message{
		{ID: "m1", SenderID: "u2", Content: "hello"},
		{ID: "m2", SenderID: "u1", Content: "hi"},
	}

	got := Transcript(snapshot, queued)
	assert.Len(t, got, 2)
	assert.Empty(t, Unconfirmed(snapshot, queued))
}

func TestTranscript_OlderIdenticalMessageDoesNotConfirm(t *testing.T) {
	// "hi" sent earlier in the conversation must not hide a new "hi".
	snapshot := []Message{{ID: "m0", SenderID: "u1", Content: "hi"}}
	queued := []Queued{{Message: Message{LocalID: "l1", SenderID: "u1", Content: "hi"}, Base: 1}}

	got := Transcript(snapshot, queued)
	assert.Len(t, got, 2)
	assert.Len(t, Unconfirmed(snapshot, queued), 1)
}

func TestTranscript_OneSnapshotEntryConfirmsOneQueued(t *testing.T) {
	queued := []Queued{
		{Message: Message{LocalID: "l1", SenderID: "u1", Content: "hi"}, Base: 0},
		{Message: Message{LocalID: "l2", SenderID: "u1", Content: "hi"}, Base: 0},
	}
	snapshot := []Message{{ID: "m1", SenderID: "u1", Content: "hi"}}

	left := Unconfirmed(snapshot, queued)
	if assert.Len(t, left, 1) {
		assert.Equal(t, "l2", left[0].LocalID)
	}
}

func TestKeepEstimates(t *testing.T) {
	prev := []Message{
		{ID: "m1", SenderID: "u2", Content: "a", Timestamp: 100, Estimated: true},
		{SenderID: "u2", Content: "b", Timestamp: 200, Estimated: true},
	}
	next := []Message{
		{ID: "m1", SenderID: "u2", Content: "a", Timestamp: 900, Estimated: true},
		{SenderID: "u2", Content: "b", Timestamp: 900, Estimated: true},
		{SenderID: "u2", Content: "c", Timestamp: 900, Estimated: true},
		{ID: "m4", SenderID: "u1", Content: "d", Timestamp: 400},
	}

	got := KeepEstimates(prev, next)
	assert.Equal(t, Timestamp(100), got[0].Timestamp)
	assert.Equal(t, Timestamp(200), got[1].Timestamp)
	assert.Equal(t, Timestamp(900), got[2].Timestamp, "new message keeps its receive time")
	assert.Equal(t, Timestamp(400), got[3].Timestamp)
	assert.Equal(t, Timestamp(900), next[0].Timestamp, "input untouched")
}

func TestKeepEstimates_PositionMustMatch(t *testing.T) {
	prev := []Message{{SenderID: "u2", Content: "a", Timestamp: 100, Estimated: true}}
	next := []Message{{SenderID: "u2", Content: "other", Timestamp: 900, Estimated: true}}
	assert.Equal(t, Timestamp(900), KeepEstimates(prev, next)[0].Timestamp)
}
