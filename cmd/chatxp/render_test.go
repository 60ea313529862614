package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/whisper/chatxp/internal/chat"
	"github.com/whisper/chatxp/internal/session"
)

func TestRenderer_ChatFlow(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	s := session.Initial()
	r.render(s)
	assert.Contains(t, buf.String(), "Press Enter")

	s = session.Reduce(s, session.UserCreated{UserID: "u1"})
	s = session.Reduce(s, session.MatchmakingStarted{})
	s = session.Reduce(s, session.MatchFound{RoomID: "r1"})
	s = session.Reduce(s, session.PartnerResolved{Username: "bob"})
	s = session.Reduce(s, session.PollSucceeded{})
	r.render(s)
	assert.Contains(t, buf.String(), "chatting with bob")

	s = session.Reduce(s, session.RoomLoaded{Messages: []chat.Message{
		{ID: "m1", SenderID: "u2", Content: "hey", Timestamp: 1},
	}})
	r.render(s)
	r.render(s)
	assert.Equal(t, 1, strings.Count(buf.String(), "bob] hey"))

	// Own message: shown once while pending and not again when confirmed.
	s = session.Reduce(s, session.MessageQueued{Message: chat.Message{LocalID: "local-1", SenderID: "u1", Content: "hi", Timestamp: 2}})
	r.render(s)
	s = session.Reduce(s, session.MessageSent{LocalID: "local-1"})
	r.render(s)
	s = session.Reduce(s, session.RoomLoaded{Messages: []chat.Message{
		{ID: "m1", SenderID: "u2", Content: "hey", Timestamp: 1},
		{ID: "m2", SenderID: "u1", Content: "hi", Timestamp: 2},
	}})
	r.render(s)
	assert.Equal(t, 1, strings.Count(buf.String(), "you] hi"))
}

func TestRenderer_Errors(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	s := session.Initial()
	s.Screen = session.ScreenChat
	s.UserID, s.RoomID = "u1", "r1"
	r.render(s)

	s = session.Reduce(s, session.PollFailed{Attempt: 1, Max: 6})
	r.render(s)
	assert.Contains(t, buf.String(), "Reconnecting (attempt 1/6)...")

	s = session.Reduce(s, session.ConnectionLost{})
	r.render(s)
	assert.Contains(t, buf.String(), session.MsgConnectionLost)
	assert.Contains(t, buf.String(), "/retry")
}

func TestRenderer_MessagesWithoutID(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	s := session.Initial()
	s = session.Reduce(s, session.UserCreated{UserID: "u1"})
	s = session.Reduce(s, session.MatchFound{RoomID: "r1"})
	s = session.Reduce(s, session.PartnerResolved{Username: "bob"})
	s = session.Reduce(s, session.RoomLoaded{Messages: []chat.Message{
		{SenderID: "u2", Content: "first", Timestamp: 1},
		{SenderID: "u2", Content: "second", Timestamp: 2},
	}})
	r.render(s)

	s = session.Reduce(s, session.RoomLoaded{Messages: []chat.Message{
		{SenderID: "u2", Content: "first", Timestamp: 1},
		{SenderID: "u2", Content: "second", Timestamp: 2},
		{SenderID: "u2", Content: "third", Timestamp: 3},
	}})
	r.render(s)

	out := buf.String()
	for _, want := range []string{"bob] first", "bob] second", "bob] third"} {
		assert.Equal(t, 1, strings.Count(out, want), want)
	}
}

func TestRenderer_OwnMessageConfirmedWithoutID(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	s := session.Initial()
	s = session.Reduce(s, session.UserCreated{UserID: "u1"})
	s = session.Reduce(s, session.MatchFound{RoomID: "r1"})
	s = session.Reduce(s, session.MessageQueued{Message: chat.Message{LocalID: "local-1", SenderID: "u1", Content: "hi", Timestamp: 1}})
	r.render(s)
	s = session.Reduce(s, session.RoomLoaded{Messages: []chat.Message{{SenderID: "u1", Content: "hi", Timestamp: 1}}})
	r.render(s)

	assert.Equal(t, 1, strings.Count(buf.String(), "you] hi"))
}
