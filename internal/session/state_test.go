package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/chatxp/internal/chat"
)

func chatState() State {
	s := Initial()
	s = Reduce(s, UsernameSet{Username: "alice"})
	s = Reduce(s, UserCreated{UserID: "u1"})
	s = Reduce(s, MatchmakingStarted{})
	s = Reduce(s, MatchFound{RoomID: "r1"})
	s = Reduce(s, RoomLoaded{Messages: []chat.Message{}})
	s = Reduce(s, PollSucceeded{})
	return s
}

func TestReduce_HappyPath(t *testing.T) {
	s := chatState()
	assert.Equal(t, ScreenChat, s.Screen)
	assert.Equal(t, "r1", s.RoomID)
	assert.Equal(t, "u1", s.UserID)
	assert.True(t, s.IsConnected)
	assert.Equal(t, DefaultPartnerName, s.PartnerUsername)

	s = Reduce(s, PartnerResolved{Username: "bob"})
	assert.Equal(t, "bob", s.PartnerUsername)
}

func TestReduce_MatchmakingClearsRoom(t *testing.T) {
	s := chatState()
	s = Reduce(s, RoomLoaded{Messages: []chat.Message{{ID: "m1", SenderID: "u2", Content: "hey"}}})
	s = Reduce(s, PartnerResolved{Username: "bob"})
	s = Reduce(s, ConnectionLost{})

	s = Reduce(s, MatchmakingStarted{})
	assert.Equal(t, ScreenSearching, s.Screen)
	assert.Empty(t, s.RoomID)
	assert.Empty(t, s.Messages)
	assert.NotNil(t, s.Messages)
	assert.Equal(t, DefaultPartnerName, s.PartnerUsername)
	assert.False(t, s.Fatal)
	assert.Empty(t, s.Error)
	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, MsgJoiningMatch, s.ConnectionStatus)
}

func TestReduce_PollFailureStatus(t *testing.T) {
	s := chatState()
	s = Reduce(s, PollFailed{Attempt: 2, Max: 6})
	assert.False(t, s.IsConnected)
	assert.Equal(t, "Reconnecting (attempt 2/6)...", s.ConnectionStatus)

	s = Reduce(s, PollSucceeded{})
	assert.True(t, s.IsConnected)
	assert.Empty(t, s.ConnectionStatus)

	// Unrelated status survives a successful poll.
	s = Reduce(s, ConnectionStatusSet{Status: MsgRetrying})
	s = Reduce(s, PollSucceeded{})
	assert.Equal(t, MsgRetrying, s.ConnectionStatus)
}

func TestReduce_ConnectionLostIsFatalUntilCleared(t *testing.T) {
	s := Reduce(chatState(), ConnectionLost{})
	assert.True(t, s.Fatal)
	assert.False(t, s.IsConnected)
	assert.Equal(t, MsgConnectionLost, s.Error)

	s = Reduce(s, ErrorSet{})
	assert.False(t, s.Fatal)
	assert.Empty(t, s.Error)
}

func TestReduce_OptimisticLifecycle(t *testing.T) {
	s := chatState()
	s = Reduce(s, MessageInputSet{Text: "hi"})
	s = Reduce(s, MessageQueued{Message: chat.Message{LocalID: "local-1", SenderID: "u1", Content: "hi"}})
	assert.Empty(t, s.MessageInput)
	require.Len(t, s.Transcript(), 1)
	assert.True(t, s.Transcript()[0].Pending())

	// A snapshot that already holds the message confirms it.
	s = Reduce(s, RoomLoaded{Messages: []chat.Message{{ID: "m1", SenderID: "u1", Content: "hi"}}})
	assert.Empty(t, s.Queued)
	require.Len(t, s.Transcript(), 1)
	assert.Equal(t, "m1", s.Transcript()[0].ID)
}

func TestReduce_MessageSentKeepsEntryVisible(t *testing.T) {
	s := chatState()
	s = Reduce(s, MessageQueued{Message: chat.Message{LocalID: "local-1", SenderID: "u1", Content: "hi"}})
	s = Reduce(s, MessageSent{LocalID: "local-1"})
	require.Len(t, s.Queued, 1)
	assert.True(t, s.Queued[0].Sent)
	assert.Empty(t, s.Messages)

	// A poll that started before the send returns without the message.
	s = Reduce(s, RoomLoaded{Messages: []chat.Message{}})
	require.Len(t, s.Transcript(), 1)
	assert.Equal(t, "hi", s.Transcript()[0].Content)

	s = Reduce(s, RoomLoaded{Messages: []chat.Message{{ID: "m1", SenderID: "u1", Content: "hi"}}})
	assert.Empty(t, s.Queued)
	require.Len(t, s.Transcript(), 1)
	assert.Equal(t, "m1", s.Transcript()[0].ID)
}

func TestReduce_MessageFailedRemovesOnlyThatEntry(t *testing.T) {
	s := chatState()
	s = Reduce(s, MessageQueued{Message: chat.Message{LocalID: "a", SenderID: "u1", Content: "one"}})
	s = Reduce(s, MessageQueued{Message: chat.Message{LocalID: "b", SenderID: "u1", Content: "two"}})
	s = Reduce(s, MessageFailed{LocalID: "a", Error: MsgSendFailed})

	require.Len(t, s.Queued, 1)
	assert.Equal(t, "b", s.Queued[0].LocalID)
	assert.Equal(t, MsgSendFailed, s.Error)
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	s := chatState()
	s = Reduce(s, MessageQueued{Message: chat.Message{LocalID: "a", SenderID: "u1", Content: "one"}})
	before := s
	queued := s.Queued

	_ = Reduce(s, MessageQueued{Message: chat.Message{LocalID: "b", SenderID: "u1", Content: "two"}})
	_ = Reduce(s, MessageFailed{LocalID: "a"})
	_ = Reduce(s, MessageSent{LocalID: "a"})

	assert.Equal(t, before, s)
	require.Len(t, queued, 1)
	assert.Equal(t, "a", queued[0].LocalID)
}

func TestReduce_ResetEvents(t *testing.T) {
	for _, ev := range []Event{RestoreFailed{}, Disconnected{}} {
		assert.Equal(t, Initial(), Reduce(chatState(), ev))
	}
}

func TestReduce_ScreenSetClearsStatus(t *testing.T) {
	s := Reduce(Initial(), ConnectionStatusSet{Status: MsgRestoring})
	s = Reduce(s, ScreenSet{Screen: ScreenUsername})
	assert.Equal(t, ScreenUsername, s.Screen)
	assert.Empty(t, s.ConnectionStatus)
}

func TestReduce_EstimatedTimestampsAreStable(t *testing.T) {
	s := chatState()
	s = Reduce(s, RoomLoaded{Messages: []chat.Message{
		{SenderID: "u2", Content: "hey", Timestamp: 1000, Estimated: true},
	}})
	s = Reduce(s, RoomLoaded{Messages: []chat.Message{
		{SenderID: "u2", Content: "hey", Timestamp: 5000, Estimated: true},
		{SenderID: "u2", Content: "still there?", Timestamp: 5000, Estimated: true},
	}})
	require.Len(t, s.Messages, 2)
	assert.Equal(t, chat.Timestamp(1000), s.Messages[0].Timestamp)
	assert.Equal(t, chat.Timestamp(5000), s.Messages[1].Timestamp)
}
