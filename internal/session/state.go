// Package session owns the client session: which screen is shown, the
// matchmaking and chat polling lifecycles, reconnection backoff and optimistic
// sends. State changes go through the pure Reduce function; the Manager runs
// the timers and network calls and feeds their results back as events.
package session

import (
	"fmt"
	"slices"
	"strings"

	"github.com/whisper/chatxp/internal/chat"
)

// Screen is the top-level view the client shows.
type Screen string

const (
	ScreenWelcome   Screen = "welcome"
	ScreenUsername  Screen = "username"
	ScreenSearching Screen = "searching"
	ScreenChat      Screen = "chat"
)

// DefaultPartnerName is shown until the partner's username is resolved.
const DefaultPartnerName = "Stranger"

// User-visible messages.
const (
	MsgEnterUsername     = "Please enter a username!"
	MsgCreatingUser      = "Creating user..."
	MsgCreateUserFailed  = "Failed to create user."
	MsgJoiningMatch      = "Joining matchmaking..."
	MsgJoinFailed        = "Failed to join matchmaking."
	MsgRestoring         = "Restoring session..."
	MsgRetrying          = "Retrying connection..."
	MsgSendFailed        = "Failed to send message."
	MsgConnectionLost    = "Connection lost. Please refresh."
	msgReconnectingStart = "Reconnecting"
)

// State is an immutable snapshot of the session. Reduce never mutates the
// slices of the State it is given.
type State struct {
	Screen           Screen         `json:"screen"`
	Username         string         `json:"username"`
	UserID           string         `json:"userId,omitempty"`
	RoomID           string         `json:"roomId,omitempty"`
	Messages         []chat.Message `json:"messages"`
	Queued           []chat.Queued  `json:"queued,omitempty"`
	MessageInput     string         `json:"messageInput"`
	PartnerUsername  string         `json:"partnerUsername"`
	Error            string         `json:"error,omitempty"`
	Fatal            bool           `json:"fatal,omitempty"` // connection lost, needs manual retry
	IsConnected      bool           `json:"isConnected"`
	ConnectionStatus string         `json:"connectionStatus,omitempty"`
}

// Initial returns the state of a fresh client.
func Initial() State {
	return State{
		Screen:          ScreenWelcome,
		Messages:        []chat.Message{},
		PartnerUsername: DefaultPartnerName,
	}
}

// Transcript returns the messages to display, server order first, then
// optimistic entries not yet confirmed.
func (s State) Transcript() []chat.Message {
	return chat.Transcript(s.Messages, s.Queued)
}

// Event is an input to Reduce.
type Event interface {
	event()
}

type (
	ScreenSet           struct{ Screen Screen }
	UsernameSet         struct{ Username string }
	UserCreationStarted struct{}
	UserCreated         struct{ UserID string }
	MatchmakingStarted  struct{}
	ChatResumed         struct{ RoomID, UserID string }
	MatchFound          struct{ RoomID string }
	RoomLoaded          struct{ Messages []chat.Message }
	PartnerResolved     struct{ Username string }
	MessageInputSet     struct{ Text string }
	MessageQueued       struct{ Message chat.Message }
	MessageSent         struct{ LocalID string }
	MessageFailed       struct{ LocalID, Error string }
	ErrorSet            struct{ Message string }
	ConnectionLost      struct{}
	ConnectionStatusSet struct{ Status string }
	ConnectedSet        struct{ Connected bool }
	PollFailed          struct{ Attempt, Max int }
	PollSucceeded       struct{}
	RestoreFailed       struct{}
	Disconnected        struct{}
)

func (ScreenSet) event()           {}
func (UsernameSet) event()         {}
func (UserCreationStarted) event() {}
func (UserCreated) event()         {}
func (MatchmakingStarted) event()  {}
func (ChatResumed) event()         {}
func (MatchFound) event()          {}
func (RoomLoaded) event()          {}
func (PartnerResolved) event()     {}
func (MessageInputSet) event()     {}
func (MessageQueued) event()       {}
func (MessageSent) event()         {}
func (MessageFailed) event()       {}
func (ErrorSet) event()            {}
func (ConnectionLost) event()      {}
func (ConnectionStatusSet) event() {}
func (ConnectedSet) event()        {}
func (PollFailed) event()          {}
func (PollSucceeded) event()       {}
func (RestoreFailed) event()       {}
func (Disconnected) event()        {}

// Reduce is the session transition function. It performs no I/O.
func Reduce(s State, ev Event) State {
	switch e := ev.(type) {
	case ScreenSet:
		s.Screen = e.Screen
		s.ConnectionStatus = ""

	case UsernameSet:
		s.Username = e.Username
		s.Error = ""

	case UserCreationStarted:
		s.Error = ""
		s.ConnectionStatus = MsgCreatingUser

	case UserCreated:
		s.UserID = e.UserID

	case MatchmakingStarted:
		s.Messages = []chat.Message{}
		s.Queued = nil
		s.RoomID = ""
		s.PartnerUsername = DefaultPartnerName
		s.Error = ""
		s.Fatal = false
		s.IsConnected = false
		s.Screen = ScreenSearching
		s.ConnectionStatus = MsgJoiningMatch

	case ChatResumed:
		s.RoomID = e.RoomID
		s.UserID = e.UserID
		s.Screen = ScreenChat
		s.Error = ""
		s.ConnectionStatus = ""

	case MatchFound:
		s.RoomID = e.RoomID
		s.Screen = ScreenChat
		s.ConnectionStatus = ""

	case RoomLoaded:
		msgs := e.Messages
		if msgs == nil {
			msgs = []chat.Message{}
		}
		msgs = chat.KeepEstimates(s.Messages, msgs)
		s.Queued = chat.Unconfirmed(msgs, s.Queued)
		s.Messages = msgs

	case PartnerResolved:
		s.PartnerUsername = e.Username

	case MessageInputSet:
		s.MessageInput = e.Text

	case MessageQueued:
		q := chat.Queued{Message: e.Message, Base: len(s.Messages)}
		s.Queued = append(slices.Clone(s.Queued), q)
		s.MessageInput = ""

	case MessageSent:
		// Stays queued until a snapshot contains it, so a poll that started
		// before the send cannot hide it.
		if i := queuedIndex(s.Queued, e.LocalID); i >= 0 {
			s.Queued = slices.Clone(s.Queued)
			s.Queued[i].Sent = true
		}

	case MessageFailed:
		if i := queuedIndex(s.Queued, e.LocalID); i >= 0 {
			s.Queued = slices.Delete(slices.Clone(s.Queued), i, i+1)
		}
		s.Error = e.Error
		s.ConnectionStatus = ""

	case ErrorSet:
		s.Error = e.Message
		if e.Message == "" {
			s.Fatal = false
		}
		s.ConnectionStatus = ""

	case ConnectionLost:
		s.Error = MsgConnectionLost
		s.Fatal = true
		s.IsConnected = false
		s.ConnectionStatus = ""

	case ConnectionStatusSet:
		s.ConnectionStatus = e.Status

	case ConnectedSet:
		s.IsConnected = e.Connected

	case PollFailed:
		s.IsConnected = false
		s.ConnectionStatus = fmt.Sprintf("%s (attempt %d/%d)...", msgReconnectingStart, e.Attempt, e.Max)

	case PollSucceeded:
		s.IsConnected = true
		if strings.HasPrefix(s.ConnectionStatus, msgReconnectingStart) {
			s.ConnectionStatus = ""
		}

	case RestoreFailed, Disconnected:
		return Initial()
	}
	return s
}

func queuedIndex(q []chat.Queued, localID string) int {
	return slices.IndexFunc(q, func(e chat.Queued) bool { return e.LocalID == localID })
}
