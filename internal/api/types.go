package api

import "github.com/whisper/chatxp/internal/chat"

// Match status values reported by the remote API.
const (
	StatusMatched = "MATCHED"
	StatusWaiting = "WAITING"
)

// User is returned by user creation and the auth lookup.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	MatchStatus string `json:"matchStatus,omitempty"`
	RoomID      string `json:"roomId,omitempty"`
}

// Matched reports whether the user is already paired into a room.
func (u User) Matched() bool {
	return u.MatchStatus == StatusMatched && u.RoomID != ""
}

// MatchStatus is the matchmaking ticket state for a user.
type MatchStatus struct {
	Status string `json:"status"`
	RoomID string `json:"roomId,omitempty"`
}

// Matched reports whether the ticket has been paired into a room.
func (s MatchStatus) Matched() bool {
	return s.Status == StatusMatched && s.RoomID != ""
}

// Room is a snapshot of a chat room.
type Room struct {
	ParticipantIDs []string       `json:"participantIds"`
	Messages       []chat.Message `json:"messages"`
}

type createUserReq struct {
	Username string `json:"username"`
}

type joinReq struct {
	UserID string `json:"userId"`
}

type sendReq struct {
	SenderID string `json:"senderId"`
	Content  string `json:"content"`
}
