package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// HeaderUserID identifies the caller to the auth lookup endpoint.
const HeaderUserID = "X-User-Id"

// CreateUser registers a new anonymous user.
func (c *Client) CreateUser(ctx context.Context, username string) (User, error) {
	var u User
	err := c.Do(ctx, "/api/users", Request{
		Name:   "create_user",
		Method: http.MethodPost,
		Body:   createUserReq{Username: username},
	}, &u)
	if err != nil {
		return User{}, err
	}
	if u.ID == "" {
		return User{}, fmt.Errorf("%w: invalid server response: missing user id", ErrBadResponse)
	}
	return u, nil
}

// Me looks up a user by identifier. It is used both to restore the caller's
// own session and to resolve the partner's display name.
func (c *Client) Me(ctx context.Context, userID string) (User, error) {
	var u User
	h := http.Header{}
	h.Set(HeaderUserID, userID)
	err := c.Do(ctx, "/api/auth/me", Request{
		Name:   "auth_me",
		Header: h,
	}, &u)
	return u, err
}

// JoinMatchmaking enters the user into the matchmaking queue.
func (c *Client) JoinMatchmaking(ctx context.Context, userID string) error {
	return c.Do(ctx, "/api/matchmaking/join", Request{
		Name:   "matchmaking_join",
		Method: http.MethodPost,
		Body:   joinReq{UserID: userID},
	}, nil)
}

// MatchStatus reports the user's matchmaking ticket.
func (c *Client) MatchStatus(ctx context.Context, userID string) (MatchStatus, error) {
	var s MatchStatus
	err := c.Do(ctx, "/api/matchmaking/status/"+url.PathEscape(userID), Request{
		Name: "matchmaking_status",
	}, &s)
	return s, err
}

// Room fetches the room snapshot.
func (c *Client) Room(ctx context.Context, roomID string) (Room, error) {
	var r Room
	err := c.Do(ctx, "/api/chat/"+url.PathEscape(roomID), Request{
		Name: "chat_room",
	}, &r)
	return r, err
}

// SendMessage posts a message to the room.
func (c *Client) SendMessage(ctx context.Context, roomID, senderID, content string) error {
	return c.Do(ctx, "/api/chat/"+url.PathEscape(roomID)+"/send", Request{
		Name:   "chat_send",
		Method: http.MethodPost,
		Body:   sendReq{SenderID: senderID, Content: content},
	}, nil)
}
