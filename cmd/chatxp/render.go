package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/whisper/chatxp/internal/chat"
	"github.com/whisper/chatxp/internal/session"
)

// renderer prints session snapshots as an append-only terminal log. It only
// writes what changed since the previous snapshot.
type renderer struct {
	w       io.Writer
	prev    session.State
	started bool
	room    string
	seen    map[string]bool
	ownSent []string // contents of own optimistic messages printed before a snapshot held them
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w, seen: make(map[string]bool)}
}

func (r *renderer) render(s session.State) {
	if !r.started || s.Screen != r.prev.Screen {
		r.screen(s)
	}
	if s.RoomID != r.room {
		r.room = s.RoomID
		r.seen = make(map[string]bool)
		r.ownSent = nil
	}
	if s.Screen == session.ScreenChat {
		if s.PartnerUsername != r.prev.PartnerUsername && r.started && r.prev.Screen == session.ScreenChat {
			fmt.Fprintf(r.w, "* You are talking to %s.\n", s.PartnerUsername)
		}
		for i, m := range s.Transcript() {
			r.message(s, i, m)
		}
	}
	if s.ConnectionStatus != "" && s.ConnectionStatus != r.prev.ConnectionStatus {
		fmt.Fprintf(r.w, "... %s\n", s.ConnectionStatus)
	}
	if s.Error != "" && (s.Error != r.prev.Error || s.Fatal != r.prev.Fatal) {
		if s.Fatal {
			fmt.Fprintf(r.w, "!! %s Type /retry to reconnect.\n", s.Error)
		} else {
			fmt.Fprintf(r.w, "!! %s\n", s.Error)
		}
	}
	if r.started && r.prev.Screen == session.ScreenChat && s.Screen == session.ScreenChat &&
		!r.prev.IsConnected && s.IsConnected {
		fmt.Fprintln(r.w, "* Reconnected.")
	}
	r.prev = s
	r.started = true
}

func (r *renderer) screen(s session.State) {
	switch s.Screen {
	case session.ScreenWelcome:
		fmt.Fprintln(r.w, "=== ChatXP: talk to a random stranger ===")
		fmt.Fprintln(r.w, "Press Enter to start.")
	case session.ScreenUsername:
		if s.Username != "" {
			fmt.Fprintf(r.w, "Welcome back, %s. Enter a username to find a new partner:\n", s.Username)
		} else {
			fmt.Fprintln(r.w, "Choose a username:")
		}
	case session.ScreenSearching:
		fmt.Fprintln(r.w, "Looking for a stranger...")
	case session.ScreenChat:
		fmt.Fprintf(r.w, "* You are now chatting with %s. /next for someone else, /quit to leave.\n", s.PartnerUsername)
	}
}

// message prints m unless it was printed before. Server messages without an
// id are keyed by their position, which is stable because snapshots only grow.
func (r *renderer) message(s session.State, i int, m chat.Message) {
	key := m.ID
	switch {
	case key != "":
	case m.LocalID != "":
		key = "local:" + m.LocalID
	default:
		key = "#" + strconv.Itoa(i)
	}
	if r.seen[key] {
		return
	}
	r.seen[key] = true

	own := m.SenderID == s.UserID
	if own && m.LocalID == "" {
		// Server copy of something already shown as pending.
		if i := slices.Index(r.ownSent, m.Content); i >= 0 {
			r.ownSent = slices.Delete(r.ownSent, i, i+1)
			return
		}
	}

	name := s.PartnerUsername
	if own {
		name = "you"
		if m.LocalID != "" {
			r.ownSent = append(r.ownSent, m.Content)
		}
	}
	fmt.Fprintf(r.w, "[%s %s] %s\n", m.Time().Local().Format("15:04"), name, m.Content)
}
