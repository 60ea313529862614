package main

import (
	"strings"

	"github.com/whisper/chatxp/internal/session"
)

// controller is the set of session actions the terminal can trigger.
type controller interface {
	StartUsernameEntry()
	SubmitUsername(name string)
	Send(text string)
	Next()
	Disconnect()
	Retry()
	DismissStatus()
}

const helpText = `Commands:
  /next     find a new partner
  /retry    retry after a connection error
  /dismiss  clear the status line
  /quit     end the session and forget this user
  /exit     leave, keeping the session for next time
  /help     show this help`

// handleLine routes one line of input for the current screen. It returns
// false when the client should exit, and any text to show the user.
func handleLine(c controller, s session.State, line string) (bool, string) {
	trimmed := strings.TrimSpace(line)
	switch strings.ToLower(trimmed) {
	case "/exit":
		return false, ""
	case "/help":
		return true, helpText
	case "/quit":
		c.Disconnect()
		return true, ""
	case "/retry":
		c.Retry()
		return true, ""
	case "/dismiss":
		c.DismissStatus()
		return true, ""
	case "/next":
		if s.UserID == "" {
			return true, "Pick a username first."
		}
		c.Next()
		return true, ""
	}
	if strings.HasPrefix(trimmed, "/") {
		return true, "Unknown command. Type /help."
	}

	switch s.Screen {
	case session.ScreenWelcome:
		c.StartUsernameEntry()
	case session.ScreenUsername:
		c.SubmitUsername(line)
	case session.ScreenSearching:
		return true, "Still looking for a partner..."
	case session.ScreenChat:
		c.Send(line)
	}
	return true, ""
}
