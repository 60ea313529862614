package chat

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxMessageBytes  = 4096 // 4KB max payload
	MaxTextChars     = 2000 // max character count
	MaxUsernameChars = 32
)

// ErrEmpty is returned when a username or message is blank after trimming.
var ErrEmpty = errors.New("chat: empty input")

// ValidateMessage trims text and checks that it meets content requirements.
// It returns the trimmed text.
func ValidateMessage(text string) (string, error) {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return "", ErrEmpty
	}
	if len(text) > MaxMessageBytes {
		return "", fmt.Errorf("message exceeds %d byte limit", MaxMessageBytes)
	}
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("message contains invalid UTF-8")
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return "", fmt.Errorf("message exceeds %d character limit", MaxTextChars)
	}
	return text, nil
}

// ValidateUsername trims name and checks it is usable as a display name.
func ValidateUsername(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmpty
	}
	if !utf8.ValidString(name) {
		return "", fmt.Errorf("username contains invalid UTF-8")
	}
	if utf8.RuneCountInString(name) > MaxUsernameChars {
		return "", fmt.Errorf("username exceeds %d character limit", MaxUsernameChars)
	}
	return name, nil
}
