package chat

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "hello", "hello", false},
		{"trimmed", "  hi there \n", "hi there", false},
		{"empty", "", "", true},
		{"whitespace only", " \t\n ", "", true},
		{"too many bytes", strings.Repeat("a", MaxMessageBytes+1), "", true},
		{"too many chars", strings.Repeat("é", MaxTextChars+1), "", true},
		{"invalid utf8", "ok\xff", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateMessage(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestValidateUsername(t *testing.T) {
	if _, err := ValidateUsername("   "); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	got, err := ValidateUsername("  alice ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "alice" {
		t.Errorf("expected %q, got %q", "alice", got)
	}
	if _, err := ValidateUsername(strings.Repeat("x", MaxUsernameChars+1)); err == nil {
		t.Fatal("expected length error")
	}
}
