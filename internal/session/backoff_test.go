package session

import (
	"testing"
	"time"
)

func TestReconnectDelay(t *testing.T) {
	base, max := time.Second, 10*time.Second
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{6, 10 * time.Second},
		{60, 10 * time.Second},
		{-1, 1 * time.Second},
	}
	for _, tt := range tests {
		if got := ReconnectDelay(tt.attempt, base, max); got != tt.want {
			t.Errorf("ReconnectDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
