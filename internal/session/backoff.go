package session

import "time"

// ReconnectDelay returns how long to wait before the retry that follows the
// attempt-th consecutive failure: base * 2^attempt, capped at max.
func ReconnectDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
