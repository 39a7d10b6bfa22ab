package pipeline

import "time"

// backoff returns the delay before automatic retry number attempt (1-based):
// base doubled per previous attempt, capped at ceiling.
func backoff(base, ceiling time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= ceiling || d <= 0 {
			return ceiling
		}
	}
	return min(d, ceiling)
}
