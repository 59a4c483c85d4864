package service

import (
	"time"
)

const jitterRatio = 0.2

// Backoff computes the pause before a retry:
// min(Max, Base*2^(attempt-1)) plus up to 20% jitter.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the pause after the given 1-based attempt. r is a uniform
// random number in [0, 1).
func (b Backoff) Delay(attempt int, r float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		if b.Max > 0 && d >= b.Max {
			break
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d + time.Duration(float64(d)*jitterRatio*r)
}
