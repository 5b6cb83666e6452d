package resilience

import (
	"math"
	"math/rand"
	"time"
)

// Strategy defines retry behavior for one error kind. Immutable
// configuration, attached to classifier rules at startup.
type Strategy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
	Jitter          bool
}

// DefaultStrategy is the conservative fallback for unclassified errors.
var DefaultStrategy = Strategy{
	MaxAttempts:     2,
	InitialDelay:    2 * time.Second,
	MaxDelay:        60 * time.Second,
	BackoffMultiple: 2.0,
}

// Delay returns the sleep before the next attempt, where attempt is the
// 1-indexed attempt that just failed: InitialDelay * mult^(attempt-1),
// capped at MaxDelay, plus jitter in [0, delay/2) when enabled.
func (s Strategy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := s.BackoffMultiple
	if mult < 1 {
		mult = 1
	}
	delay := float64(s.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if s.MaxDelay > 0 && delay > float64(s.MaxDelay) {
		delay = float64(s.MaxDelay)
	}
	d := time.Duration(delay)
	if s.Jitter {
		if half := int64(d) / 2; half > 0 {
			d += time.Duration(rand.Int63n(half))
		}
	}
	return d
}
