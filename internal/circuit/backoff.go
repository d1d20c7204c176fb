package circuit

import (
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy computes the delay between failover attempts.
type BackoffPolicy struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
}

// Delay returns base * multiplier^(attempt-1), capped at Max, with ±10%
// uniform jitter applied after the cap. Attempt numbers below 1 are
// clamped to 1.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.Base) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.Max > 0 && d > float64(p.Max) {
		d = float64(p.Max)
	}
	jitter := 1 + (rand.Float64()*0.2 - 0.1)
	return time.Duration(d * jitter)
}
