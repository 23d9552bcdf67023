package session

import (
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy computes the delay before the nth reconnect attempt.
type BackoffPolicy interface {
	// NextDelay returns the delay to wait before reconnect attempt n
	// (0-indexed: the first reconnect after a failure is attempt 0).
	NextDelay(attempt int) time.Duration

	// MaxAttempts returns the configured attempt budget.
	MaxAttempts() int
}

// ExponentialBackoff implements the §4.4 reconnect policy:
// delay(n) = min(initialDelay * backoffFactor^n, maxDelay).
// Jitter defaults to 0 so the non-decreasing-until-capped property in
// §8 holds exactly; when enabled it perturbs each delay but keeps it within
// [initialDelay, maxDelay], and successive delays are then no longer
// guaranteed to be non-decreasing.
type ExponentialBackoff struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	factor       float64
	maxAttempts  int
	jitter       float64
	rnd          *rand.Rand
}

// NewExponentialBackoff creates the reconnect policy from the supplied
// values as given; it applies no defaults of its own (DefaultConfig holds
// the §4.4 defaults: initialDelay=1s, maxDelay=30s, factor=1.5,
// maxAttempts=5).
func NewExponentialBackoff(initialDelay, maxDelay time.Duration, factor float64, maxAttempts int) *ExponentialBackoff {
	return &ExponentialBackoff{
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
		factor:       factor,
		maxAttempts:  maxAttempts,
		rnd:          rand.New(rand.NewSource(1)),
	}
}

// WithJitter enables a bounded jitter fraction (0 disables it). The jitter
// is clamped so the result never falls outside [initialDelay, maxDelay].
func (b *ExponentialBackoff) WithJitter(jitter float64) *ExponentialBackoff {
	b.jitter = jitter
	return b
}

// NextDelay returns min(initialDelay * factor^attempt, maxDelay).
func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(b.initialDelay) * math.Pow(b.factor, float64(attempt))
	if delay > float64(b.maxDelay) {
		delay = float64(b.maxDelay)
	}

	if b.jitter > 0 {
		jitterRange := delay * b.jitter
		delay += (b.rnd.Float64() - 0.5) * jitterRange
		if delay < float64(b.initialDelay) {
			delay = float64(b.initialDelay)
		}
		if delay > float64(b.maxDelay) {
			delay = float64(b.maxDelay)
		}
	}

	return time.Duration(delay)
}

// MaxAttempts returns the configured attempt budget.
func (b *ExponentialBackoff) MaxAttempts() int {
	return b.maxAttempts
}
