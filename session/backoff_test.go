package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoffScenario(t *testing.T) {
	// Scenario 3: initial=100ms, max=800ms, factor=2.0, maxAttempts=5.
	b := NewExponentialBackoff(100*time.Millisecond, 800*time.Millisecond, 2.0, 5)

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		800 * time.Millisecond,
	}
	for n, w := range want {
		assert.Equal(t, w, b.NextDelay(n), "attempt %d", n)
	}
}

func TestBackoffDelayWithinBounds(t *testing.T) {
	b := NewExponentialBackoff(1*time.Second, 30*time.Second, 1.5, 10)
	for n := 0; n < 20; n++ {
		d := b.NextDelay(n)
		assert.GreaterOrEqual(t, d, 1*time.Second)
		assert.LessOrEqual(t, d, 30*time.Second)
	}
}

func TestBackoffNonDecreasingUntilCapped(t *testing.T) {
	b := NewExponentialBackoff(1*time.Second, 10*time.Second, 2.0, 10)
	prev := time.Duration(0)
	for n := 0; n < 10; n++ {
		d := b.NextDelay(n)
		assert.GreaterOrEqual(t, d, prev)
		prev = d
	}
}

func TestBackoffMaxAttempts(t *testing.T) {
	b := NewExponentialBackoff(time.Second, 30*time.Second, 1.5, 7)
	assert.Equal(t, 7, b.MaxAttempts())
}

func TestBackoffJitterStaysWithinBounds(t *testing.T) {
	b := NewExponentialBackoff(100*time.Millisecond, 800*time.Millisecond, 2.0, 5).WithJitter(0.2)
	for n := 0; n < 10; n++ {
		d := b.NextDelay(n)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 800*time.Millisecond)
	}
}
