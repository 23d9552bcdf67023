package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewTransportErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewTransportError("127.0.0.1:9000", "dial failed", cause)

	assert.True(t, IsTransportError(err))
	assert.ErrorIs(t, err, cause)
}

func TestNewTimeoutErrorUnwraps(t *testing.T) {
	cause := errors.New("deadline exceeded")
	err := NewTimeoutError("Connect", 5*time.Second, cause)

	assert.True(t, IsTimeoutError(err))
	assert.ErrorIs(t, err, cause)
}

func TestSentinelErrorsAreDistinct(t *testing.T) {
	assert.False(t, errors.Is(ErrNotConnected, ErrAlreadyConnected))
	assert.False(t, errors.Is(ErrQueueFull, ErrRecordTooLarge))
}
