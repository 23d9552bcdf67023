package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionTableMatchesAllowedPairs(t *testing.T) {
	allStates := []ConnectionState{
		StateDisconnected, StateConnecting, StateConnected,
		StateDisconnecting, StateReconnecting, StateError,
	}

	for _, from := range allStates {
		for _, to := range allStates {
			m := NewStateMachine()
			m.state.Store(int32(from))
			want := transitionTable[from][to]
			got := m.CanTransitionTo(to)
			assert.Equalf(t, want, got, "CanTransitionTo(%s -> %s)", from, to)
		}
	}
}

func TestIllegalTransitionIsSilentNoOp(t *testing.T) {
	m := NewStateMachine()
	fired := false
	m.SetStateCallback(func(ConnectionState, ConnectionError) { fired = true })

	m.TransitionTo(StateConnected, ErrNone) // illegal from Disconnected
	assert.Equal(t, StateDisconnected, m.GetState())
	assert.False(t, fired)
}

func TestConnectedResetsReconnectAttempt(t *testing.T) {
	m := NewStateMachine()
	m.TransitionTo(StateConnecting, ErrNone)
	m.TransitionTo(StateConnected, ErrNone)
	m.TransitionTo(StateDisconnecting, ErrNone)
	m.TransitionTo(StateDisconnected, ErrNone)
	m.TransitionTo(StateConnecting, ErrNone)
	m.TransitionTo(StateError, ErrRefused)
	m.TransitionTo(StateReconnecting, ErrNone)
	assert.Equal(t, 1, m.ReconnectAttempt())

	m.TransitionTo(StateConnected, ErrNone)
	assert.Equal(t, 0, m.ReconnectAttempt())
}

func TestReconnectingIncrementsAttempt(t *testing.T) {
	m := NewStateMachine()
	m.TransitionTo(StateConnecting, ErrNone)
	m.TransitionTo(StateError, ErrRefused)
	m.TransitionTo(StateReconnecting, ErrNone)
	m.TransitionTo(StateDisconnecting, ErrNone)
	m.TransitionTo(StateError, ErrRefused)
	m.TransitionTo(StateReconnecting, ErrNone)
	assert.Equal(t, 2, m.ReconnectAttempt())
}

func TestStateCallbackFiresOncePerTransition(t *testing.T) {
	m := NewStateMachine()
	var calls []ConnectionState
	m.SetStateCallback(func(s ConnectionState, _ ConnectionError) {
		calls = append(calls, s)
	})

	m.TransitionTo(StateConnecting, ErrNone)
	m.TransitionTo(StateConnected, ErrNone)

	assert.Equal(t, []ConnectionState{StateConnecting, StateConnected}, calls)
}

func TestShouldAttemptReconnect(t *testing.T) {
	m := NewStateMachine()
	m.TransitionTo(StateConnecting, ErrNone)
	m.TransitionTo(StateError, ErrRefused)
	assert.True(t, m.ShouldAttemptReconnect(5))

	for i := 0; i < 5; i++ {
		m.TransitionTo(StateReconnecting, ErrNone)
		m.TransitionTo(StateError, ErrRefused)
	}
	assert.False(t, m.ShouldAttemptReconnect(5))
}

func TestCallbackPanicDoesNotPropagate(t *testing.T) {
	m := NewStateMachine()
	m.SetStateCallback(func(ConnectionState, ConnectionError) {
		panic("boom")
	})
	assert.NotPanics(t, func() {
		m.TransitionTo(StateConnecting, ErrNone)
	})
}
