package session

import (
	"sync"
	"sync/atomic"
)

// ConnectionState is the session's coarse lifecycle phase. It is held
// atomically and mutated only through StateMachine.TransitionTo.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateReconnecting
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnecting:
		return "Disconnecting"
	case StateReconnecting:
		return "Reconnecting"
	case StateError:
		return "Error"
	default:
		return "Invalid"
	}
}

// ConnectionError classifies why a session entered StateError.
type ConnectionError int32

const (
	ErrNone ConnectionError = iota
	ErrTimeout
	ErrRefused
	ErrNetworkUnavailable
	ErrProtocolError
	ErrAuthenticationFailed
	ErrServerFull
	ErrVersionMismatch
	ErrUnknown
)

func (e ConnectionError) String() string {
	switch e {
	case ErrNone:
		return "None"
	case ErrTimeout:
		return "Timeout"
	case ErrRefused:
		return "Refused"
	case ErrNetworkUnavailable:
		return "NetworkUnavailable"
	case ErrProtocolError:
		return "ProtocolError"
	case ErrAuthenticationFailed:
		return "AuthenticationFailed"
	case ErrServerFull:
		return "ServerFull"
	case ErrVersionMismatch:
		return "VersionMismatch"
	case ErrUnknown:
		return "Unknown"
	default:
		return "Invalid"
	}
}

// transitionTable enumerates every legal (from, to) pair. Anything absent
// is a silent no-op — callers observe the actual state via GetState.
var transitionTable = map[ConnectionState]map[ConnectionState]bool{
	StateDisconnected: {
		StateConnecting: true,
		StateError:      true,
	},
	StateConnecting: {
		StateConnected:     true,
		StateDisconnecting: true,
		StateError:         true,
	},
	StateConnected: {
		StateDisconnecting: true,
		StateReconnecting:  true,
		StateError:         true,
	},
	StateDisconnecting: {
		StateDisconnected: true,
		StateError:        true,
	},
	StateReconnecting: {
		StateConnected:     true,
		StateDisconnecting: true,
		StateError:         true,
	},
	StateError: {
		StateDisconnected: true,
		StateReconnecting: true,
	},
}

// StateChangeFunc is invoked exactly once per successful transition.
type StateChangeFunc func(newState ConnectionState, err ConnectionError)

// StateMachine gates every session operation through the six-state FSM of
// the networking core. It owns the reconnect attempt counter exclusively —
// RecordConnectAttempt/RecordReconnectAttempt from the original source are
// deliberately not mirrored here (see design notes on mixed semantics).
type StateMachine struct {
	state     atomic.Int32
	lastError atomic.Int32

	mu               sync.Mutex
	reconnectAttempt int

	callbackMu sync.Mutex
	onChange   StateChangeFunc
}

// NewStateMachine creates a StateMachine starting in StateDisconnected.
func NewStateMachine() *StateMachine {
	return &StateMachine{}
}

// GetState returns the current state. Safe from any goroutine.
func (m *StateMachine) GetState() ConnectionState {
	return ConnectionState(m.state.Load())
}

// GetLastError returns the error recorded on the most recent transition
// into StateError (ErrNone otherwise).
func (m *StateMachine) GetLastError() ConnectionError {
	return ConnectionError(m.lastError.Load())
}

// CanTransitionTo reports whether newState is reachable from the current
// state per the §4.3 transition table.
func (m *StateMachine) CanTransitionTo(newState ConnectionState) bool {
	current := m.GetState()
	return transitionTable[current][newState]
}

// TransitionTo attempts to move the state machine to newState, recording
// err when newState is StateError. Illegal requests are silent no-ops.
// Entering StateConnected resets the reconnect attempt counter; entering
// StateReconnecting increments it; the state callback fires exactly once
// per successful transition.
func (m *StateMachine) TransitionTo(newState ConnectionState, connErr ConnectionError) {
	current := ConnectionState(m.state.Load())
	if !transitionTable[current][newState] {
		return
	}
	if !m.state.CompareAndSwap(int32(current), int32(newState)) {
		return
	}
	if newState == StateError {
		m.lastError.Store(int32(connErr))
	}

	m.mu.Lock()
	switch newState {
	case StateConnected:
		m.reconnectAttempt = 0
	case StateReconnecting:
		m.reconnectAttempt++
	}
	attempt := m.reconnectAttempt
	m.mu.Unlock()
	_ = attempt

	m.notifyStateChange(newState, connErr)
}

// ReconnectAttempt returns the number of reconnects attempted since the
// last successful Connect.
func (m *StateMachine) ReconnectAttempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnectAttempt
}

// ShouldAttemptReconnect reports whether the state machine is in a state
// that permits reconnection and the attempt budget isn't exhausted.
func (m *StateMachine) ShouldAttemptReconnect(maxAttempts int) bool {
	current := m.GetState()
	if current != StateError && current != StateDisconnected {
		return false
	}
	return m.ReconnectAttempt() < maxAttempts
}

// SetStateCallback registers the function invoked on each state transition.
// Passing nil disables notification.
func (m *StateMachine) SetStateCallback(fn StateChangeFunc) {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	m.onChange = fn
}

func (m *StateMachine) notifyStateChange(newState ConnectionState, connErr ConnectionError) {
	m.callbackMu.Lock()
	fn := m.onChange
	m.callbackMu.Unlock()
	if fn == nil {
		return
	}
	defer func() { _ = recover() }()
	fn(newState, connErr)
}
