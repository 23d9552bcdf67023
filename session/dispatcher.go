package session

import (
	"encoding/json"
	"sync"

	"github.com/driftforge/netplay/types"
)

// WildcardType is the fallback handler key: it receives every record whose
// type has no exact-match handler registered.
const WildcardType = "*"

// HandlerFunc processes one inbound record after it has been parsed into a
// generic JSON object. The dispatcher swallows any panic a handler raises,
// logging it rather than tearing down the session.
type HandlerFunc func(msg map[string]interface{}) error

// Dispatcher routes inbound records to registered handlers by their "type"
// field: exact match wins, a "*" handler receives otherwise-unhandled
// messages, and absence of either just logs and drops the record. Built-in
// control types (heartbeat, ack) never reach here — Session intercepts
// them first.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   types.Logger
}

// NewDispatcher creates an empty Dispatcher logging through logger.
func NewDispatcher(logger types.Logger) *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc), logger: logger}
}

// RegisterHandler associates fn with msgType. Registering over an existing
// type replaces the previous handler, matching the teacher's
// registerNotificationHandler behavior.
func (d *Dispatcher) RegisterHandler(msgType string, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[msgType] = fn
}

// UnregisterHandler removes any handler registered for msgType.
func (d *Dispatcher) UnregisterHandler(msgType string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, msgType)
}

// Dispatch parses record as a JSON object and routes it by its "type"
// field: exact match, then wildcard, then drop-and-log. Handler panics are
// recovered and logged; they never propagate to the I/O worker.
func (d *Dispatcher) Dispatch(record []byte) {
	var msg map[string]interface{}
	if err := json.Unmarshal(record, &msg); err != nil {
		d.logger.Warn("dispatcher: dropping unparseable record: %v", err)
		return
	}

	msgType, _ := msg["type"].(string)

	d.mu.RLock()
	fn, ok := d.handlers[msgType]
	if !ok {
		fn, ok = d.handlers[WildcardType]
	}
	d.mu.RUnlock()

	if !ok {
		d.logger.Debug("dispatcher: no handler for type %q, dropping", msgType)
		return
	}

	d.invoke(fn, msg, msgType)
}

func (d *Dispatcher) invoke(fn HandlerFunc, msg map[string]interface{}, msgType string) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatcher: handler for type %q panicked: %v", msgType, r)
		}
	}()
	if err := fn(msg); err != nil {
		d.logger.Warn("dispatcher: handler for type %q returned error: %v", msgType, err)
	}
}
