// Package session composes the networking core — framer, priority send
// queue, pending-ack table, state machine, reconnect policy, heartbeat
// engine, quality monitor, and dispatcher — behind the public Session API.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/driftforge/netplay/framer"
	"github.com/driftforge/netplay/logx"
	"github.com/driftforge/netplay/transport/tcp"
	"github.com/driftforge/netplay/types"
	"github.com/driftforge/netplay/wire"
)

// Dialer establishes a transport to host:port. The default dials TCP;
// tests substitute an in-memory or loopback dialer.
type Dialer func(ctx context.Context, host string, port int) (types.Transport, error)

func defaultDialer(ctx context.Context, host string, port int) (types.Transport, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	type result struct {
		t   types.Transport
		err error
	}
	ch := make(chan result, 1)
	go func() {
		t, err := tcp.Dial(addr, types.TransportOptions{})
		ch <- result{t, err}
	}()
	select {
	case r := <-ch:
		return r.t, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Session is the public surface of the networking core: it composes the
// framer, priority send queue, pending-ack table, state machine, reconnect
// policy, heartbeat engine, quality monitor, and dispatcher, and exposes
// Connect/Send/RegisterHandler to the session's owner. It is grounded in
// the teacher's lifecycle.go Connect/Close sequencing and its single
// mutex-guarded connected flag, generalized to the six-state FSM of §4.3.
type Session struct {
	ID uuid.UUID

	cfg    Config
	logger types.Logger
	dial   Dialer

	state   *StateMachine
	backoff BackoffPolicy
	queue   *SendQueue
	pending *PendingAckTable
	quality *QualityMonitor
	metrics *metricsTracker
	dispatch *Dispatcher

	seq       atomic.Uint64
	heartbeat atomic.Uint64

	transportMu sync.Mutex
	transport   types.Transport

	hbMu          sync.Mutex
	hbOutstanding bool
	hbSeq         uint64
	hbSentAt      time.Time

	writeSignal chan struct{}
	closeOnce   sync.Once
	closeCh     chan struct{}
	runDone     chan struct{}

	metricsCallback func(ConnectionMetrics)
	metricsCbMu     sync.Mutex
}

// New creates a Session with cfg (use DefaultConfig for spec defaults) and
// an optional logger (logx.NewDefaultLogger() if nil).
func New(cfg Config, logger types.Logger) *Session {
	if logger == nil {
		logger = logx.NewDefaultLogger()
	}
	s := &Session{
		ID:      uuid.New(),
		cfg:     cfg,
		logger:  logger,
		dial:    defaultDialer,
		state:   NewStateMachine(),
		backoff: NewExponentialBackoff(cfg.InitialReconnectDelay, cfg.MaxReconnectDelay, cfg.ReconnectBackoffFactor, cfg.MaxReconnectAttempts),
		pending: NewPendingAckTable(),
		quality: NewQualityMonitor(),
		metrics: newMetricsTracker(),
		dispatch: NewDispatcher(logger),

		writeSignal: make(chan struct{}, 1),
		closeCh:     make(chan struct{}),
	}
	s.queue = NewSendQueue(cfg.MaxQueueSize, s.onQueueDrop)
	return s
}

// SetDialer overrides the transport dialer, primarily for tests.
func (s *Session) SetDialer(d Dialer) { s.dial = d }

// SetStateCallback registers the state-change callback (§6 consumer
// interface).
func (s *Session) SetStateCallback(fn StateChangeFunc) {
	s.state.SetStateCallback(fn)
}

// SetMetricsCallback registers the metrics-update callback.
func (s *Session) SetMetricsCallback(fn func(ConnectionMetrics)) {
	s.metricsCbMu.Lock()
	defer s.metricsCbMu.Unlock()
	s.metricsCallback = fn
}

// transitionTo applies a state transition and, for the two states that mark
// connection instability (Reconnecting, Error), feeds a ConnectionEvent
// sample to the Quality Monitor so connectionStability actually reflects
// reconnects instead of sitting fixed at 100.
func (s *Session) transitionTo(newState ConnectionState, connErr ConnectionError) {
	s.state.TransitionTo(newState, connErr)
	if newState == StateReconnecting || newState == StateError {
		s.quality.RecordSample(QualitySample{Timestamp: time.Now(), ConnectionEvent: true})
	}
}

func (s *Session) notifyMetrics() {
	s.metricsCbMu.Lock()
	fn := s.metricsCallback
	s.metricsCbMu.Unlock()
	if fn == nil {
		return
	}
	defer func() { _ = recover() }()
	fn(s.metrics.snapshot())
}

// RegisterHandler associates fn with msgType on the dispatcher.
func (s *Session) RegisterHandler(msgType string, fn HandlerFunc) {
	s.dispatch.RegisterHandler(msgType, fn)
}

// UnregisterHandler removes the handler for msgType.
func (s *Session) UnregisterHandler(msgType string) {
	s.dispatch.UnregisterHandler(msgType)
}

// GetState returns the current ConnectionState.
func (s *Session) GetState() ConnectionState { return s.state.GetState() }

// GetLastError returns the ConnectionError captured on the last transition
// into StateError.
func (s *Session) GetLastError() ConnectionError { return s.state.GetLastError() }

// GetConnectionMetrics returns a snapshot of the raw counters.
func (s *Session) GetConnectionMetrics() ConnectionMetrics { return s.metrics.snapshot() }

// GetMetrics returns the derived network-quality snapshot.
func (s *Session) GetMetrics() QualityMetrics { return s.quality.Metrics(time.Now()) }

// onQueueDrop is invoked by SendQueue when capacity forces an eviction; it
// fires the record's delivery callback and increments messagesDropped
// (invariant 6).
func (s *Session) onQueueDrop(r *QueuedRecord) {
	s.metrics.recordMessageDropped()
	if r.Options.OnDelivery != nil {
		r.Options.OnDelivery(ErrQueueFull)
	}
}

// Connect synchronously dials host:port and blocks until the session
// reaches StateConnected or StateError, bounded by cfg.ConnectTimeout.
func (s *Session) Connect(host string, port int) error {
	if s.GetState() != StateDisconnected {
		return ErrAlreadyConnected
	}

	s.seq.Store(0)
	s.metrics.recordConnect()
	s.state.TransitionTo(StateConnecting, ErrNone)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
	defer cancel()

	t, err := s.dial(ctx, host, port)
	if err != nil {
		s.transitionTo(StateError, classifyDialError(err))
		return err
	}

	s.setTransport(t)
	s.state.TransitionTo(StateConnected, ErrNone)

	s.runDone = make(chan struct{})
	go s.superviseConnection(host, port)

	return nil
}

// ConnectAsync returns immediately and invokes callback with the outcome.
func (s *Session) ConnectAsync(host string, port int, callback func(error)) {
	go func() {
		err := s.Connect(host, port)
		if callback != nil {
			callback(err)
		}
	}()
}

// Disconnect triggers Disconnecting -> Disconnected, joins the I/O worker,
// and applies the drop policy to anything still queued or pending: since
// no reconnect is scheduled, every outstanding record's delivery callback
// fires with ErrNotConnected.
func (s *Session) Disconnect() error {
	current := s.GetState()
	if current == StateDisconnected {
		return nil
	}

	// Error rests without an I/O worker running (superviseConnection
	// already returned), so it moves straight to Disconnected per the
	// §4.3 table rather than through Disconnecting.
	if current == StateError {
		s.failAllOutstanding(ErrNotConnected)
		s.state.TransitionTo(StateDisconnected, ErrNone)
		s.resetForReconnectableUse()
		return nil
	}

	if !s.state.CanTransitionTo(StateDisconnecting) {
		return nil
	}
	s.state.TransitionTo(StateDisconnecting, ErrNone)

	s.closeOnce.Do(func() { close(s.closeCh) })

	if t := s.getTransport(); t != nil {
		_ = t.Close()
	}
	if s.runDone != nil {
		<-s.runDone
	}

	s.failAllOutstanding(ErrNotConnected)
	s.state.TransitionTo(StateDisconnected, ErrNone)
	s.resetForReconnectableUse()
	return nil
}

// resetForReconnectableUse rearms the close signal so the same Session can
// be handed to Connect again after a full Disconnect.
func (s *Session) resetForReconnectableUse() {
	s.closeOnce = sync.Once{}
	s.closeCh = make(chan struct{})
}

func (s *Session) failAllOutstanding(cause error) {
	for _, r := range s.queue.DrainAll() {
		if r.Options.OnDelivery != nil {
			r.Options.OnDelivery(cause)
		}
	}
	for _, e := range s.pending.DrainAll() {
		if e.opts.OnDelivery != nil {
			e.opts.OnDelivery(cause)
		}
	}
}

// Send formats and enqueues payload. It fails silently per §4.8 — the
// error is delivered through options.OnDelivery, not a panic or a torn-
// down session — but is also returned for callers that want it directly.
func (s *Session) Send(payload []byte, options SendOptions) error {
	state := s.GetState()
	if state != StateConnected && state != StateReconnecting {
		if options.OnDelivery != nil {
			options.OnDelivery(ErrNotConnected)
		}
		return ErrNotConnected
	}

	record := &QueuedRecord{
		Payload:    payload,
		Options:    options,
		SubmitTime: time.Now(),
		Seq:        s.seq.Add(1),
	}
	s.queue.Enqueue(record)
	s.signalWrite()
	return nil
}

// SendBatch enqueues every payload in caller order, preserving that order
// for equal priority. Each record takes the queue lock separately, so the
// batch is not atomic: a concurrent Send can interleave with it, and
// overflow eviction is applied record by record.
func (s *Session) SendBatch(payloads [][]byte, options SendOptions) error {
	state := s.GetState()
	if state != StateConnected && state != StateReconnecting {
		if options.OnDelivery != nil {
			options.OnDelivery(ErrNotConnected)
		}
		return ErrNotConnected
	}
	now := time.Now()
	for i, p := range payloads {
		record := &QueuedRecord{
			Payload:    p,
			Options:    options,
			SubmitTime: now.Add(time.Duration(i)), // preserves submission order at equal priority
			Seq:        s.seq.Add(1),
		}
		s.queue.Enqueue(record)
	}
	s.signalWrite()
	return nil
}

func (s *Session) signalWrite() {
	select {
	case s.writeSignal <- struct{}{}:
	default:
	}
}

func (s *Session) setTransport(t types.Transport) {
	s.transportMu.Lock()
	s.transport = t
	s.transportMu.Unlock()
}

func (s *Session) getTransport() types.Transport {
	s.transportMu.Lock()
	defer s.transportMu.Unlock()
	return s.transport
}

// superviseConnection runs the I/O worker against the already-established
// transport, and on transport failure — if the reconnect policy permits —
// redials with backoff, repeating until a clean Disconnect, exhaustion of
// the reconnect budget, or a non-retryable error settles the session in
// StateError.
func (s *Session) superviseConnection(host string, port int) {
	defer close(s.runDone)

	for {
		ioErr := s.runIOLoop()
		if ioErr == nil {
			return // clean Disconnect
		}

		select {
		case <-s.closeCh:
			return // Disconnect closed the transport under the I/O loop
		default:
		}
		if t := s.getTransport(); t != nil {
			_ = t.Close()
		}
		if s.state.GetLastError() == ErrProtocolError {
			return // framing errors are not retried; rests in StateError
		}

		if !s.state.ShouldAttemptReconnect(s.cfg.MaxReconnectAttempts) {
			return // rests in StateError
		}

		s.migratePendingToQueueHead()
		s.transitionTo(StateReconnecting, ErrNone)
		s.metrics.recordReconnectAttempt()

		delay := s.backoff.NextDelay(s.state.ReconnectAttempt() - 1)
		select {
		case <-time.After(delay):
		case <-s.closeCh:
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
		t, err := s.dial(ctx, host, port)
		cancel()
		if err != nil {
			s.transitionTo(StateError, classifyDialError(err))
			continue
		}
		s.setTransport(t)
		s.state.TransitionTo(StateConnected, ErrNone)
	}
}

// migratePendingToQueueHead returns reliable pending records to the send
// queue at their original priority and drops unreliable ones, per the
// Reconnecting-transition rule in §4.8.
func (s *Session) migratePendingToQueueHead() {
	for _, e := range s.pending.DrainAll() {
		if e.opts.Reliable {
			s.queue.Requeue(&QueuedRecord{
				Payload:    e.record.Payload,
				Options:    e.opts,
				SubmitTime: e.record.SendTime,
				Attempt:    e.attempt,
				Seq:        e.record.Seq,
			})
		} else {
			s.metrics.recordMessageDropped()
			if e.opts.OnDelivery != nil {
				e.opts.OnDelivery(ErrNotConnected)
			}
		}
	}
}

// runIOLoop drives the single select loop described in §5: reads arrive
// via a dedicated reader goroutine (Transport.Receive blocks, so it cannot
// share this loop directly) and are fed to the framer; writes are driven
// by signalWrite; heartbeat and deadline timers fire on fixed ticks. It
// returns nil only on a clean, caller-initiated Disconnect.
func (s *Session) runIOLoop() error {
	t := s.getTransport()
	fr := framer.New(s.cfg.MaxRecordSize)

	// A probe left outstanding by an earlier connection must not time out
	// this one.
	s.hbMu.Lock()
	s.hbOutstanding = false
	s.hbMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chunks := make(chan []byte, 16)
	readErr := make(chan error, 1)
	go s.readPump(ctx, t, chunks, readErr)

	var hbTicker *time.Ticker
	if s.cfg.EnableHeartbeat {
		hbTicker = time.NewTicker(s.cfg.HeartbeatInterval)
		defer hbTicker.Stop()
	}
	tickInterval := s.cfg.TimerTick
	if tickInterval <= 0 {
		tickInterval = 500 * time.Millisecond
	}
	deadlineTicker := time.NewTicker(tickInterval)
	defer deadlineTicker.Stop()

	var hbTickerC <-chan time.Time
	if hbTicker != nil {
		hbTickerC = hbTicker.C
	}

	for {
		select {
		case <-s.closeCh:
			return nil

		case chunk, ok := <-chunks:
			if !ok {
				continue
			}
			records, err := fr.Feed(chunk)
			fatal := false
			for _, r := range records {
				if ferr := s.handleInboundRecord(t, r); ferr != nil {
					s.logger.Error("session %s: %v", s.ID, ferr)
					s.transitionTo(StateError, ErrProtocolError)
					fatal = true
					break
				}
			}
			if fatal {
				return errors.New("protocol error")
			}
			if err != nil {
				s.logger.Error("session %s: %v", s.ID, err)
				s.transitionTo(StateError, ErrProtocolError)
				return errors.New("protocol error")
			}

		case err := <-readErr:
			s.logger.Warn("session %s: read failed: %v", s.ID, err)
			s.transitionTo(StateError, classifyDialError(err))
			return err

		case <-s.writeSignal:
			if err := s.drainQueueAndWrite(t); err != nil {
				s.transitionTo(StateError, classifyDialError(err))
				return err
			}

		case <-hbTickerC:
			s.sendHeartbeatProbe(t)

		case <-deadlineTicker.C:
			s.checkHeartbeatTimeout()
			s.checkPendingDeadlines()
			s.notifyMetrics()
			if s.GetState() == StateError {
				return errors.New("heartbeat timeout")
			}
		}
	}
}

func (s *Session) readPump(ctx context.Context, t types.Transport, chunks chan<- []byte, errCh chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		data, err := t.Receive(ctx)
		if err != nil {
			select {
			case errCh <- err:
			case <-ctx.Done():
			}
			return
		}
		select {
		case chunks <- data:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) drainQueueAndWrite(t types.Transport) error {
	for {
		record := s.queue.Dequeue()
		if record == nil {
			return nil
		}

		payload := record.Payload
		if record.Options.Reliable {
			payload = withSequence(payload, record.Seq)
		}
		framed := framer.Frame(payload)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := t.Send(ctx, framed)
		cancel()
		if err != nil {
			if record.Options.OnDelivery != nil {
				record.Options.OnDelivery(err)
			}
			return err
		}

		s.metrics.recordBytesSent(len(framed))
		s.metrics.recordMessageSent()

		if record.Options.Reliable {
			var deadline time.Time
			if record.Options.TimeoutMillis > 0 {
				deadline = time.Now().Add(time.Duration(record.Options.TimeoutMillis) * time.Millisecond)
			}
			s.pending.Add(&PendingRecord{
				Payload:  record.Payload,
				Options:  record.Options,
				SendTime: time.Now(),
				Seq:      record.Seq,
				Deadline: deadline,
			}, record.Options, record.Attempt)
		} else if record.Options.OnDelivery != nil {
			record.Options.OnDelivery(nil)
		}
	}
}

// handleInboundRecord processes one framed record. It returns a non-nil
// error only when s.cfg.Strict is set and the record fails to parse — per
// §4.1, a malformed record is otherwise dropped and counted, not fatal.
func (s *Session) handleInboundRecord(t types.Transport, record []byte) error {
	s.metrics.recordBytesReceived(len(record) + 1)
	s.metrics.recordMessageReceived()

	msgType, err := wire.ParseType(record)
	if err != nil {
		s.metrics.recordMessageDropped()
		if s.cfg.Strict {
			return fmt.Errorf("session %s: malformed record: %w", s.ID, err)
		}
		s.logger.Warn("session %s: dropping unparseable record: %v", s.ID, err)
		return nil
	}

	switch msgType {
	case wire.TypeHeartbeat:
		s.handleHeartbeat(t, record)
	case wire.TypeAck:
		s.handleAck(record)
	default:
		s.dispatch.Dispatch(record)
	}
	return nil
}

func (s *Session) handleHeartbeat(t types.Transport, record []byte) {
	var hb wire.Heartbeat
	if err := json.Unmarshal(record, &hb); err != nil {
		return
	}

	if hb.TEcho == 0 {
		echo := wire.BuildHeartbeatEcho(hb.Seq, hb.T)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = t.Send(ctx, framer.Frame(echo))
		return
	}

	s.hbMu.Lock()
	outstanding := s.hbOutstanding && hb.Seq == s.hbSeq
	if outstanding {
		s.hbOutstanding = false
	}
	s.hbMu.Unlock()

	if !outstanding {
		return
	}
	rtt := float64(time.Now().UnixMilli() - hb.T)
	s.metrics.recordLatency(rtt)
	s.quality.RecordSample(QualitySample{Timestamp: time.Now(), Latency: rtt})
}

func (s *Session) handleAck(record []byte) {
	var ack wire.Ack
	if err := json.Unmarshal(record, &ack); err != nil {
		return
	}
	rec, opts, ok := s.pending.Resolve(ack.Seq)
	if !ok {
		return
	}
	if opts.OnDelivery != nil {
		opts.OnDelivery(nil)
	}
	_ = rec
}

func (s *Session) sendHeartbeatProbe(t types.Transport) {
	s.hbMu.Lock()
	if s.hbOutstanding {
		s.hbMu.Unlock()
		return // previous probe still outstanding; timeout check will fire
	}
	seq := s.heartbeat.Add(1)
	s.hbOutstanding = true
	s.hbSeq = seq
	s.hbSentAt = time.Now()
	s.hbMu.Unlock()

	probe := wire.BuildHeartbeat(seq)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = t.Send(ctx, framer.Frame(probe))
}

func (s *Session) checkHeartbeatTimeout() {
	if !s.cfg.EnableHeartbeat {
		return
	}
	s.hbMu.Lock()
	timedOut := s.hbOutstanding && time.Since(s.hbSentAt) > s.cfg.HeartbeatTimeout
	s.hbMu.Unlock()
	if timedOut {
		s.transitionTo(StateError, ErrTimeout)
	}
}

func (s *Session) checkPendingDeadlines() {
	for _, e := range s.pending.ExpireDeadlined(time.Now()) {
		if e.attempt < s.cfg.MaxRetries {
			s.queue.Requeue(&QueuedRecord{
				Payload:    e.record.Payload,
				Options:    e.opts,
				SubmitTime: time.Now(),
				Attempt:    e.attempt + 1,
				Seq:        e.record.Seq,
			})
			s.signalWrite()
			continue
		}
		s.metrics.recordMessageDropped()
		if e.opts.OnDelivery != nil {
			e.opts.OnDelivery(NewTimeoutError("Send", time.Duration(e.opts.TimeoutMillis)*time.Millisecond, nil))
		}
	}
}

// withSequence stamps a "seq" field onto a reliable record's JSON payload
// so the peer can name it in the matching ack. Payloads that aren't a JSON
// object are sent unmodified — an unreliable-by-necessity best effort, same
// as any other record that fails to parse.
func withSequence(payload []byte, seq uint64) []byte {
	var obj map[string]interface{}
	if err := json.Unmarshal(payload, &obj); err != nil {
		return payload
	}
	obj["seq"] = seq
	stamped, err := json.Marshal(obj)
	if err != nil {
		return payload
	}
	return stamped
}

// classifyDialError maps a low-level connection error to the §3
// ConnectionError taxonomy used on transitions into StateError.
func classifyDialError(err error) ConnectionError {
	if err == nil {
		return ErrNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "refused"):
		return ErrRefused
	case strings.Contains(msg, "network is unreachable"), strings.Contains(msg, "no such host"):
		return ErrNetworkUnavailable
	default:
		return ErrUnknown
	}
}
