package session

import (
	"sync"
	"time"
)

// DeliveryFunc is invoked once a record's fate is known: nil on successful
// delivery (ack received, or fire-and-forget handoff to the transport),
// non-nil on drop, timeout, or disconnect-without-retry.
type DeliveryFunc func(err error)

// SendOptions configures how a single record is sent.
type SendOptions struct {
	Reliable      bool
	Ordered       bool
	TimeoutMillis uint32
	Priority      int
	OnDelivery    DeliveryFunc
}

// DefaultSendOptions returns the zero-value-safe defaults: unreliable,
// ordered, priority 0, no timeout, no callback.
func DefaultSendOptions() SendOptions {
	return SendOptions{Ordered: true}
}

// QueuedRecord is one outbound unit waiting in the Priority Send Queue.
type QueuedRecord struct {
	Payload    []byte
	Options    SendOptions
	SubmitTime time.Time
	Attempt    int
	Seq        uint64

	// index is maintained by container/heap; it is not part of the
	// public record shape.
	index int
}

// PendingRecord is a reliable record handed to the transport but not yet
// acknowledged, indexed by sequence in the Pending-Ack Table.
type PendingRecord struct {
	Payload  []byte
	Options  SendOptions
	SendTime time.Time
	Seq      uint64
	Deadline time.Time
}

// ConnectionMetrics is a point-in-time snapshot of session-level counters.
// Guarded by a single mutex inside Session; callers receive a copy.
type ConnectionMetrics struct {
	ConnectTime          time.Time
	Latency              float64 // EMA, milliseconds
	BytesSent            uint64
	BytesReceived        uint64
	PacketsSent          uint64
	PacketsReceived      uint64
	ConnectionAttempts   int
	ReconnectionAttempts int
	PacketLoss           float64 // percent
	Bandwidth            float64 // bits/sec

	// Supplemental counters restored from original_source's NetworkStats,
	// distinct from the wire-level Packets* counters above.
	MessagesSent     uint64
	MessagesReceived uint64
	MessagesDropped  uint64
}

// metricsTracker owns ConnectionMetrics under a single mutex, mirroring
// the teacher's single-mutex-per-shared-resource discipline.
type metricsTracker struct {
	mu      sync.Mutex
	metrics ConnectionMetrics
}

func newMetricsTracker() *metricsTracker {
	return &metricsTracker{metrics: ConnectionMetrics{ConnectTime: time.Now()}}
}

func (m *metricsTracker) snapshot() ConnectionMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}

func (m *metricsTracker) recordConnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.ConnectTime = time.Now()
	m.metrics.ConnectionAttempts++
}

func (m *metricsTracker) recordReconnectAttempt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.ReconnectionAttempts++
}

func (m *metricsTracker) recordBytesSent(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.BytesSent += uint64(n)
	m.metrics.PacketsSent++
	m.recalcPacketLossLocked()
}

func (m *metricsTracker) recordBytesReceived(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.BytesReceived += uint64(n)
	m.metrics.PacketsReceived++
	m.recalcPacketLossLocked()
}

func (m *metricsTracker) recalcPacketLossLocked() {
	sent := m.metrics.PacketsSent
	received := m.metrics.PacketsReceived
	if sent == 0 || sent < received {
		m.metrics.PacketLoss = 0
		return
	}
	m.metrics.PacketLoss = float64(sent-received) * 100 / float64(sent)
}

func (m *metricsTracker) recordLatency(ms float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.metrics.Latency == 0 {
		m.metrics.Latency = ms
	} else {
		const alpha = 0.1
		m.metrics.Latency = alpha*ms + (1-alpha)*m.metrics.Latency
	}
}

func (m *metricsTracker) recordMessageSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.MessagesSent++
}

func (m *metricsTracker) recordMessageReceived() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.MessagesReceived++
}

func (m *metricsTracker) recordMessageDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.MessagesDropped++
}

func (m *metricsTracker) recordBandwidth(bitsPerSec float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.Bandwidth = bitsPerSec
}
