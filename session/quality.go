package session

import (
	"math"
	"sync"
	"time"
)

// MaxQualitySamples bounds the quality sample ring (drop-oldest beyond
// this many entries), ported from NetworkMonitor.hpp's MAX_SAMPLES.
const MaxQualitySamples = 1000

// QualityHistoryWindow is the span of time quality derivations consider,
// ported from NetworkMonitor.hpp's HISTORY_WINDOW.
const QualityHistoryWindow = 60 * time.Second

// QualitySampleInterval is the minimum spacing between appended samples.
const QualitySampleInterval = time.Second

// Recommendation is the Quality Monitor's suggested transmission-behavior
// change, derived from the current QualityMetrics.
type Recommendation int

const (
	RecommendNormal Recommendation = iota
	RecommendThrottleBack
	RecommendIncreaseFrequency
	RecommendChangeCompression
	RecommendReconnect
)

func (r Recommendation) String() string {
	switch r {
	case RecommendNormal:
		return "Normal"
	case RecommendThrottleBack:
		return "ThrottleBack"
	case RecommendIncreaseFrequency:
		return "IncreaseFrequency"
	case RecommendChangeCompression:
		return "ChangeCompression"
	case RecommendReconnect:
		return "Reconnect"
	default:
		return "Unknown"
	}
}

// QualitySample is one observation fed into the Quality Monitor.
type QualitySample struct {
	Timestamp       time.Time
	Latency         float64 // milliseconds
	BytesSent       uint64
	BytesReceived   uint64
	PacketLost      bool
	ConnectionEvent bool // true if this sample coincides with a reconnect
}

// QualityMetrics is the derived snapshot produced from the sample window.
type QualityMetrics struct {
	Latency             float64
	Jitter              float64
	PacketLoss          float64
	BandwidthUp         float64
	BandwidthDown       float64
	ConnectionStability float64
	QualityScore        float64
	Recommendation      Recommendation
}

// QualityMonitor derives QualityMetrics from a bounded, time-windowed ring
// of QualitySamples, ported directly from NetworkMonitor.hpp: same field
// names, same thresholds, same quality-score weighting.
type QualityMonitor struct {
	mu          sync.Mutex
	samples     []QualitySample
	latencyEMA  float64
	lastSampled time.Time
}

// NewQualityMonitor creates an empty monitor.
func NewQualityMonitor() *QualityMonitor {
	return &QualityMonitor{}
}

// RecordSample appends a sample, dropping the oldest if the ring is full
// and enforcing at most one sample per QualitySampleInterval. Returns
// false if the sample was rejected because it arrived too soon.
func (q *QualityMonitor) RecordSample(sample QualitySample) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.lastSampled.IsZero() && sample.Timestamp.Sub(q.lastSampled) < QualitySampleInterval {
		return false
	}
	q.lastSampled = sample.Timestamp

	if q.latencyEMA == 0 {
		q.latencyEMA = sample.Latency
	} else {
		const alpha = 0.1
		q.latencyEMA = alpha*sample.Latency + (1-alpha)*q.latencyEMA
	}

	q.samples = append(q.samples, sample)
	if len(q.samples) > MaxQualitySamples {
		q.samples = q.samples[len(q.samples)-MaxQualitySamples:]
	}
	return true
}

// windowLocked returns the samples within QualityHistoryWindow of now.
// Caller must hold q.mu.
func (q *QualityMonitor) windowLocked(now time.Time) []QualitySample {
	cutoff := now.Add(-QualityHistoryWindow)
	start := 0
	for start < len(q.samples) && q.samples[start].Timestamp.Before(cutoff) {
		start++
	}
	return q.samples[start:]
}

// Metrics computes the current QualityMetrics from the rolling window.
func (q *QualityMonitor) Metrics(now time.Time) QualityMetrics {
	q.mu.Lock()
	defer q.mu.Unlock()

	window := q.windowLocked(now)
	if len(window) == 0 {
		return QualityMetrics{Recommendation: RecommendNormal, QualityScore: 100}
	}

	latency := q.latencyEMA
	jitter := jitterOf(window)
	loss := packetLossOf(window)
	up, down := bandwidthOf(window)
	stability := stabilityOf(window)
	score := qualityScore(latency, loss, jitter, stability)

	return QualityMetrics{
		Latency:             latency,
		Jitter:              jitter,
		PacketLoss:          loss,
		BandwidthUp:         up,
		BandwidthDown:       down,
		ConnectionStability: stability,
		QualityScore:        score,
		Recommendation:      recommendationFor(score, loss),
	}
}

func jitterOf(window []QualitySample) float64 {
	n := len(window)
	if n > 60 {
		window = window[n-60:]
		n = 60
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for _, s := range window {
		sum += s.Latency
	}
	mean := sum / float64(n)

	var deviation float64
	for _, s := range window {
		deviation += math.Abs(s.Latency - mean)
	}
	return deviation / float64(n)
}

func packetLossOf(window []QualitySample) float64 {
	var lost, received int
	for _, s := range window {
		if s.PacketLost {
			lost++
		} else {
			received++
		}
	}
	if lost+received == 0 {
		return 0
	}
	return float64(lost) * 100 / float64(lost+received)
}

func bandwidthOf(window []QualitySample) (up, down float64) {
	if len(window) < 2 {
		return 0, 0
	}
	span := window[len(window)-1].Timestamp.Sub(window[0].Timestamp).Seconds()
	if span <= 0 {
		return 0, 0
	}
	var sentBytes, recvBytes uint64
	for _, s := range window {
		sentBytes += s.BytesSent
		recvBytes += s.BytesReceived
	}
	up = float64(sentBytes) * 8 / span / 1000
	down = float64(recvBytes) * 8 / span / 1000
	return up, down
}

func stabilityOf(window []QualitySample) float64 {
	changes := 0
	for _, s := range window {
		if s.ConnectionEvent {
			changes++
		}
	}
	return 100 - math.Min(100, float64(changes)*20)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func qualityScore(latency, loss, jitter, stability float64) float64 {
	score := 100.0
	score -= clamp(latency/5, 0, 40)
	score -= clamp(loss*2, 0, 30)
	score -= clamp(jitter/2, 0, 20)
	score -= clamp((100-stability)/10, 0, 10)
	return score
}

func recommendationFor(score, loss float64) Recommendation {
	switch {
	case score >= 80:
		return RecommendNormal
	case score >= 60:
		if loss < 1 {
			return RecommendIncreaseFrequency
		}
		return RecommendThrottleBack
	case score >= 40:
		return RecommendThrottleBack
	case score >= 20:
		return RecommendChangeCompression
	default:
		return RecommendReconnect
	}
}
