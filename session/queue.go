package session

import (
	"container/heap"
	"sync"
)

// DefaultMaxQueueSize is the default capacity of the Priority Send Queue.
const DefaultMaxQueueSize = 1000

// recordHeap orders QueuedRecords by (priority DESC, submitTime ASC, seq ASC
// as a final tiebreaker so equal-priority records with a coalesced
// submitTime still dequeue in submission order), generalizing the
// priority-class scheduling in the pack's smux session write scheduler from
// two fixed classes to a continuous integer priority.
type recordHeap []*QueuedRecord

func (h recordHeap) Len() int { return len(h) }

func (h recordHeap) Less(i, j int) bool {
	if h[i].Options.Priority != h[j].Options.Priority {
		return h[i].Options.Priority > h[j].Options.Priority
	}
	if !h[i].SubmitTime.Equal(h[j].SubmitTime) {
		return h[i].SubmitTime.Before(h[j].SubmitTime)
	}
	return h[i].Seq < h[j].Seq
}

func (h recordHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *recordHeap) Push(x interface{}) {
	r := x.(*QueuedRecord)
	r.index = len(*h)
	*h = append(*h, r)
}

func (h *recordHeap) Pop() interface{} {
	old := *h
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	r.index = -1
	*h = old[:n-1]
	return r
}

// SendQueue is the bounded Priority Send Queue of §4.2. Overflow drops the
// globally lowest-priority record (which may be the record just enqueued)
// and fires its delivery callback with ErrQueueFull.
type SendQueue struct {
	mu       sync.Mutex
	heap     recordHeap
	capacity int
	onDrop   func(*QueuedRecord)
}

// NewSendQueue creates a SendQueue with the given capacity (0 selects
// DefaultMaxQueueSize). onDrop, if non-nil, is invoked for every record
// that overflow evicts, including a freshly enqueued one.
func NewSendQueue(capacity int, onDrop func(*QueuedRecord)) *SendQueue {
	if capacity <= 0 {
		capacity = DefaultMaxQueueSize
	}
	q := &SendQueue{capacity: capacity, onDrop: onDrop}
	heap.Init(&q.heap)
	return q
}

// Enqueue inserts record, evicting the lowest-priority resident record if
// the queue is already at capacity.
func (q *SendQueue) Enqueue(record *QueuedRecord) {
	q.mu.Lock()
	heap.Push(&q.heap, record)
	var evicted *QueuedRecord
	if q.heap.Len() > q.capacity {
		evicted = q.evictLowestLocked()
	}
	q.mu.Unlock()

	if evicted != nil && q.onDrop != nil {
		q.onDrop(evicted)
	}
}

// evictLowestLocked removes and returns the lowest-priority, latest-
// submitted record. Caller must hold q.mu.
func (q *SendQueue) evictLowestLocked() *QueuedRecord {
	worst := 0
	for i := 1; i < q.heap.Len(); i++ {
		if isLower(q.heap[i], q.heap[worst]) {
			worst = i
		}
	}
	removed := heap.Remove(&q.heap, worst)
	return removed.(*QueuedRecord)
}

func isLower(a, b *QueuedRecord) bool {
	if a.Options.Priority != b.Options.Priority {
		return a.Options.Priority < b.Options.Priority
	}
	if !a.SubmitTime.Equal(b.SubmitTime) {
		return a.SubmitTime.After(b.SubmitTime)
	}
	return a.Seq > b.Seq
}

// Dequeue returns the next record in priority order, or nil if empty.
func (q *SendQueue) Dequeue() *QueuedRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.heap.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.heap).(*QueuedRecord)
}

// Len returns the number of records currently queued.
func (q *SendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// CancelBySequence removes the record with seq, if still queued. Returns
// true if a record was removed. This defensively supports acks arriving
// before a record has drained; it should not occur under correct ordering.
func (q *SendQueue) CancelBySequence(seq uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, r := range q.heap {
		if r.Seq == seq {
			heap.Remove(&q.heap, i)
			return true
		}
	}
	return false
}

// DrainAll removes and returns every queued record in priority order,
// leaving the queue empty. Used on Disconnect to apply the drop policy.
func (q *SendQueue) DrainAll() []*QueuedRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*QueuedRecord, 0, q.heap.Len())
	for q.heap.Len() > 0 {
		out = append(out, heap.Pop(&q.heap).(*QueuedRecord))
	}
	return out
}

// Requeue pushes record back onto the queue, used when a reconnect returns
// pending reliable records to the head of the line at their original
// priority.
func (q *SendQueue) Requeue(record *QueuedRecord) {
	q.mu.Lock()
	heap.Push(&q.heap, record)
	q.mu.Unlock()
}
