package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(seq uint64, priority int, submit time.Time) *QueuedRecord {
	return &QueuedRecord{
		Payload:    []byte("x"),
		Options:    SendOptions{Priority: priority},
		SubmitTime: submit,
		Seq:        seq,
	}
}

func TestQueueOverflowScenario(t *testing.T) {
	var dropped []*QueuedRecord
	q := NewSendQueue(3, func(r *QueuedRecord) { dropped = append(dropped, r) })

	base := time.Now()
	q.Enqueue(newRecord(1, 1, base))
	q.Enqueue(newRecord(2, 2, base.Add(time.Millisecond)))
	q.Enqueue(newRecord(3, 0, base.Add(2*time.Millisecond)))
	q.Enqueue(newRecord(4, 3, base.Add(3*time.Millisecond)))

	require.Len(t, dropped, 1)
	assert.Equal(t, 0, dropped[0].Options.Priority)

	var order []int
	for {
		r := q.Dequeue()
		if r == nil {
			break
		}
		order = append(order, r.Options.Priority)
	}
	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestQueuePreservesSubmitOrderAtEqualPriority(t *testing.T) {
	q := NewSendQueue(10, nil)
	base := time.Now()
	q.Enqueue(newRecord(1, 5, base))
	q.Enqueue(newRecord(2, 5, base.Add(time.Millisecond)))
	q.Enqueue(newRecord(3, 5, base.Add(2*time.Millisecond)))

	var seqs []uint64
	for {
		r := q.Dequeue()
		if r == nil {
			break
		}
		seqs = append(seqs, r.Seq)
	}
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
}

func TestQueueDequeueOrderingInvariant(t *testing.T) {
	q := NewSendQueue(100, nil)
	base := time.Now()
	priorities := []int{3, 1, 4, 1, 5, 9, 2, 6}
	for i, p := range priorities {
		q.Enqueue(newRecord(uint64(i), p, base.Add(time.Duration(i)*time.Millisecond)))
	}

	var prev *QueuedRecord
	for {
		r := q.Dequeue()
		if r == nil {
			break
		}
		if prev != nil {
			ok := prev.Options.Priority > r.Options.Priority ||
				(prev.Options.Priority == r.Options.Priority && !prev.SubmitTime.After(r.SubmitTime))
			assert.True(t, ok, "ordering invariant violated between %+v and %+v", prev, r)
		}
		prev = r
	}
}

func TestCancelBySequence(t *testing.T) {
	q := NewSendQueue(10, nil)
	q.Enqueue(newRecord(7, 1, time.Now()))
	assert.True(t, q.CancelBySequence(7))
	assert.False(t, q.CancelBySequence(7))
	assert.Equal(t, 0, q.Len())
}

func TestDrainAll(t *testing.T) {
	q := NewSendQueue(10, nil)
	q.Enqueue(newRecord(1, 1, time.Now()))
	q.Enqueue(newRecord(2, 2, time.Now()))
	drained := q.DrainAll()
	assert.Len(t, drained, 2)
	assert.Equal(t, 0, q.Len())
}
