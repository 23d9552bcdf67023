// Package framer splits a raw byte stream into newline-delimited records
// and frames outgoing payloads the same way. It holds no socket state, so
// it can be driven directly from test fixtures as well as a live Transport.
package framer

import (
	"bytes"
	"errors"
)

// DefaultMaxRecordSize is the default cap on a single record, in bytes.
const DefaultMaxRecordSize = 1 << 20 // 1 MiB

// reclaimThreshold is the consumed-prefix size at which Feed compacts the
// buffer instead of letting it grow unbounded.
const reclaimThreshold = 1 << 20 // 1 MiB

// ErrRecordTooLarge is returned by Feed when a record exceeds MaxRecordSize
// before a delimiter is seen. The caller should close the connection with
// a ProtocolError on this condition.
var ErrRecordTooLarge = errors.New("framer: record exceeds maximum size")

// Framer accumulates bytes fed from a stream and yields complete records,
// delimited by a single '\n'. It never allocates per byte; it grows a
// single buffer and periodically reclaims the consumed prefix.
type Framer struct {
	buf           []byte
	consumed      int
	maxRecordSize int
}

// New creates a Framer with the given maximum record size. A maxRecordSize
// of 0 selects DefaultMaxRecordSize.
func New(maxRecordSize int) *Framer {
	if maxRecordSize <= 0 {
		maxRecordSize = DefaultMaxRecordSize
	}
	return &Framer{maxRecordSize: maxRecordSize}
}

// Feed appends chunk to the internal buffer and returns every complete
// record (without the trailing '\n') that can now be extracted. Records
// are returned in arrival order. Each returned record is a fresh copy, so
// it stays valid after later calls to Feed.
func (f *Framer) Feed(chunk []byte) ([][]byte, error) {
	f.buf = append(f.buf, chunk...)

	var records [][]byte
	for {
		rest := f.buf[f.consumed:]
		idx := bytes.IndexByte(rest, '\n')
		if idx < 0 {
			if len(rest) > f.maxRecordSize {
				return records, ErrRecordTooLarge
			}
			break
		}
		if idx > f.maxRecordSize {
			return records, ErrRecordTooLarge
		}
		record := make([]byte, idx)
		copy(record, rest[:idx])
		records = append(records, record)
		f.consumed += idx + 1
	}

	f.reclaim()
	return records, nil
}

// reclaim copies the unconsumed suffix to the front of the buffer once the
// already-consumed prefix grows past reclaimThreshold, bounding memory use
// on long-lived connections that occasionally send oversize bursts.
func (f *Framer) reclaim() {
	if f.consumed == 0 {
		return
	}
	if f.consumed < reclaimThreshold && f.consumed < len(f.buf) {
		return
	}
	remaining := len(f.buf) - f.consumed
	copy(f.buf[:remaining], f.buf[f.consumed:])
	f.buf = f.buf[:remaining]
	f.consumed = 0
}

// Frame returns payload with a trailing '\n' appended, ready for the wire.
func Frame(payload []byte) []byte {
	out := make([]byte, len(payload)+1)
	copy(out, payload)
	out[len(payload)] = '\n'
	return out
}
