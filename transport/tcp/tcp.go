// Package tcp provides a types.Transport implementation over net.Conn.
package tcp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/driftforge/netplay/types"
)

// defaultBufferSize sizes the per-connection read buffer when callers don't
// specify one in TransportOptions.
const defaultBufferSize = 4096

// longReadDeadline is applied when Receive is called without a context
// deadline, bounding how long a goroutine can block on a dead connection.
const longReadDeadline = 24 * time.Hour

// Conn implements types.Transport over a net.Conn. Unlike a line-oriented
// transport, Receive returns whatever bytes the connection yields — record
// boundaries are the framer package's concern, not the transport's.
type Conn struct {
	conn       net.Conn
	reader     *bufio.Reader
	writeMutex sync.Mutex
	logger     types.Logger

	closeMutex sync.Mutex
	closed     bool
}

var _ types.Transport = (*Conn)(nil)

// New wraps an established net.Conn as a types.Transport.
func New(conn net.Conn, opts types.TransportOptions) *Conn {
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	bufferSize := defaultBufferSize
	if opts.BufferSize > 0 {
		bufferSize = opts.BufferSize
	}

	logger.Info("tcp: connection established %s -> %s", conn.LocalAddr(), conn.RemoteAddr())

	return &Conn{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, bufferSize),
		logger: logger,
	}
}

// Send writes data to the connection, respecting ctx for cancellation.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if c.IsClosed() {
		return fmt.Errorf("tcp: transport is closed")
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}

	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	if _, err := c.conn.Write(data); err != nil {
		c.logger.Error("tcp: write failed: %v", err)
		_ = c.Close()
		return fmt.Errorf("tcp: write failed: %w", err)
	}
	return nil
}

// Receive blocks until bytes are available and returns them as read. It
// does not attempt to align on a record boundary.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	if c.IsClosed() {
		return nil, fmt.Errorf("tcp: transport is closed")
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
	} else {
		_ = c.conn.SetReadDeadline(time.Now().Add(longReadDeadline))
	}
	defer c.conn.SetReadDeadline(time.Time{})

	buf := make([]byte, c.reader.Size())
	n, err := c.reader.Read(buf)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			if _, hasDeadline := ctx.Deadline(); hasDeadline {
				return nil, context.DeadlineExceeded
			}
		}
		c.logger.Warn("tcp: read failed: %v", err)
		_ = c.Close()
		return nil, fmt.Errorf("tcp: read failed: %w", err)
	}
	return buf[:n], nil
}

// Close closes the underlying connection. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeMutex.Lock()
	defer c.closeMutex.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.logger.Info("tcp: closing connection %s -> %s", c.conn.LocalAddr(), c.conn.RemoteAddr())
	return c.conn.Close()
}

// IsClosed reports whether Close has been called.
func (c *Conn) IsClosed() bool {
	c.closeMutex.Lock()
	defer c.closeMutex.Unlock()
	return c.closed
}

// RemoteAddr returns the address of the peer.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// LocalAddr returns the local address of the connection.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
