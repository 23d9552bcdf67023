package types

import (
	"context"
	"net"
)

// Transport abstracts the reliable ordered byte stream a Session runs over.
// It deals in raw bytes, not framed records — the framer package owns
// splitting a stream of Receive() chunks into newline-delimited records.
type Transport interface {
	// Send writes raw bytes to the underlying connection, respecting ctx.
	Send(ctx context.Context, data []byte) error

	// Receive blocks until at least one byte is available, respecting ctx,
	// and returns whatever the underlying connection yielded. It makes no
	// promise about message boundaries.
	Receive(ctx context.Context) ([]byte, error)

	// Close terminates the transport. After Close, Send/Receive must fail.
	Close() error

	// IsClosed reports whether Close has been called.
	IsClosed() bool

	// RemoteAddr returns the address of the peer, if known.
	RemoteAddr() net.Addr
}

// TransportOptions configures a Transport at construction time.
type TransportOptions struct {
	// BufferSize sizes the read buffer used for each Receive call.
	BufferSize int

	// Logger receives transport-level diagnostics.
	Logger Logger
}
