package tcp

import (
	"fmt"
	"net"
	"time"

	"github.com/driftforge/netplay/types"
)

// DefaultDialTimeout bounds how long Dial waits for the TCP handshake.
const DefaultDialTimeout = 10 * time.Second

// Dial establishes a TCP connection to address and wraps it as a transport.
func Dial(address string, opts types.TransportOptions) (types.Transport, error) {
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	logger.Info("tcp: dialing %s", address)
	conn, err := net.DialTimeout("tcp", address, DefaultDialTimeout)
	if err != nil {
		logger.Error("tcp: dial %s failed: %v", address, err)
		return nil, fmt.Errorf("tcp: dial %s: %w", address, err)
	}
	return New(conn, opts), nil
}

// Listener accepts TCP connections and wraps each as a transport.
type Listener struct {
	listener net.Listener
	opts     types.TransportOptions
	logger   types.Logger
}

// Listen starts a TCP listener on address.
func Listen(address string, opts types.TransportOptions) (*Listener, error) {
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	l, err := net.Listen("tcp", address)
	if err != nil {
		logger.Error("tcp: listen %s failed: %v", address, err)
		return nil, fmt.Errorf("tcp: listen %s: %w", address, err)
	}
	logger.Info("tcp: listening on %s", l.Addr())

	return &Listener{listener: l, opts: opts, logger: logger}, nil
}

// Accept waits for the next inbound connection and wraps it as a transport.
func (l *Listener) Accept() (types.Transport, error) {
	conn, err := l.listener.Accept()
	if err != nil {
		return nil, fmt.Errorf("tcp: accept: %w", err)
	}
	l.logger.Info("tcp: accepted connection from %s", conn.RemoteAddr())
	return New(conn, l.opts), nil
}

// Close stops the listener from accepting further connections.
func (l *Listener) Close() error {
	return l.listener.Close()
}

// Addr returns the listener's bound network address.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}
