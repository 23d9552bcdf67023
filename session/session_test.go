package session

import (
	"bufio"
	"encoding/json"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftforge/netplay/logx"
)

// stubServer is a minimal, single-connection newline-JSON peer used to
// drive the Session through real TCP without a second Session instance.
type stubServer struct {
	ln   net.Listener
	conn net.Conn
}

func startStubServer(t *testing.T) *stubServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return &stubServer{ln: ln}
}

func (s *stubServer) acceptOnce(t *testing.T) {
	t.Helper()
	conn, err := s.ln.Accept()
	require.NoError(t, err)
	s.conn = conn
}

func (s *stubServer) addr() string { return s.ln.Addr().String() }

func (s *stubServer) readLine(t *testing.T) map[string]interface{} {
	t.Helper()
	reader := bufio.NewReader(s.conn)
	line, err := reader.ReadBytes('\n')
	require.NoError(t, err)
	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(line, &msg))
	return msg
}

func (s *stubServer) writeLine(t *testing.T, payload []byte) {
	t.Helper()
	_, err := s.conn.Write(append(payload, '\n'))
	require.NoError(t, err)
}

func (s *stubServer) close() {
	if s.conn != nil {
		s.conn.Close()
	}
	s.ln.Close()
}

func hostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func newTestSession(cfg Config) *Session {
	return New(cfg, logx.NewNop())
}

func TestConnectAndDisconnectCleanFlow(t *testing.T) {
	server := startStubServer(t)
	defer server.close()

	go server.acceptOnce(t)

	cfg := DefaultConfig()
	cfg.EnableHeartbeat = false
	cfg.ConnectTimeout = 2 * time.Second
	s := newTestSession(cfg)

	host, port := hostPort(t, server.addr())
	require.NoError(t, s.Connect(host, port))
	assert.Equal(t, StateConnected, s.GetState())

	require.NoError(t, s.Disconnect())
	assert.Equal(t, StateDisconnected, s.GetState())
}

func TestStrictModeFailsConnectionOnMalformedRecord(t *testing.T) {
	server := startStubServer(t)
	defer server.close()

	go server.acceptOnce(t)

	cfg := DefaultConfig()
	cfg.EnableHeartbeat = false
	cfg.ConnectTimeout = 2 * time.Second
	cfg.Strict = true
	s := newTestSession(cfg)

	host, port := hostPort(t, server.addr())
	require.NoError(t, s.Connect(host, port))
	defer s.Disconnect()

	server.writeLine(t, []byte(`not json`))

	require.Eventually(t, func() bool {
		return s.GetState() == StateError
	}, 2*time.Second, 10*time.Millisecond, "a malformed record under strict mode must move the session to StateError")
	assert.Equal(t, ErrProtocolError, s.GetLastError())
}

func TestNonStrictModeDropsMalformedRecord(t *testing.T) {
	server := startStubServer(t)
	defer server.close()

	go server.acceptOnce(t)

	cfg := DefaultConfig()
	cfg.EnableHeartbeat = false
	cfg.ConnectTimeout = 2 * time.Second
	cfg.Strict = false
	s := newTestSession(cfg)

	host, port := hostPort(t, server.addr())
	require.NoError(t, s.Connect(host, port))
	defer s.Disconnect()

	server.writeLine(t, []byte(`not json`))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateConnected, s.GetState())
	assert.Equal(t, uint64(1), s.GetConnectionMetrics().MessagesDropped)
}

func TestHeartbeatEchoSeedsLatency(t *testing.T) {
	server := startStubServer(t)
	defer server.close()

	go server.acceptOnce(t)

	cfg := DefaultConfig()
	cfg.EnableHeartbeat = true
	cfg.HeartbeatInterval = 20 * time.Millisecond
	cfg.HeartbeatTimeout = 2 * time.Second
	cfg.ConnectTimeout = 2 * time.Second
	s := newTestSession(cfg)

	host, port := hostPort(t, server.addr())
	require.NoError(t, s.Connect(host, port))
	defer s.Disconnect()

	probe := server.readLine(t)
	assert.Equal(t, "heartbeat", probe["type"])

	seq := probe["seq"]
	tVal := probe["t"]
	echo, _ := json.Marshal(map[string]interface{}{
		"type": "heartbeat", "seq": seq, "t": tVal, "t_echo": float64(time.Now().UnixMilli()),
	})
	server.writeLine(t, echo)

	require.Eventually(t, func() bool {
		return s.GetConnectionMetrics().Latency > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAckCancelsRetryScenario(t *testing.T) {
	server := startStubServer(t)
	defer server.close()

	go server.acceptOnce(t)

	cfg := DefaultConfig()
	cfg.EnableHeartbeat = false
	cfg.ConnectTimeout = 2 * time.Second
	s := newTestSession(cfg)

	host, port := hostPort(t, server.addr())
	require.NoError(t, s.Connect(host, port))
	defer s.Disconnect()

	delivered := make(chan error, 1)
	err := s.Send([]byte(`{"type":"move"}`), SendOptions{
		Reliable:      true,
		TimeoutMillis: 200,
		OnDelivery:    func(e error) { delivered <- e },
	})
	require.NoError(t, err)

	msg := server.readLine(t)
	assert.Equal(t, "move", msg["type"])

	// drainQueueAndWrite stamps a "seq" field onto reliable records before
	// writing them, so the peer can name it in the ack.
	ackPayload, _ := json.Marshal(map[string]interface{}{"type": "ack", "seq": msg["seq"]})
	server.writeLine(t, ackPayload)

	select {
	case err := <-delivered:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("delivery callback never fired")
	}
	assert.Equal(t, 0, s.pending.Len())
}
