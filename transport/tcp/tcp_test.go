package tcp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftforge/netplay/framer"
	"github.com/driftforge/netplay/types"
)

func TestDialListenAcceptSendReceive(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", types.TransportOptions{})
	require.NoError(t, err)
	defer ln.Close()

	serverDone := make(chan []byte, 1)
	go func() {
		server, err := ln.Accept()
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		f := framer.New(0)
		for {
			chunk, err := server.Receive(ctx)
			if err != nil {
				return
			}
			records, _ := f.Feed(chunk)
			if len(records) > 0 {
				serverDone <- records[0]
				return
			}
		}
	}()

	client, err := Dial(ln.Addr().String(), types.TransportOptions{})
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Send(ctx, framer.Frame([]byte(`{"type":"chat"}`))))

	select {
	case got := <-serverDone:
		assert.Equal(t, `{"type":"chat"}`, string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to receive record")
	}
}

func TestReceiveAfterCloseErrors(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", types.TransportOptions{})
	require.NoError(t, err)
	defer ln.Close()

	clientConn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	require.NoError(t, err)
	defer clientConn.Close()

	server, err := ln.Accept()
	require.NoError(t, err)
	require.NoError(t, server.Close())
	assert.True(t, server.IsClosed())

	_, err = server.Receive(context.Background())
	assert.Error(t, err)
}
