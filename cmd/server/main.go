// Command server runs a minimal game-session peer: it accepts TCP
// connections, frames inbound records, echoes heartbeat probes, and
// acknowledges every login, move, chat, interact or inventory record that
// carries a seq field.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/driftforge/netplay/framer"
	"github.com/driftforge/netplay/logx"
	"github.com/driftforge/netplay/transport/tcp"
	"github.com/driftforge/netplay/types"
	"github.com/driftforge/netplay/wire"
)

var listenAddr = flag.String("addr", "127.0.0.1:9000", "address to listen on")

func main() {
	flag.Parse()
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ltime | log.Lshortfile)

	logger := logx.NewDefaultLogger()

	ln, err := tcp.Listen(*listenAddr, types.TransportOptions{Logger: logger})
	if err != nil {
		log.Fatalf("listen %s: %v", *listenAddr, err)
	}
	defer ln.Close()

	log.Printf("listening on %s", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Printf("accept: %v", err)
			return
		}
		go serve(conn)
	}
}

func serve(t types.Transport) {
	defer t.Close()
	log.Printf("peer connected: %s", t.RemoteAddr())

	fr := framer.New(0)
	ctx := context.Background()

	for {
		chunk, err := t.Receive(ctx)
		if err != nil {
			log.Printf("peer %s disconnected: %v", t.RemoteAddr(), err)
			return
		}
		records, err := fr.Feed(chunk)
		if err != nil {
			log.Printf("peer %s: framing error: %v", t.RemoteAddr(), err)
			return
		}
		for _, record := range records {
			if err := handleRecord(ctx, t, record); err != nil {
				log.Printf("peer %s: %v", t.RemoteAddr(), err)
			}
		}
	}
}

func handleRecord(ctx context.Context, t types.Transport, record []byte) error {
	msgType, err := wire.ParseType(record)
	if err != nil {
		return err
	}

	switch msgType {
	case wire.TypeHeartbeat:
		var hb wire.Heartbeat
		if err := json.Unmarshal(record, &hb); err != nil {
			return err
		}
		echo := wire.BuildHeartbeatEcho(hb.Seq, hb.T)
		return t.Send(ctx, framer.Frame(echo))

	case wire.TypeLogin, wire.TypeMove, wire.TypeChat, wire.TypeInteract, wire.TypeInventory:
		var env struct {
			Type string  `json:"type"`
			Seq  *uint64 `json:"seq"`
		}
		if err := json.Unmarshal(record, &env); err != nil {
			return err
		}
		log.Printf("received %s from %s", env.Type, t.RemoteAddr())
		if env.Seq != nil {
			return t.Send(ctx, framer.Frame(wire.BuildAck(*env.Seq)))
		}

	default:
		log.Printf("dropping unrecognized record type %q", msgType)
	}
	return nil
}
