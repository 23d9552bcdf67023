// Command client drives a single netplay Session against a running server:
// it connects, registers a chat handler, sends a login and a move, and logs
// state and quality transitions until interrupted.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/driftforge/netplay/logx"
	"github.com/driftforge/netplay/session"
	"github.com/driftforge/netplay/wire"
)

var (
	host = flag.String("host", "127.0.0.1", "server host")
	port = flag.Int("port", 9000, "server port")
)

func main() {
	flag.Parse()
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ltime | log.Lshortfile)

	logger := logx.NewDefaultLogger()
	sess := session.New(session.DefaultConfig(), logger)

	sess.SetStateCallback(func(state session.ConnectionState, connErr session.ConnectionError) {
		log.Printf("state -> %s (%s)", state, connErr)
	})

	sess.RegisterHandler(wire.TypeChat, func(msg map[string]interface{}) error {
		log.Printf("chat: %v", msg["message"])
		return nil
	})
	sess.RegisterHandler(session.WildcardType, func(msg map[string]interface{}) error {
		log.Printf("unhandled record: %v", msg["type"])
		return nil
	})

	log.Printf("connecting to %s:%d...", *host, *port)
	if err := sess.Connect(*host, *port); err != nil {
		log.Fatalf("connect failed: %v", err)
	}
	log.Println("connected")

	if err := sess.Send(wire.BuildLoginMessage("player1", "hunter2"), session.DefaultSendOptions()); err != nil {
		log.Printf("login send failed: %v", err)
	}

	move := wire.BuildMoveMessage(wire.Vector3{X: 1, Y: 0, Z: 0}, wire.Vector3{})
	err := sess.Send(move, session.SendOptions{
		Reliable:      true,
		TimeoutMillis: 2000,
		Priority:      1,
		OnDelivery: func(err error) {
			if err != nil {
				log.Printf("move delivery failed: %v", err)
				return
			}
			log.Println("move acknowledged")
		},
	})
	if err != nil {
		log.Printf("move send failed: %v", err)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			q := sess.GetMetrics()
			log.Printf("quality: score=%.1f recommendation=%s", q.QualityScore, q.Recommendation)

		case <-sigCh:
			log.Println("shutting down...")
			if err := sess.Disconnect(); err != nil {
				log.Printf("disconnect: %v", err)
			}
			return
		}
	}
}
