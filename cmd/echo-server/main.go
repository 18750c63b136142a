// Command echo-server is a minimal demonstration of the framework: it
// registers a couple of RPC methods and serves them over WebSocket until
// interrupted.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/efecan0/binaryrpc/internal/rpcregistry"
	"github.com/efecan0/binaryrpc/internal/session"
	"github.com/efecan0/binaryrpc/ws"
)

func main() {
	app := ws.New(ws.Config{
		CheckOrigin: ws.AllOrigins(),
		OnConnect: func(s *session.Session) {
			slog.Info("client connected", "sid", s.ID())
		},
		OnDisconnect: func(s *session.Session) {
			slog.Info("client disconnected", "sid", s.ID())
		},
	})

	app.RegisterRPC("echo", func(payload []byte, ctx *rpcregistry.Context) {
		ctx.Reply(payload)
	})

	app.RegisterRPC("broadcast", func(payload []byte, ctx *rpcregistry.Context) {
		ctx.Broadcast(payload)
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Println("starting echo-server on :8080")
	if err := app.Run(ctx, ":8080"); err != nil {
		log.Fatalf("echo-server: %v", err)
	}
}
