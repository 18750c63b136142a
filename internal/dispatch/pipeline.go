// Package dispatch implements the transport's ingress hand-off: parse ->
// middleware -> dispatch -> reply, submitted per inbound DATA frame to a
// worker.Pool so the transport's event-loop goroutine never blocks on
// handler code.
package dispatch

import (
	"log/slog"

	"github.com/efecan0/binaryrpc/internal/metrics"
	"github.com/efecan0/binaryrpc/internal/middleware"
	"github.com/efecan0/binaryrpc/internal/protocol"
	"github.com/efecan0/binaryrpc/internal/rpcregistry"
	"github.com/efecan0/binaryrpc/internal/session"
	"github.com/efecan0/binaryrpc/internal/worker"
)

// Responder is the write-back capability a dispatch task needs: it is a
// superset of rpcregistry.Responder (adds Reply, the targeted send a
// handler's response travels over) so it satisfies rpcregistry.Call's
// Responder parameter directly.
type Responder interface {
	Broadcast(payload []byte) error
	Disconnect() error
	Reply(payload []byte) bool
	PublishTo(sid string, payload []byte) (uint64, error)
}

// Pipeline owns the four components a dispatch task chains together:
// protocol (parse/serialize), middleware (chain), rpcregistry (handler
// lookup), and a worker pool it submits each task to.
type Pipeline struct {
	proto    protocol.Protocol
	chain    *middleware.Chain
	registry *rpcregistry.Registry
	pool     *worker.Pool

	log *slog.Logger
	met metrics.Recorder
}

// New builds a Pipeline. A nil logger falls back to slog.Default(); a nil
// metrics.Recorder falls back to metrics.NoOp().
func New(proto protocol.Protocol, chain *middleware.Chain, registry *rpcregistry.Registry, pool *worker.Pool, log *slog.Logger, met metrics.Recorder) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if met == nil {
		met = metrics.NoOp()
	}
	return &Pipeline{proto: proto, chain: chain, registry: registry, pool: pool, log: log, met: met}
}

// Handle submits one inbound DATA payload to the worker pool as a
// parse -> middleware -> dispatch -> reply task. It does not wait for the
// task to run, but it blocks the caller while the pool's queue is full, as
// worker.Pool.Submit does; submission failure (pool stopped) is logged and
// the payload dropped.
func (p *Pipeline) Handle(payload []byte, s *session.Session, responder Responder) {
	_, err := p.pool.Submit(func() {
		p.run(payload, s, responder)
	})
	if err != nil {
		p.log.Warn("dispatch pool rejected task", "err", err)
	}
}

func (p *Pipeline) run(payload []byte, s *session.Session, responder Responder) {
	req := p.proto.Parse(payload)
	if req.Method == "" {
		p.replyError(responder, protocol.ErrCodeParse, "malformed request")
		return
	}

	body := req.Payload
	if !p.chain.Execute(s, req.Method, &body) {
		p.replyError(responder, protocol.ErrCodeMiddleware, "middleware rejected request")
		return
	}

	var out []byte
	if !p.registry.Call(req.Method, body, &out, s, responder) {
		p.replyError(responder, protocol.ErrCodeNotFound, "method not found: "+req.Method)
		return
	}

	if len(out) == 0 {
		return // handler chose not to reply
	}

	wire, err := p.proto.Serialize(req.Method, out)
	if err != nil {
		p.log.Error("reply serialization failed", "method", req.Method, "err", err)
		p.replyError(responder, protocol.ErrCodeInternal, err.Error())
		return
	}
	responder.Reply(wire)
}

func (p *Pipeline) replyError(responder Responder, code protocol.ErrorCode, msg string) {
	wire := p.proto.SerializeError(protocol.ErrorObj{Code: code, Msg: msg})
	responder.Reply(wire)
}
