// Package rpcregistry implements a thread-safe method-name -> handler
// lookup table supporting both the context-based and low-level
// registration shapes.
package rpcregistry

import (
	"log/slog"
	"sync"

	"github.com/efecan0/binaryrpc/internal/session"
)

// ContextHandler is the high-level registration shape: it receives the raw
// payload and an RpcContext exposing reply/broadcast/disconnect/session.
type ContextHandler func(payload []byte, ctx *Context)

// LowLevelHandler is the low-level registration shape: it writes its reply
// directly into out and reads/writes session state directly.
type LowLevelHandler func(payload []byte, out *[]byte, s *session.Session)

type entry struct {
	ctxHandler ContextHandler
	lowHandler LowLevelHandler
}

// Registry is a thread-safe method-name -> handler table.
type Registry struct {
	mu       sync.Mutex
	handlers map[string]entry
	log      *slog.Logger
}

// New builds an empty Registry. A nil logger falls back to slog.Default().
func New(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{handlers: make(map[string]entry), log: log}
}

// Register installs a context-based handler for method.
func (r *Registry) Register(method string, handler ContextHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = entry{ctxHandler: handler}
}

// RegisterLowLevel installs a low-level handler for method.
func (r *Registry) RegisterLowLevel(method string, handler LowLevelHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = entry{lowHandler: handler}
}

// Call invokes the handler registered for method, if any. It returns
// whether method was found — handler panics are recovered and logged, never
// propagated; the return value indicates only whether the method existed.
func (r *Registry) Call(method string, payload []byte, out *[]byte, s *session.Session, responder Responder) (handled bool) {
	r.mu.Lock()
	e, ok := r.handlers[method]
	r.mu.Unlock()
	if !ok {
		return false
	}
	handled = true

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("rpc handler panicked", "method", method, "panic", rec)
		}
	}()

	switch {
	case e.ctxHandler != nil:
		ctx := &Context{session: s, out: out, responder: responder}
		e.ctxHandler(payload, ctx)
	case e.lowHandler != nil:
		e.lowHandler(payload, out, s)
	}
	return handled
}

// Has reports whether method is registered, without invoking anything.
func (r *Registry) Has(method string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handlers[method]
	return ok
}
