// Package ratelimit provides a per-session token-bucket rate limiter
// middleware built on golang.org/x/time/rate, composed as an ordinary
// small, single-purpose Middleware ahead of RPC handlers.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/efecan0/binaryrpc/internal/middleware"
	"github.com/efecan0/binaryrpc/internal/session"
)

// Limiter enforces a shared rate/burst budget per session. A session's
// bucket is kept until Forget removes it; idle buckets are not evicted.
type Limiter struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// New builds a Limiter allowing rps requests per second per session, with
// burst allowed as an instantaneous spike above that rate.
func New(rps float64, burst int) *Limiter {
	return &Limiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

func (l *Limiter) bucket(sid string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[sid]
	if !ok {
		b = rate.NewLimiter(l.rps, l.burst)
		l.buckets[sid] = b
	}
	return b
}

// Forget drops a session's bucket, e.g. once its session is reaped.
func (l *Limiter) Forget(sid string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, sid)
}

// Middleware returns a middleware.Middleware that short-circuits the chain
// (drops the request silently, calling neither next nor a reply) once a
// session exceeds its budget. A nil session — no identity to key on yet —
// is always allowed through.
func (l *Limiter) Middleware() middleware.Middleware {
	return func(s *session.Session, method string, payload *[]byte, next middleware.Next) {
		if s == nil {
			next()
			return
		}
		if !l.bucket(s.ID()).Allow() {
			return
		}
		next()
	}
}
