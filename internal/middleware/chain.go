// Package middleware implements the ordered global + per-method middleware
// chain, with short-circuit and panic-as-abort semantics.
package middleware

import (
	"log/slog"
	"sync"

	"github.com/efecan0/binaryrpc/internal/session"
)

// Next is the continuation a Middleware calls to hand control to the rest
// of the chain. Not calling it short-circuits.
type Next func()

// Middleware receives the session, method name, and a mutable payload
// pointer; it may rewrite *payload before calling next.
type Middleware func(s *session.Session, method string, payload *[]byte, next Next)

// Chain holds an ordered list of global middleware plus a per-method
// ordered list, both appended-to in registration order.
type Chain struct {
	mu     sync.RWMutex
	global []Middleware
	scoped map[string][]Middleware
	log    *slog.Logger
}

// New builds an empty Chain. A nil logger falls back to slog.Default().
func New(log *slog.Logger) *Chain {
	if log == nil {
		log = slog.Default()
	}
	return &Chain{scoped: make(map[string][]Middleware), log: log}
}

// Use appends a global middleware, run for every method ahead of any
// method-scoped middleware.
func (c *Chain) Use(mw Middleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.global = append(c.global, mw)
}

// UseFor appends a middleware scoped to a single method.
func (c *Chain) UseFor(method string, mw Middleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scoped[method] = append(c.scoped[method], mw)
}

// UseForMulti appends mw to several methods' scoped chains.
func (c *Chain) UseForMulti(methods []string, mw Middleware) {
	for _, m := range methods {
		c.UseFor(m, mw)
	}
}

// Execute runs global ++ scoped[method] in order. It returns true iff every
// middleware in the chain called next exactly once and none panicked; a
// middleware that returns without calling next short-circuits the chain and
// Execute returns false without invoking anything after it.
func (c *Chain) Execute(s *session.Session, method string, payload *[]byte) bool {
	c.mu.RLock()
	chain := make([]Middleware, 0, len(c.global)+len(c.scoped[method]))
	chain = append(chain, c.global...)
	chain = append(chain, c.scoped[method]...)
	c.mu.RUnlock()

	if len(chain) == 0 {
		return true
	}

	completed := false
	overcalled := false
	calls := make([]int, len(chain))
	var run func(i int)
	run = func(i int) {
		if i >= len(chain) {
			completed = true
			return
		}
		chain[i](s, method, payload, func() {
			calls[i]++
			if calls[i] > 1 {
				overcalled = true
			}
			run(i + 1)
		})
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				c.log.Error("middleware panicked, aborting chain",
					"method", method, "panic", r)
				completed = false
			}
		}()
		run(0)
	}()

	return completed && !overcalled
}
