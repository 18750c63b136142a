// Package ws provides a thin, convenience-focused constructor over the root
// App, bundling the origin-check and per-session rate-limit setup most
// embedders need without hand-wiring every Option.
package ws

import (
	"net/http"

	binaryrpc "github.com/efecan0/binaryrpc"
	"github.com/efecan0/binaryrpc/internal/session"
	"github.com/efecan0/binaryrpc/middlewares/ratelimit"
)

// CheckOriginFn validates the origin of a WebSocket upgrade request. Return
// true to allow the connection, false to reject it.
type CheckOriginFn = func(r *http.Request) bool

// OnConnectFn is invoked once a connection completes its handshake and is
// bound to a session.
type OnConnectFn = func(s *session.Session)

// OnDisconnectFn is invoked when a connection closes.
type OnDisconnectFn = func(s *session.Session)

// RateLimitConfig bounds how many requests per second a single session may
// submit before the rate-limit middleware starts silently dropping them.
type RateLimitConfig struct {
	Enabled           bool
	MessagesPerSecond float64
	Burst             int
}

// DefaultRateLimitConfig allows 100 messages/second per session with a
// burst of 200, a reasonable default for interactive RPC traffic.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{Enabled: true, MessagesPerSecond: 100, Burst: 200}
}

// NoRateLimit disables rate limiting entirely.
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{Enabled: false}
}

// AllOrigins accepts every WebSocket upgrade regardless of Origin. Intended
// for local development; production embedders should supply their own
// CheckOriginFn.
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool { return true }
}

// Config bundles the handful of options New needs to assemble a
// ready-to-run App: rate limiting, origin policy, and connection lifecycle
// callbacks.
type Config struct {
	RateLimitConfig *RateLimitConfig
	CheckOrigin     CheckOriginFn
	OnConnect       OnConnectFn
	OnDisconnect    OnDisconnectFn
}

// New builds an App configured per cfg, applying rate limiting as a global
// middleware ahead of any RPC-specific ones. A nil RateLimitConfig defaults
// to DefaultRateLimitConfig(). The returned App still needs Run(ctx, addr)
// called on it, and any RegisterRPC/UsePlugin wiring the caller wants.
func New(cfg Config, opts ...binaryrpc.Option) *binaryrpc.App {
	rl := cfg.RateLimitConfig
	if rl == nil {
		rl = DefaultRateLimitConfig()
	}

	base := []binaryrpc.Option{
		binaryrpc.WithCheckOrigin(cfg.CheckOrigin),
		binaryrpc.WithOnConnect(cfg.OnConnect),
		binaryrpc.WithOnDisconnect(cfg.OnDisconnect),
	}
	app := binaryrpc.New(append(base, opts...)...)

	if rl.Enabled {
		app.Use(ratelimit.New(rl.MessagesPerSecond, rl.Burst).Middleware())
	}

	return app
}
