package binaryrpc

import (
	"log/slog"
	"net/http"

	"github.com/efecan0/binaryrpc/internal/config"
	"github.com/efecan0/binaryrpc/internal/log"
	"github.com/efecan0/binaryrpc/internal/metrics"
	"github.com/efecan0/binaryrpc/internal/protocol"
	"github.com/efecan0/binaryrpc/internal/session"
)

// Option configures an App at construction time.
type Option func(a *App)

// WithReliableOptions overrides the default QoS/retry/session configuration.
func WithReliableOptions(o ReliableOptions) Option {
	return func(a *App) { a.reliable = o }
}

// WithProtocol overrides the default SimpleText application-level codec.
func WithProtocol(p protocol.Protocol) Option {
	return func(a *App) { a.proto = p }
}

// WithMsgPack selects the MsgPack application-level codec.
func WithMsgPack() Option {
	return WithProtocol(protocol.MsgPack{})
}

// WithHandshakeInspector overrides the zero-configuration accept-all
// inspector with one that resolves identity from the upgrade request.
func WithHandshakeInspector(i HandshakeInspector) Option {
	return func(a *App) { a.inspector = i }
}

// WithCheckOrigin overrides the WebSocket upgrader's origin check, which
// otherwise accepts every origin.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(a *App) { a.checkOrigin = fn }
}

// WithOnConnect registers a callback invoked once a connection completes
// its handshake and is bound to a session.
func WithOnConnect(fn func(s *session.Session)) Option {
	return func(a *App) { a.onConnect = fn }
}

// WithOnDisconnect registers a callback invoked when a connection closes.
func WithOnDisconnect(fn func(s *session.Session)) Option {
	return func(a *App) { a.onDisconnect = fn }
}

// WithLogger overrides the default logger (slog.Default()) every internal
// component is constructed with.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithLogLevel builds the framework's colorized logger (internal/log) at the
// given level, in place of slog.Default() or a caller-supplied *slog.Logger.
func WithLogLevel(level slog.Leveler) Option {
	return func(a *App) { a.log = log.New(level) }
}

// WithMetrics enables Prometheus instrumentation, served over addr's
// "/metrics" path once Run starts.
func WithMetrics(addr string) Option {
	return func(a *App) {
		a.met = metrics.NewPromRecorder()
		a.metricsAddr = addr
		a.metricsEnabled = true
	}
}

// WithWorkerPool overrides the dispatch pipeline's worker pool sizing.
func WithWorkerPool(workers, queueSize int) Option {
	return func(a *App) {
		a.poolSize = workers
		a.poolQueueSize = queueSize
	}
}

// WithConfig applies a loaded config.Config over the App's defaults: the
// reliable-delivery tier and retry/session knobs, the bind address Run uses
// when called with an empty addr, the log level, and metrics exposure. It
// is the bridge that lets an application built from config.Load skip
// WithReliableOptions/WithLogLevel/WithMetrics entirely.
func WithConfig(cfg *config.Config) Option {
	return func(a *App) {
		a.reliable = ReliableOptions{
			Level:                     QoSLevel(cfg.Reliable.Level.Ordinal()),
			BaseRetryMs:               cfg.Reliable.BaseRetryMs,
			MaxBackoffMs:              cfg.Reliable.MaxBackoffMs,
			MaxRetry:                  cfg.Reliable.MaxRetry,
			SessionTtlMs:              cfg.Reliable.SessionTtlMs,
			DuplicateTtlMs:            cfg.Reliable.DuplicateTtlMs,
			EnableCompression:         cfg.Reliable.EnableCompression,
			CompressionThresholdBytes: cfg.Reliable.CompressionThresholdBytes,
			MaxSendQueueSize:          cfg.Reliable.MaxSendQueueSize,
		}
		a.bindAddr = cfg.Bind
		a.log = log.New(log.ParseLevel(cfg.LogLevel))
		if cfg.MetricsEnabled {
			a.met = metrics.NewPromRecorder()
			a.metricsAddr = cfg.MetricsAddr
			a.metricsEnabled = true
		}
	}
}
