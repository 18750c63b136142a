package wstransport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/efecan0/binaryrpc/internal/metrics"
	"github.com/efecan0/binaryrpc/internal/qos"
	"github.com/efecan0/binaryrpc/internal/session"
)

// Options is the subset of the public ReliableOptions surface the transport
// needs, duplicated here (rather than imported) because the root package
// imports wstransport and Go forbids the reverse edge.
type Options struct {
	MaxRetry         uint32
	MaxSendQueueSize int
	DuplicateTtlMs   int64
	Backoff          qos.BackoffStrategy

	// Level is the reliability tier PublishTo uses for App-initiated,
	// non-reply outbound sends.
	Level Level

	// EnableCompression turns on gorilla/websocket's per-message deflate at
	// the upgrader and, per outbound frame, only when the frame is at least
	// CompressionThresholdBytes long — small frames pay compression's
	// per-message overhead for no gain.
	EnableCompression         bool
	CompressionThresholdBytes int
}

// BackoffOrDefault returns o.Backoff, or a 50ms/30s LinearBackoff if unset.
func (o Options) BackoffOrDefault() qos.BackoffStrategy {
	if o.Backoff != nil {
		return o.Backoff
	}
	return qos.NewLinearBackoff(50*time.Millisecond, 30*time.Second)
}

// DuplicateTtl returns DuplicateTtlMs as a time.Duration.
func (o Options) DuplicateTtl() time.Duration {
	return time.Duration(o.DuplicateTtlMs) * time.Millisecond
}

// Inspector extracts a ClientIdentity from the upgrade request. Structurally identical to binaryrpc.HandshakeInspector so any
// implementation of that public interface also satisfies this one.
type Inspector interface {
	Extract(r *http.Request) (identity session.ClientIdentity, ok bool, reason string)
}

// DispatchFunc is called once per accepted inbound DATA payload — the
// transport's only hand-off to the App-level pipeline.
type DispatchFunc func(payload []byte, s *session.Session, responder Responder)

// Config configures a Server.
type Config struct {
	Addr         string
	CheckOrigin  func(r *http.Request) bool
	Inspector    Inspector
	Opts         Options
	OnConnect    func(s *session.Session)
	OnDisconnect func(s *session.Session)
	Dispatch     DispatchFunc
}

// Server is the WebSocket transport: an http.Server behind a
// gorilla/websocket.Upgrader, a connection set, and a
// goroutine-per-connection read/write pump pair.
type Server struct {
	addr         string
	upgrader     websocket.Upgrader
	inspector    Inspector
	opts         Options
	dispatch     DispatchFunc
	onConnect    func(s *session.Session)
	onDisconnect func(s *session.Session)

	sessions *session.Manager

	mu      sync.RWMutex
	running bool
	http    *http.Server

	conns sync.Map // map[string]*Conn, keyed by conn id

	log *slog.Logger
	met metrics.Recorder
}

// New builds a Server bound to sessions for identity resolution/rebinding.
// A nil logger falls back to slog.Default(); a nil metrics.Recorder falls
// back to metrics.NoOp().
func New(cfg Config, sessions *session.Manager, log *slog.Logger, met metrics.Recorder) *Server {
	if log == nil {
		log = slog.Default()
	}
	if met == nil {
		met = metrics.NoOp()
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Server{
		addr:      cfg.Addr,
		inspector: cfg.Inspector,
		opts:      cfg.Opts,
		dispatch:  cfg.Dispatch,
		onConnect: cfg.OnConnect,
		onDisconnect: cfg.OnDisconnect,
		sessions:  sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    1024,
			WriteBufferSize:   1024,
			CheckOrigin:       checkOrigin,
			EnableCompression: cfg.Opts.EnableCompression,
		},
		log: log,
		met: met,
	}
}

// Start begins listening on Addr. It returns once the listener is up or an
// immediate startup error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("wstransport: server already running")
	}
	s.running = true
	s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)

	s.http = &http.Server{Addr: s.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		return s.Stop(context.Background())
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop closes every live connection and shuts down the HTTP listener.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	httpSrv := s.http
	s.mu.Unlock()

	s.conns.Range(func(_, v any) bool {
		v.(*Conn).CloseWithReason(websocket.CloseGoingAway, "server shutting down")
		return true
	})

	if httpSrv != nil {
		return httpSrv.Shutdown(ctx)
	}
	return nil
}

// handleUpgrade implements the connection-establishment flow.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	identity, ok, reason := s.inspector.Extract(r)
	if !ok {
		http.Error(w, reason, http.StatusUnauthorized)
		return
	}

	sess := s.sessions.GetOrCreate(identity, nowMs())

	// If an existing connection is bound to this session, close it with a
	// well-known code before binding the new one.
	if existing := sess.LiveConn(); existing != nil {
		if prev, ok := existing.(*Conn); ok {
			prev.CloseWithReason(websocket.CloseNormalClosure, "connection replaced")
		}
	}

	header := http.Header{}
	header.Set("X-Session-Token", sess.Identity().SessionToken.String())

	ws, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	conn := newConn(uuid.New().String(), ws, r.RemoteAddr, s)
	conn.bindSession(sess)
	s.conns.Store(conn.id, conn)

	sess.Rebind(conn)

	go conn.writePump()

	if s.onConnect != nil {
		s.onConnect(sess)
	}

	s.sessions.ProcessOfflineMessages(sess.ID(), func(data []byte) {
		conn.Send1(data, s.opts.BackoffOrDefault())
	})

	conn.readPump(func(payload []byte, sess *session.Session, responder Responder) {
		if s.dispatch != nil {
			s.dispatch(payload, sess, responder)
		}
	})
}

// onConnClosed implements the on-close flow: remove from the connection
// set, and if no other connection is bound to the same identity, mark
// Offline / rebind(nil) / set the reap deadline.
func (s *Server) onConnClosed(c *Conn) {
	s.conns.Delete(c.id)

	sess := c.Session()
	if sess == nil {
		return
	}

	if live, ok := sess.LiveConn().(*Conn); !ok || live.id == c.id {
		sess.Rebind(nil)
		sess.SetExpiryMs(nowMs() + s.sessions.TtlMs())
	}

	if s.onDisconnect != nil {
		s.onDisconnect(sess)
	}
}

// Broadcast sends payload as a QoS-0 DATA frame to every currently
// connected client, used by rpcregistry.Context.Broadcast.
func (s *Server) Broadcast(payload []byte) error {
	s.conns.Range(func(_, v any) bool {
		v.(*Conn).SendData(payload)
		return true
	})
	return nil
}

// SendToSession publishes payload to sid at the given reliability level.
// If sid has no live connection, payload is queued on the session's
// offline queue instead — replayed at QoS-1 once the session reconnects,
// via the same flush path Start's handleUpgrade drives, regardless of the
// level requested here — and this reports success with id 0.
func (s *Server) SendToSession(sid string, payload []byte, level Level, backoff qos.BackoffStrategy) (uint64, error) {
	sess, ok := s.sessions.GetSession(sid)
	if !ok {
		return 0, ErrSessionNotFound
	}
	conn, ok := sess.LiveConn().(*Conn)
	if !ok || conn == nil {
		if !s.sessions.AddOfflineMessage(sid, payload) {
			return 0, ErrConnClosed
		}
		return 0, nil
	}
	return conn.Publish(payload, level, backoff)
}

// ActiveConnCount reports the number of live connections, exposed for
// metrics/diagnostics.
func (s *Server) ActiveConnCount() int {
	n := 0
	s.conns.Range(func(_, _ any) bool { n++; return true })
	return n
}

func nowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}

