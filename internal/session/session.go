package session

import (
	"sync"
	"time"

	"github.com/efecan0/binaryrpc/internal/qos"
)

// ConnHandle is the opaque, transport-owned per-connection handle a Session
// binds to while online: an owned per-connection struct held by the
// transport, with no hidden pointers. Session only ever holds this as an
// opaque reference, never reaching into transport internals.
type ConnHandle any

// ConnectionState is a session's high-level online/offline status.
type ConnectionState uint8

const (
	Offline ConnectionState = iota
	Online
)

// Session is the per-identity state owned by the SessionManager. All exported methods are safe for concurrent use.
type Session struct {
	sid      string
	identity ClientIdentity

	mu              sync.RWMutex
	connectionState ConnectionState
	liveConn        ConnHandle
	expiryMs        uint64
	destroying      bool

	kvMu sync.RWMutex
	kv   map[string]any

	dupFilter *qos.DuplicateFilter

	// QosState is the ConnState carried forward across rebinds — the same
	// pointer keeps QoS-1/QoS-2 retry bookkeeping alive across a reconnect.
	QosState *qos.ConnState
}

// newSession constructs a Session in the Offline state with a fresh
// ConnState and duplicate filter. Only the manager calls this.
func newSession(sid string, identity ClientIdentity, expiryMs uint64) *Session {
	return &Session{
		sid:             sid,
		identity:        identity,
		connectionState: Offline,
		expiryMs:        expiryMs,
		kv:              make(map[string]any),
		dupFilter:       qos.NewDuplicateFilter(),
		QosState:        qos.NewConnState(),
	}
}

// ID returns the session's stable, monotonic sid.
func (s *Session) ID() string { return s.sid }

// Identity returns the immutable client identity this session was created for.
func (s *Session) Identity() ClientIdentity { return s.identity }

// Rebind replaces the live transport handle, marks the session Online, and
// resets the inbound duplicate filter because ids now restart from the new
// connection's perspective. Fails silently (no-op) if the
// session is being destroyed.
func (s *Session) Rebind(conn ConnHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroying {
		return
	}
	s.liveConn = conn
	if conn != nil {
		s.connectionState = Online
	} else {
		s.connectionState = Offline
	}
	s.dupFilter = qos.NewDuplicateFilter()
	s.QosState.ResetInbound()
}

// LiveConn returns the current handle, or nil if the session is Offline.
// Invariant: LiveConn() == nil iff ConnectionState() == Offline.
func (s *Session) LiveConn() ConnHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveConn
}

// ConnectionState reports whether the session currently has a live transport.
func (s *Session) ConnectionState() ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connectionState
}

// ExpiryMs returns the current Offline->destroy deadline, monotonic ms.
func (s *Session) ExpiryMs() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiryMs
}

// SetExpiryMs updates the Offline->destroy deadline.
func (s *Session) SetExpiryMs(expiryMs uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiryMs = expiryMs
}

// markDestroying prevents further rebinds once the manager decides to reap
// this session, closing a narrow race between reap and a concurrent
// reconnect racing to rebind the same sid.
func (s *Session) markDestroying() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroying = true
}

// Set stores value under key in the session's typed KV store.
func (s *Session) Set(key string, value any) {
	s.kvMu.Lock()
	defer s.kvMu.Unlock()
	s.kv[key] = value
}

// Get returns the raw value stored for key, if any, without a type check.
// Prefer the generic GetAs helper for typed access.
func (s *Session) Get(key string) (any, bool) {
	s.kvMu.RLock()
	defer s.kvMu.RUnlock()
	v, ok := s.kv[key]
	return v, ok
}

// GetAs performs a typed lookup in Session's KV store. A type mismatch or a
// missing key both return the zero value of T and false — never a panic.
func GetAs[T any](s *Session, key string) (T, bool) {
	var zero T
	raw, ok := s.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// AcceptDuplicate delegates to the internal duplicate filter, gating
// handler invocation for inbound QoS-1 RPCs.
func (s *Session) AcceptDuplicate(rpcPayload []byte, ttl time.Duration) bool {
	s.mu.RLock()
	f := s.dupFilter
	s.mu.RUnlock()
	return f.Accept(rpcPayload, ttl)
}
