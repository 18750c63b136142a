package session

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/efecan0/binaryrpc/internal/index"
)

// Manager creates, finds, reaps, and indexes Sessions, and owns the offline
// message queue. It uses one reader-writer lock for the session maps and
// defers to each Session's own lock for KV state.
type Manager struct {
	ttlMs uint64
	seq   uint64 // atomic, sid generator

	mu         sync.RWMutex
	bySid      map[string]*Session
	byIdentity map[IdentityKey]*Session

	index *index.Index

	offline *offlineQueues

	log *slog.Logger
}

// NewManager builds a Manager with the given session TTL in milliseconds.
// A nil logger falls back to slog.Default().
func NewManager(ttlMs uint64, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		ttlMs:      ttlMs,
		bySid:      make(map[string]*Session),
		byIdentity: make(map[IdentityKey]*Session),
		index:      index.New(),
		offline:    newOfflineQueues(),
		log:        log,
	}
}

// Index exposes the generic index for O(1) findByX lookups.
func (m *Manager) Index() *index.Index { return m.index }

// TtlMs returns the Offline->destroy grace period this manager applies to
// every session, used by the transport to re-arm a session's expiry after
// its last connection drops.
func (m *Manager) TtlMs() uint64 { return m.ttlMs }

func (m *Manager) nextSid() string {
	n := atomic.AddUint64(&m.seq, 1)
	return fmt.Sprintf("s-%d", n)
}

// CreateSession allocates a fresh sid and ConnState and registers the
// session under both the sid and identity maps.
func (m *Manager) CreateSession(identity ClientIdentity, nowMs uint64) *Session {
	sid := m.nextSid()
	s := newSession(sid, identity, nowMs+m.ttlMs)

	m.mu.Lock()
	m.bySid[sid] = s
	m.byIdentity[identity.Key()] = s
	m.mu.Unlock()

	return s
}

// GetOrCreate implements the three-branch reconnect resolution:
// a zero token always creates fresh; a valid, unexpired, matching token
// rebinds to the existing session and refreshes its TTL; anything else
// (expired or mismatched token) creates a new session, leaving the old one
// for the reaper.
func (m *Manager) GetOrCreate(identity ClientIdentity, nowMs uint64) *Session {
	if identity.SessionToken.IsZero() {
		identity.SessionToken = RandomToken()
		return m.CreateSession(identity, nowMs)
	}

	m.mu.RLock()
	existing, ok := m.byIdentity[identity.Key()]
	m.mu.RUnlock()

	if ok {
		if nowMs <= existing.ExpiryMs() && existing.Identity().SessionToken == identity.SessionToken {
			existing.SetExpiryMs(nowMs + m.ttlMs)
			return existing
		}
		m.log.Debug("session token mismatch or expired, minting new session",
			"clientId", identity.ClientID, "deviceId", identity.DeviceID)
	}

	return m.CreateSession(identity, nowMs)
}

// GetSession looks a session up by sid.
func (m *Manager) GetSession(sid string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.bySid[sid]
	return s, ok
}

// AttachSession registers a manually constructed session, for callers that
// build a Session outside the normal GetOrCreate/CreateSession path.
func (m *Manager) AttachSession(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bySid[s.ID()] = s
	m.byIdentity[s.Identity().Key()] = s
}

// RemoveSession erases a session from every map and the generic index.
func (m *Manager) RemoveSession(sid string) {
	m.mu.Lock()
	s, ok := m.bySid[sid]
	if ok {
		delete(m.bySid, sid)
		delete(m.byIdentity, s.Identity().Key())
	}
	m.mu.Unlock()

	m.index.Remove(sid)
}

// ListSessionIds returns a snapshot of all currently registered sids.
func (m *Manager) ListSessionIds() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.bySid))
	for sid := range m.bySid {
		out = append(out, sid)
	}
	return out
}

// Count reports the number of sessions currently registered, exposed for
// metrics without the allocation ListSessionIds pays for.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bySid)
}

// Reap removes every session that is Offline and past its expiry. It never
// holds the manager lock while touching a Session's own state beyond
// reading LiveConn/ExpiryMs.
func (m *Manager) Reap(nowMs uint64) {
	m.mu.RLock()
	var dead []*Session
	for _, s := range m.bySid {
		if s.LiveConn() == nil && s.ExpiryMs() < nowMs {
			dead = append(dead, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range dead {
		s.markDestroying()
		m.RemoveSession(s.ID())
		m.log.Debug("reaped expired session", "sid", s.ID())
	}
}

// SetField stores value in the session's KV store, additionally indexing
// (sid, key, stringify(value)) when indexed is true. Returns false if sid
// is unknown.
func (m *Manager) SetField(sid, key string, value any, indexed bool) bool {
	s, ok := m.GetSession(sid)
	if !ok {
		return false
	}
	s.Set(key, value)
	if indexed {
		m.index.Add(sid, key, stringify(value))
	}
	return true
}

// GetField reads a typed value from a session's KV store; see GetAs for the
// exact empty-on-mismatch semantics.
func GetField[T any](m *Manager, sid, key string) (T, bool) {
	var zero T
	s, ok := m.GetSession(sid)
	if !ok {
		return zero, false
	}
	return GetAs[T](s, key)
}

// FindIndexed delegates to the generic index.
func (m *Manager) FindIndexed(key, value string) []string {
	return m.index.Find(key, value)
}
