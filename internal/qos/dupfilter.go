package qos

import (
	"container/list"
	"crypto/sha256"
	"sync"
	"time"
)

// Window bounds the number of entries the duplicate filter retains
// regardless of TTL, so a slow-draining TTL can't grow the filter without
// bound.
const Window = 2048

type dupEntry struct {
	hash      [sha256.Size]byte
	firstSeen time.Time
}

// DuplicateFilter detects replayed payloads within a TTL window. It is used
// both as the per-Session inbound QoS-1 dedup gate and is safe to reuse for
// any TTL-bounded "have I seen this bytes before" check.
type DuplicateFilter struct {
	mu    sync.Mutex
	order *list.List               // of *dupEntry, oldest first
	index map[[sha256.Size]byte]*list.Element
}

// NewDuplicateFilter constructs an empty filter.
func NewDuplicateFilter() *DuplicateFilter {
	return &DuplicateFilter{
		order: list.New(),
		index: make(map[[sha256.Size]byte]*list.Element),
	}
}

// Accept reports whether payload should be treated as fresh (true) or as a
// duplicate within the ttl window (false): hash the payload, evict entries
// older than ttl, then check and insert into the index.
func (f *DuplicateFilter) Accept(payload []byte, ttl time.Duration) bool {
	h := sha256.Sum256(payload)
	now := time.Now()

	f.mu.Lock()
	defer f.mu.Unlock()

	f.evictOlderThanLocked(ttl, now)

	if el, ok := f.index[h]; ok {
		entry := el.Value.(*dupEntry)
		if now.Sub(entry.firstSeen) > ttl {
			f.order.Remove(el)
			delete(f.index, h)
			f.insertLocked(h, now)
			return true
		}
		return false
	}

	f.insertLocked(h, now)
	return true
}

func (f *DuplicateFilter) insertLocked(h [sha256.Size]byte, now time.Time) {
	el := f.order.PushBack(&dupEntry{hash: h, firstSeen: now})
	f.index[h] = el
	for f.order.Len() > Window {
		front := f.order.Front()
		f.order.Remove(front)
		delete(f.index, front.Value.(*dupEntry).hash)
	}
}

func (f *DuplicateFilter) evictOlderThanLocked(ttl time.Duration, now time.Time) {
	for {
		front := f.order.Front()
		if front == nil {
			return
		}
		entry := front.Value.(*dupEntry)
		if now.Sub(entry.firstSeen) <= ttl {
			return
		}
		f.order.Remove(front)
		delete(f.index, entry.hash)
	}
}
