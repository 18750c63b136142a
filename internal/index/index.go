// Package index implements a generic O(1) session-id lookup by (field,
// value) pair.
package index

import "sync"

// FieldValue is one (field, value) pair recorded against a session id.
type FieldValue struct {
	Field string
	Value string
}

// Index is a bidirectional field/value -> set<sid> lookup table, guarded by
// a single reader-writer lock.
type Index struct {
	mu      sync.RWMutex
	forward map[string]map[string]map[string]struct{} // field -> value -> set<sid>
	reverse map[string][]FieldValue                   // sid -> [(field,value)]
}

// New builds an empty Index.
func New() *Index {
	return &Index{
		forward: make(map[string]map[string]map[string]struct{}),
		reverse: make(map[string][]FieldValue),
	}
}

// Add records (sid, field, value), replacing any prior value the same sid
// held for field (set-or-replace semantics).
func (idx *Index) Add(sid, field, value string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeFieldLocked(sid, field)

	byValue, ok := idx.forward[field]
	if !ok {
		byValue = make(map[string]map[string]struct{})
		idx.forward[field] = byValue
	}
	sids, ok := byValue[value]
	if !ok {
		sids = make(map[string]struct{})
		byValue[value] = sids
	}
	sids[sid] = struct{}{}

	idx.reverse[sid] = append(idx.reverse[sid], FieldValue{Field: field, Value: value})
}

// removeFieldLocked drops any existing (sid, field) mapping, cleaning up
// empty inner containers, before Add inserts the new value. Must be called
// with mu held for writing.
func (idx *Index) removeFieldLocked(sid, field string) {
	entries := idx.reverse[sid]
	for i, fv := range entries {
		if fv.Field != field {
			continue
		}
		if byValue, ok := idx.forward[field]; ok {
			if sids, ok := byValue[fv.Value]; ok {
				delete(sids, sid)
				if len(sids) == 0 {
					delete(byValue, fv.Value)
				}
			}
			if len(byValue) == 0 {
				delete(idx.forward, field)
			}
		}
		idx.reverse[sid] = append(entries[:i], entries[i+1:]...)
		return
	}
}

// Remove erases every forward mapping recorded for sid, per its reverse
// entries, and drops the reverse entry itself.
func (idx *Index) Remove(sid string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, fv := range idx.reverse[sid] {
		if byValue, ok := idx.forward[fv.Field]; ok {
			if sids, ok := byValue[fv.Value]; ok {
				delete(sids, sid)
				if len(sids) == 0 {
					delete(byValue, fv.Value)
				}
			}
			if len(byValue) == 0 {
				delete(idx.forward, fv.Field)
			}
		}
	}
	delete(idx.reverse, sid)
}

// Find returns a read-only snapshot of the sids currently mapped to
// (field, value). Callers must not mutate the returned slice's backing
// array assumptions beyond reading it; it is a copy, not a live view.
func (idx *Index) Find(field, value string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	byValue, ok := idx.forward[field]
	if !ok {
		return nil
	}
	sids, ok := byValue[value]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(sids))
	for sid := range sids {
		out = append(out, sid)
	}
	return out
}
