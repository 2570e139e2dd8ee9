// Package progress provides an in-memory store of per-session pipeline status.
//
// The store is written by pipeline workers and read by the status command,
// so every method is safe for concurrent use. Records are whole-value
// snapshots: each update replaces the previous record for its session
// rather than merging into it.
package progress

import (
	"sort"
	"sync"
)

// Record is a point-in-time snapshot of one session's pipeline state.
// Done marks successful completion; Failed marks a terminal failure.
// A session with neither is still in flight.
type Record struct {
	Message string         `json:"message"`
	Percent int            `json:"percent"`
	Meta    map[string]any `json:"meta,omitempty"`
	Done    bool           `json:"done"`
	Failed  bool           `json:"failed,omitempty"`
}

// Store holds the latest Record for each active session.
type Store struct {
	mu       sync.Mutex
	sessions map[string]Record
}

// NewStore creates an empty progress store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]Record)}
}

// Set replaces the record for the given session. Last write wins.
func (s *Store) Set(sessionID string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = cloneRecord(rec)
}

// Get returns a copy of the session's record and whether it exists.
// Mutating the returned record does not affect the store.
func (s *Store) Get(sessionID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return Record{}, false
	}
	return cloneRecord(rec), true
}

// Delete removes the session's record. Deleting an absent session is a no-op.
func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Clear removes every record from the store.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]Record)
}

// Sessions returns the IDs of all tracked sessions in sorted order.
func (s *Store) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy of every session's record keyed by session ID.
func (s *Store) Snapshot() map[string]Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Record, len(s.sessions))
	for id, rec := range s.sessions {
		out[id] = cloneRecord(rec)
	}
	return out
}

// cloneRecord copies a record including its metadata map so callers
// can never alias store-internal state.
func cloneRecord(rec Record) Record {
	if rec.Meta == nil {
		return rec
	}
	meta := make(map[string]any, len(rec.Meta))
	for k, v := range rec.Meta {
		meta[k] = v
	}
	rec.Meta = meta
	return rec
}
