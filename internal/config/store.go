package config

import "sync/atomic"

// Store publishes tuning snapshots to the tick path. Writers replace
// the whole document in one pointer swap, so a reader never observes a
// partially updated config. Snapshots handed out are shared and must
// be treated as read-only; every write path clones first.
type Store struct {
	cur atomic.Pointer[Tuning]
}

// NewStore returns a store seeded with t (or an empty tuning when nil).
// The seed is cloned and normalized before publication.
func NewStore(t *Tuning) *Store {
	s := &Store{}
	s.Replace(t)
	return s
}

// Snapshot returns the current tuning document. Callers must not
// mutate it.
func (s *Store) Snapshot() *Tuning {
	return s.cur.Load()
}

// Replace swaps in a full new document. The input is cloned and
// normalized, so the caller keeps ownership of t.
func (s *Store) Replace(t *Tuning) {
	next := t.Clone()
	next.Normalize()
	s.cur.Store(next)
}

// Apply overlays patch onto the current document and publishes the
// result. Returns the published snapshot.
func (s *Store) Apply(patch *Tuning) *Tuning {
	for {
		cur := s.cur.Load()
		next := cur.Overlay(patch)
		next.Normalize()
		if s.cur.CompareAndSwap(cur, next) {
			return next
		}
	}
}
