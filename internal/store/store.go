// Package store keeps the latest parse result per calendar source in
// memory, so the HTTP API and the window-roll cron never re-fetch just
// to answer a read.
package store

import (
	"sort"
	"sync"
	"time"

	"calext/internal/model"
)

// Snapshot is the published state of one source.
type Snapshot struct {
	Records   []model.EventRecord
	Body      string
	FetchedAt time.Time

	// LastError describes the most recent failed cycle. A failure never
	// clears Records; the previous good result is retained.
	LastError string
	ErrorAt   time.Time
}

type Store struct {
	mu    sync.RWMutex
	snaps map[string]*Snapshot
	now   func() time.Time
}

func New() *Store {
	return &Store{
		snaps: make(map[string]*Snapshot),
		now:   time.Now,
	}
}

// SetSnapshot publishes a fresh result for a source and clears any
// recorded error.
func (s *Store) SetSnapshot(id, body string, records []model.EventRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[id] = &Snapshot{
		Records:   records,
		Body:      body,
		FetchedAt: s.now(),
	}
}

// SetError records a failed cycle. The previous records and body stay
// in place.
func (s *Store) SetError(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[id]
	if !ok {
		snap = &Snapshot{}
		s.snaps[id] = snap
	}
	snap.LastError = err.Error()
	snap.ErrorAt = s.now()
}

// Snapshot returns a copy of the source's published state.
func (s *Store) Snapshot(id string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[id]
	if !ok {
		return Snapshot{}, false
	}
	return *snap, true
}

// Bodies returns the raw ICS body of every source that has one, keyed
// by source ID. Used to re-expand cached feeds when the window rolls.
func (s *Store) Bodies() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.snaps))
	for id, snap := range s.snaps {
		if snap.Body != "" {
			out[id] = snap.Body
		}
	}
	return out
}

// Events merges all sources' records overlapping the window, sorted by
// start time (ties keep source-ID order for determinism).
func (s *Store) Events(w model.Window) []model.EventRecord {
	s.mu.RLock()
	ids := make([]string, 0, len(s.snaps))
	for id := range s.snaps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []model.EventRecord
	for _, id := range ids {
		for _, rec := range s.snaps[id].Records {
			if w.Overlaps(rec.Start, rec.End) {
				out = append(out, rec)
			}
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}
