package state

import (
	"sync"
	"time"

	"github.com/anicoll/sensor-bridge/internal/pkg/model"
)

// Store holds the most recent reading. Writers replace it wholesale, last write wins.
type Store struct {
	mu        sync.RWMutex
	reading   model.Reading
	updatedAt time.Time
	set       bool
	hydrated  bool
}

func New() *Store {
	return &Store{}
}

// Get returns the current reading and whether one has been accepted or restored.
func (s *Store) Get() (model.Reading, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reading, s.updatedAt, s.set || s.hydrated
}

func (s *Store) Set(r model.Reading, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reading = r
	s.updatedAt = at
	s.set = true
}

// Update applies fn to the current reading under the write lock. If fn fails the
// stored reading is left as it was.
func (s *Store) Update(at time.Time, fn func(model.Reading) (model.Reading, error)) (model.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.reading)
	if err != nil {
		return s.reading, err
	}
	s.reading = next
	s.updatedAt = at
	s.set = true
	return next, nil
}

// Hydrate seeds the store from a persisted row. It is ignored once a live reading was set.
func (s *Store) Hydrate(row model.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		return
	}
	s.reading = row.Reading
	s.updatedAt = row.Timestamp
	s.hydrated = true
}
