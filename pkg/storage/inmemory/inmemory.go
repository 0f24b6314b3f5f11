// Package inmemory provides a map-backed storage driver for tests and
// short-lived sessions.
package inmemory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/saamerm/particle/pkg/storage"
)

// Driver implements storage.Driver using an in-memory index.
type Driver struct {
	// mu guards records and byID.
	mu sync.RWMutex

	// records holds stored records in insertion order.
	records []*storage.Record

	byID map[string]*storage.Record

	closed bool
	now    func() time.Time
}

// NewDriver creates a new in-memory storer.
func NewDriver() *Driver {
	return &Driver{
		byID: make(map[string]*storage.Record),
		now:  time.Now,
	}
}

var errClosed = errors.New("in-memory store is closed")

// Put stores a copy of rec.
func (s *Driver) Put(_ context.Context, rec *storage.Record) (bool, error) {
	if rec == nil {
		return false, storage.ErrNilRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, errClosed
	}

	if _, ok := s.byID[rec.ID]; ok {
		return false, nil
	}

	stored := *rec
	if stored.ReceivedAt.IsZero() {
		stored.ReceivedAt = s.now().UTC()
	}

	s.records = append(s.records, &stored)
	s.byID[stored.ID] = &stored
	return true, nil
}

// Get retrieves a record by its ID.
func (s *Driver) Get(_ context.Context, id string) (*storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}

	out := *rec
	return &out, nil
}

// List returns matching records, newest first.
func (s *Driver) List(_ context.Context, filter storage.Filter) ([]*storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*storage.Record, 0)
	for i := len(s.records) - 1; i >= 0; i-- {
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}

		if rec := s.records[i]; filter.Matches(rec) {
			cp := *rec
			out = append(out, &cp)
		}
	}

	return out, nil
}

// Count returns the number of matching records.
func (s *Driver) Count(_ context.Context, filter storage.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rec := range s.records {
		if filter.Matches(rec) {
			n++
		}
	}

	return n, nil
}

// Close marks the store closed. Reads keep working.
func (s *Driver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
