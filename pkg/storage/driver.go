// Package storage defines the event log that "particle listen" writes received
// device events to and "particle events" reads them back from.
package storage

import (
	"context"
	"strings"
	"time"

	"github.com/saamerm/particle/pkg/particle"
)

// Driver defines the interface for persisting and querying received events.
type Driver interface {
	// Put stores a record. Returns true if the record was newly inserted,
	// false if a record with the same ID already exists, in which case Put
	// is a no-op.
	Put(ctx context.Context, rec *Record) (bool, error)

	// Get retrieves a record by its ID.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns the records matching filter, most recently stored first.
	List(ctx context.Context, filter Filter) ([]*Record, error)

	// Count returns the number of records matching filter. Limit is ignored.
	Count(ctx context.Context, filter Filter) (int, error)

	// Close closes the store and releases any resources.
	Close() error
}

// Record is one received event as stored in the log.
type Record struct {
	// ID is the envelope id assigned when the event was received.
	ID string

	ReceivedAt time.Time
	StreamURL  string
	Event      particle.Event
}

// Filter narrows List and Count. Zero values match everything.
type Filter struct {
	DeviceID   string
	NamePrefix string

	// Limit caps the number of records List returns. Zero means no limit.
	Limit int
}

// Matches reports whether rec passes the filter.
func (f Filter) Matches(rec *Record) bool {
	if f.DeviceID != "" && rec.Event.DeviceID != f.DeviceID {
		return false
	}

	return strings.HasPrefix(rec.Event.Name, f.NamePrefix)
}
