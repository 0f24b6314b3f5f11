package testutils

import (
	"time"

	"github.com/saamerm/particle/pkg/particle"
	"github.com/saamerm/particle/pkg/storage"
)

// NewTestRecord creates a simple record for testing
func NewTestRecord(id, deviceID, name, data string) *storage.Record {
	return &storage.Record{
		ID:         id,
		ReceivedAt: time.Date(2021, 1, 1, 0, 0, 1, 0, time.UTC),
		StreamURL:  "https://api.particle.io/v1/devices/events",
		Event: particle.Event{
			DeviceID:    deviceID,
			Name:        name,
			Data:        data,
			TTL:         60,
			PublishedAt: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}
