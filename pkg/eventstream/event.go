// Package eventstream defines the transport-neutral envelope used to forward
// device events received from the cloud to downstream systems.
package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/saamerm/particle/pkg/particle"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeDeviceEventReceived is emitted for every event read from a cloud stream.
	EventTypeDeviceEventReceived = "particle.event.received"
)

// DeviceEventReceived is a transport-neutral event payload for a received device event.
type DeviceEventReceived struct {
	SchemaVersion int            `json:"schema_version"`
	EventType     string         `json:"event_type"`
	EventID       string         `json:"event_id"`
	EmittedAt     time.Time      `json:"emitted_at"`
	Source        EventSource    `json:"source"`
	Event         particle.Event `json:"event"`
}

// EventSource identifies the stream the event was read from.
type EventSource struct {
	StreamURL string `json:"stream_url"`
	Prefix    string `json:"prefix,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`
}

// NewDeviceEventReceived wraps ev in an envelope with a fresh id.
func NewDeviceEventReceived(ev *particle.Event, source EventSource, now time.Time) *DeviceEventReceived {
	return &DeviceEventReceived{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeDeviceEventReceived,
		EventID:       uuid.NewString(),
		EmittedAt:     now.UTC(),
		Source:        source,
		Event:         *ev,
	}
}
