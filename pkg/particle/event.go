// Package particle holds the value types shared by the event stream client and
// the cloud facade: device events, access tokens, devices and the error
// taxonomy.
package particle

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

const (
	fieldDeviceID    = "coreid"
	fieldData        = "data"
	fieldName        = "event"
	fieldTTL         = "ttl"
	fieldPublishedAt = "published_at"

	// FieldError is the data line key the cloud uses to report a stream error.
	FieldError = "error"
)

// Event is a single device-originated notification parsed from one
// "data:" line of the event stream.
type Event struct {
	DeviceID    string    `json:"coreid"`
	Data        string    `json:"data"`
	Name        string    `json:"event"`
	TTL         int       `json:"ttl"`
	PublishedAt time.Time `json:"published_at"`
}

// ParseEvent builds an Event from the flat string map carried by a data line.
// Every field is required; the first missing or malformed one is reported as
// a *ParseError.
func ParseEvent(fields map[string]string) (*Event, error) {
	deviceID, ok := fields[fieldDeviceID]
	if !ok {
		return nil, &ParseError{Field: fieldDeviceID}
	}

	data, ok := fields[fieldData]
	if !ok {
		return nil, &ParseError{Field: fieldData}
	}

	name, ok := fields[fieldName]
	if !ok {
		return nil, &ParseError{Field: fieldName}
	}

	rawTTL, ok := fields[fieldTTL]
	if !ok {
		return nil, &ParseError{Field: fieldTTL}
	}
	ttl, err := strconv.Atoi(rawTTL)
	if err != nil {
		return nil, &ParseError{Field: fieldTTL, Err: err}
	}

	rawPublished, ok := fields[fieldPublishedAt]
	if !ok {
		return nil, &ParseError{Field: fieldPublishedAt}
	}
	published, err := time.Parse(time.RFC3339Nano, rawPublished)
	if err != nil {
		return nil, &ParseError{Field: fieldPublishedAt, Err: err}
	}

	return &Event{
		DeviceID:    deviceID,
		Data:        data,
		Name:        name,
		TTL:         ttl,
		PublishedAt: published,
	}, nil
}

// DecodeFields decodes the JSON object of a data line into a flat string map.
// Non-string scalars such as a numeric ttl are kept in their JSON text form.
// A null value decodes to "", so an event published without a payload keeps
// its "data" key.
func DecodeFields(raw []byte) (map[string]string, error) {
	values := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, &ParseError{Field: "data", Err: err}
	}

	fields := make(map[string]string, len(values))
	for key, value := range values {
		trimmed := bytes.TrimSpace(value)
		switch {
		case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
			fields[key] = ""
		case trimmed[0] == '"':
			var s string
			if err := json.Unmarshal(trimmed, &s); err != nil {
				return nil, &ParseError{Field: key, Err: err}
			}
			fields[key] = s
		default:
			fields[key] = string(trimmed)
		}
	}

	return fields, nil
}

// ParseEventData decodes a data line payload and builds an Event from it.
func ParseEventData(raw []byte) (*Event, error) {
	fields, err := DecodeFields(raw)
	if err != nil {
		return nil, err
	}

	return ParseEvent(fields)
}

// String renders the event in a compact single-line description.
func (e *Event) String() string {
	return fmt.Sprintf("<Event: %s, DeviceID: %s, Data: %s, Time: %s, TTL: %d>",
		e.Name, e.DeviceID, e.Data, e.PublishedAt.Format(time.RFC3339), e.TTL)
}

// ExpiresAt returns the point in time after which the event is stale.
func (e *Event) ExpiresAt() time.Time {
	return e.PublishedAt.Add(time.Duration(e.TTL) * time.Second)
}
