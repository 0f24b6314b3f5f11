// Package sse provides a minimal, purpose-built reader for the cloud's
// Server-Sent-Events stream. It recognises only the "event" and "data" fields:
// an "event:" line names the next data line, and every "data:" line yields a
// Frame on its own, without waiting for a blank-line terminator.
//
// This package intentionally does NOT provide SSE writer or server
// capabilities.
package sse

// Frame is a single "data:" line together with the most recent "event:"
// name seen before it.
type Frame struct {
	// Event is the value of the preceding "event:" line. Empty if the stream
	// has not named an event yet.
	Event string

	// Data is the raw value of the "data:" line, typically a JSON object.
	Data string
}
