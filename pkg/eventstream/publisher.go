package eventstream

import "context"

// Publisher publishes received device events to an event stream backend.
type Publisher interface {
	PublishEvent(ctx context.Context, event *DeviceEventReceived) error
	Close() error
}
