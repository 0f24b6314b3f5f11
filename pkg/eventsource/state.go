package eventsource

// State is the lifecycle phase of the long-lived stream.
type State uint32

const (
	// StateClosed means no stream is open. Clients start here.
	StateClosed State = iota

	// StateConnecting means a stream-open attempt is in flight.
	StateConnecting

	// StateOpen means response headers arrived and the body is being read.
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
