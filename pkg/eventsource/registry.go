package eventsource

import (
	"strings"
	"sync/atomic"

	"github.com/saamerm/particle/pkg/particle"
)

// Handler receives the events a listener was registered for.
type Handler func(event *particle.Event)

// wildcard marks a listener name as a prefix match.
const wildcard = "*"

type listener struct {
	name    string
	handler Handler

	// removed is set once the listener leaves the registry so that a dispatch
	// already holding a snapshot skips it.
	removed atomic.Bool
}

// matches reports whether the listener wants events called eventName.
// Names ending in "*" match every event sharing the prefix before it.
func (l *listener) matches(eventName string) bool {
	if prefix, ok := strings.CutSuffix(l.name, wildcard); ok {
		return strings.HasPrefix(eventName, prefix)
	}

	return l.name == eventName
}

// registry is an insertion-ordered set of named listeners. It is not safe for
// concurrent use; Client guards it.
type registry struct {
	listeners []*listener
}

func (r *registry) index(name string) int {
	for i, l := range r.listeners {
		if l.name == name {
			return i
		}
	}
	return -1
}

func (r *registry) add(name string, handler Handler) bool {
	if r.index(name) >= 0 {
		return false
	}

	r.listeners = append(r.listeners, &listener{name: name, handler: handler})
	return true
}

func (r *registry) remove(name string) bool {
	i := r.index(name)
	if i < 0 {
		return false
	}

	r.listeners[i].removed.Store(true)
	r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
	return true
}

func (r *registry) names() []string {
	names := make([]string, len(r.listeners))
	for i, l := range r.listeners {
		names[i] = l.name
	}
	return names
}

// snapshot returns the listeners matching eventName in registration order.
func (r *registry) snapshot(eventName string) []*listener {
	var matched []*listener
	for _, l := range r.listeners {
		if l.matches(eventName) {
			matched = append(matched, l)
		}
	}
	return matched
}

func (r *registry) clear() {
	for _, l := range r.listeners {
		l.removed.Store(true)
	}
	r.listeners = nil
}
