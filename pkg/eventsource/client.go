// Package eventsource provides the long-lived event stream client for the
// Particle cloud.
//
// A Client opens one HTTP GET against an event-source endpoint, reads the
// response body line by line, turns every "data:" line into a particle.Event
// and dispatches it synchronously to the listeners registered under the
// event's name, in the order frames arrive on the wire.
//
// The client never reconnects on its own. Start returns when the stream ends,
// when Stop is called or when the connection fails; callers that want a
// resilient subscription call Start again after it returns.
package eventsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"

	"github.com/saamerm/particle/pkg/logger"
	"github.com/saamerm/particle/pkg/particle"
	"github.com/saamerm/particle/pkg/sse"
)

// tokenParam is the query parameter carrying the access token.
const tokenParam = "access_token"

// Client is an event stream client. It is safe for concurrent use: listeners
// may be added and removed while Start runs on another goroutine.
type Client struct {
	// mu guards the registry and the observers. Dispatch snapshots them
	// under the read lock and invokes handlers without holding it.
	mu        sync.RWMutex
	registry  registry
	onMessage func(*particle.Event)
	onError   func(error)
	onOpen    func()

	// lifecycle guards the identifiers and the session cancel func.
	lifecycle sync.Mutex
	url       string
	token     string
	disposed  bool
	cancel    context.CancelFunc
	stopped   bool

	state      atomic.Uint32
	subscribed atomic.Bool

	httpClient *http.Client
	logger     *slog.Logger
	tee        io.Writer
}

// New creates a Client for the event-source url, authenticating with
// accessToken. The client starts in StateClosed with no listeners.
func New(eventURL, accessToken string, opts ...Option) *Client {
	c := &Client{
		url:   eventURL,
		token: accessToken,
		// The stream is unbounded, so the client carries no overall timeout.
		// Connection establishment uses the transport defaults.
		httpClient: &http.Client{},
		logger:     logger.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// URL returns the event-source url without credentials. Empty once disposed.
func (c *Client) URL() string {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	return c.url
}

// Listeners returns the registered listener names in registration order.
func (c *Client) Listeners() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry.names()
}

// AddEventListener registers handler for events called name. A name ending in
// "*" registers a prefix listener: "temp*" receives "temperature" and
// "temp-alarm", "*" receives every event.
//
// Registering a name twice fails with particle.ErrNameConflict.
func (c *Client) AddEventListener(name string, handler Handler) error {
	if name == "" {
		return fmt.Errorf("%w: listener name is empty", particle.ErrInvalidInput)
	}
	if handler == nil {
		return fmt.Errorf("%w: listener %q has no handler", particle.ErrInvalidInput, name)
	}
	if err := c.checkUsable(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.registry.add(name, handler) {
		return fmt.Errorf("%w: %q", particle.ErrNameConflict, name)
	}

	c.logger.Debug("listener added", "name", name)
	return nil
}

// RemoveEventListener removes the listener registered under name. Frames
// dispatched after it returns never reach the handler, and a handler removing
// a later listener of the same frame skips it for that frame. An invocation
// already under way on the stream goroutine is not waited for. Removing an
// unknown name fails with particle.ErrListenerNotFound.
func (c *Client) RemoveEventListener(name string) error {
	if err := c.checkUsable(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.registry.remove(name) {
		return fmt.Errorf("%w: %q", particle.ErrListenerNotFound, name)
	}

	c.logger.Debug("listener removed", "name", name)
	return nil
}

// OnMessage sets the observer invoked for every event before the named
// listeners.
func (c *Client) OnMessage(fn func(*particle.Event)) error {
	if err := c.checkUsable(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
	return nil
}

// OnError sets the observer invoked for network, parse and upstream errors.
func (c *Client) OnError(fn func(error)) error {
	if err := c.checkUsable(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
	return nil
}

// OnOpen sets the observer invoked once the stream is open.
func (c *Client) OnOpen(fn func()) error {
	if err := c.checkUsable(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOpen = fn
	return nil
}

// Start opens the stream and handles events until the stream ends, Stop is
// called, ctx is cancelled or the connection fails. It blocks; run it on its
// own goroutine.
//
// Start returns nil after a clean end of stream or a Stop, ctx.Err() when ctx
// is cancelled, an error matching particle.ErrNetwork when the connection
// fails and one matching particle.ErrUpstream on a non-success response.
// Network and upstream errors are also reported to the OnError observer.
// A malformed frame, including a line of sse.MaxLineSize bytes or more, is
// reported to OnError and skipped.
func (c *Client) Start(ctx context.Context) error {
	c.lifecycle.Lock()
	if c.disposed {
		c.lifecycle.Unlock()
		return fmt.Errorf("%w: client disposed", particle.ErrInvalidState)
	}
	if !c.state.CompareAndSwap(uint32(StateClosed), uint32(StateConnecting)) {
		c.lifecycle.Unlock()
		return fmt.Errorf("%w: stream already %s", particle.ErrInvalidState, c.State())
	}

	streamCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.stopped = false
	c.subscribed.Store(true)
	target, err := streamURL(c.url, c.token)
	displayURL := c.url
	c.lifecycle.Unlock()

	defer c.teardown(cancel)

	if err != nil {
		return err
	}

	log := c.logger.With("url", displayURL)
	log.Debug("connecting to event stream")

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("%w: building request: %v", particle.ErrInvalidInput, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if stopped, stopErr := c.interrupted(ctx); stopped {
			return stopErr
		}
		err = fmt.Errorf("%w: connecting to event stream: %v", particle.ErrNetwork, err)
		c.emitError(err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		err := &particle.UpstreamError{
			StatusCode: resp.StatusCode,
			Message:    upstreamMessage(resp),
		}
		log.Warn("event stream rejected", "status", resp.StatusCode, "error", err)
		c.emitError(err)
		return err
	}

	c.state.Store(uint32(StateOpen))
	log.Info("event stream open")
	c.emitOpen()

	err = c.readLoop(ctx, resp.Body)
	log.Info("event stream closed")
	return err
}

// readLoop reads frames until the stream ends or the consumer stops.
func (c *Client) readLoop(ctx context.Context, body io.Reader) error {
	reader := sse.NewTeeReader(body, c.tee)

	for c.subscribed.Load() {
		frame, err := reader.Next()
		if errors.Is(err, sse.ErrLineTooLong) {
			c.logger.Debug("skipping oversized line", "limit", sse.MaxLineSize)
			c.emitError(&particle.ParseError{Field: "data", Err: err})
			continue
		}
		if err != nil {
			if stopped, stopErr := c.interrupted(ctx); stopped {
				return stopErr
			}
			err = fmt.Errorf("%w: reading event stream: %v", particle.ErrNetwork, err)
			c.emitError(err)
			return err
		}

		if frame == nil {
			return nil
		}

		c.handleFrame(frame)
	}

	return nil
}

// handleFrame turns one frame into an event and dispatches it. Frames carrying
// a non-empty "error" field are reported to the error observer instead of the
// listeners.
func (c *Client) handleFrame(frame *sse.Frame) {
	fields, err := particle.DecodeFields([]byte(frame.Data))
	if err != nil {
		c.logger.Debug("skipping malformed frame", "event", frame.Event, "error", err)
		c.emitError(err)
		return
	}

	if msg := fields[particle.FieldError]; msg != "" {
		c.emitError(&particle.UpstreamError{Message: msg})
		return
	}

	if fields["event"] == "" && frame.Event != "" {
		fields["event"] = frame.Event
	}

	event, err := particle.ParseEvent(fields)
	if err != nil {
		c.logger.Debug("skipping malformed frame", "event", frame.Event, "error", err)
		c.emitError(err)
		return
	}

	c.dispatch(event)
}

// dispatch invokes the message observer and then every listener matching the
// event name, in registration order.
func (c *Client) dispatch(event *particle.Event) {
	c.mu.RLock()
	onMessage := c.onMessage
	listeners := c.registry.snapshot(event.Name)
	c.mu.RUnlock()

	if !c.subscribed.Load() {
		return
	}

	if onMessage != nil {
		onMessage(event)
	}

	for _, l := range listeners {
		if !c.subscribed.Load() {
			return
		}
		if l.removed.Load() {
			continue
		}
		l.handler(event)
	}
}

func (c *Client) emitError(err error) {
	c.mu.RLock()
	onError := c.onError
	c.mu.RUnlock()

	if onError != nil {
		onError(err)
	}
}

func (c *Client) emitOpen() {
	c.mu.RLock()
	onOpen := c.onOpen
	c.mu.RUnlock()

	if onOpen != nil {
		onOpen()
	}
}

// Stop asks a running Start to return. The read loop observes the request at
// its next iteration boundary; a read blocked on the network is interrupted
// by cancelling the request. Stop on a closed client is a no-op.
func (c *Client) Stop() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.disposed {
		return fmt.Errorf("%w: client disposed", particle.ErrInvalidState)
	}

	c.stop()
	return nil
}

// stop must be called with lifecycle held.
func (c *Client) stop() {
	c.subscribed.Store(false)
	if c.cancel != nil {
		c.stopped = true
		c.cancel()
	}
}

// Dispose stops the stream, removes every listener and observer and releases
// the url and token. Every later call fails with particle.ErrInvalidState.
func (c *Client) Dispose() error {
	c.lifecycle.Lock()
	if c.disposed {
		c.lifecycle.Unlock()
		return fmt.Errorf("%w: client already disposed", particle.ErrInvalidState)
	}
	c.stop()
	c.disposed = true
	c.url = ""
	c.token = ""
	c.lifecycle.Unlock()

	c.mu.Lock()
	c.registry.clear()
	c.onMessage = nil
	c.onError = nil
	c.onOpen = nil
	c.mu.Unlock()

	c.logger.Debug("event stream client disposed")
	return nil
}

// teardown releases the session and returns the client to StateClosed.
func (c *Client) teardown(cancel context.CancelFunc) {
	cancel()

	c.lifecycle.Lock()
	c.subscribed.Store(false)
	c.cancel = nil
	c.state.Store(uint32(StateClosed))
	c.lifecycle.Unlock()
}

// interrupted reports whether the session ended because of Stop or because
// the caller's ctx was cancelled, and the error Start should return for it.
func (c *Client) interrupted(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		return true, ctx.Err()
	}

	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	return c.stopped || !c.subscribed.Load(), nil
}

func (c *Client) checkUsable() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.disposed {
		return fmt.Errorf("%w: client disposed", particle.ErrInvalidState)
	}
	return nil
}

// streamURL appends the access token to the event url as a query parameter.
func streamURL(eventURL, token string) (string, error) {
	u, err := url.Parse(eventURL)
	if err != nil {
		return "", fmt.Errorf("%w: event url: %v", particle.ErrInvalidInput, err)
	}

	q := u.Query()
	q.Set(tokenParam, token)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// upstreamMessage extracts the error description from a rejected stream
// response, falling back to the raw body text and then the status text.
func upstreamMessage(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return err.Error()
	}

	var body particle.GeneralResponse
	if err := json.Unmarshal(raw, &body); err == nil {
		if msg := body.Message(); msg != "" {
			return msg
		}
	}

	if len(raw) == 0 {
		return http.StatusText(resp.StatusCode)
	}
	return string(raw)
}
