// Package worker provides an asynchronous worker pool that stores received
// device events in the provided storage.Driver and forwards them through the
// provided eventstream.Publisher.
//
// The pool decouples slow sinks from the event stream read loop so that a
// stalled database or broker never holds up dispatch of the next event.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saamerm/particle/pkg/eventstream"
	"github.com/saamerm/particle/pkg/logger"
	"github.com/saamerm/particle/pkg/storage"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
	defaultJobTimeout        = 30 * time.Second
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Event *eventstream.DeviceEventReceived
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the optional storage backend for the event log.
	Driver storage.Driver

	// Publisher is the optional event stream backend events are forwarded to.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// JobTimeout bounds the time a worker spends on one job (defaults to 30s).
	JobTimeout time.Duration

	// Logger is the provided logger
	Logger *slog.Logger
}

// Stats counts what the pool did with the jobs it was given.
type Stats struct {
	Enqueued  uint64
	Dropped   uint64
	Stored    uint64
	Published uint64
	Failed    uint64
}

// Pool processes event jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	// mu guards closed against Enqueue racing Close.
	mu     sync.RWMutex
	closed bool

	enqueued  atomic.Uint64
	dropped   atomic.Uint64
	stored    atomic.Uint64
	published atomic.Uint64
	failed    atomic.Uint64
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.JobTimeout == 0 {
		c.JobTimeout = defaultJobTimeout
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: logger.OrNop(c.Logger),
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is closed,
// resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	if job.Event == nil {
		p.logger.Error("job not queued", "error", eventstream.ErrNilEvent)
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.dropped.Add(1)
		p.logger.Error("job not queued, pool closed, job dropped",
			"event_id", job.Event.EventID,
		)
		return false
	}

	select {
	case p.queue <- job:
		p.enqueued.Add(1)
		p.logger.Debug("job queued",
			"event_id", job.Event.EventID,
			"event", job.Event.Event.Name,
		)
		return true
	default:
		p.dropped.Add(1)
		p.logger.Error("job not queued, queue full, job dropped",
			"event_id", job.Event.EventID,
			"event", job.Event.Event.Name,
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this after the event stream has stopped. Close is idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Enqueued:  p.enqueued.Load(),
		Dropped:   p.dropped.Load(),
		Stored:    p.stored.Load(),
		Published: p.published.Load(),
		Failed:    p.failed.Load(),
	}
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

// processJob stores the event, then forwards it. A storage failure does not
// prevent forwarding.
func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.JobTimeout)
	defer cancel()

	var errs []error

	if p.config.Driver != nil {
		if err := p.store(ctx, job.Event); err != nil {
			errs = append(errs, err)
		}
	}

	if p.config.Publisher != nil {
		if err := p.config.Publisher.PublishEvent(ctx, job.Event); err != nil {
			errs = append(errs, fmt.Errorf("publishing event: %w", err))
		} else {
			p.published.Add(1)
		}
	}

	if err := errors.Join(errs...); err != nil {
		p.failed.Add(1)
		p.logger.Error("event job failed",
			"event_id", job.Event.EventID,
			"device_id", job.Event.Event.DeviceID,
			"error", err,
		)
		return
	}

	p.logger.Debug("event job done",
		"event_id", job.Event.EventID,
		"device_id", job.Event.Event.DeviceID,
	)
}

func (p *Pool) store(ctx context.Context, env *eventstream.DeviceEventReceived) error {
	isNew, err := p.config.Driver.Put(ctx, &storage.Record{
		ID:         env.EventID,
		ReceivedAt: env.EmittedAt,
		StreamURL:  env.Source.StreamURL,
		Event:      env.Event,
	})
	if err != nil {
		return fmt.Errorf("storing event: %w", err)
	}

	if isNew {
		p.stored.Add(1)
	}

	p.logger.Debug("stored event",
		"event_id", env.EventID,
		"is_new", isNew,
	)

	return nil
}
