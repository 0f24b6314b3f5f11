package listencmder

import (
	"context"
	"log/slog"

	"github.com/saamerm/particle/cmd/particle/eventlog"
	"github.com/saamerm/particle/pkg/config"
	"github.com/saamerm/particle/pkg/eventstream"
	"github.com/saamerm/particle/pkg/eventstream/kafka"
	"github.com/saamerm/particle/pkg/eventstream/nop"
	"github.com/saamerm/particle/pkg/storage"
	"github.com/saamerm/particle/pkg/worker"
)

// forwarder hands received events to the worker pool. A forwarder with no
// sinks configured has a nil pool and drops nothing.
type forwarder struct {
	pool      *worker.Pool
	driver    storage.Driver
	publisher eventstream.Publisher
	logger    *slog.Logger
}

func (c *listenCommander) newForwarder(ctx context.Context, log *slog.Logger) (*forwarder, error) {
	sqlitePath := c.sqlitePath
	if c.record && sqlitePath == "" && c.postgresDSN == "" {
		var err error
		sqlitePath, err = eventlog.DefaultSQLitePath(c.configDir)
		if err != nil {
			return nil, err
		}
	}

	driver, err := eventlog.Open(ctx, sqlitePath, c.postgresDSN)
	if err != nil {
		return nil, err
	}

	var publisher eventstream.Publisher
	if brokers := config.SplitList(c.kafkaBrokers); len(brokers) > 0 {
		publisher, err = kafka.NewPublisher(kafka.Config{
			Brokers: brokers,
			Topic:   c.kafkaTopic,
			Logger:  log,
		})
		if err != nil {
			if driver != nil {
				_ = driver.Close()
			}
			return nil, err
		}
		log.Info("forwarding events to kafka", "brokers", brokers, "topic", c.kafkaTopic)
	}

	fwd := &forwarder{driver: driver, publisher: publisher, logger: log}
	if driver == nil && publisher == nil {
		return fwd, nil
	}

	if publisher == nil {
		fwd.publisher = nop.NewPublisher()
	}
	if driver != nil {
		log.Info("recording events", "sqlite", sqlitePath, "postgres", c.postgresDSN != "")
	}

	fwd.pool, err = worker.NewPool(&worker.Config{
		Driver:     driver,
		Publisher:  fwd.publisher,
		NumWorkers: c.workers,
		QueueSize:  c.queueSize,
		Logger:     log,
	})
	if err != nil {
		fwd.Close()
		return nil, err
	}

	return fwd, nil
}

// Forward queues env for recording and forwarding.
func (f *forwarder) Forward(env *eventstream.DeviceEventReceived) {
	if f.pool == nil {
		return
	}
	f.pool.Enqueue(worker.Job{Event: env})
}

// Close drains the pool, then closes the sinks.
func (f *forwarder) Close() {
	if f.pool != nil {
		f.pool.Close()

		stats := f.pool.Stats()
		f.logger.Info("forwarding stopped",
			"received", stats.Enqueued+stats.Dropped,
			"dropped", stats.Dropped,
			"stored", stats.Stored,
			"failed", stats.Failed,
		)
	}

	if f.publisher != nil {
		if err := f.publisher.Close(); err != nil {
			f.logger.Warn("closing publisher", "error", err)
		}
	}

	if f.driver != nil {
		if err := f.driver.Close(); err != nil {
			f.logger.Warn("closing event log", "error", err)
		}
	}
}
