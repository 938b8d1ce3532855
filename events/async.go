package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/postgraph/errors"
	"github.com/c360/postgraph/pkg/worker"
)

// publishTimeout bounds one background publish
const publishTimeout = 5 * time.Second

// AsyncPublisher hands events to a worker pool so a mutation never waits on
// the broker. Publish only fails when the queue is full or stopped.
type AsyncPublisher struct {
	next   Publisher
	pool   *worker.Pool[Event]
	logger *slog.Logger
}

// NewAsyncPublisher wraps next. cfg must be validated; registry may be nil.
func NewAsyncPublisher(next Publisher, cfg Config, registry worker.Registerer, logger *slog.Logger) *AsyncPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	a := &AsyncPublisher{
		next:   next,
		logger: logger.With("component", "events-async"),
	}

	var opts []worker.Option[Event]
	if registry != nil {
		opts = append(opts, worker.WithMetrics[Event](registry, "postgraph_event_publisher"))
	}
	a.pool = worker.NewPool(cfg.Workers, cfg.QueueSize, a.deliver, opts...)
	return a
}

// Start launches the publishing workers
func (a *AsyncPublisher) Start(ctx context.Context) error {
	return a.pool.Start(ctx)
}

// Stop drains queued events, waiting at most timeout
func (a *AsyncPublisher) Stop(timeout time.Duration) error {
	return a.pool.Stop(timeout)
}

// Stats reports queue statistics
func (a *AsyncPublisher) Stats() worker.Stats {
	return a.pool.Stats()
}

// Publish implements Publisher
func (a *AsyncPublisher) Publish(_ context.Context, event Event) error {
	if err := a.pool.Submit(event); err != nil {
		return errors.WrapTransient(err, "AsyncPublisher", "Publish", "queue event")
	}
	return nil
}

func (a *AsyncPublisher) deliver(ctx context.Context, event Event) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := a.next.Publish(ctx, event); err != nil {
		a.logger.Warn("Event publish failed", "type", event.Type, "id", event.ID, "error", err)
		return err
	}
	return nil
}
