// Package worker runs work items of one type on a fixed set of goroutines
// behind a bounded queue. Submit never blocks; overflow is dropped and
// counted.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// Registerer accepts pool collectors; *metric.MetricsRegistry satisfies it
type Registerer interface {
	Register(serviceName, metricName string, collector prometheus.Collector) error
}

// Pool is a bounded worker pool for items of type T
type Pool[T any] struct {
	size    int
	process func(context.Context, T) error
	queue   chan T

	// mu guards running and stopped, and orders Submit against closing queue
	mu      sync.RWMutex
	running bool
	stopped bool
	group   errgroup.Group

	submitted, processed, failed, dropped atomic.Int64

	latency *prometheus.HistogramVec
}

// Option configures a Pool
type Option[T any] func(*Pool[T])

// WithMetrics exports the pool counters and a processing-time histogram
// under <prefix>_*
func WithMetrics[T any](registry Registerer, prefix string) Option[T] {
	return func(p *Pool[T]) {
		if registry == nil || prefix == "" {
			return
		}
		p.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_processing_duration_seconds",
			Help:    "Time spent processing one work item",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"status"})

		collectors := map[string]prometheus.Collector{
			prefix + "_processing_duration_seconds": p.latency,
			prefix + "_queue_depth": prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: prefix + "_queue_depth",
				Help: "Work items waiting in the queue",
			}, func() float64 { return float64(len(p.queue)) }),
			prefix + "_submitted_total": prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: prefix + "_submitted_total",
				Help: "Work items accepted by Submit",
			}, func() float64 { return float64(p.submitted.Load()) }),
			prefix + "_dropped_total": prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: prefix + "_dropped_total",
				Help: "Work items rejected because the queue was full",
			}, func() float64 { return float64(p.dropped.Load()) }),
		}
		for name, c := range collectors {
			// A rejected registration leaves the pool working, just unexported.
			_ = registry.Register("worker_pool", name, c)
		}
	}
}

// NewPool builds a pool of size goroutines over a queue of queueSize.
// Non-positive values mean 4 and 256. A nil process func panics.
func NewPool[T any](size, queueSize int, process func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if process == nil {
		panic(ErrNilProcessor)
	}
	if size <= 0 {
		size = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	p := &Pool[T]{size: size, process: process, queue: make(chan T, queueSize)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. Cancelling ctx abandons queued work.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || p.stopped {
		return ErrPoolAlreadyStarted
	}
	p.running = true
	for range p.size {
		p.group.Go(func() error {
			p.run(ctx)
			return nil
		})
	}
	return nil
}

// Submit enqueues item or returns ErrQueueFull
func (p *Pool[T]) Submit(item T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	switch {
	case p.stopped:
		return ErrPoolStopped
	case !p.running:
		return ErrPoolNotStarted
	}
	select {
	case p.queue <- item:
		p.submitted.Add(1)
		return nil
	default:
		p.dropped.Add(1)
		return ErrQueueFull
	}
}

// Stop refuses new work and waits up to timeout for the queue to drain.
// Calling it again, or before Start, is a no-op.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if !p.running || p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		_ = p.group.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}

func (p *Pool[T]) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-p.queue:
			if !ok {
				return
			}
			p.handle(ctx, item)
		}
	}
}

func (p *Pool[T]) handle(ctx context.Context, item T) {
	began := time.Now()
	err := p.process(ctx, item)
	p.processed.Add(1)

	status := "ok"
	if err != nil {
		p.failed.Add(1)
		status = "error"
	}
	if p.latency != nil {
		p.latency.WithLabelValues(status).Observe(time.Since(began).Seconds())
	}
}

// Stats is a point-in-time snapshot of a Pool
type Stats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

// Stats returns the pool's counters
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Workers:    p.size,
		QueueSize:  cap(p.queue),
		QueueDepth: len(p.queue),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}
