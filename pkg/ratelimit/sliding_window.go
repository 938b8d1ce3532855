package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SlidingWindow is an in-process Limiter that remembers the timestamps of
// admitted calls per key.
type SlidingWindow struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu       sync.Mutex
	requests map[string][]time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewSlidingWindow creates a limiter and starts its stale-entry sweeper
func NewSlidingWindow(window time.Duration, limit int) *SlidingWindow {
	sw := &SlidingWindow{
		window:   window,
		limit:    limit,
		now:      time.Now,
		requests: make(map[string][]time.Time),
		stop:     make(chan struct{}),
	}

	go sw.sweepLoop()
	return sw
}

// Allow admits the call if fewer than limit calls for key fall inside the window.
// Rejected calls are not recorded.
func (sw *SlidingWindow) Allow(_ context.Context, key string) (bool, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.now()
	valid := prune(sw.requests[key], now.Add(-sw.window))

	if len(valid) >= sw.limit {
		sw.requests[key] = valid
		return false, nil
	}

	sw.requests[key] = append(valid, now)
	return true, nil
}

// Close stops the sweeper
func (sw *SlidingWindow) Close() error {
	sw.stopOnce.Do(func() { close(sw.stop) })
	return nil
}

func (sw *SlidingWindow) sweepLoop() {
	interval := sw.window * 10
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sw.stop:
			return
		case <-ticker.C:
			sw.sweep()
		}
	}
}

func (sw *SlidingWindow) sweep() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	cutoff := sw.now().Add(-sw.window)
	for key, times := range sw.requests {
		valid := prune(times, cutoff)
		if len(valid) == 0 {
			delete(sw.requests, key)
			continue
		}
		sw.requests[key] = valid
	}
}

// size is the number of tracked keys
func (sw *SlidingWindow) size() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return len(sw.requests)
}

// prune drops timestamps at or before cutoff; times are in ascending order.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	return append([]time.Time(nil), times[i:]...)
}
