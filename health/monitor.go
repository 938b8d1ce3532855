package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/c360/postgraph/errors"
)

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

// Recorder exports check results
type Recorder interface {
	RecordHealthStatus(check string, healthy bool)
}

type check struct {
	name     string
	fn       CheckFunc
	critical bool
}

// Monitor runs registered checks and keeps their latest status. A failing
// critical check makes the system unhealthy; a failing optional check only
// degrades it.
type Monitor struct {
	mu       sync.RWMutex
	checks   []check
	statuses map[string]Status

	system   string
	timeout  time.Duration
	recorder Recorder
	logger   *slog.Logger
}

// NewMonitor creates a monitor reporting as system
func NewMonitor(system string, recorder Recorder, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		statuses: make(map[string]Status),
		system:   system,
		timeout:  2 * time.Second,
		recorder: recorder,
		logger:   logger.With("component", "health"),
	}
}

// Register adds a check. Checks registered after Run starts are picked up on
// the next round.
func (m *Monitor) Register(name string, critical bool, fn CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, check{name: name, fn: fn, critical: critical})
}

// CheckNow runs every check once and returns the aggregate
func (m *Monitor) CheckNow(ctx context.Context) Status {
	m.mu.RLock()
	checks := append([]check(nil), m.checks...)
	m.mu.RUnlock()

	for _, c := range checks {
		status := m.probe(ctx, c)

		m.mu.Lock()
		prev, seen := m.statuses[c.name]
		m.statuses[c.name] = status
		m.mu.Unlock()

		if m.recorder != nil {
			m.recorder.RecordHealthStatus(c.name, status.Healthy)
		}
		if !seen || prev.Status != status.Status {
			m.logger.Info("Health changed", "check", c.name, "status", status.Status, "message", status.Message)
		}
	}
	return m.Aggregate()
}

func (m *Monitor) probe(ctx context.Context, c check) Status {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	err := c.fn(ctx)
	latency := time.Since(start)

	var status Status
	switch {
	case err == nil:
		status = newStatus(c.name, StateHealthy, "")
	case c.critical:
		status = newStatus(c.name, StateUnhealthy, sanitize(err.Error()))
	default:
		status = newStatus(c.name, StateDegraded, sanitize(err.Error()))
	}
	status.Latency = latency
	return status
}

// Run checks every interval until ctx is done
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Monitor", "Run", "interval must be positive")
	}

	m.CheckNow(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

// Get returns the latest status of one check
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.statuses[name]
	return s, ok
}

// Aggregate returns the system status from the latest check results
func (m *Monitor) Aggregate() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]Status, 0, len(m.statuses))
	for _, s := range m.statuses {
		statuses = append(statuses, s)
	}
	return Aggregate(m.system, statuses)
}

// Handler serves the aggregate as JSON. Unhealthy answers 503.
func (m *Monitor) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := m.Aggregate()

		w.Header().Set("Content-Type", "application/json")
		if status.IsUnhealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
}
