package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	mu      sync.Mutex
	results map[string]bool
}

func (r *fakeRecorder) RecordHealthStatus(check string, healthy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = map[string]bool{}
	}
	r.results[check] = healthy
}

func ok(context.Context) error { return nil }

func TestAggregate(t *testing.T) {
	tests := []struct {
		name   string
		checks []Status
		want   string
	}{
		{"no checks", nil, StateHealthy},
		{"all healthy", []Status{newStatus("a", StateHealthy, ""), newStatus("b", StateHealthy, "")}, StateHealthy},
		{"one degraded", []Status{newStatus("a", StateHealthy, ""), newStatus("b", StateDegraded, "")}, StateDegraded},
		{"unhealthy wins", []Status{newStatus("a", StateUnhealthy, ""), newStatus("b", StateDegraded, "")}, StateUnhealthy},
		{"unhealthy before degraded", []Status{newStatus("a", StateDegraded, ""), newStatus("b", StateUnhealthy, "")}, StateUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("postgraph", tt.checks)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.want == StateHealthy, got.Healthy)
			assert.Len(t, got.SubStatuses, len(tt.checks))
		})
	}
}

func TestMonitor_CriticalAndOptionalChecks(t *testing.T) {
	rec := &fakeRecorder{}
	m := NewMonitor("postgraph", rec, nil)

	var mongoDown, natsDown atomic.Bool
	m.Register("mongo", true, func(context.Context) error {
		if mongoDown.Load() {
			return errors.New("dial tcp 10.1.2.3:27017: connection refused")
		}
		return nil
	})
	m.Register("nats", false, func(context.Context) error {
		if natsDown.Load() {
			return errors.New("nats: no servers available")
		}
		return nil
	})

	ctx := context.Background()
	assert.True(t, m.CheckNow(ctx).IsHealthy())
	assert.Equal(t, map[string]bool{"mongo": true, "nats": true}, rec.results)

	natsDown.Store(true)
	assert.True(t, m.CheckNow(ctx).IsDegraded())

	mongoDown.Store(true)
	status := m.CheckNow(ctx)
	assert.True(t, status.IsUnhealthy())
	assert.False(t, rec.results["mongo"])

	mongo, found := m.Get("mongo")
	require.True(t, found)
	assert.NotContains(t, mongo.Message, "10.1.2.3")
	assert.Contains(t, mongo.Message, "[IP]")
}

func TestMonitor_CheckTimeout(t *testing.T) {
	m := NewMonitor("postgraph", nil, nil)
	m.timeout = 20 * time.Millisecond
	m.Register("slow", true, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := m.CheckNow(context.Background())
	assert.True(t, status.IsUnhealthy())
}

func TestMonitor_Run(t *testing.T) {
	m := NewMonitor("postgraph", nil, nil)

	var calls atomic.Int32
	m.Register("counter", true, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	assert.Error(t, m.Run(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, 5*time.Millisecond) }()

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestMonitor_Handler(t *testing.T) {
	m := NewMonitor("postgraph", nil, nil)
	m.Register("mongo", true, ok)
	m.CheckNow(context.Background())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "postgraph", body.Component)
	assert.Equal(t, StateHealthy, body.Status)
	require.Len(t, body.SubStatuses, 1)
	assert.Equal(t, "mongo", body.SubStatuses[0].Component)

	m.Register("broken", true, func(context.Context) error { return errors.New("down") })
	m.CheckNow(context.Background())

	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "dial [URL] failed", sanitize("dial mongodb://user:pw@db:27017/posts failed"))
	assert.Equal(t, "auth failed: [REDACTED]", sanitize("auth failed: password=hunter2"))
	assert.Equal(t, "connect [IP] refused", sanitize("connect 192.168.1.4:6379 refused"))
}
