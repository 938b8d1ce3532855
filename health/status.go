// Package health runs named dependency checks and reports the gateway's
// aggregate state on the /health endpoint.
package health

import (
	"regexp"
	"slices"
	"strings"
	"time"
)

// States
const (
	StateHealthy   = "healthy"
	StateDegraded  = "degraded"
	StateUnhealthy = "unhealthy"
)

var (
	urlRegex        = regexp.MustCompile(`[a-z][a-z0-9+.-]*://[^\s"]+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}(:\d{2,5})?\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status is the state of one check or of the whole system
type Status struct {
	Component   string        `json:"component"`
	Healthy     bool          `json:"healthy"`
	Status      string        `json:"status"`
	Message     string        `json:"message,omitempty"`
	Latency     time.Duration `json:"latency_ns,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	SubStatuses []Status      `json:"checks,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool { return s.Status == StateHealthy }

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool { return s.Status == StateDegraded }

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool { return s.Status == StateUnhealthy }

func newStatus(component, state, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == StateHealthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Aggregate combines check statuses. Any unhealthy check makes the system
// unhealthy; otherwise any degraded check makes it degraded.
func Aggregate(component string, checks []Status) Status {
	state := StateHealthy
	for _, c := range checks {
		switch {
		case c.IsUnhealthy():
			state = StateUnhealthy
		case c.IsDegraded() && state == StateHealthy:
			state = StateDegraded
		}
	}

	status := newStatus(component, state, "")
	status.SubStatuses = slices.Clone(checks)
	slices.SortFunc(status.SubStatuses, func(a, b Status) int {
		return strings.Compare(a.Component, b.Component)
	})
	return status
}

// sanitize strips addresses and credentials from a check error before it is
// served to unauthenticated clients
func sanitize(msg string) string {
	msg = urlRegex.ReplaceAllString(msg, "[URL]")
	msg = ipAddrRegex.ReplaceAllString(msg, "[IP]")
	return credentialRegex.ReplaceAllString(msg, "[REDACTED]")
}
