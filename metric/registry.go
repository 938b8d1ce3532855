package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/postgraph/errors"
)

// MetricsRegistry is the single Prometheus registry served on /metrics. It
// holds the gateway Metrics plus collectors other packages add by name.
type MetricsRegistry struct {
	Metrics *Metrics

	reg   *prometheus.Registry
	mu    sync.Mutex
	extra map[string]prometheus.Collector
}

// NewMetricsRegistry registers the gateway metrics and the Go runtime and
// process collectors
func NewMetricsRegistry() *MetricsRegistry {
	r := &MetricsRegistry{
		Metrics: NewMetrics(),
		reg:     prometheus.NewRegistry(),
		extra:   make(map[string]prometheus.Collector),
	}
	r.reg.MustRegister(r.Metrics.collectors()...)
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry { return r.reg }

func (r *MetricsRegistry) CoreMetrics() *Metrics { return r.Metrics }

// Register adds collector under service/name. Reusing a name, or a metric
// Prometheus already knows, is an invalid error.
func (r *MetricsRegistry) Register(service, name string, collector prometheus.Collector) error {
	key := service + "/" + name

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.extra[key]; taken {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "MetricsRegistry", "Register", "register "+key+" twice")
	}

	err := r.reg.Register(collector)
	var dup prometheus.AlreadyRegisteredError
	switch {
	case errors.As(err, &dup):
		return errors.WrapInvalid(err, "MetricsRegistry", "Register", "register "+key)
	case err != nil:
		return errors.WrapFatal(err, "MetricsRegistry", "Register", "register "+key)
	}
	r.extra[key] = collector
	return nil
}

// Unregister removes a collector added with Register
func (r *MetricsRegistry) Unregister(service, name string) bool {
	key := service + "/" + name

	r.mu.Lock()
	defer r.mu.Unlock()
	collector, ok := r.extra[key]
	if !ok || !r.reg.Unregister(collector) {
		return false
	}
	delete(r.extra, key)
	return true
}

// Handler serves the registry, negotiating OpenMetrics when asked
func (r *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
