// Package metrics records batch outcomes as Prometheus metrics and writes
// them in the node-exporter textfile format, so a cron-driven batch can be
// scraped without running a server.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/majorcontext/zedlogin/internal/audit"
)

const namespace = "zedlogin"

// Registry holds the batch metrics.
type Registry struct {
	registry *prometheus.Registry

	Attempts        *prometheus.CounterVec
	ExchangeSeconds *prometheus.HistogramVec
	StoredAccounts  prometheus.Gauge
	LastRun         prometheus.Gauge
}

// NewRegistry creates a registry with all metrics registered.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "attempts_total",
			Help:      "Sign-in exchanges attempted, by outcome",
		}, []string{"outcome"}),
		ExchangeSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "duration_seconds",
			Help:      "Wall time of one sign-in exchange",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"outcome"}),
		StoredAccounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "accounts",
			Help:      "Accounts in the credential store after the last save",
		}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last batch finished",
		}),
	}

	r.registry.MustRegister(r.Attempts, r.ExchangeSeconds, r.StoredAccounts, r.LastRun)
	return r
}

// Observe counts one attempt.
func (r *Registry) Observe(a audit.Attempt) {
	r.Attempts.WithLabelValues(a.Outcome).Inc()
	r.ExchangeSeconds.WithLabelValues(a.Outcome).Observe(a.Duration.Seconds())
}

// SetStored records the store size after a save.
func (r *Registry) SetStored(n int) {
	r.StoredAccounts.Set(float64(n))
}

// WriteTextfile stamps the run time and writes every metric to path.
func (r *Registry) WriteTextfile(path string, finished time.Time) error {
	r.LastRun.Set(float64(finished.Unix()))
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}
