// Package metrics exposes Prometheus metrics for chains run by the daemon.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marcelocantos/pipex/internal/pipeline"
)

// Outcome labels for ChainsTotal.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"  // last command exited non-zero
	OutcomeRejected = "rejected" // refused before anything was created
	OutcomeError    = "error"    // any other call-level failure
)

// Metrics holds the collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	ChainsTotal     *prometheus.CounterVec
	ChainsActive    prometheus.Gauge
	ChainDuration   prometheus.Histogram
	ChainLength     prometheus.Histogram
	ProcessesTotal  prometheus.Counter
	ProcessFailures *prometheus.CounterVec
}

// New creates the collectors and registers them.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		ChainsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipex_chains_total",
				Help: "Chains run, by outcome",
			},
			[]string{"outcome"},
		),
		ChainsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipex_chains_active",
				Help: "Chains currently running",
			},
		),
		ChainDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipex_chain_duration_seconds",
				Help:    "Wall time from start to the last process reaped",
				Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 10, 60, 300},
			},
		),
		ChainLength: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipex_chain_length",
				Help:    "Commands per chain",
				Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16},
			},
		),
		ProcessesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "pipex_processes_spawned_total",
				Help: "Child processes created",
			},
		),
		ProcessFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipex_process_failures_total",
				Help: "Chain positions that did not exit 0, by exit code",
			},
			[]string{"code"},
		),
	}
}

// Begin marks a chain as running. Call the returned func when it is done.
func (m *Metrics) Begin() func() {
	m.ChainsActive.Inc()
	return m.ChainsActive.Dec
}

// Observe records one finished chain. res may be nil.
func (m *Metrics) Observe(n int, res *pipeline.ChainResult, err error, d time.Duration) {
	m.ChainsTotal.WithLabelValues(outcome(res, err)).Inc()
	m.ChainDuration.Observe(d.Seconds())
	m.ChainLength.Observe(float64(n))
	if res == nil {
		return
	}
	for _, p := range res.Processes {
		if p.Started() {
			m.ProcessesTotal.Inc()
		}
		if p.ExitCode != 0 {
			m.ProcessFailures.WithLabelValues(strconv.Itoa(p.ExitCode)).Inc()
		}
	}
}

func outcome(res *pipeline.ChainResult, err error) string {
	switch {
	case errors.Is(err, pipeline.ErrRejected):
		return OutcomeRejected
	case err != nil:
		return OutcomeError
	case res.Success():
		return OutcomeSuccess
	default:
		return OutcomeFailure
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
