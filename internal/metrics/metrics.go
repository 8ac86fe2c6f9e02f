// Package metrics exports solver activity as Prometheus metrics.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/copyleftdev/ipoptgo/internal/optimization"
)

const namespace = "nlpsolve"

// Collector holds the solver metrics.
type Collector struct {
	solves      *prometheus.CounterVec
	duration    prometheus.Histogram
	evaluations *prometheus.CounterVec
	inFlight    prometheus.Gauge
}

// NewCollector creates the metrics and registers them with reg. A nil reg
// leaves them unregistered.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		solves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solves_total",
			Help:      "Finished solves by solver status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solve_duration_seconds",
			Help:      "Wall time spent inside the solver.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Callback evaluations by kind.",
		}, []string{"kind"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "solves_in_flight",
			Help:      "Solves currently running.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.solves, c.duration, c.evaluations, c.inFlight)
	}
	return c
}

// Observe records one finished solve.
func (c *Collector) Observe(res *optimization.Result, err error, elapsed time.Duration) {
	c.duration.Observe(elapsed.Seconds())

	status := "error"
	if res != nil {
		status = res.Message
		c.evaluations.WithLabelValues("objective").Add(float64(res.Evaluations.Objective))
		c.evaluations.WithLabelValues("gradient").Add(float64(res.Evaluations.Gradient))
		c.evaluations.WithLabelValues("constraints").Add(float64(res.Evaluations.Constraints))
		c.evaluations.WithLabelValues("jacobian").Add(float64(res.Evaluations.Jacobian))
	}
	c.solves.WithLabelValues(status).Inc()
}

// InstrumentSolver wraps s so every solve is recorded by c.
func (c *Collector) InstrumentSolver(s optimization.Solver) optimization.Solver {
	return optimization.SolverFunc(func(ctx context.Context, nlp *optimization.NLP) (*optimization.Result, error) {
		c.inFlight.Inc()
		defer c.inFlight.Dec()

		start := time.Now()
		res, err := s.Solve(ctx, nlp)
		c.Observe(res, err, time.Since(start))
		return res, err
	})
}
