// Package metrics encapsulates Prometheus instrumentation for scheduler
// runs.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics registers and feeds the scheduler collectors.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	runDuration    prometheus.Histogram
	cspIterations  prometheus.Gauge
	ggaGenerations prometheus.Gauge
	bestFitness    prometheus.Gauge
	unassigned     prometheus.Gauge
}

// New registers the scheduler collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	runsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_runs_total",
		Help: "Total scheduler runs by term and outcome",
	}, []string{"term", "outcome"})

	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timetable_run_duration_seconds",
		Help:    "Wall-clock duration of scheduler runs",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	cspIterations := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timetable_csp_iterations",
		Help: "Backtracking iterations of the last run",
	})

	ggaGenerations := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timetable_gga_generations",
		Help: "Genetic generations of the last run",
	})

	bestFitness := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timetable_best_fitness",
		Help: "Best fitness reached by the last run",
	})

	unassigned := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timetable_unassigned_variables",
		Help: "Variables left unassigned by the last run",
	})

	registry.MustRegister(runsTotal, runDuration, cspIterations, ggaGenerations, bestFitness, unassigned)

	return &Metrics{
		registry:       registry,
		runsTotal:      runsTotal,
		runDuration:    runDuration,
		cspIterations:  cspIterations,
		ggaGenerations: ggaGenerations,
		bestFitness:    bestFitness,
		unassigned:     unassigned,
	}
}

// Registry exposes the private registry for scraping or test inspection.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRun records one completed scheduler run.
func (m *Metrics) ObserveRun(term int, elapsed time.Duration, iterations, generations int, fitness float64, unassigned int, bestPartial bool) {
	outcome := "complete"
	if bestPartial {
		outcome = "best_partial"
	}
	m.runsTotal.WithLabelValues(strconv.Itoa(term), outcome).Inc()
	m.runDuration.Observe(elapsed.Seconds())
	m.cspIterations.Set(float64(iterations))
	m.ggaGenerations.Set(float64(generations))
	m.bestFitness.Set(fitness)
	m.unassigned.Set(float64(unassigned))
}
