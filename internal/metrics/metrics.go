// Package metrics exposes batch counters through a private Prometheus
// registry, optionally exported as a node-exporter textfile.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalnine/covbatch/internal/result"
)

const namespace = "covbatch"

type Metrics struct {
	Registry *prometheus.Registry

	JobsTotal      *prometheus.CounterVec
	StageFailures  *prometheus.CounterVec
	JobDuration    prometheus.Histogram
	ResumeIndex    prometheus.Gauge
	CheckpointSave prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Jobs executed, by outcome (completed or failed).",
		}, []string{"outcome"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_failures_total",
			Help:      "Failed jobs by error kind.",
		}, []string{"kind"}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of one job pipeline.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		}),
		ResumeIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resume_index",
			Help:      "Next manifest index to execute.",
		}),
		CheckpointSave: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_saves_total",
			Help:      "Checkpoint writes.",
		}),
	}
	m.Registry.MustRegister(m.JobsTotal, m.StageFailures, m.JobDuration, m.ResumeIndex, m.CheckpointSave)
	return m
}

// Observe records one finished job.
func (m *Metrics) Observe(o *result.Outcome, took time.Duration) {
	if m == nil {
		return
	}
	if o.Succeeded() {
		m.JobsTotal.WithLabelValues("completed").Inc()
	} else {
		m.JobsTotal.WithLabelValues("failed").Inc()
		m.StageFailures.WithLabelValues(string(o.ErrorKind)).Inc()
	}
	m.JobDuration.Observe(took.Seconds())
}

func (m *Metrics) SetResumeIndex(i int) {
	if m == nil {
		return
	}
	m.ResumeIndex.Set(float64(i))
}

func (m *Metrics) CheckpointSaved() {
	if m == nil {
		return
	}
	m.CheckpointSave.Inc()
}

// WriteTextfile writes all metrics in the text exposition format to path.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
