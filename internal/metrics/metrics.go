package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const promNamespace = "klinearchive"

// Metrics counts the work of one fetch or merge run. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	klines       prometheus.Counter
	filesWritten prometheus.Counter
	filesSkipped prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "requests_total",
		Help:      "Kline page requests by outcome.",
	}, []string{"outcome"})
	klines := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "klines_fetched_total",
		Help:      "Kline rows received, before de-duplication.",
	})
	filesWritten := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "files_written_total",
		Help:      "CSV artifacts written.",
	})
	filesSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "files_skipped_total",
		Help:      "Input CSV files skipped by a merge.",
	})

	registry.MustRegister(requests, klines, filesWritten, filesSkipped)

	return &Metrics{
		registry:     registry,
		requests:     requests,
		klines:       klines,
		filesWritten: filesWritten,
		filesSkipped: filesSkipped,
	}
}

// Request records one page request; err == nil counts as success.
func (m *Metrics) Request(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Klines(n int) {
	if m == nil {
		return
	}
	m.klines.Add(float64(n))
}

func (m *Metrics) FileWritten() {
	if m == nil {
		return
	}
	m.filesWritten.Inc()
}

func (m *Metrics) FileSkipped() {
	if m == nil {
		return
	}
	m.filesSkipped.Inc()
}

// RequestsCounter exposes the request counter for one outcome ("ok" or "error").
func (m *Metrics) RequestsCounter(outcome string) prometheus.Counter {
	return m.requests.WithLabelValues(outcome)
}

func (m *Metrics) FilesSkippedCounter() prometheus.Counter { return m.filesSkipped }

func (m *Metrics) FilesWrittenCounter() prometheus.Counter { return m.filesWritten }

// Push sends the run's counters to a Prometheus Pushgateway.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
