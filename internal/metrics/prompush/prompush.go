// Package prompush pushes pipeline metrics to a Prometheus Pushgateway.
// Batch runs are too short-lived to be scraped, so metrics are pushed on
// Flush and Close.
package prompush

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"ethnograph/internal/metrics"
)

// Known label sets per metric name; other names are ignored.
var labelNames = map[string][]string{
	metrics.StageTotal:      {"stage", "status"},
	metrics.StageDuration:   {"stage", "status"},
	metrics.RecordsTotal:    {"kind"},
	metrics.RevalidateTotal: {"status"},
}

// Backend implements metrics.Backend on a private registry.
type Backend struct {
	pusher *push.Pusher

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// NewBackend registers the pipeline collectors and targets the gateway at
// url under job.
func NewBackend(job, url string) (*Backend, error) {
	if url == "" {
		return nil, fmt.Errorf("prompush: gateway url is empty")
	}
	if job == "" {
		job = "ethnograph"
	}
	reg := prometheus.NewRegistry()
	b := &Backend{
		pusher:     push.New(url, job).Gatherer(reg),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
	for _, name := range []string{metrics.StageTotal, metrics.RecordsTotal, metrics.RevalidateTotal} {
		c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: name}, labelNames[name])
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
		b.counters[name] = c
	}
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metrics.StageDuration,
		Help:    "Load stage wall time.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, labelNames[metrics.StageDuration])
	if err := reg.Register(h); err != nil {
		return nil, fmt.Errorf("prompush: register %s: %w", metrics.StageDuration, err)
	}
	b.histograms[metrics.StageDuration] = h
	return b, nil
}

func values(name string, labels metrics.Labels) prometheus.Labels {
	out := make(prometheus.Labels, len(labelNames[name]))
	for _, k := range labelNames[name] {
		out[k] = labels[k]
	}
	return out
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	b.mu.Lock()
	c := b.counters[name]
	b.mu.Unlock()
	if c != nil {
		c.With(values(name, labels)).Add(delta)
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	b.mu.Lock()
	h := b.histograms[name]
	b.mu.Unlock()
	if h != nil {
		h.With(values(name, labels)).Observe(value)
	}
}

// Flush replaces the job's metric group on the gateway.
func (b *Backend) Flush() error {
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("prompush: push: %w", err)
	}
	return nil
}

func (b *Backend) Close() error { return b.Flush() }

var _ metrics.Backend = (*Backend)(nil)
