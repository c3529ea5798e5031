// Package metrics is the seam between the pipeline and a metrics system.
// Pipeline code depends only on Backend; concrete backends live in
// subpackages.
package metrics

import "time"

// Labels are metric dimensions (e.g. {"stage": "countries"}).
type Labels map[string]string

// Metric names emitted by the pipeline.
const (
	// StageTotal counts load outcomes. Labels: stage, status
	// (created|updated|skipped|error).
	StageTotal = "ethno_stage_total"
	// StageDuration observes stage wall time. Labels: stage, status (ok|error).
	StageDuration = "ethno_stage_duration_seconds"
	// RecordsTotal counts pipeline entities. Labels: kind.
	RecordsTotal = "ethno_records_total"
	// RevalidateTotal counts cache invalidation calls. Labels: status.
	RevalidateTotal = "ethno_revalidate_total"
)

// Backend receives metrics. Implementations must be safe for concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush submits buffered metrics.
	Flush() error
	// Close flushes one last time and releases resources.
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}
func (Nop) Flush() error                             { return nil }
func (Nop) Close() error                             { return nil }

// ObserveStage records one stage duration, tagged ok or error.
func ObserveStage(b Backend, stage string, d time.Duration, failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}
	b.ObserveHistogram(StageDuration, d.Seconds(), Labels{"stage": stage, "status": status})
}

var _ Backend = Nop{}
