// Package metrics records operational metrics for audit-log runs behind a
// small backend-agnostic interface.
//
// A global no-op backend is installed by default, so instrumentation is
// always safe to call. cmd/auditlog swaps in a concrete backend (Prometheus
// Pushgateway or Datadog) at startup; packages only ever see this API.
package metrics

import (
	"sync"
	"time"
)

// Metric names emitted by this package.
const (
	StepTotal       = "auditlog_step_total"
	StepDuration    = "auditlog_step_duration_seconds"
	RecordsTotal    = "auditlog_records_total"
	SkipsTotal      = "auditlog_skips_total"
	BatchesTotal    = "auditlog_batches_total"
	MergedFileTotal = "auditlog_merged_files_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one execution of a run step (merge, parse, export, load)
// and observes its duration, labelled with success or failure.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}

	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRow increments a record-level counter. Kinds used by the pipeline are
// "lines", "enriched", "exported" and "inserted".
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(delta), Labels{"job": job, "kind": kind})
}

// RecordSkip counts lines left out of the dataset for the given reason.
func RecordSkip(job, reason string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(SkipsTotal, float64(delta), Labels{"job": job, "reason": reason})
}

// RecordBatches increments the storage batch counter for job.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(BatchesTotal, float64(delta), Labels{"job": job})
}

// RecordMergedFiles counts source objects concatenated by the merger.
func RecordMergedFiles(job string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(MergedFileTotal, float64(delta), Labels{"job": job})
}
