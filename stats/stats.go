// Package stats aggregates job lifecycle counters per queue. Counters
// are recorded synchronously in the worker loop immediately after ack,
// so snapshots never lag completed work.
package stats

import (
	"sync"
	"sync/atomic"

	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/job"
)

// Totals are this process's lifetime lifecycle counts for one queue.
type Totals struct {
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Retried   uint64 `json:"retried"`
	Stalled   uint64 `json:"stalled"`
	Recovered uint64 `json:"recovered"`
	Panics    uint64 `json:"panics"`
}

// counters is the mutable per-queue cell behind Totals.
type counters struct {
	completed atomic.Uint64
	failed    atomic.Uint64
	retried   atomic.Uint64
	stalled   atomic.Uint64
	recovered atomic.Uint64
	panics    atomic.Uint64
}

func (c *counters) totals() Totals {
	return Totals{
		Completed: c.completed.Load(),
		Failed:    c.failed.Load(),
		Retried:   c.retried.Load(),
		Stalled:   c.stalled.Load(),
		Recovered: c.recovered.Load(),
		Panics:    c.panics.Load(),
	}
}

// Recorder records lifecycle counts. Safe for concurrent use by all
// worker loops.
type Recorder struct {
	mu     sync.RWMutex
	queues map[string]*counters
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{queues: make(map[string]*counters)}
}

func (r *Recorder) cell(queue string) *counters {
	r.mu.RLock()
	c, ok := r.queues[queue]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.queues[queue]; ok {
		return c
	}
	c = &counters{}
	r.queues[queue] = c
	return c
}

// JobCompleted records a successful terminal ack.
func (r *Recorder) JobCompleted(queue string) { r.cell(queue).completed.Add(1) }

// JobFailed records a terminal failure ack.
func (r *Recorder) JobFailed(queue string) { r.cell(queue).failed.Add(1) }

// JobRetried records a retry ack.
func (r *Recorder) JobRetried(queue string) { r.cell(queue).retried.Add(1) }

// JobStalled records a stall detection.
func (r *Recorder) JobStalled(queue string) { r.cell(queue).stalled.Add(1) }

// JobRecovered records a stale-lease recovery.
func (r *Recorder) JobRecovered(queue string) { r.cell(queue).recovered.Add(1) }

// JobPanicked records a handler panic converted to a failure.
func (r *Recorder) JobPanicked(queue string) { r.cell(queue).panics.Add(1) }

// Totals returns the lifetime counts for one queue.
func (r *Recorder) Totals(queue string) Totals {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.queues[queue]; ok {
		return c.totals()
	}
	return Totals{}
}

// All returns the lifetime counts for every queue seen so far.
func (r *Recorder) All() map[string]Totals {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Totals, len(r.queues))
	for q, c := range r.queues {
		out[q] = c.totals()
	}
	return out
}

// QueueStats is the operator-facing snapshot for one queue: broker
// counts, process totals, and truncated job summaries. Truncation is
// intentional to bound response size.
type QueueStats struct {
	Queue  string     `json:"queue"`
	Paused bool       `json:"paused"`
	Counts job.Counts `json:"counts"`
	Totals Totals     `json:"totals"`

	Waiting []job.Summary `json:"waiting,omitempty"`
	Active  []job.Summary `json:"active,omitempty"`
	Failed  []job.Summary `json:"failed,omitempty"`
}

// Health is the aggregated operator health report.
type Health struct {
	Healthy bool     `json:"healthy"`
	Issues  []string `json:"issues,omitempty"`

	Queues map[string]QueueStats `json:"stats"`
}
