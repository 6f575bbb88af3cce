// Package memory implements broker.Broker entirely in process memory.
// Safe for concurrent access. Intended for unit testing and development;
// jobs do not survive a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	kycq "github.com/AKSHAT-ARORA03/SahajKYC-sub001"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/broker"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/id"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/job"
)

// Ensure Broker satisfies the contract at compile time.
var _ broker.Broker = (*Broker)(nil)

// pollInterval is how often a blocked dequeue rechecks the waiting set.
const pollInterval = 10 * time.Millisecond

// Broker is a fully in-memory implementation of broker.Broker.
type Broker struct {
	mu     sync.Mutex
	jobs   map[string]*job.Job // keyed by job ID string
	paused map[string]bool
	seq    int64
	closed bool
}

// New returns a new empty Broker.
func New() *Broker {
	return &Broker{
		jobs:   make(map[string]*job.Job),
		paused: make(map[string]bool),
	}
}

// Ping always succeeds while the broker is open.
func (b *Broker) Ping(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return kycq.ErrBrokerClosed
	}
	return nil
}

// Close marks the broker closed; further operations fail.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Enqueue persists j in waiting state, or delayed when RunAt is in the
// future, assigning the FIFO sequence.
func (b *Broker) Enqueue(_ context.Context, j *job.Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return kycq.ErrBrokerClosed
	}

	key := j.ID.String()
	if _, exists := b.jobs[key]; exists {
		return kycq.ErrJobAlreadyExists
	}

	b.seq++
	cp := *j
	cp.Seq = b.seq
	if cp.RunAt.After(time.Now()) {
		cp.State = job.StateDelayed
	} else {
		cp.State = job.StateWaiting
	}
	j.Seq = cp.Seq
	j.State = cp.State
	b.jobs[key] = &cp
	return nil
}

// DequeueBlocking claims the next eligible waiting job by priority then
// FIFO, blocking up to timeout. Returns (nil, nil) when nothing is
// available.
func (b *Broker) DequeueBlocking(ctx context.Context, queue string, timeout, lease time.Duration) (*job.Job, error) {
	deadline := time.Now().Add(timeout)
	for {
		j, err := b.tryDequeue(queue, lease)
		if err != nil || j != nil {
			return j, err
		}

		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (b *Broker) tryDequeue(queue string, lease time.Duration) (*job.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, kycq.ErrBrokerClosed
	}
	if b.paused[queue] {
		return nil, nil
	}

	var next *job.Job
	for _, j := range b.jobs {
		if j.Queue != queue || j.State != job.StateWaiting {
			continue
		}
		if next == nil || less(j, next) {
			next = j
		}
	}
	if next == nil {
		return nil, nil
	}

	now := time.Now().UTC()
	expiry := now.Add(lease)
	next.State = job.StateActive
	next.AttemptsMade++
	next.ProcessedAt = &now
	next.LeaseExpiry = &expiry
	next.UpdatedAt = now

	cp := *next
	return &cp, nil
}

// less orders waiting jobs: lower priority first, then enqueue sequence.
func less(a, c *job.Job) bool {
	if a.Priority != c.Priority {
		return a.Priority < c.Priority
	}
	return a.Seq < c.Seq
}

// Ack applies the outcome to an active job. Acks against jobs that are
// no longer active are no-ops.
func (b *Broker) Ack(_ context.Context, queue string, jobID id.JobID, out broker.Outcome) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false, kycq.ErrBrokerClosed
	}

	j, ok := b.jobs[jobID.String()]
	if !ok || j.Queue != queue || j.State != job.StateActive {
		return false, nil
	}

	now := time.Now().UTC()
	j.UpdatedAt = now
	j.LeaseExpiry = nil
	j.WorkerID = id.Nil

	switch out.Status {
	case broker.StatusCompleted:
		j.State = job.StateCompleted
		j.FinishedAt = &now
		b.trim(queue, job.StateCompleted, j.RetainCompleted.Count)
	case broker.StatusRetry:
		j.State = job.StateDelayed
		j.LastError = out.Err
		j.RunAt = out.RetryAt
	case broker.StatusFailed:
		j.State = job.StateFailed
		j.LastError = out.Err
		j.FinishedAt = &now
		b.trim(queue, job.StateFailed, j.RetainFailed.Count)
	}
	return true, nil
}

// trim enforces count-bounded retention for a terminal state.
func (b *Broker) trim(queue string, state job.State, retain int) {
	if retain <= 0 {
		return
	}
	terminal := b.collect(queue, state)
	if len(terminal) <= retain {
		return
	}
	// Oldest finish first.
	sort.Slice(terminal, func(i, k int) bool {
		return finishedAt(terminal[i]).Before(finishedAt(terminal[k]))
	})
	for _, j := range terminal[:len(terminal)-retain] {
		delete(b.jobs, j.ID.String())
	}
}

func finishedAt(j *job.Job) time.Time {
	if j.FinishedAt != nil {
		return *j.FinishedAt
	}
	return j.CreatedAt
}

func (b *Broker) collect(queue string, state job.State) []*job.Job {
	var out []*job.Job
	for _, j := range b.jobs {
		if j.Queue == queue && j.State == state {
			out = append(out, j)
		}
	}
	return out
}

// ExtendLease renews the lease on an active job.
func (b *Broker) ExtendLease(_ context.Context, queue string, jobID id.JobID, until time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	j, ok := b.jobs[jobID.String()]
	if !ok || j.Queue != queue {
		return kycq.ErrJobNotFound
	}
	if j.State != job.StateActive {
		return nil
	}
	u := until.UTC()
	j.LeaseExpiry = &u
	return nil
}

// UpdateProgress records a progress report on an active job.
func (b *Broker) UpdateProgress(_ context.Context, queue string, jobID id.JobID, pct float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	j, ok := b.jobs[jobID.String()]
	if !ok || j.Queue != queue {
		return kycq.ErrJobNotFound
	}
	if j.State != job.StateActive {
		return nil
	}
	j.Progress = pct
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// PromoteDue moves delayed jobs whose RunAt has passed into waiting.
func (b *Broker) PromoteDue(_ context.Context, queue string, now time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, kycq.ErrBrokerClosed
	}

	promoted := 0
	for _, j := range b.jobs {
		if j.Queue == queue && j.State == job.StateDelayed && !j.RunAt.After(now) {
			j.State = job.StateWaiting
			j.UpdatedAt = now.UTC()
			promoted++
		}
	}
	return promoted, nil
}

// ListStale returns active jobs whose lease expired before now.
func (b *Broker) ListStale(_ context.Context, queue string, now time.Time) ([]*job.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var stale []*job.Job
	for _, j := range b.jobs {
		if j.Queue == queue && j.State == job.StateActive &&
			j.LeaseExpiry != nil && j.LeaseExpiry.Before(now) {
			cp := *j
			stale = append(stale, &cp)
		}
	}
	return stale, nil
}

// Pause sets the queue's pause flag.
func (b *Broker) Pause(_ context.Context, queue string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paused[queue] = true
	return nil
}

// Resume clears the queue's pause flag.
func (b *Broker) Resume(_ context.Context, queue string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.paused, queue)
	return nil
}

// Paused reports whether the queue's pause flag is set.
func (b *Broker) Paused(_ context.Context, queue string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused[queue], nil
}

// Stats returns current per-state counts. A paused queue's waiting
// backlog is reported under Paused.
func (b *Broker) Stats(_ context.Context, queue string) (job.Counts, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return job.Counts{}, kycq.ErrBrokerClosed
	}

	var c job.Counts
	for _, j := range b.jobs {
		if j.Queue != queue {
			continue
		}
		switch j.State {
		case job.StateWaiting:
			if b.paused[queue] {
				c.Paused++
			} else {
				c.Waiting++
			}
		case job.StateActive:
			c.Active++
		case job.StateDelayed:
			c.Delayed++
		case job.StateCompleted:
			c.Completed++
		case job.StateFailed:
			c.Failed++
		}
	}
	return c, nil
}

// ListJobs returns up to limit jobs in the given state: waiting by
// dequeue order, delayed by promotion time, terminal by recency.
func (b *Broker) ListJobs(_ context.Context, queue string, state job.State, limit int) ([]*job.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	jobs := b.collect(queue, state)
	switch state {
	case job.StateWaiting:
		sort.Slice(jobs, func(i, k int) bool { return less(jobs[i], jobs[k]) })
	case job.StateDelayed:
		sort.Slice(jobs, func(i, k int) bool { return jobs[i].RunAt.Before(jobs[k].RunAt) })
	default:
		sort.Slice(jobs, func(i, k int) bool {
			return finishedAt(jobs[i]).After(finishedAt(jobs[k]))
		})
	}

	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	out := make([]*job.Job, len(jobs))
	for i, j := range jobs {
		cp := *j
		out[i] = &cp
	}
	return out, nil
}

// GetJob retrieves a job by ID.
func (b *Broker) GetJob(_ context.Context, queue string, jobID id.JobID) (*job.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	j, ok := b.jobs[jobID.String()]
	if !ok || j.Queue != queue {
		return nil, kycq.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// Clean removes terminal jobs that finished more than grace ago.
func (b *Broker) Clean(_ context.Context, queue string, state job.State, grace time.Duration) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !state.Terminal() {
		return 0, kycq.ErrInvalidState
	}

	cutoff := time.Now().UTC().Add(-grace)
	removed := 0
	for key, j := range b.jobs {
		if j.Queue != queue || j.State != state {
			continue
		}
		if finishedAt(j).Before(cutoff) {
			delete(b.jobs, key)
			removed++
		}
	}
	return removed, nil
}
