// Package broker defines the scheduling substrate contract: durable,
// atomic, network-visible primitives that let multiple manager processes
// share queues without ever executing the same job twice.
//
// broker/redis is the production implementation; broker/memory is a
// drop-in for unit tests and development.
package broker

import (
	"context"
	"time"

	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/id"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/job"
)

// Status is the terminal decision carried by an Outcome.
type Status string

const (
	// StatusCompleted moves the job to completed. Terminal.
	StatusCompleted Status = "completed"
	// StatusRetry re-queues the job as delayed until Outcome.RetryAt.
	StatusRetry Status = "retry"
	// StatusFailed moves the job to failed. Terminal.
	StatusFailed Status = "failed"
)

// Outcome describes how an active job's execution ended. The caller
// computes the retry decision (backoff, attempt ceiling); the broker
// applies the transition atomically.
type Outcome struct {
	Status Status

	// Err is the captured failure reason for retry/failed outcomes.
	Err string

	// RetryAt is when a retried job becomes eligible again.
	RetryAt time.Time
}

// Broker is the durable scheduling substrate. All operations are safe
// for concurrent use from multiple processes.
type Broker interface {
	// Enqueue appends j to its queue's waiting set (or the delayed set
	// when j.RunAt is in the future), assigning the FIFO sequence.
	// Returns kycq.ErrBrokerUnavailable if the broker cannot be reached
	// within a bounded timeout; the job is never silently dropped.
	Enqueue(ctx context.Context, j *job.Job) error

	// DequeueBlocking atomically claims the next eligible job on the
	// queue — by priority, then FIFO — marks it active with a lease, and
	// increments its attempt counter. It blocks up to timeout and
	// returns (nil, nil) when no job is available. Paused queues never
	// yield jobs.
	DequeueBlocking(ctx context.Context, queue string, timeout, lease time.Duration) (*job.Job, error)

	// Ack atomically transitions an active job per the outcome. It is
	// idempotent: acking a job that is no longer active is a no-op and
	// returns false.
	Ack(ctx context.Context, queue string, jobID id.JobID, out Outcome) (bool, error)

	// ExtendLease renews the lease on an active job, marking the worker
	// as still alive.
	ExtendLease(ctx context.Context, queue string, jobID id.JobID, until time.Time) error

	// UpdateProgress persists a handler's progress report. Best-effort:
	// it is valid only while the job is active.
	UpdateProgress(ctx context.Context, queue string, jobID id.JobID, pct float64) error

	// PromoteDue moves delayed jobs whose RunAt has passed into the
	// waiting set. Returns the number promoted.
	PromoteDue(ctx context.Context, queue string, now time.Time) (int, error)

	// ListStale returns active jobs whose lease expired before now.
	// The jobs are left active; the caller drives each through Ack so
	// the normal retry state machine applies exactly once.
	ListStale(ctx context.Context, queue string, now time.Time) ([]*job.Job, error)

	// Pause stops dequeue for the queue without affecting active jobs.
	Pause(ctx context.Context, queue string) error

	// Resume re-enables dequeue for the queue.
	Resume(ctx context.Context, queue string) error

	// Paused reports whether the queue's pause flag is set.
	Paused(ctx context.Context, queue string) (bool, error)

	// Stats returns current per-state counts without side effects.
	Stats(ctx context.Context, queue string) (job.Counts, error)

	// ListJobs returns up to limit jobs in the given state, most
	// relevant first (waiting/delayed by dequeue order, terminal by
	// recency).
	ListJobs(ctx context.Context, queue string, state job.State, limit int) ([]*job.Job, error)

	// GetJob retrieves a job by ID. Returns kycq.ErrJobNotFound if the
	// job does not exist or has been cleaned.
	GetJob(ctx context.Context, queue string, jobID id.JobID) (*job.Job, error)

	// Clean removes completed/failed jobs that finished more than grace
	// ago. It never touches waiting, active, or delayed jobs. Returns
	// the number removed.
	Clean(ctx context.Context, queue string, state job.State, grace time.Duration) (int, error)

	// Ping verifies the broker connection is alive.
	Ping(ctx context.Context) error

	// Close releases the broker connection.
	Close() error
}
