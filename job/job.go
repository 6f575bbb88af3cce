package job

import (
	"time"

	kycq "github.com/AKSHAT-ARORA03/SahajKYC-sub001"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/backoff"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StateWaiting means the job is eligible and waiting to be claimed.
	StateWaiting State = "waiting"
	// StateActive means a worker is currently executing the job.
	StateActive State = "active"
	// StateDelayed means the job is invisible to dequeue until its RunAt.
	StateDelayed State = "delayed"
	// StateCompleted means the job finished successfully. Terminal.
	StateCompleted State = "completed"
	// StateFailed means the job exhausted its attempts. Terminal.
	StateFailed State = "failed"
	// StatePaused is a reporting-only state: jobs waiting in a paused
	// queue are counted as paused. The persisted state stays waiting.
	StatePaused State = "paused"
)

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Payload is the opaque structured data a producer attaches to a job.
// It is immutable once enqueued.
type Payload map[string]any

// Retention bounds how long terminal jobs are kept for inspection.
// Count trims the oldest entries past the bound at ack time; Age is
// enforced by the periodic cleanup pass. Zero values mean unbounded.
type Retention struct {
	Count int           `json:"count,omitempty"`
	Age   time.Duration `json:"age,omitempty"`
}

// Job represents a unit of work to be processed by a queue's handler.
type Job struct {
	kycq.Entity

	ID       id.JobID `json:"id"`
	Queue    string   `json:"queue"`
	Type     string   `json:"type"`
	Payload  Payload  `json:"payload"`
	State    State    `json:"state"`
	Priority int      `json:"priority"`

	// AttemptsMade counts executions, incremented atomically by the
	// broker when the job is claimed. Never exceeds MaxAttempts.
	AttemptsMade int `json:"attempts_made"`
	MaxAttempts  int `json:"max_attempts"`

	Backoff backoff.Policy `json:"backoff"`

	RetainCompleted Retention `json:"retain_completed"`
	RetainFailed    Retention `json:"retain_failed"`

	LastError string  `json:"last_error,omitempty"`
	Progress  float64 `json:"progress,omitempty"`

	// Seq is the broker-assigned enqueue sequence used as the FIFO
	// tie-break among equal priorities.
	Seq int64 `json:"seq"`

	WorkerID id.WorkerID `json:"worker_id,omitempty"`

	// RunAt is when the job becomes eligible for dequeue. For delayed
	// jobs and retries this is the promotion deadline.
	RunAt       time.Time  `json:"run_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	LeaseExpiry *time.Time `json:"lease_expiry,omitempty"`
}

// Counts is a per-queue snapshot of job counts by state.
// When the queue is paused its waiting backlog is reported under Paused.
type Counts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Paused    int64 `json:"paused"`
}

// Total returns the number of jobs across all states.
func (c Counts) Total() int64 {
	return c.Waiting + c.Active + c.Delayed + c.Completed + c.Failed + c.Paused
}

// Summary is a compact job view for operator inspection.
type Summary struct {
	ID           id.JobID   `json:"id"`
	Type         string     `json:"type"`
	State        State      `json:"state"`
	AttemptsMade int        `json:"attempts_made"`
	LastError    string     `json:"last_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Summarize converts a job to its operator summary.
func (j *Job) Summarize() Summary {
	return Summary{
		ID:           j.ID,
		Type:         j.Type,
		State:        j.State,
		AttemptsMade: j.AttemptsMade,
		LastError:    j.LastError,
		CreatedAt:    j.CreatedAt,
		FinishedAt:   j.FinishedAt,
	}
}
