// Package event defines job lifecycle events and the outbound Feed that
// carries them to external observers (metrics and logging sinks).
//
// Events are emitted synchronously from the worker loop immediately
// after ack, then delivered through a bounded channel: observer slowness
// drops events rather than blocking job processing.
package event

import (
	"time"

	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/id"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/job"
)

// Type identifies a job lifecycle transition.
type Type string

const (
	TypeEnqueued  Type = "enqueued"
	TypeStarted   Type = "started"
	TypeProgress  Type = "progress"
	TypeCompleted Type = "completed"
	TypeRetrying  Type = "retrying"
	TypeFailed    Type = "failed"
	TypeStalled   Type = "stalled"
	TypeRecovered Type = "recovered"
)

// Event is one observed job lifecycle transition.
type Event struct {
	ID    id.EventID `json:"id"`
	Type  Type       `json:"type"`
	Queue string     `json:"queue"`
	JobID id.JobID   `json:"job_id"`

	// JobType is the job's dispatch tag.
	JobType string `json:"job_type"`

	// Attempt is the execution attempt the event belongs to.
	Attempt int `json:"attempt,omitempty"`

	// Err is the failure reason for retrying/failed events.
	Err string `json:"error,omitempty"`

	// Progress accompanies progress events.
	Progress float64 `json:"progress,omitempty"`

	// Elapsed is the execution duration for completed/failed events.
	Elapsed time.Duration `json:"elapsed,omitempty"`

	// RetryAt is when a retrying job becomes eligible again.
	RetryAt time.Time `json:"retry_at,omitzero"`

	At time.Time `json:"at"`
}

// New builds an event for the given job, stamping ID and time.
func New(t Type, j *job.Job) Event {
	return Event{
		ID:      id.NewEventID(),
		Type:    t,
		Queue:   j.Queue,
		JobID:   j.ID,
		JobType: j.Type,
		Attempt: j.AttemptsMade,
		At:      time.Now().UTC(),
	}
}
