package job

import (
	"time"

	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/backoff"
)

// Options configures per-job behavior. Zero-valued fields inherit the
// owning queue's defaults at enqueue time.
type Options struct {
	// Delay schedules the job for future execution. Zero means immediate.
	Delay time.Duration

	// Attempts is the ceiling on execution attempts. Zero inherits the
	// queue default.
	Attempts int

	// Backoff is the retry delay policy. Zero inherits the queue default.
	Backoff backoff.Policy

	// Priority orders dequeue: lower values are processed sooner.
	// Ties are broken FIFO by enqueue sequence.
	Priority int

	// RetainCompleted / RetainFailed bound terminal-job retention.
	// Zero inherits the queue default.
	RetainCompleted Retention
	RetainFailed    Retention
}

// DefaultOptions returns the fallback applied when neither the job nor
// its queue specifies a value.
func DefaultOptions() Options {
	return Options{
		Attempts:        3,
		Backoff:         backoff.DefaultPolicy(),
		RetainCompleted: Retention{Count: 1000},
		RetainFailed:    Retention{Count: 5000},
	}
}

// Merge overlays o on top of defaults: explicit per-job fields win,
// unset fields inherit.
func (o Options) Merge(defaults Options) Options {
	out := defaults
	if o.Delay > 0 {
		out.Delay = o.Delay
	}
	if o.Attempts > 0 {
		out.Attempts = o.Attempts
	}
	if !o.Backoff.IsZero() {
		out.Backoff = o.Backoff
	}
	if o.Priority != 0 {
		out.Priority = o.Priority
	}
	if o.RetainCompleted != (Retention{}) {
		out.RetainCompleted = o.RetainCompleted
	}
	if o.RetainFailed != (Retention{}) {
		out.RetainFailed = o.RetainFailed
	}
	return out
}

// Option is a functional option for configuring a job at enqueue time.
type Option func(*Options)

// WithDelay schedules the job to become eligible after d.
func WithDelay(d time.Duration) Option {
	return func(o *Options) { o.Delay = d }
}

// WithAttempts sets the maximum number of execution attempts.
func WithAttempts(n int) Option {
	return func(o *Options) { o.Attempts = n }
}

// WithBackoff sets the retry delay policy.
func WithBackoff(p backoff.Policy) Option {
	return func(o *Options) { o.Backoff = p }
}

// WithPriority sets the job priority. Lower values are processed sooner.
func WithPriority(p int) Option {
	return func(o *Options) { o.Priority = p }
}

// WithRetainCompleted bounds retention of the job after success.
func WithRetainCompleted(r Retention) Option {
	return func(o *Options) { o.RetainCompleted = r }
}

// WithRetainFailed bounds retention of the job after terminal failure.
func WithRetainFailed(r Retention) Option {
	return func(o *Options) { o.RetainFailed = r }
}
