// Package worker provides the job execution engine — an Executor that
// runs a claimed job through middleware and the registered handler and
// acks the outcome, and a Pool of goroutines claiming jobs for one queue.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/broker"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/event"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/job"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/middleware"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/stats"
)

// Executor runs a single claimed job through the middleware chain and
// handler, computes the retry decision, and acks the broker. All state
// transitions after the claim flow through Ack so the broker applies
// them atomically and exactly once.
type Executor struct {
	broker   broker.Broker
	handler  job.Handler
	recorder *stats.Recorder
	feed     *event.Feed
	mw       middleware.Middleware
	logger   *slog.Logger
}

// NewExecutor creates an Executor. The handler is typically a *job.Mux.
func NewExecutor(
	b broker.Broker,
	handler job.Handler,
	recorder *stats.Recorder,
	feed *event.Feed,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		broker:   b,
		handler:  handler,
		recorder: recorder,
		feed:     feed,
		mw:       middleware.Chain(mws...),
		logger:   logger,
	}
}

// Execute runs a claimed job to its acked outcome.
// On success: acks completed. On failure with attempts remaining: acks
// retry with the job's backoff delay. On failure at the attempt
// ceiling: acks failed. The returned error reports execution machinery
// problems (ack failures), not handler errors — those are absorbed into
// the outcome.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	e.feed.Publish(event.New(event.TypeStarted, j))

	// Progress reports persist best-effort and surface on the feed.
	ctx = job.WithProgressReporter(ctx, func(ctx context.Context, pct float64) error {
		if err := e.broker.UpdateProgress(ctx, j.Queue, j.ID, pct); err != nil {
			e.logger.Debug("progress update dropped",
				slog.String("job_id", j.ID.String()),
				slog.String("error", err.Error()),
			)
		}
		ev := event.New(event.TypeProgress, j)
		ev.Progress = pct
		e.feed.Publish(ev)
		return nil
	})

	start := time.Now()
	err := e.mw(ctx, j, func(ctx context.Context) error {
		return e.handler.ProcessJob(ctx, j)
	})
	elapsed := time.Since(start)

	out := e.outcome(j, err)
	// Ack must land even when the job context was cancelled (drain
	// deadline, kill-on-stall), or the attempt would be lost until
	// lease recovery.
	acked, ackErr := e.broker.Ack(context.WithoutCancel(ctx), j.Queue, j.ID, out)
	if ackErr != nil {
		e.logger.Error("ack failed",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.String("status", string(out.Status)),
			slog.String("error", ackErr.Error()),
		)
		return ackErr
	}
	if !acked {
		// Lost the claim: the lease expired and another process already
		// recovered the job. Its outcome stands, not ours.
		e.logger.Warn("ack skipped, job no longer active",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
		)
		return nil
	}

	e.observe(j, out, err, elapsed)
	return nil
}

// outcome computes the retry decision for a finished execution.
func (e *Executor) outcome(j *job.Job, err error) broker.Outcome {
	if err == nil {
		return broker.Outcome{Status: broker.StatusCompleted}
	}

	if j.AttemptsMade >= j.MaxAttempts {
		return broker.Outcome{Status: broker.StatusFailed, Err: err.Error()}
	}

	delay := j.Backoff.Delay(j.AttemptsMade)
	return broker.Outcome{
		Status:  broker.StatusRetry,
		Err:     err.Error(),
		RetryAt: time.Now().UTC().Add(delay),
	}
}

// observe records stats and publishes the lifecycle event for an
// applied outcome.
func (e *Executor) observe(j *job.Job, out broker.Outcome, err error, elapsed time.Duration) {
	var pe *middleware.PanicError
	if errors.As(err, &pe) {
		e.recorder.JobPanicked(j.Queue)
	}

	switch out.Status {
	case broker.StatusCompleted:
		e.recorder.JobCompleted(j.Queue)
		ev := event.New(event.TypeCompleted, j)
		ev.Elapsed = elapsed
		e.feed.Publish(ev)

		e.logger.Info("job completed",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.Duration("elapsed", elapsed),
		)

	case broker.StatusRetry:
		e.recorder.JobRetried(j.Queue)
		ev := event.New(event.TypeRetrying, j)
		ev.Err = out.Err
		ev.RetryAt = out.RetryAt
		e.feed.Publish(ev)

		e.logger.Info("job scheduled for retry",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.Int("attempt", j.AttemptsMade),
			slog.Int("max_attempts", j.MaxAttempts),
			slog.Time("retry_at", out.RetryAt),
			slog.String("error", out.Err),
		)

	case broker.StatusFailed:
		e.recorder.JobFailed(j.Queue)
		ev := event.New(event.TypeFailed, j)
		ev.Err = out.Err
		ev.Elapsed = elapsed
		e.feed.Publish(ev)

		e.logger.Warn("job failed after exhausting attempts",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.Int("attempts_made", j.AttemptsMade),
			slog.String("error", out.Err),
		)
	}
}
