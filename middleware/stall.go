package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/job"
)

// ErrStalled is reported when a killed handler ran past the stall
// timeout without reporting progress.
var ErrStalled = errors.New("kycq: job stalled")

// Stall returns middleware that watches for stalled handlers. A handler
// is considered stalled when it runs for longer than timeout without
// calling job.ReportProgress. On stall the middleware logs, invokes
// onStall once, and — when kill is true — cancels the handler's context
// so cooperative handlers abort.
//
// Non-kill mode only observes: the handler keeps running and its own
// result stands. A timeout of zero disables the watchdog.
func Stall(logger *slog.Logger, timeout time.Duration, kill bool, onStall func(j *job.Job)) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if timeout <= 0 {
			return next(ctx)
		}

		runCtx := ctx
		var cancel context.CancelCauseFunc
		if kill {
			runCtx, cancel = context.WithCancelCause(ctx)
			defer cancel(nil)
		}

		// Progress reports feed the watchdog; wrap the installed
		// reporter so reports still persist.
		activity := make(chan struct{}, 1)
		prev, hasPrev := job.ReporterFrom(runCtx)
		runCtx = job.WithProgressReporter(runCtx, func(c context.Context, pct float64) error {
			select {
			case activity <- struct{}{}:
			default:
			}
			if hasPrev {
				return prev(c, pct)
			}
			return nil
		})

		done := make(chan struct{})
		defer close(done)

		go func() {
			t := time.NewTimer(timeout)
			defer t.Stop()
			for {
				select {
				case <-done:
					return
				case <-activity:
					if !t.Stop() {
						select {
						case <-t.C:
						default:
						}
					}
					t.Reset(timeout)
				case <-t.C:
					logger.Warn("job stalled",
						slog.String("job_type", j.Type),
						slog.String("job_id", j.ID.String()),
						slog.String("queue", j.Queue),
						slog.Duration("stall_timeout", timeout),
						slog.Bool("killed", kill),
					)
					if onStall != nil {
						onStall(j)
					}
					if cancel != nil {
						cancel(ErrStalled)
					}
					return
				}
			}
		}()

		err := next(runCtx)
		// A handler that finished despite the cancellation keeps its
		// own result; only a cancellation-induced failure is rewritten.
		if err != nil && kill && errors.Is(context.Cause(runCtx), ErrStalled) {
			return fmt.Errorf("%w: no progress for %s", ErrStalled, timeout)
		}
		return err
	}
}
