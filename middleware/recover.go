package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/job"
)

// PanicError is the error a recovered handler panic is converted to.
// Callers can detect panics with errors.As to count them separately
// from ordinary failures.
type PanicError struct {
	JobType string
	Value   any
	Stack   string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in job %s: %v", e.JobType, e.Value)
}

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to errors and logged with a stack trace, so a single
// misbehaving handler cannot take down the worker pool.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("job handler panicked",
					slog.String("job_type", j.Type),
					slog.String("job_id", j.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = &PanicError{JobType: j.Type, Value: r, Stack: stack}
			}
		}()
		return next(ctx)
	}
}
