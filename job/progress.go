package job

import "context"

// ProgressFunc receives progress reports from inside a handler.
type ProgressFunc func(ctx context.Context, pct float64) error

type progressKey struct{}

// WithProgressReporter attaches a progress reporter to the context.
// The worker installs one before invoking the handler; reports are
// persisted best-effort and reset the stall watchdog.
func WithProgressReporter(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// ReporterFrom returns the progress reporter attached to ctx, if any.
// Middleware uses it to wrap the installed reporter.
func ReporterFrom(ctx context.Context) (ProgressFunc, bool) {
	fn, ok := ctx.Value(progressKey{}).(ProgressFunc)
	return fn, ok
}

// ReportProgress reports a handler's progress as a percentage in [0, 100].
// It is a no-op when no reporter is attached (e.g. in unit tests that call
// handlers directly). Progress is monotonic best-effort: no ordering is
// guaranteed across retries.
func ReportProgress(ctx context.Context, pct float64) error {
	fn, ok := ctx.Value(progressKey{}).(ProgressFunc)
	if !ok {
		return nil
	}
	return fn(ctx, pct)
}
