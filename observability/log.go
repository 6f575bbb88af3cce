package observability

import (
	"log/slog"

	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/event"
)

// LogObserver writes one structured log line per lifecycle event.
// Severity follows the event: failures and stalls warn, the rest
// inform, progress stays at debug.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver creates a LogObserver. A nil logger uses slog.Default().
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

// Observe implements Observer.
func (o *LogObserver) Observe(ev event.Event) {
	attrs := []any{
		slog.String("queue", ev.Queue),
		slog.String("job_id", ev.JobID.String()),
		slog.String("job_type", ev.JobType),
	}
	if ev.Attempt > 0 {
		attrs = append(attrs, slog.Int("attempt", ev.Attempt))
	}
	if ev.Err != "" {
		attrs = append(attrs, slog.String("error", ev.Err))
	}
	if ev.Elapsed > 0 {
		attrs = append(attrs, slog.Duration("elapsed", ev.Elapsed))
	}
	if !ev.RetryAt.IsZero() {
		attrs = append(attrs, slog.Time("retry_at", ev.RetryAt))
	}

	switch ev.Type {
	case event.TypeFailed, event.TypeStalled:
		o.logger.Warn("job "+string(ev.Type), attrs...)
	case event.TypeProgress:
		attrs = append(attrs, slog.Float64("progress", ev.Progress))
		o.logger.Debug("job progress", attrs...)
	default:
		o.logger.Info("job "+string(ev.Type), attrs...)
	}
}
