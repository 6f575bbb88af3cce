// Package observability provides ready-made consumers for the manager's
// lifecycle event feed: a structured-log observer and an OpenTelemetry
// counter observer.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability

import (
	"context"

	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/event"
)

// Observer receives lifecycle events from the feed.
type Observer interface {
	Observe(ev event.Event)
}

// Consume drains the feed into the observers until the feed closes or
// ctx is cancelled. Run it in its own goroutine:
//
//	go observability.Consume(ctx, m.Feed(),
//	    observability.NewLogObserver(logger),
//	    observability.NewMetricsObserver(),
//	)
func Consume(ctx context.Context, feed *event.Feed, observers ...Observer) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-feed.Events():
			if !ok {
				return
			}
			for _, o := range observers {
				o.Observe(ev)
			}
		}
	}
}
