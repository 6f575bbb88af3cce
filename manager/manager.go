package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	kycq "github.com/AKSHAT-ARORA03/SahajKYC-sub001"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/broker"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/event"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/id"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/job"
	mw "github.com/AKSHAT-ARORA03/SahajKYC-sub001/middleware"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/queue"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/stats"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/worker"
)

// instrumentationName is the OTel scope for manager-built middleware.
const instrumentationName = "github.com/AKSHAT-ARORA03/SahajKYC-sub001"

// summaryLimit bounds the job summaries attached to a stats snapshot.
const summaryLimit = 10

// Manager is the top-level coordinator: it owns queue registration,
// job admission, worker pools, and periodic maintenance against one
// broker. Multiple Manager processes may share the same broker; claim
// atomicity is the broker's responsibility.
type Manager struct {
	cfg      kycq.Config
	broker   broker.Broker
	registry *queue.Registry
	recorder *stats.Recorder
	feed     *event.Feed
	logger   *slog.Logger

	// extra user middleware, appended after the built-in chain.
	mws []mw.Middleware

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu       sync.Mutex
	pools    map[string]*worker.Pool
	draining bool

	maintOnce sync.Once
	maint     *maintenance
}

// Option configures a Manager.
type Option func(*Manager)

// WithConfig sets the process configuration. Defaults to
// kycq.DefaultConfig().
func WithConfig(cfg kycq.Config) Option {
	return func(m *Manager) { m.cfg = cfg }
}

// WithLogger sets the manager's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMiddleware appends middleware to each queue's execution chain,
// inside the built-in recover/tracing/metrics/logging/stall stack.
func WithMiddleware(mws ...mw.Middleware) Option {
	return func(m *Manager) { m.mws = append(m.mws, mws...) }
}

// WithEventBuffer sets the lifecycle event feed's buffer size.
func WithEventBuffer(n int) Option {
	return func(m *Manager) { m.feed = event.NewFeed(n) }
}

// WithTracerProvider sets a custom OTel TracerProvider. When set, the
// tracing middleware uses this provider instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) { m.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider. When set, the
// metrics middleware uses this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(m *Manager) { m.meterProvider = mp }
}

// New creates a Manager on top of an already-connected broker. The
// broker's lifetime belongs to the caller: Shutdown drains workers but
// does not close it.
func New(b broker.Broker, opts ...Option) *Manager {
	m := &Manager{
		cfg:      kycq.DefaultConfig(),
		broker:   b,
		registry: queue.NewRegistry(),
		recorder: stats.NewRecorder(),
		feed:     event.NewFeed(0),
		logger:   slog.Default(),
		pools:    make(map[string]*worker.Pool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Events exposes the lifecycle event feed. Consume promptly: the feed
// is bounded and drops on overflow rather than blocking workers.
func (m *Manager) Events() <-chan event.Event { return m.feed.Events() }

// Feed returns the underlying event feed, for wiring observers.
func (m *Manager) Feed() *event.Feed { return m.feed }

// Stats returns the process-lifetime lifecycle counters.
func (m *Manager) Stats() *stats.Recorder { return m.recorder }

// RegisterQueue registers a queue configuration. Registration is
// idempotent; re-registering with different options returns
// kycq.ErrConfigurationConflict.
func (m *Manager) RegisterQueue(cfg queue.Config) error {
	return m.registry.Register(cfg)
}

// AddJob creates a job and enqueues it on the named queue. Options are
// merged over the queue's defaults; a delay schedules the job for
// future execution. The returned Job reflects the persisted state.
func (m *Manager) AddJob(ctx context.Context, queueName, jobType string, payload job.Payload, opts ...job.Option) (*job.Job, error) {
	m.mu.Lock()
	draining := m.draining
	m.mu.Unlock()
	if draining {
		return nil, kycq.ErrManagerShuttingDown
	}

	qcfg, ok := m.registry.Get(queueName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", kycq.ErrUnknownQueue, queueName)
	}

	var perJob job.Options
	for _, opt := range opts {
		opt(&perJob)
	}
	effective := perJob.Merge(qcfg.DefaultJobOptions.Merge(m.baseOptions()))

	now := time.Now().UTC()
	j := &job.Job{
		ID:              id.NewJobID(),
		Queue:           queueName,
		Type:            jobType,
		Payload:         payload,
		State:           job.StateWaiting,
		Priority:        effective.Priority,
		MaxAttempts:     effective.Attempts,
		Backoff:         effective.Backoff,
		RetainCompleted: effective.RetainCompleted,
		RetainFailed:    effective.RetainFailed,
		RunAt:           now,
	}
	j.CreatedAt = now
	j.UpdatedAt = now
	if effective.Delay > 0 {
		j.State = job.StateDelayed
		j.RunAt = now.Add(effective.Delay)
	}

	if err := m.broker.Enqueue(ctx, j); err != nil {
		return nil, err
	}

	m.feed.Publish(event.New(event.TypeEnqueued, j))
	return j, nil
}

// baseOptions is the process-wide fallback under queue defaults.
func (m *Manager) baseOptions() job.Options {
	base := job.DefaultOptions()
	if m.cfg.RetainCompleted > 0 {
		base.RetainCompleted = job.Retention{Count: m.cfg.RetainCompleted}
	}
	if m.cfg.RetainFailed > 0 {
		base.RetainFailed = job.Retention{Count: m.cfg.RetainFailed}
	}
	return base
}

// StartProcessing installs the handler for a queue and starts its
// worker pool. Each queue accepts exactly one processor per Manager;
// a second install returns kycq.ErrProcessorAlreadyRegistered.
// Concurrency <= 0 falls back to the queue's configured concurrency,
// then the process default.
//
// Before workers start claiming, the queue is swept once for jobs whose
// lease expired in a previous process life; the interrupted execution
// counts as one failed attempt.
func (m *Manager) StartProcessing(ctx context.Context, queueName string, h job.Handler, concurrency int) error {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return kycq.ErrManagerShuttingDown
	}
	m.mu.Unlock()

	if err := m.registry.InstallProcessor(queueName); err != nil {
		return err
	}

	qcfg, _ := m.registry.Get(queueName)
	if concurrency <= 0 {
		concurrency = qcfg.Concurrency
	}
	if concurrency <= 0 {
		concurrency = m.cfg.Concurrency
	}

	exec := worker.NewExecutor(m.broker, h, m.recorder, m.feed, m.logger, m.chain(queueName)...)
	pool := worker.NewPool(m.broker, m.registry, exec, queueName, concurrency, m.logger,
		worker.WithDequeueTimeout(m.cfg.DequeueTimeout),
		worker.WithLease(m.cfg.Lease()),
		worker.WithHeartbeatInterval(m.cfg.HeartbeatInterval),
	)

	if n, err := m.recoverStale(ctx, queueName); err != nil {
		m.logger.Warn("startup stale recovery failed",
			slog.String("queue", queueName),
			slog.String("error", err.Error()),
		)
	} else if n > 0 {
		m.logger.Info("recovered stale jobs at startup",
			slog.String("queue", queueName),
			slog.Int("count", n),
		)
	}

	if err := pool.Start(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.pools[queueName] = pool
	m.mu.Unlock()

	m.startMaintenance()
	return nil
}

// chain builds the per-queue middleware stack:
// recover → tracing → metrics → logging → stall → user middleware.
func (m *Manager) chain(queueName string) []mw.Middleware {
	tracingMw := mw.Tracing()
	if m.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(m.tracerProvider.Tracer(instrumentationName))
	}
	metricsMw := mw.Metrics()
	if m.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(m.meterProvider.Meter(instrumentationName))
	}

	onStall := func(j *job.Job) {
		m.recorder.JobStalled(queueName)
		m.feed.Publish(event.New(event.TypeStalled, j))
	}

	chain := []mw.Middleware{
		mw.Recover(m.logger),
		tracingMw,
		metricsMw,
		mw.Logging(m.logger),
		mw.Stall(m.logger, m.cfg.StallTimeout, m.cfg.KillOnStall, onStall),
	}
	return append(chain, m.mws...)
}

// PauseQueue sets the queue's broker-persisted pause flag. Active jobs
// finish; no new claims happen until ResumeQueue.
func (m *Manager) PauseQueue(ctx context.Context, queueName string) error {
	if _, ok := m.registry.Get(queueName); !ok {
		return fmt.Errorf("%w: %q", kycq.ErrUnknownQueue, queueName)
	}
	return m.broker.Pause(ctx, queueName)
}

// ResumeQueue clears the queue's pause flag.
func (m *Manager) ResumeQueue(ctx context.Context, queueName string) error {
	if _, ok := m.registry.Get(queueName); !ok {
		return fmt.Errorf("%w: %q", kycq.ErrUnknownQueue, queueName)
	}
	return m.broker.Resume(ctx, queueName)
}

// CleanQueue removes terminal jobs older than grace and returns how
// many were removed. Waiting, active, and delayed jobs are untouched.
func (m *Manager) CleanQueue(ctx context.Context, queueName string, grace time.Duration) (int, error) {
	if _, ok := m.registry.Get(queueName); !ok {
		return 0, fmt.Errorf("%w: %q", kycq.ErrUnknownQueue, queueName)
	}

	total := 0
	for _, state := range []job.State{job.StateCompleted, job.StateFailed} {
		n, err := m.broker.Clean(ctx, queueName, state, grace)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// GetStats returns the operator snapshot for one queue: broker counts,
// process totals, and recent job summaries.
func (m *Manager) GetStats(ctx context.Context, queueName string) (stats.QueueStats, error) {
	if _, ok := m.registry.Get(queueName); !ok {
		return stats.QueueStats{}, fmt.Errorf("%w: %q", kycq.ErrUnknownQueue, queueName)
	}

	counts, err := m.broker.Stats(ctx, queueName)
	if err != nil {
		return stats.QueueStats{}, err
	}
	paused, err := m.broker.Paused(ctx, queueName)
	if err != nil {
		return stats.QueueStats{}, err
	}

	qs := stats.QueueStats{
		Queue:  queueName,
		Paused: paused,
		Counts: counts,
		Totals: m.recorder.Totals(queueName),
	}

	for _, s := range []struct {
		state job.State
		dst   *[]job.Summary
	}{
		{job.StateWaiting, &qs.Waiting},
		{job.StateActive, &qs.Active},
		{job.StateFailed, &qs.Failed},
	} {
		jobs, listErr := m.broker.ListJobs(ctx, queueName, s.state, summaryLimit)
		if listErr != nil {
			return stats.QueueStats{}, listErr
		}
		for _, j := range jobs {
			*s.dst = append(*s.dst, j.Summarize())
		}
	}

	return qs, nil
}

// GetAllStats returns snapshots for every registered queue.
func (m *Manager) GetAllStats(ctx context.Context) (map[string]stats.QueueStats, error) {
	out := make(map[string]stats.QueueStats)
	for _, name := range m.registry.Names() {
		qs, err := m.GetStats(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = qs
	}
	return out, nil
}

// HealthCheck reports broker reachability and per-queue threshold
// breaches. An unreachable broker or any breached threshold marks the
// report unhealthy; the issue list says why.
func (m *Manager) HealthCheck(ctx context.Context) stats.Health {
	h := stats.Health{Healthy: true, Queues: make(map[string]stats.QueueStats)}

	if err := m.broker.Ping(ctx); err != nil {
		h.Healthy = false
		h.Issues = append(h.Issues, fmt.Sprintf("broker unreachable: %v", err))
		return h
	}

	for _, name := range m.registry.Names() {
		qs, err := m.GetStats(ctx, name)
		if err != nil {
			h.Healthy = false
			h.Issues = append(h.Issues, fmt.Sprintf("queue %q: stats unavailable: %v", name, err))
			continue
		}
		h.Queues[name] = qs

		if m.cfg.MaxFailedCount > 0 && qs.Counts.Failed > m.cfg.MaxFailedCount {
			h.Healthy = false
			h.Issues = append(h.Issues, fmt.Sprintf(
				"queue %q: %d failed jobs exceeds threshold %d",
				name, qs.Counts.Failed, m.cfg.MaxFailedCount))
		}
		backlog := qs.Counts.Waiting + qs.Counts.Paused
		if m.cfg.MaxWaitingCount > 0 && backlog > m.cfg.MaxWaitingCount {
			h.Healthy = false
			h.Issues = append(h.Issues, fmt.Sprintf(
				"queue %q: backlog %d exceeds threshold %d",
				name, backlog, m.cfg.MaxWaitingCount))
		}
	}

	return h
}

// recoverStale sweeps one queue for active jobs whose lease expired and
// drives each through the ack state machine: the interrupted execution
// counts as a failed attempt, so recovery retries or fails terminally
// exactly like a handler error would. A job acked by its (still alive)
// worker between the scan and the recovery ack keeps that outcome.
func (m *Manager) recoverStale(ctx context.Context, queueName string) (int, error) {
	now := time.Now().UTC()
	stale, err := m.broker.ListStale(ctx, queueName, now)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, j := range stale {
		out := broker.Outcome{
			Status: broker.StatusFailed,
			Err:    "lease expired: worker presumed dead",
		}
		if j.AttemptsMade < j.MaxAttempts {
			out.Status = broker.StatusRetry
			out.RetryAt = now.Add(j.Backoff.Delay(j.AttemptsMade))
		}

		acked, ackErr := m.broker.Ack(ctx, queueName, j.ID, out)
		if ackErr != nil {
			m.logger.Error("stale recovery ack failed",
				slog.String("job_id", j.ID.String()),
				slog.String("queue", queueName),
				slog.String("error", ackErr.Error()),
			)
			continue
		}
		if !acked {
			continue
		}

		recovered++
		m.recorder.JobRecovered(queueName)
		ev := event.New(event.TypeRecovered, j)
		ev.Err = out.Err
		m.feed.Publish(ev)

		m.logger.Warn("recovered stale job",
			slog.String("job_id", j.ID.String()),
			slog.String("queue", queueName),
			slog.Int("attempts_made", j.AttemptsMade),
			slog.String("disposition", string(out.Status)),
		)
	}
	return recovered, nil
}

// Shutdown drains the manager: admission and processor installs are
// refused, worker pools drain until ctx's deadline (or the configured
// drain timeout when ctx has none), maintenance stops, and the event
// feed closes. The broker stays open for the caller.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return nil
	}
	m.draining = true
	pools := make([]*worker.Pool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.mu.Unlock()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.DrainTimeout)
		defer cancel()
	}

	m.logger.Info("manager shutting down", slog.Int("pools", len(pools)))

	var g errgroup.Group
	for _, p := range pools {
		g.Go(func() error { return p.Stop(ctx) })
	}
	err := g.Wait()

	if m.maint != nil {
		m.maint.stop()
	}
	m.feed.Close()

	if err != nil {
		return fmt.Errorf("manager: shutdown: %w", err)
	}
	m.logger.Info("manager shutdown complete")
	return nil
}
