package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	kycq "github.com/AKSHAT-ARORA03/SahajKYC-sub001"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/backoff"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/broker"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/id"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/queue"
)

// rateLimitPause is how long a loop backs off when the queue's rate
// limiter rejects a claim.
const rateLimitPause = 100 * time.Millisecond

// Pool runs a set of concurrent loops claiming jobs from one queue and
// executing them through the Executor. Each registered queue gets its
// own Pool.
type Pool struct {
	broker   broker.Broker
	registry *queue.Registry
	executor *Executor
	logger   *slog.Logger

	queue       string
	concurrency int
	workerID    id.WorkerID

	dequeueTimeout    time.Duration
	lease             time.Duration
	heartbeatInterval time.Duration
	retry             backoff.Strategy

	mu      sync.Mutex
	running bool

	// claimCancel unblocks DequeueBlocking; heartbeats outlive it so
	// draining jobs keep their leases.
	claimCancel context.CancelFunc
	hbCancel    context.CancelFunc
	claimWG     sync.WaitGroup
	hbWG        sync.WaitGroup

	activeMu sync.Mutex
	active   map[string]context.CancelFunc
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithDequeueTimeout sets how long each claim attempt blocks before
// re-checking for shutdown.
func WithDequeueTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.dequeueTimeout = d }
}

// WithLease sets the claim lease duration. Jobs whose lease expires
// without renewal are recoverable by any process.
func WithLease(d time.Duration) PoolOption {
	return func(p *Pool) { p.lease = d }
}

// WithHeartbeatInterval sets how often leases on active jobs are
// renewed. A zero value disables heartbeats.
func WithHeartbeatInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.heartbeatInterval = d }
}

// WithRetryStrategy sets the backoff applied between consecutive broker
// errors in the claim loop. Defaults to exponential with jitter so
// loops across processes do not hammer a recovering broker in lockstep.
func WithRetryStrategy(s backoff.Strategy) PoolOption {
	return func(p *Pool) { p.retry = s }
}

// NewPool creates a worker pool for one queue.
func NewPool(
	b broker.Broker,
	registry *queue.Registry,
	executor *Executor,
	queueName string,
	concurrency int,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	if concurrency <= 0 {
		concurrency = 1
	}
	p := &Pool{
		broker:            b,
		registry:          registry,
		executor:          executor,
		logger:            logger,
		queue:             queueName,
		concurrency:       concurrency,
		workerID:          id.NewWorkerID(),
		dequeueTimeout:    5 * time.Second,
		lease:             time.Minute,
		heartbeatInterval: 10 * time.Second,
		retry:             backoff.NewExponentialWithJitter(250*time.Millisecond, 30*time.Second),
		active:            make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Queue returns the queue this pool claims from.
func (p *Pool) Queue() string { return p.queue }

// Start launches the claim loops and the heartbeat loop. It returns
// immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	claimCtx, claimCancel := context.WithCancel(context.Background())
	hbCtx, hbCancel := context.WithCancel(context.Background())
	p.claimCancel = claimCancel
	p.hbCancel = hbCancel

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.String("queue", p.queue),
		slog.Int("concurrency", p.concurrency),
	)

	for range p.concurrency {
		p.claimWG.Add(1)
		go p.claimLoop(claimCtx)
	}

	if p.heartbeatInterval > 0 {
		p.hbWG.Add(1)
		go p.heartbeatLoop(hbCtx)
	}

	return nil
}

// Stop drains the pool: claim loops stop taking new jobs, active jobs
// run to completion, and when the context's deadline passes their
// contexts are cancelled. Heartbeats continue until the drain ends so
// in-flight jobs keep their leases.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	claimCancel, hbCancel := p.claimCancel, p.hbCancel
	p.mu.Unlock()

	p.logger.Info("worker pool stopping",
		slog.String("worker_id", p.workerID.String()),
		slog.String("queue", p.queue),
	)

	claimCancel()

	done := make(chan struct{})
	go func() {
		p.claimWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool drained", slog.String("queue", p.queue))
	case <-ctx.Done():
		p.logger.Warn("drain timed out, cancelling active jobs",
			slog.String("queue", p.queue),
		)
		p.cancelActive()
		<-done
	}

	hbCancel()
	p.hbWG.Wait()
	return nil
}

// claimLoop is run by each worker goroutine.
func (p *Pool) claimLoop(ctx context.Context) {
	defer p.claimWG.Done()

	brokerErrs := 0
	for {
		if ctx.Err() != nil {
			return
		}

		if !p.registry.Allow(p.queue) {
			p.pause(ctx, rateLimitPause)
			continue
		}

		j, err := p.broker.DequeueBlocking(ctx, p.queue, p.dequeueTimeout, p.lease)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, kycq.ErrBrokerClosed) {
				return
			}
			brokerErrs++
			delay := p.retry.Delay(brokerErrs)
			p.logger.Error("dequeue error",
				slog.String("queue", p.queue),
				slog.Int("consecutive_errors", brokerErrs),
				slog.Duration("retry_in", delay),
				slog.String("error", err.Error()),
			)
			p.pause(ctx, delay)
			continue
		}
		brokerErrs = 0

		if j == nil {
			continue
		}

		// Execution runs on its own context so a claim shutdown does
		// not abort a job mid-flight; drain cancels it explicitly.
		jobCtx, cancel := context.WithCancel(context.Background())
		p.track(j.ID, cancel)

		if execErr := p.executor.Execute(jobCtx, j); execErr != nil {
			p.logger.Error("job execution machinery error",
				slog.String("job_id", j.ID.String()),
				slog.String("queue", p.queue),
				slog.String("error", execErr.Error()),
			)
		}

		p.untrack(j.ID)
		cancel()
	}
}

// heartbeatLoop renews leases on all active jobs.
func (p *Pool) heartbeatLoop(ctx context.Context) {
	defer p.hbWG.Done()

	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.renewLeases(ctx)
		}
	}
}

func (p *Pool) renewLeases(ctx context.Context) {
	p.activeMu.Lock()
	ids := make([]string, 0, len(p.active))
	for jobID := range p.active {
		ids = append(ids, jobID)
	}
	p.activeMu.Unlock()

	until := time.Now().UTC().Add(p.lease)
	for _, raw := range ids {
		jobID, err := id.ParseJobID(raw)
		if err != nil {
			p.logger.Warn("heartbeat: invalid job id", slog.String("job_id", raw))
			continue
		}
		if err := p.broker.ExtendLease(ctx, p.queue, jobID, until); err != nil {
			p.logger.Warn("lease renewal failed",
				slog.String("job_id", raw),
				slog.String("queue", p.queue),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (p *Pool) pause(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func (p *Pool) track(jobID id.JobID, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.active[jobID.String()] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrack(jobID id.JobID) {
	p.activeMu.Lock()
	delete(p.active, jobID.String())
	p.activeMu.Unlock()
}

func (p *Pool) cancelActive() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for jobID, cancel := range p.active {
		p.logger.Warn("cancelling active job", slog.String("job_id", jobID))
		cancel()
	}
}
