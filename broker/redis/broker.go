// Package redis implements broker.Broker on Redis. Each queue is a set of
// sorted sets — waiting (priority+FIFO ordered), delayed (time-to-ready
// ordered), active (lease-expiry ordered), and bounded completed/failed
// retention sets — with jobs stored as Hashes and payloads msgpack-encoded.
// Claim, ack, and promotion are Lua scripts so that no two workers can
// ever hold the same job.
//
// Usage:
//
//	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
//	b := redisbroker.New(client)
//	if err := b.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	kycq "github.com/AKSHAT-ARORA03/SahajKYC-sub001"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/broker"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/id"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/job"
)

// Compile-time interface check.
var _ broker.Broker = (*Broker)(nil)

// Option configures the Broker.
type Option func(*Broker)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) { b.logger = l }
}

// WithPollInterval sets how often a blocked dequeue re-polls the waiting
// set. Default 250ms.
func WithPollInterval(d time.Duration) Option {
	return func(b *Broker) { b.pollInterval = d }
}

// Broker implements broker.Broker backed by Redis.
type Broker struct {
	client       goredis.Cmdable
	closer       func() error
	logger       *slog.Logger
	pollInterval time.Duration

	// workerID identifies this process in the active set, recorded with
	// every claim for stale-lease attribution.
	workerID id.WorkerID
}

// New creates a Redis-backed broker. The caller owns the Redis client
// lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Broker {
	b := &Broker{
		client:       client,
		logger:       slog.Default(),
		pollInterval: 250 * time.Millisecond,
		workerID:     id.NewWorkerID(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Dial connects to Redis at addr and returns a broker that owns the
// client: Close tears the connection down.
func Dial(ctx context.Context, addr, password string, db int, opts ...Option) (*Broker, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: dial %s: %v", kycq.ErrBrokerUnavailable, addr, err)
	}

	b := New(client, opts...)
	b.closer = client.Close
	return b, nil
}

// Client returns the underlying Redis client.
func (b *Broker) Client() goredis.Cmdable { return b.client }

// WorkerID returns the identity this broker stamps on claimed jobs.
func (b *Broker) WorkerID() id.WorkerID { return b.workerID }

// Ping verifies the Redis connection is alive.
func (b *Broker) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", kycq.ErrBrokerUnavailable, err)
	}
	return nil
}

// Close releases the connection when this broker owns it.
func (b *Broker) Close() error {
	if b.closer != nil {
		return b.closer()
	}
	return nil
}

// Enqueue stores the job as a Hash and adds it to the queue's waiting
// (or delayed) sorted set. The FIFO sequence comes from an atomic
// per-queue counter.
func (b *Broker) Enqueue(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	exists, err := b.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: enqueue check exists: %v", kycq.ErrBrokerUnavailable, err)
	}
	if exists > 0 {
		return kycq.ErrJobAlreadyExists
	}

	seq, err := b.client.Incr(ctx, seqKey(j.Queue)).Result()
	if err != nil {
		return fmt.Errorf("%w: enqueue seq: %v", kycq.ErrBrokerUnavailable, err)
	}
	j.Seq = seq

	now := time.Now().UTC()
	delayed := j.RunAt.After(now)
	if delayed {
		j.State = job.StateDelayed
	} else {
		j.State = job.StateWaiting
	}

	fields, err := jobToMap(j)
	if err != nil {
		return fmt.Errorf("kycq/redis: enqueue encode: %w", err)
	}

	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if delayed {
		pipe.ZAdd(ctx, delayedKey(j.Queue), goredis.Z{Score: float64(j.RunAt.UnixMilli()), Member: jID})
	} else {
		pipe.ZAdd(ctx, waitingKey(j.Queue), goredis.Z{Score: waitingScore(j.Priority, seq), Member: jID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: enqueue job: %v", kycq.ErrBrokerUnavailable, err)
	}
	return nil
}

// DequeueBlocking polls the claim script until a job is won or timeout
// elapses. Returns (nil, nil) when nothing was available. The claim —
// pop from waiting, mark active, count the attempt, take the lease — is
// a single Lua script, so at most one worker ever holds a given job.
func (b *Broker) DequeueBlocking(ctx context.Context, queue string, timeout, lease time.Duration) (*job.Job, error) {
	deadline := time.Now().Add(timeout)
	for {
		j, err := b.tryClaim(ctx, queue, lease)
		if err != nil || j != nil {
			return j, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		wait := b.pollInterval
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (b *Broker) tryClaim(ctx context.Context, queue string, lease time.Duration) (*job.Job, error) {
	now := time.Now().UTC()
	expiry := now.Add(lease)

	res, err := claimScript.Run(ctx, b.client,
		[]string{waitingKey(queue), activeKey(queue), pausedKey(queue)},
		jobKeyPrefix,
		now.Format(time.RFC3339Nano),
		expiry.Format(time.RFC3339Nano),
		expiry.UnixMilli(),
		b.workerID.String(),
	).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("kycq/redis: claim: %w", err)
	}

	jID, ok := res.(string)
	if !ok || jID == "" {
		return nil, nil
	}
	return b.getJobByKey(ctx, jobKey(jID))
}

// Ack atomically transitions an active job per the outcome. The script
// removes the job from the active set first; a miss there means the job
// already reached a terminal state and the ack is a no-op.
func (b *Broker) Ack(ctx context.Context, queue string, jobID id.JobID, out broker.Outcome) (bool, error) {
	now := time.Now().UTC()
	jID := jobID.String()

	retain, err := b.retentionFor(ctx, jID, out.Status)
	if err != nil {
		return false, err
	}

	res, err := ackScript.Run(ctx, b.client,
		[]string{activeKey(queue), completedKey(queue), failedKey(queue), delayedKey(queue)},
		jobKeyPrefix,
		jID,
		string(out.Status),
		now.Format(time.RFC3339Nano),
		now.UnixMilli(),
		out.Err,
		out.RetryAt.UTC().Format(time.RFC3339Nano),
		out.RetryAt.UnixMilli(),
		retain,
	).Result()
	if err != nil {
		return false, fmt.Errorf("kycq/redis: ack: %w", err)
	}

	applied, _ := res.(int64)
	return applied == 1, nil
}

// retentionFor reads the job's retention bound for the terminal state
// the ack is about to apply. Missing hashes fall back to unbounded.
func (b *Broker) retentionFor(ctx context.Context, jID string, status broker.Status) (int64, error) {
	var field string
	switch status {
	case broker.StatusCompleted:
		field = "retain_completed_count"
	case broker.StatusFailed:
		field = "retain_failed_count"
	default:
		return 0, nil
	}

	v, err := b.client.HGet(ctx, jobKey(jID), field).Int64()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("kycq/redis: ack retention: %w", err)
	}
	return v, nil
}

// ExtendLease renews the lease on an active job.
func (b *Broker) ExtendLease(ctx context.Context, queue string, jobID id.JobID, until time.Time) error {
	until = until.UTC()
	res, err := extendLeaseScript.Run(ctx, b.client,
		[]string{activeKey(queue)},
		jobKeyPrefix,
		jobID.String(),
		until.UnixMilli(),
		until.Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return fmt.Errorf("kycq/redis: extend lease: %w", err)
	}
	if applied, _ := res.(int64); applied == 0 {
		return kycq.ErrJobNotFound
	}
	return nil
}

// UpdateProgress records a progress report on an active job. Best-effort:
// a job that is no longer active is silently skipped.
func (b *Broker) UpdateProgress(ctx context.Context, queue string, jobID id.JobID, pct float64) error {
	jID := jobID.String()
	score, err := b.client.ZScore(ctx, activeKey(queue), jID).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		return fmt.Errorf("kycq/redis: progress check: %w", err)
	}
	_ = score

	if err := b.client.HSet(ctx, jobKey(jID),
		"progress", fmt.Sprintf("%g", pct),
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Err(); err != nil {
		return fmt.Errorf("kycq/redis: progress: %w", err)
	}
	return nil
}

// PromoteDue moves delayed jobs whose RunAt has passed into waiting,
// restoring their priority+FIFO position.
func (b *Broker) PromoteDue(ctx context.Context, queue string, now time.Time) (int, error) {
	res, err := promoteScript.Run(ctx, b.client,
		[]string{delayedKey(queue), waitingKey(queue)},
		jobKeyPrefix,
		now.UnixMilli(),
		promoteBatch,
		now.UTC().Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return 0, fmt.Errorf("kycq/redis: promote: %w", err)
	}
	n, _ := res.(int64)
	return int(n), nil
}

// ListStale returns active jobs whose lease expired before now. The jobs
// stay in the active set; recovery flows through Ack so the retry state
// machine is applied exactly once.
func (b *Broker) ListStale(ctx context.Context, queue string, now time.Time) ([]*job.Job, error) {
	ids, err := b.client.ZRangeByScore(ctx, activeKey(queue), &goredis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("kycq/redis: list stale: %w", err)
	}
	return b.getJobs(ctx, ids)
}

// Pause sets the queue's pause flag; the claim script refuses to return
// jobs while it is set.
func (b *Broker) Pause(ctx context.Context, queue string) error {
	if err := b.client.Set(ctx, pausedKey(queue), "1", 0).Err(); err != nil {
		return fmt.Errorf("kycq/redis: pause: %w", err)
	}
	return nil
}

// Resume clears the queue's pause flag.
func (b *Broker) Resume(ctx context.Context, queue string) error {
	if err := b.client.Del(ctx, pausedKey(queue)).Err(); err != nil {
		return fmt.Errorf("kycq/redis: resume: %w", err)
	}
	return nil
}

// Paused reports whether the queue's pause flag is set.
func (b *Broker) Paused(ctx context.Context, queue string) (bool, error) {
	n, err := b.client.Exists(ctx, pausedKey(queue)).Result()
	if err != nil {
		return false, fmt.Errorf("kycq/redis: paused: %w", err)
	}
	return n > 0, nil
}

// Stats returns current per-state counts from the sorted-set
// cardinalities. A paused queue's waiting backlog is reported under
// Paused.
func (b *Broker) Stats(ctx context.Context, queue string) (job.Counts, error) {
	pipe := b.client.Pipeline()
	waiting := pipe.ZCard(ctx, waitingKey(queue))
	active := pipe.ZCard(ctx, activeKey(queue))
	delayed := pipe.ZCard(ctx, delayedKey(queue))
	completed := pipe.ZCard(ctx, completedKey(queue))
	failed := pipe.ZCard(ctx, failedKey(queue))
	paused := pipe.Exists(ctx, pausedKey(queue))
	if _, err := pipe.Exec(ctx); err != nil {
		return job.Counts{}, fmt.Errorf("%w: stats: %v", kycq.ErrBrokerUnavailable, err)
	}

	c := job.Counts{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Delayed:   delayed.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}
	if paused.Val() > 0 {
		c.Paused = c.Waiting
		c.Waiting = 0
	}
	return c, nil
}

// ListJobs returns up to limit jobs in the given state: waiting/delayed
// in dequeue/promotion order, terminal newest first, active
// soonest-to-expire first.
func (b *Broker) ListJobs(ctx context.Context, queue string, state job.State, limit int) ([]*job.Job, error) {
	if limit <= 0 {
		limit = 10
	}
	stop := int64(limit - 1)

	var (
		ids []string
		err error
	)
	switch state {
	case job.StateWaiting, job.StatePaused:
		ids, err = b.client.ZRange(ctx, waitingKey(queue), 0, stop).Result()
	case job.StateDelayed:
		ids, err = b.client.ZRange(ctx, delayedKey(queue), 0, stop).Result()
	case job.StateActive:
		ids, err = b.client.ZRange(ctx, activeKey(queue), 0, stop).Result()
	case job.StateCompleted:
		ids, err = b.client.ZRevRange(ctx, completedKey(queue), 0, stop).Result()
	case job.StateFailed:
		ids, err = b.client.ZRevRange(ctx, failedKey(queue), 0, stop).Result()
	default:
		return nil, kycq.ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("kycq/redis: list jobs: %w", err)
	}
	return b.getJobs(ctx, ids)
}

// GetJob retrieves a job by ID.
func (b *Broker) GetJob(ctx context.Context, queue string, jobID id.JobID) (*job.Job, error) {
	j, err := b.getJobByKey(ctx, jobKey(jobID.String()))
	if err != nil {
		return nil, err
	}
	if j.Queue != queue {
		return nil, kycq.ErrJobNotFound
	}
	return j, nil
}

// Clean removes terminal jobs that finished more than grace ago,
// dropping both the retention set entries and the job hashes.
func (b *Broker) Clean(ctx context.Context, queue string, state job.State, grace time.Duration) (int, error) {
	var key string
	switch state {
	case job.StateCompleted:
		key = completedKey(queue)
	case job.StateFailed:
		key = failedKey(queue)
	default:
		return 0, kycq.ErrInvalidState
	}

	cutoff := time.Now().UTC().Add(-grace).UnixMilli()
	res, err := cleanScript.Run(ctx, b.client, []string{key}, jobKeyPrefix, cutoff).Result()
	if err != nil {
		return 0, fmt.Errorf("kycq/redis: clean: %w", err)
	}
	n, _ := res.(int64)
	return int(n), nil
}

// ── helpers ──

func (b *Broker) getJobs(ctx context.Context, ids []string) ([]*job.Job, error) {
	jobs := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		j, err := b.getJobByKey(ctx, jobKey(jID))
		if err != nil {
			if errors.Is(err, kycq.ErrJobNotFound) {
				continue // trimmed between range and fetch
			}
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (b *Broker) getJobByKey(ctx context.Context, key string) (*job.Job, error) {
	vals, err := b.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("kycq/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, kycq.ErrJobNotFound
	}
	return mapToJob(vals)
}
