package manager_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	kycq "github.com/AKSHAT-ARORA03/SahajKYC-sub001"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/backoff"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/broker/memory"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/job"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/manager"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/queue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig shrinks every interval so suites run in milliseconds.
func testConfig() kycq.Config {
	cfg := kycq.DefaultConfig()
	cfg.Concurrency = 2
	cfg.DequeueTimeout = 50 * time.Millisecond
	cfg.PromoteInterval = 20 * time.Millisecond
	cfg.StallTimeout = 5 * time.Second
	cfg.HeartbeatInterval = 50 * time.Millisecond
	cfg.DrainTimeout = 2 * time.Second
	return cfg
}

func newTestManager(t *testing.T, cfg kycq.Config) (*manager.Manager, *memory.Broker) {
	t.Helper()
	b := memory.New()
	t.Cleanup(func() { b.Close() })

	m := manager.New(b, manager.WithConfig(cfg), manager.WithLogger(testLogger()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m, b
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestAddJobUnknownQueue(t *testing.T) {
	m, _ := newTestManager(t, testConfig())

	_, err := m.AddJob(context.Background(), "nope", "verify-document", nil)
	if !errors.Is(err, kycq.ErrUnknownQueue) {
		t.Fatalf("expected ErrUnknownQueue, got %v", err)
	}
}

func TestAddJobMergesQueueDefaults(t *testing.T) {
	m, _ := newTestManager(t, testConfig())

	if err := m.RegisterQueue(queue.Config{
		Name: "kyc",
		DefaultJobOptions: job.Options{
			Attempts: 7,
			Backoff:  backoff.Policy{Kind: backoff.KindFixed, BaseDelay: time.Second},
		},
	}); err != nil {
		t.Fatalf("register queue: %v", err)
	}

	// Queue default wins over the process fallback; per-job wins over both.
	j, err := m.AddJob(context.Background(), "kyc", "verify-document",
		job.Payload{"document_id": "doc-1"},
		job.WithPriority(2),
	)
	if err != nil {
		t.Fatalf("add job: %v", err)
	}
	if j.MaxAttempts != 7 {
		t.Errorf("MaxAttempts = %d, want 7 (queue default)", j.MaxAttempts)
	}
	if j.Backoff.BaseDelay != time.Second {
		t.Errorf("Backoff.BaseDelay = %v, want 1s", j.Backoff.BaseDelay)
	}
	if j.Priority != 2 {
		t.Errorf("Priority = %d, want 2", j.Priority)
	}
	if j.State != job.StateWaiting {
		t.Errorf("State = %s, want waiting", j.State)
	}

	j2, err := m.AddJob(context.Background(), "kyc", "verify-document", nil,
		job.WithAttempts(1),
	)
	if err != nil {
		t.Fatalf("add job: %v", err)
	}
	if j2.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1 (per-job override)", j2.MaxAttempts)
	}
}

func TestRegisterQueueConflict(t *testing.T) {
	m, _ := newTestManager(t, testConfig())

	cfg := queue.Config{Name: "kyc", Concurrency: 3}
	if err := m.RegisterQueue(cfg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.RegisterQueue(cfg); err != nil {
		t.Fatalf("idempotent re-register: %v", err)
	}
	cfg.Concurrency = 9
	if err := m.RegisterQueue(cfg); !errors.Is(err, kycq.ErrConfigurationConflict) {
		t.Fatalf("expected ErrConfigurationConflict, got %v", err)
	}
}

func TestProcessingRetriesUntilSuccess(t *testing.T) {
	m, b := newTestManager(t, testConfig())

	if err := m.RegisterQueue(queue.Config{Name: "kyc"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	var calls atomic.Int32
	mux := job.NewMux()
	mux.HandleFunc("verify-document", func(_ context.Context, _ *job.Job) error {
		if calls.Add(1) < 3 {
			return errors.New("upstream flake")
		}
		return nil
	})

	if err := m.StartProcessing(context.Background(), "kyc", mux, 2); err != nil {
		t.Fatalf("start processing: %v", err)
	}

	j, err := m.AddJob(context.Background(), "kyc", "verify-document", nil,
		job.WithAttempts(3),
		job.WithBackoff(backoff.Policy{Kind: backoff.KindFixed, BaseDelay: 10 * time.Millisecond}),
	)
	if err != nil {
		t.Fatalf("add job: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		got, getErr := b.GetJob(context.Background(), "kyc", j.ID)
		return getErr == nil && got.State == job.StateCompleted
	}, "job never completed")

	final, err := b.GetJob(context.Background(), "kyc", j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if final.AttemptsMade != 3 {
		t.Errorf("AttemptsMade = %d, want 3", final.AttemptsMade)
	}
	if got := m.Stats().Totals("kyc"); got.Completed != 1 || got.Retried != 2 {
		t.Errorf("totals = %+v, want 1 completed / 2 retried", got)
	}
}

func TestProcessingFailsAfterMaxAttempts(t *testing.T) {
	m, b := newTestManager(t, testConfig())

	if err := m.RegisterQueue(queue.Config{Name: "kyc"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	var calls atomic.Int32
	mux := job.NewMux()
	mux.HandleFunc("verify-document", func(_ context.Context, _ *job.Job) error {
		calls.Add(1)
		return errors.New("document corrupted")
	})

	if err := m.StartProcessing(context.Background(), "kyc", mux, 1); err != nil {
		t.Fatalf("start processing: %v", err)
	}

	j, err := m.AddJob(context.Background(), "kyc", "verify-document", nil,
		job.WithAttempts(2),
		job.WithBackoff(backoff.Policy{Kind: backoff.KindFixed, BaseDelay: 10 * time.Millisecond}),
	)
	if err != nil {
		t.Fatalf("add job: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		got, getErr := b.GetJob(context.Background(), "kyc", j.ID)
		return getErr == nil && got.State == job.StateFailed
	}, "job never reached failed")

	// Give any stray extra execution a moment to show up.
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != 2 {
		t.Errorf("handler ran %d times, want exactly 2", got)
	}

	final, _ := b.GetJob(context.Background(), "kyc", j.ID)
	if final.LastError != "document corrupted" {
		t.Errorf("LastError = %q", final.LastError)
	}
}

func TestDelayedJobPromoted(t *testing.T) {
	m, b := newTestManager(t, testConfig())

	if err := m.RegisterQueue(queue.Config{Name: "kyc"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	var done atomic.Bool
	mux := job.NewMux()
	mux.HandleFunc("verify-document", func(_ context.Context, _ *job.Job) error {
		done.Store(true)
		return nil
	})
	if err := m.StartProcessing(context.Background(), "kyc", mux, 1); err != nil {
		t.Fatalf("start processing: %v", err)
	}

	j, err := m.AddJob(context.Background(), "kyc", "verify-document", nil,
		job.WithDelay(80*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("add job: %v", err)
	}
	if j.State != job.StateDelayed {
		t.Fatalf("State = %s, want delayed", j.State)
	}

	// Not visible yet.
	time.Sleep(30 * time.Millisecond)
	if done.Load() {
		t.Fatal("delayed job executed before its delay elapsed")
	}
	counts, err := b.Stats(context.Background(), "kyc")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if counts.Delayed != 1 {
		t.Fatalf("delayed count = %d, want 1", counts.Delayed)
	}

	// The promotion pass picks it up after the delay.
	waitFor(t, 5*time.Second, func() bool { return done.Load() },
		"delayed job never executed")
}

func TestPauseAndResume(t *testing.T) {
	m, b := newTestManager(t, testConfig())

	if err := m.RegisterQueue(queue.Config{Name: "kyc"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	var processed atomic.Int32
	mux := job.NewMux()
	mux.HandleFunc("verify-document", func(_ context.Context, _ *job.Job) error {
		processed.Add(1)
		return nil
	})
	if err := m.StartProcessing(context.Background(), "kyc", mux, 2); err != nil {
		t.Fatalf("start processing: %v", err)
	}

	if err := m.PauseQueue(context.Background(), "kyc"); err != nil {
		t.Fatalf("pause: %v", err)
	}

	if _, err := m.AddJob(context.Background(), "kyc", "verify-document", nil); err != nil {
		t.Fatalf("add job: %v", err)
	}

	time.Sleep(150 * time.Millisecond)
	if got := processed.Load(); got != 0 {
		t.Fatalf("paused queue processed %d jobs", got)
	}

	// Backlog reports under the paused count while held.
	counts, err := b.Stats(context.Background(), "kyc")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if counts.Paused != 1 || counts.Waiting != 0 {
		t.Fatalf("counts = %+v, want backlog under Paused", counts)
	}

	if err := m.ResumeQueue(context.Background(), "kyc"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return processed.Load() == 1 },
		"job never processed after resume")
}

func TestStaleJobRecoveredAtStartup(t *testing.T) {
	m, b := newTestManager(t, testConfig())

	if err := m.RegisterQueue(queue.Config{Name: "kyc"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Simulate a previous process life: enqueue, claim with a short
	// lease, then never ack.
	j, err := m.AddJob(context.Background(), "kyc", "verify-document", nil,
		job.WithAttempts(3),
		job.WithBackoff(backoff.Policy{Kind: backoff.KindFixed, BaseDelay: 10 * time.Millisecond}),
	)
	if err != nil {
		t.Fatalf("add job: %v", err)
	}
	claimed, err := b.DequeueBlocking(context.Background(), "kyc", time.Second, 20*time.Millisecond)
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v %v", claimed, err)
	}
	time.Sleep(40 * time.Millisecond) // lease expires

	var done atomic.Bool
	mux := job.NewMux()
	mux.HandleFunc("verify-document", func(_ context.Context, _ *job.Job) error {
		done.Store(true)
		return nil
	})
	if err := m.StartProcessing(context.Background(), "kyc", mux, 1); err != nil {
		t.Fatalf("start processing: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool { return done.Load() },
		"recovered job never re-executed")

	final, err := b.GetJob(context.Background(), "kyc", j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if final.State != job.StateCompleted {
		t.Errorf("state = %s, want completed", final.State)
	}
	// The interrupted run counted as attempt 1, the recovery run as 2.
	if final.AttemptsMade != 2 {
		t.Errorf("AttemptsMade = %d, want 2", final.AttemptsMade)
	}
	if got := m.Stats().Totals("kyc").Recovered; got != 1 {
		t.Errorf("recovered total = %d, want 1", got)
	}
}

func TestStartProcessingTwice(t *testing.T) {
	m, _ := newTestManager(t, testConfig())

	if err := m.RegisterQueue(queue.Config{Name: "kyc"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	mux := job.NewMux()

	if err := m.StartProcessing(context.Background(), "kyc", mux, 1); err != nil {
		t.Fatalf("first start: %v", err)
	}
	err := m.StartProcessing(context.Background(), "kyc", mux, 1)
	if !errors.Is(err, kycq.ErrProcessorAlreadyRegistered) {
		t.Fatalf("expected ErrProcessorAlreadyRegistered, got %v", err)
	}

	if err := m.StartProcessing(context.Background(), "unknown", mux, 1); !errors.Is(err, kycq.ErrUnknownQueue) {
		t.Fatalf("expected ErrUnknownQueue, got %v", err)
	}
}

func TestShutdownRefusesNewWork(t *testing.T) {
	m, _ := newTestManager(t, testConfig())

	if err := m.RegisterQueue(queue.Config{Name: "kyc"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.StartProcessing(context.Background(), "kyc", job.NewMux(), 1); err != nil {
		t.Fatalf("start processing: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if _, err := m.AddJob(context.Background(), "kyc", "verify-document", nil); !errors.Is(err, kycq.ErrManagerShuttingDown) {
		t.Errorf("AddJob after shutdown: %v, want ErrManagerShuttingDown", err)
	}
	if err := m.StartProcessing(context.Background(), "kyc", job.NewMux(), 1); !errors.Is(err, kycq.ErrManagerShuttingDown) {
		t.Errorf("StartProcessing after shutdown: %v, want ErrManagerShuttingDown", err)
	}

	// Shutdown is idempotent.
	if err := m.Shutdown(context.Background()); err != nil {
		t.Errorf("second shutdown: %v", err)
	}
}

func TestGetStatsAndHealth(t *testing.T) {
	cfg := testConfig()
	cfg.MaxFailedCount = 1
	m, _ := newTestManager(t, cfg)

	if err := m.RegisterQueue(queue.Config{Name: "kyc"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	mux := job.NewMux()
	mux.HandleFunc("verify-document", func(_ context.Context, _ *job.Job) error {
		return errors.New("always fails")
	})
	if err := m.StartProcessing(context.Background(), "kyc", mux, 2); err != nil {
		t.Fatalf("start processing: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := m.AddJob(context.Background(), "kyc", "verify-document", nil,
			job.WithAttempts(1)); err != nil {
			t.Fatalf("add job: %v", err)
		}
	}

	waitFor(t, 5*time.Second, func() bool {
		qs, err := m.GetStats(context.Background(), "kyc")
		return err == nil && qs.Counts.Failed == 2
	}, "failed jobs never surfaced in stats")

	qs, err := m.GetStats(context.Background(), "kyc")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if len(qs.Failed) != 2 {
		t.Errorf("failed summaries = %d, want 2", len(qs.Failed))
	}
	if qs.Failed[0].LastError != "always fails" {
		t.Errorf("summary LastError = %q", qs.Failed[0].LastError)
	}
	if qs.Totals.Failed != 2 {
		t.Errorf("totals failed = %d, want 2", qs.Totals.Failed)
	}

	all, err := m.GetAllStats(context.Background())
	if err != nil {
		t.Fatalf("get all stats: %v", err)
	}
	if _, ok := all["kyc"]; !ok {
		t.Error("GetAllStats missing registered queue")
	}

	// 2 failed > threshold 1: degraded with an explaining issue.
	h := m.HealthCheck(context.Background())
	if h.Healthy {
		t.Error("expected degraded health")
	}
	if len(h.Issues) == 0 {
		t.Error("expected at least one issue")
	}
}

func TestHealthCheckBrokerDown(t *testing.T) {
	b := memory.New()
	m := manager.New(b, manager.WithConfig(testConfig()), manager.WithLogger(testLogger()))
	b.Close()

	h := m.HealthCheck(context.Background())
	if h.Healthy {
		t.Fatal("expected unhealthy report for closed broker")
	}
}
