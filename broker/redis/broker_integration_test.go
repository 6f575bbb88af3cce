//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	redismodule "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/broker"
	redisbroker "github.com/AKSHAT-ARORA03/SahajKYC-sub001/broker/redis"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/id"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/job"
)

// setupTestBroker starts a Redis container and returns a connected Broker.
func setupTestBroker(t *testing.T) *redisbroker.Broker {
	t.Helper()

	ctx := context.Background()

	container, err := redismodule.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := testcontainers.TerminateContainer(container); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	addr, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	opts, err := goredis.ParseURL(addr)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	b := redisbroker.New(client, redisbroker.WithPollInterval(20*time.Millisecond))
	if err := b.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	return b
}

func newTestJob(queue string) *job.Job {
	now := time.Now().UTC()
	j := &job.Job{
		ID:          id.NewJobID(),
		Queue:       queue,
		Type:        "data.fetch",
		Payload:     job.Payload{"source": "pan", "ref": "x1"},
		MaxAttempts: 3,
		RunAt:       now,
	}
	j.CreatedAt = now
	j.UpdatedAt = now
	return j
}

func TestRedisBroker_ClaimAckCycle(t *testing.T) {
	b := setupTestBroker(t)
	ctx := context.Background()

	j := newTestJob("sync")
	if err := b.Enqueue(ctx, j); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	counts, err := b.Stats(ctx, "sync")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if counts.Waiting != 1 {
		t.Fatalf("waiting = %d, want 1", counts.Waiting)
	}

	claimed, err := b.DequeueBlocking(ctx, "sync", time.Second, time.Minute)
	if err != nil || claimed == nil {
		t.Fatalf("dequeue: job=%v err=%v", claimed, err)
	}
	if claimed.State != job.StateActive || claimed.AttemptsMade != 1 {
		t.Fatalf("claimed state=%s attempts=%d", claimed.State, claimed.AttemptsMade)
	}

	applied, err := b.Ack(ctx, "sync", claimed.ID, broker.Outcome{Status: broker.StatusCompleted})
	if err != nil || !applied {
		t.Fatalf("ack: applied=%v err=%v", applied, err)
	}

	// Duplicate ack is a no-op.
	applied, err = b.Ack(ctx, "sync", claimed.ID, broker.Outcome{Status: broker.StatusFailed, Err: "dup"})
	if err != nil {
		t.Fatalf("dup ack: %v", err)
	}
	if applied {
		t.Fatal("duplicate ack applied")
	}

	got, err := b.GetJob(ctx, "sync", claimed.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != job.StateCompleted || got.LastError != "" {
		t.Fatalf("final state=%s lastErr=%q", got.State, got.LastError)
	}
}

func TestRedisBroker_FIFOWithinPriority(t *testing.T) {
	b := setupTestBroker(t)
	ctx := context.Background()

	var want []string
	for range 5 {
		j := newTestJob("fifo")
		if err := b.Enqueue(ctx, j); err != nil {
			t.Fatal(err)
		}
		want = append(want, j.ID.String())
	}

	for i, w := range want {
		got, err := b.DequeueBlocking(ctx, "fifo", time.Second, time.Minute)
		if err != nil || got == nil {
			t.Fatalf("dequeue %d: %v", i, err)
		}
		if got.ID.String() != w {
			t.Errorf("dequeue %d = %s, want %s", i, got.ID, w)
		}
	}
}

func TestRedisBroker_DelayedPromotion(t *testing.T) {
	b := setupTestBroker(t)
	ctx := context.Background()

	j := newTestJob("delayed")
	j.RunAt = time.Now().Add(time.Hour)
	if err := b.Enqueue(ctx, j); err != nil {
		t.Fatal(err)
	}

	counts, _ := b.Stats(ctx, "delayed")
	if counts.Delayed != 1 {
		t.Fatalf("delayed = %d, want 1", counts.Delayed)
	}

	if got, _ := b.DequeueBlocking(ctx, "delayed", 100*time.Millisecond, time.Minute); got != nil {
		t.Fatal("delayed job dequeued early")
	}

	n, err := b.PromoteDue(ctx, "delayed", time.Now().Add(2*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("promote: n=%d err=%v", n, err)
	}

	got, err := b.DequeueBlocking(ctx, "delayed", time.Second, time.Minute)
	if err != nil || got == nil {
		t.Fatalf("dequeue after promote: %v", err)
	}
}

func TestRedisBroker_PauseBlocksClaims(t *testing.T) {
	b := setupTestBroker(t)
	ctx := context.Background()

	if err := b.Enqueue(ctx, newTestJob("paused")); err != nil {
		t.Fatal(err)
	}
	if err := b.Pause(ctx, "paused"); err != nil {
		t.Fatal(err)
	}

	if got, _ := b.DequeueBlocking(ctx, "paused", 100*time.Millisecond, time.Minute); got != nil {
		t.Fatal("claimed from paused queue")
	}
	counts, _ := b.Stats(ctx, "paused")
	if counts.Paused != 1 || counts.Waiting != 0 {
		t.Fatalf("paused=%d waiting=%d", counts.Paused, counts.Waiting)
	}

	if err := b.Resume(ctx, "paused"); err != nil {
		t.Fatal(err)
	}
	if got, _ := b.DequeueBlocking(ctx, "paused", time.Second, time.Minute); got == nil {
		t.Fatal("not claimed after resume")
	}
}

func TestRedisBroker_StaleLeaseListing(t *testing.T) {
	b := setupTestBroker(t)
	ctx := context.Background()

	if err := b.Enqueue(ctx, newTestJob("stale")); err != nil {
		t.Fatal(err)
	}
	claimed, err := b.DequeueBlocking(ctx, "stale", time.Second, 50*time.Millisecond)
	if err != nil || claimed == nil {
		t.Fatalf("dequeue: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	stale, err := b.ListStale(ctx, "stale", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 1 || stale[0].ID.String() != claimed.ID.String() {
		t.Fatalf("stale = %d jobs", len(stale))
	}
}

func TestRedisBroker_RetentionTrim(t *testing.T) {
	b := setupTestBroker(t)
	ctx := context.Background()

	for range 5 {
		j := newTestJob("retained")
		j.RetainCompleted = job.Retention{Count: 2}
		if err := b.Enqueue(ctx, j); err != nil {
			t.Fatal(err)
		}
		claimed, err := b.DequeueBlocking(ctx, "retained", time.Second, time.Minute)
		if err != nil || claimed == nil {
			t.Fatalf("dequeue: %v", err)
		}
		if _, err := b.Ack(ctx, "retained", claimed.ID, broker.Outcome{Status: broker.StatusCompleted}); err != nil {
			t.Fatal(err)
		}
	}

	counts, _ := b.Stats(ctx, "retained")
	if counts.Completed != 2 {
		t.Fatalf("completed = %d, want 2", counts.Completed)
	}
}
