// Package kycq provides the background job queue manager for the SahajKYC
// platform. It schedules, executes, retries, and monitors asynchronous work
// units — document processing, face verification, third-party data fetches,
// sync jobs, notifications, periodic cleanup — across independent named
// queues backed by a shared Redis broker.
//
// kycq is designed as a library, not a service. Construct a manager.Manager
// at process startup, register queues, and install processors as ordinary
// Go functions.
//
// # Quick Start
//
//	cfg, err := kycq.FromEnv()
//	b, err := redisbroker.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
//	m := manager.New(b, manager.WithConfig(cfg))
//	err = m.RegisterQueue(queue.Config{Name: "documents", Concurrency: 4})
//
//	mux := job.NewMux()
//	mux.HandleFunc("document.process", processDocument)
//	err = m.StartProcessing(ctx, "documents", mux, 4)
//
//	j, err := m.AddJob(ctx, "documents", "document.process",
//	    job.Payload{"document_id": "doc-123"}, job.WithAttempts(5))
//
// # Architecture
//
// The broker package defines the scheduling substrate contract: atomic
// enqueue, claim-with-lease, delayed scheduling, and idempotent ack.
// broker/redis implements it with per-queue sorted sets and Lua scripts;
// broker/memory is a drop-in for tests. The worker pool runs one dequeue
// loop per unit of configured concurrency; the broker's atomic claim is
// the only cross-process synchronization point.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package kycq
