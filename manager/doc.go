// Package manager wires all kycq subsystems together: the broker, the
// queue registry, worker pools, the middleware chain, lifecycle events,
// and periodic maintenance (delayed-job promotion, retention cleanup,
// stale-lease recovery).
//
// This package exists to break the import cycle: the root kycq package
// defines Entity and Config (imported by job, queue, etc.) and so cannot
// import those packages back. The manager package sits above all
// subsystem packages and below the application layer.
//
// A typical producer/consumer process:
//
//	cfg, err := kycq.FromEnv()
//	...
//	b, err := redisbroker.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
//	...
//	m := manager.New(b, manager.WithConfig(cfg))
//	_ = m.RegisterQueue(queue.Config{Name: "kyc-verification"})
//
//	mux := job.NewMux()
//	mux.HandleFunc("verify-document", verifyDocument)
//	_ = m.StartProcessing(ctx, "kyc-verification", mux, 0)
//
//	j, err := m.AddJob(ctx, "kyc-verification", "verify-document",
//	    job.Payload{"document_id": "doc-123"})
package manager
