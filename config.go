package kycq

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds process-level configuration for the queue manager,
// parsed from environment variables via caarlos0/env. Call FromEnv once
// at startup and pass the result to the manager constructor. Field
// defaults are the values used when the environment is silent.
type Config struct {
	// ── Broker ──
	RedisAddr     string        `env:"KYCQ_REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string        `env:"KYCQ_REDIS_PASSWORD"`
	RedisDB       int           `env:"KYCQ_REDIS_DB"       envDefault:"0"`
	DialTimeout   time.Duration `env:"KYCQ_DIAL_TIMEOUT"   envDefault:"5s"`

	// ── Processing ──
	// Concurrency is the default per-queue worker count when
	// StartProcessing is called with concurrency <= 0.
	Concurrency int `env:"KYCQ_CONCURRENCY" envDefault:"5"`

	// DequeueTimeout bounds a single blocking dequeue wait.
	DequeueTimeout time.Duration `env:"KYCQ_DEQUEUE_TIMEOUT" envDefault:"5s"`

	// PromoteInterval is how often delayed jobs are promoted to waiting.
	// This bounds worst-case delay-delivery latency.
	PromoteInterval time.Duration `env:"KYCQ_PROMOTE_INTERVAL" envDefault:"1s"`

	// ── Stall / lease ──
	// StallTimeout is how long a processor may run without reporting
	// progress before the job is flagged as stalled.
	StallTimeout time.Duration `env:"KYCQ_STALL_TIMEOUT" envDefault:"30s"`

	// KillOnStall forcibly fails stalled jobs instead of letting them run.
	KillOnStall bool `env:"KYCQ_KILL_ON_STALL" envDefault:"false"`

	// LeaseDuration is how long a claimed job is presumed alive without a
	// lease renewal. Zero means 5x StallTimeout.
	LeaseDuration time.Duration `env:"KYCQ_LEASE_DURATION"`

	// HeartbeatInterval is how often active jobs have their leases renewed.
	HeartbeatInterval time.Duration `env:"KYCQ_HEARTBEAT_INTERVAL" envDefault:"10s"`

	// ── Retention ──
	RetainCompleted int           `env:"KYCQ_RETAIN_COMPLETED"     envDefault:"1000"`
	RetainFailed    int           `env:"KYCQ_RETAIN_FAILED"        envDefault:"5000"`
	CleanupInterval time.Duration `env:"KYCQ_CLEANUP_INTERVAL"     envDefault:"10m"`
	CleanupGrace    time.Duration `env:"KYCQ_CLEANUP_GRACE"        envDefault:"24h"`

	// ── Health ──
	MaxFailedCount  int64 `env:"KYCQ_MAX_FAILED_COUNT"  envDefault:"100"`
	MaxWaitingCount int64 `env:"KYCQ_MAX_WAITING_COUNT" envDefault:"10000"`

	// ── Shutdown ──
	DrainTimeout time.Duration `env:"KYCQ_DRAIN_TIMEOUT" envDefault:"30s"`
}

// DefaultConfig returns a Config with every field at its default.
func DefaultConfig() Config {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Environment: map[string]string{}})
	if err != nil {
		// Defaults are compile-time literals; parsing them cannot fail.
		panic(fmt.Sprintf("kycq: default config: %v", err))
	}
	return cfg
}

// FromEnv builds a Config from the process environment.
func FromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("kycq: parse config: %w", err)
	}
	return cfg, nil
}

// Lease returns the effective lease duration: LeaseDuration if set,
// otherwise 5x StallTimeout.
func (c Config) Lease() time.Duration {
	if c.LeaseDuration > 0 {
		return c.LeaseDuration
	}
	return 5 * c.StallTimeout
}
