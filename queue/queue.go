// Package queue defines per-queue configuration and the static queue
// registry. Queues are registered at manager startup; there is no
// dynamic queue creation at runtime.
package queue

import (
	"sync"

	"golang.org/x/time/rate"

	kycq "github.com/AKSHAT-ARORA03/SahajKYC-sub001"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/job"
)

// Config defines per-queue behaviour: default job options, worker
// concurrency, and optional dequeue rate limiting.
type Config struct {
	// Name is the queue identifier (must match the job.Queue field).
	Name string

	// Concurrency is the number of worker loops StartProcessing spawns
	// when called with concurrency <= 0. Zero falls back to the
	// process-wide default.
	Concurrency int

	// DefaultJobOptions are merged under each enqueued job's options.
	DefaultJobOptions job.Options

	// RateLimit is the maximum sustained claims per second from this
	// queue. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// state tracks runtime state for a single registered queue.
type state struct {
	config    Config
	limiter   *rate.Limiter
	processor bool
}

func newState(cfg Config) *state {
	s := &state{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return s
}

// Registry is the static map of queue name to configuration and runtime
// state. Registration mutations are serialized against concurrent reads
// with a read/write lock. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	queues map[string]*state
}

// NewRegistry creates a Registry with the given queue configurations.
func NewRegistry(configs ...Config) *Registry {
	r := &Registry{queues: make(map[string]*state, len(configs))}
	for _, cfg := range configs {
		r.queues[cfg.Name] = newState(cfg)
	}
	return r
}

// Register adds a queue. It is idempotent: re-registering with identical
// options is a no-op, while differing options are rejected with
// kycq.ErrConfigurationConflict.
func (r *Registry) Register(cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.queues[cfg.Name]; ok {
		if existing.config != cfg {
			return kycq.ErrConfigurationConflict
		}
		return nil
	}
	r.queues[cfg.Name] = newState(cfg)
	return nil
}

// Get returns the configuration for a queue.
func (r *Registry) Get(name string) (Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.queues[name]
	if !ok {
		return Config{}, false
	}
	return s.config, true
}

// Names returns all registered queue names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.queues))
	for name := range r.queues {
		names = append(names, name)
	}
	return names
}

// InstallProcessor marks the queue's processor as installed. Exactly one
// processor may be installed per queue for the process lifetime.
func (r *Registry) InstallProcessor(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.queues[name]
	if !ok {
		return kycq.ErrUnknownQueue
	}
	if s.processor {
		return kycq.ErrProcessorAlreadyRegistered
	}
	s.processor = true
	return nil
}

// HasProcessor reports whether a processor is installed for the queue.
func (r *Registry) HasProcessor(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.queues[name]
	return ok && s.processor
}

// Allow checks the queue's dequeue rate limit. Queues without a limit
// always allow.
func (r *Registry) Allow(name string) bool {
	r.mu.RLock()
	s, ok := r.queues[name]
	r.mu.RUnlock()

	if !ok || s.limiter == nil {
		return true
	}
	return s.limiter.Allow()
}
