package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	kycq "github.com/AKSHAT-ARORA03/SahajKYC-sub001"
)

// Handler processes one job. Implementations must be safe for concurrent
// invocation up to the queue's configured concurrency, and should treat
// side effects as safe to repeat: a crash between execution and ack means
// the same logical job may be delivered more than once.
type Handler interface {
	ProcessJob(ctx context.Context, j *Job) error
}

// HandlerFunc adapts an ordinary function to a Handler.
type HandlerFunc func(ctx context.Context, j *Job) error

// ProcessJob calls f.
func (f HandlerFunc) ProcessJob(ctx context.Context, j *Job) error {
	return f(ctx, j)
}

// Mux routes jobs to handlers by job type. A queue may host several job
// types behind one Mux; dispatch is resolved once per execution. An
// unknown type fails the job with kycq.ErrUnregisteredJobType rather
// than falling through silently.
//
// Mux itself implements Handler, so it can be installed directly as a
// queue's processor. It is safe for concurrent use.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewMux creates an empty job type mux.
func NewMux() *Mux {
	return &Mux{handlers: make(map[string]Handler)}
}

// Handle registers a handler for the given job type, replacing any
// previous registration.
func (m *Mux) Handle(jobType string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[jobType] = h
}

// HandleFunc registers a plain function for the given job type.
func (m *Mux) HandleFunc(jobType string, f func(ctx context.Context, j *Job) error) {
	m.Handle(jobType, HandlerFunc(f))
}

// ProcessJob dispatches to the handler registered for j.Type.
func (m *Mux) ProcessJob(ctx context.Context, j *Job) error {
	m.mu.RLock()
	h, ok := m.handlers[j.Type]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %q on queue %q", kycq.ErrUnregisteredJobType, j.Type, j.Queue)
	}
	return h.ProcessJob(ctx, j)
}

// Types returns all registered job types.
func (m *Mux) Types() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	types := make([]string, 0, len(m.handlers))
	for t := range m.handlers {
		types = append(types, t)
	}
	return types
}

// Handle registers a typed handler on the mux. The payload map is
// decoded into T before the handler runs.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func Handle[T any](m *Mux, jobType string, fn func(ctx context.Context, payload T) error) {
	m.HandleFunc(jobType, func(ctx context.Context, j *Job) error {
		var t T
		if len(j.Payload) > 0 {
			raw, err := json.Marshal(j.Payload)
			if err != nil {
				return fmt.Errorf("encode payload for job type %q: %w", jobType, err)
			}
			if err := json.Unmarshal(raw, &t); err != nil {
				return fmt.Errorf("decode payload for job type %q: %w", jobType, err)
			}
		}
		return fn(ctx, t)
	})
}
