// Package backoff provides retry delay policies for job execution.
// All strategies are safe for concurrent use (they are stateless).
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Kind selects how a Policy computes retry delays.
type Kind string

const (
	// KindFixed waits the same BaseDelay before every retry. Used for
	// locally-bounded resource contention (e.g. notification dispatch)
	// where retry cost is flat.
	KindFixed Kind = "fixed"

	// KindExponential doubles the delay each attempt. Used for
	// externally-rate-limited work (e.g. third-party data fetches) to
	// avoid amplifying provider-side throttling.
	KindExponential Kind = "exponential"
)

// Policy is the per-job retry delay policy persisted with each job.
type Policy struct {
	Kind      Kind          `json:"kind"`
	BaseDelay time.Duration `json:"base_delay"`

	// MaxDelay caps the computed delay. Zero means no cap.
	MaxDelay time.Duration `json:"max_delay,omitempty"`
}

// DefaultPolicy returns the policy applied when a job specifies none:
// exponential with a 5s base, capped at 10 minutes.
func DefaultPolicy() Policy {
	return Policy{Kind: KindExponential, BaseDelay: 5 * time.Second, MaxDelay: 10 * time.Minute}
}

// Delay returns how long to wait before retry attempt n (1-indexed).
// Attempt 1 is the first retry after the initial failure.
// Fixed: BaseDelay. Exponential: BaseDelay * 2^(n-1), capped at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var d time.Duration
	switch p.Kind {
	case KindFixed:
		d = p.BaseDelay
	default:
		d = time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt-1)))
	}

	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// IsZero reports whether the policy is unset.
func (p Policy) IsZero() bool {
	return p.Kind == "" && p.BaseDelay == 0
}

// Strategy computes the delay before a retry attempt. It generalizes
// Policy for callers that need jittered or custom curves (the worker's
// broker-error retry loop). Job retries always use Policy.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	Delay(attempt int) time.Duration
}

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ExponentialWithJitter applies full jitter to an exponential base.
// Delay = random value in [0, min(Initial * 2^(attempt-1), Max)].
// This prevents thundering herd when many workers reconnect to the
// broker simultaneously. Never used for job retries, where delays must
// be deterministic.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Initial * 2^(attempt-1), Max)].
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	base := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	return time.Duration(rand.Float64() * base) //nolint:gosec // jitter intentionally uses non-crypto rand
}
