package backoff_test

import (
	"testing"
	"time"

	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/backoff"
)

func TestPolicy_Fixed(t *testing.T) {
	p := backoff.Policy{Kind: backoff.KindFixed, BaseDelay: 2 * time.Second}
	for attempt := 1; attempt <= 10; attempt++ {
		if got := p.Delay(attempt); got != 2*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 2*time.Second)
		}
	}
}

func TestPolicy_Exponential(t *testing.T) {
	p := backoff.Policy{Kind: backoff.KindExponential, BaseDelay: time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPolicy_Exponential_Monotonic(t *testing.T) {
	p := backoff.Policy{Kind: backoff.KindExponential, BaseDelay: 250 * time.Millisecond}
	prev := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		d := p.Delay(attempt)
		if d < prev {
			t.Fatalf("Delay(%d) = %v decreased from %v", attempt, d, prev)
		}
		prev = d
	}
}

func TestPolicy_CapsAtMax(t *testing.T) {
	p := backoff.Policy{Kind: backoff.KindExponential, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
	if got := p.Delay(8); got != 10*time.Second {
		t.Errorf("Delay(8) = %v, want %v (capped at MaxDelay)", got, 10*time.Second)
	}
}

func TestPolicy_ZeroAttemptClamped(t *testing.T) {
	p := backoff.Policy{Kind: backoff.KindExponential, BaseDelay: time.Second}
	if got := p.Delay(0); got != time.Second {
		t.Errorf("Delay(0) = %v, want %v", got, time.Second)
	}
}

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 5*time.Second)
		}
	}
}

func TestExponential_DoublesEachAttempt(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Hour)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 32 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponentialWithJitter_StaysInRange(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, time.Minute)
	for attempt := 1; attempt <= 8; attempt++ {
		upper := backoff.NewExponential(time.Second, time.Minute).Delay(attempt)
		for range 50 {
			d := e.Delay(attempt)
			if d < 0 || d > upper {
				t.Fatalf("Delay(%d) = %v, want in [0, %v]", attempt, d, upper)
			}
		}
	}
}
