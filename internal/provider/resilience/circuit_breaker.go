// Package resilience wraps outbound provider calls (geocoder, forecast APIs)
// with per-call timeouts, a circuit breaker and optional bounded retries.
package resilience

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// TripPolicy decides when an upstream is failing badly enough to stop
// calling it. Either condition trips the breaker.
type TripPolicy struct {
	// MinRequests is how many calls must be counted before FailureRatio applies.
	MinRequests uint32

	// FailureRatio trips the breaker once failures reach this share of calls.
	FailureRatio float64

	// ConsecutiveFailures trips the breaker after this many failures in a row.
	// Zero disables the check.
	ConsecutiveFailures uint32
}

// DefaultTripPolicy trips after 3 failures in a row, or when at least half
// of 5 or more calls failed.
func DefaultTripPolicy() TripPolicy {
	return TripPolicy{
		MinRequests:         5,
		FailureRatio:        0.5,
		ConsecutiveFailures: 3,
	}
}

// ReadyToTrip reports whether counts breach the policy.
func (p TripPolicy) ReadyToTrip(counts gobreaker.Counts) bool {
	if p.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= p.ConsecutiveFailures {
		return true
	}
	if counts.Requests == 0 || counts.Requests < p.MinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= p.FailureRatio
}

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the upstream the breaker guards.
	Name string

	// MaxRequests is the number of trial calls allowed while half-open.
	MaxRequests uint32

	// Interval clears the closed-state counts periodically so old failures
	// stop counting. Zero keeps them until the state changes.
	Interval time.Duration

	// Cooldown is how long the breaker stays open before half-opening.
	Cooldown time.Duration

	// Trip is used when ReadyToTrip is nil.
	Trip TripPolicy

	// ReadyToTrip overrides Trip.
	ReadyToTrip func(counts gobreaker.Counts) bool

	// OnStateChange is called when the circuit breaker state changes.
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

// DefaultCircuitBreakerConfig returns the breaker used for forecast and
// geocoding upstreams: one trial call after a minute open, counts reset every
// five minutes.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Cooldown:    60 * time.Second,
		Trip:        DefaultTripPolicy(),
	}
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
func NewCircuitBreaker[T any](cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[T] {
	readyToTrip := cfg.ReadyToTrip
	if readyToTrip == nil {
		readyToTrip = cfg.Trip.ReadyToTrip
	}

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.MaxRequests,
		Interval:      cfg.Interval,
		Timeout:       cfg.Cooldown,
		ReadyToTrip:   readyToTrip,
		OnStateChange: cfg.OnStateChange,
	})
}
