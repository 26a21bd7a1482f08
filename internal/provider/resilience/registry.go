package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// UpstreamHealth is a point-in-time view of one geocoder or forecast upstream.
type UpstreamHealth struct {
	Name string

	CircuitState gobreaker.State
	Counts       gobreaker.Counts

	// StateChangedAt is when the breaker last changed state, if ever.
	StateChangedAt *time.Time

	// RetryAt is when an open breaker admits a trial call again.
	RetryAt *time.Time

	// LastSuccessAt and LastFailureAt are set by callers after each fetch.
	LastSuccessAt *time.Time
	LastFailureAt *time.Time

	// LastError is the most recent failure message, if any.
	LastError string
}

// Closed reports whether calls flow normally.
func (h *UpstreamHealth) Closed() bool {
	return h.CircuitState == gobreaker.StateClosed
}

// HalfOpen reports whether the breaker is letting trial calls through.
func (h *UpstreamHealth) HalfOpen() bool {
	return h.CircuitState == gobreaker.StateHalfOpen
}

// Open reports whether calls are being short-circuited.
func (h *UpstreamHealth) Open() bool {
	return h.CircuitState == gobreaker.StateOpen
}

// Registry tracks upstream clients and the outcome of their most recent calls.
type Registry struct {
	mu        sync.RWMutex
	upstreams map[string]*upstream
}

type upstream struct {
	client         *Client
	stateChangedAt *time.Time
	retryAt        *time.Time
	lastSuccessAt  *time.Time
	lastFailureAt  *time.Time
	lastError      string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		upstreams: make(map[string]*upstream),
	}
}

// Register adds a client under name, replacing any earlier one.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upstreams[name] = &upstream{client: client}
}

// RecordSuccess notes a successful fetch from name.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.upstreams[name]; ok {
		now := time.Now()
		u.lastSuccessAt = &now
	}
}

// RecordFailure notes a failed fetch from name.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.upstreams[name]; ok {
		now := time.Now()
		u.lastFailureAt = &now
		if err != nil {
			u.lastError = err.Error()
		}
	}
}

// recordStateChange runs inside the breaker's state transition, so it must
// not call back into the client.
func (r *Registry) recordStateChange(name string, to gobreaker.State, cooldown time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.upstreams[name]
	if !ok {
		return
	}
	now := time.Now()
	u.stateChangedAt = &now
	u.retryAt = nil
	if to == gobreaker.StateOpen {
		retry := now.Add(cooldown)
		u.retryAt = &retry
	}
}

// Health returns the health of name, or nil when it is not registered.
func (r *Registry) Health(name string) *UpstreamHealth {
	r.mu.RLock()
	u, ok := r.upstreams[name]
	var snapshot upstream
	if ok {
		snapshot = *u
	}
	r.mu.RUnlock()

	if !ok {
		return nil
	}
	return snapshot.health(name)
}

// All returns the health of every upstream, sorted by name.
func (r *Registry) All() []*UpstreamHealth {
	r.mu.RLock()
	names := make([]string, 0, len(r.upstreams))
	snapshots := make(map[string]upstream, len(r.upstreams))
	for name, u := range r.upstreams {
		names = append(names, name)
		snapshots[name] = *u
	}
	r.mu.RUnlock()

	sort.Strings(names)
	out := make([]*UpstreamHealth, 0, len(names))
	for _, name := range names {
		u := snapshots[name]
		out = append(out, u.health(name))
	}
	return out
}

// Names returns the registered upstream names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.upstreams))
	for name := range r.upstreams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// health reads breaker state outside the registry lock. Reading state can
// itself trigger a transition, which calls recordStateChange.
func (u upstream) health(name string) *UpstreamHealth {
	state := u.client.CircuitBreakerState()
	h := &UpstreamHealth{
		Name:           name,
		CircuitState:   state,
		Counts:         u.client.CircuitBreakerCounts(),
		StateChangedAt: u.stateChangedAt,
		LastSuccessAt:  u.lastSuccessAt,
		LastFailureAt:  u.lastFailureAt,
		LastError:      u.lastError,
	}
	if state == gobreaker.StateOpen {
		h.RetryAt = u.retryAt
	}
	return h
}
