// Package breaker provides per-source circuit breakers for external
// enrichment providers. Each source owns exactly one breaker; state is
// in-memory and process-local.
package breaker

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned when a call is short-circuited because the breaker
// is open and the recovery timeout has not elapsed.
var ErrOpen = errors.New("circuit breaker open")

// Profile selects the failure threshold and recovery timeout for a class
// of dependency.
type Profile struct {
	// ConsecutiveFailures opens the breaker when reached.
	ConsecutiveFailures uint32
	// RecoveryTimeout is how long the breaker stays open before a probe.
	RecoveryTimeout time.Duration
}

// Built-in profiles. Cheap in-process or LLM calls tolerate more failures
// with a short cool-off; metered external APIs trip early and rest longer.
var (
	ProfileDefault   = Profile{ConsecutiveFailures: 5, RecoveryTimeout: 60 * time.Second}
	ProfileExpensive = Profile{ConsecutiveFailures: 3, RecoveryTimeout: 120 * time.Second}
	ProfileStore     = Profile{ConsecutiveFailures: 10, RecoveryTimeout: 30 * time.Second}
)

// Breaker wraps a single source's circuit breaker.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// New creates a breaker for the named source with the given profile.
// isFailure decides whether a returned error counts toward tripping; a
// nil isFailure counts every non-nil error.
func New(name string, p Profile, isFailure func(error) bool) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // single probe in half-open
		Timeout:     p.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= p.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Info("Circuit breaker state change",
				"source", name, "from", from.String(), "to", to.String())
		},
	}
	if isFailure != nil {
		settings.IsSuccessful = func(err error) bool {
			return err == nil || !isFailure(err)
		}
	}
	return &Breaker{name: name, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Call executes fn through the breaker. When the breaker is open it
// returns ErrOpen immediately without invoking fn.
func (b *Breaker) Call(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}

// Open reports whether a call made now would be short-circuited.
func (b *Breaker) Open() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// State returns the breaker state name (closed, half-open, open).
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Snapshot is a point-in-time view of one breaker for health reporting.
type Snapshot struct {
	Source              string `json:"source"`
	State               string `json:"state"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
	TotalFailures       uint32 `json:"total_failures"`
	TotalSuccesses      uint32 `json:"total_successes"`
}

// Snapshot returns the breaker's current counters.
func (b *Breaker) Snapshot() Snapshot {
	counts := b.cb.Counts()
	return Snapshot{
		Source:              b.name,
		State:               b.cb.State().String(),
		ConsecutiveFailures: counts.ConsecutiveFailures,
		TotalFailures:       counts.TotalFailures,
		TotalSuccesses:      counts.TotalSuccesses,
	}
}

// Registry holds one breaker per source name.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry creates an empty breaker registry.
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*Breaker)}
}

// GetOrCreate returns the breaker for name, creating it with the profile
// on first use. The profile of an existing breaker is not changed.
func (r *Registry) GetOrCreate(name string, p Profile, isFailure func(error) bool) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b = New(name, p, isFailure)
	r.breakers[name] = b
	return b
}

// Snapshots returns the state of every registered breaker.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Snapshot())
	}
	return out
}
