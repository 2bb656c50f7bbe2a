// Package monitoring exposes engine counters as Prometheus metrics plus
// a point-in-time snapshot for the status command.
package monitoring

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is
// valid and turns every method into a no-op, so tests and library users
// can skip registration.
type Metrics struct {
	providerCalls   *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	flightsShared   prometheus.Counter
	cooldownRejects prometheus.Counter
	validationFails prometheus.Counter

	mu   sync.Mutex
	snap Snapshot
}

// Snapshot is a plain-number view of the counters for CLI output.
type Snapshot struct {
	ProviderCalls     map[string]int64 `json:"provider_calls"`
	ProviderErrors    map[string]int64 `json:"provider_errors"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	FlightsShared     int64            `json:"flights_shared"`
	CooldownRejects   int64            `json:"cooldown_rejects"`
	ValidationFailure int64            `json:"validation_failures"`
}

// New creates and registers the engine metrics on the given registerer
// (prometheus.DefaultRegisterer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		providerCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "skiptrace_provider_calls_total",
			Help: "Lookup provider calls by provider id and outcome.",
		}, []string{"provider", "outcome"}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "skiptrace_cache_hits_total",
			Help: "Enrichment requests served from a fresh cached record.",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "skiptrace_cache_misses_total",
			Help: "Enrichment requests that required a provider call.",
		}),
		flightsShared: factory.NewCounter(prometheus.CounterOpts{
			Name: "skiptrace_flights_shared_total",
			Help: "Concurrent runs collapsed into another caller's provider call.",
		}),
		cooldownRejects: factory.NewCounter(prometheus.CounterOpts{
			Name: "skiptrace_cooldown_rejects_total",
			Help: "Related-party pulls rejected by an active cooldown.",
		}),
		validationFails: factory.NewCounter(prometheus.CounterOpts{
			Name: "skiptrace_validation_failures_total",
			Help: "Enrichment runs rejected for insufficient identity input.",
		}),
		snap: Snapshot{
			ProviderCalls:  make(map[string]int64),
			ProviderErrors: make(map[string]int64),
		},
	}
}

// ProviderCall records a provider call outcome.
func (m *Metrics) ProviderCall(providerID string, success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.providerCalls.WithLabelValues(providerID, outcome).Inc()
	m.mu.Lock()
	if success {
		m.snap.ProviderCalls[providerID]++
	} else {
		m.snap.ProviderErrors[providerID]++
	}
	m.mu.Unlock()
}

// CacheHit records a request served from cache.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
	m.mu.Lock()
	m.snap.CacheHits++
	m.mu.Unlock()
}

// CacheMiss records a request that went to a provider.
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
	m.mu.Lock()
	m.snap.CacheMisses++
	m.mu.Unlock()
}

// FlightShared records a run collapsed into another caller's flight.
func (m *Metrics) FlightShared() {
	if m == nil {
		return
	}
	m.flightsShared.Inc()
	m.mu.Lock()
	m.snap.FlightsShared++
	m.mu.Unlock()
}

// CooldownReject records a pull blocked by cooldown.
func (m *Metrics) CooldownReject() {
	if m == nil {
		return
	}
	m.cooldownRejects.Inc()
	m.mu.Lock()
	m.snap.CooldownRejects++
	m.mu.Unlock()
}

// ValidationFailure records a rejected run.
func (m *Metrics) ValidationFailure() {
	if m == nil {
		return
	}
	m.validationFails.Inc()
	m.mu.Lock()
	m.snap.ValidationFailure++
	m.mu.Unlock()
}

// Collect returns a copy of the current snapshot.
func (m *Metrics) Collect() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.snap
	out.ProviderCalls = make(map[string]int64, len(m.snap.ProviderCalls))
	for k, v := range m.snap.ProviderCalls {
		out.ProviderCalls[k] = v
	}
	out.ProviderErrors = make(map[string]int64, len(m.snap.ProviderErrors))
	for k, v := range m.snap.ProviderErrors {
		out.ProviderErrors[k] = v
	}
	return out
}
