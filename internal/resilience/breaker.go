package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrBreakerOpen is returned when a provider's breaker rejects a call.
var ErrBreakerOpen = eris.New("resilience: breaker open")

// BreakerConfig controls when a provider is cut off after repeated
// failures and when it is probed again.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// breaker.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before allowing a
	// probe call through.
	ResetTimeout time.Duration
}

// DefaultBreakerConfig returns the posture used for lookup providers.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
}

// Breaker is a minimal circuit breaker: closed until FailureThreshold
// consecutive failures, then open for ResetTimeout, then a single probe
// decides whether it closes again.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	failures int
	openedAt time.Time
	open     bool

	now func() time.Time
}

// NewBreaker creates a breaker with the given config, applying defaults
// for zero values.
func NewBreaker(cfg BreakerConfig) *Breaker {
	d := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = d.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = d.ResetTimeout
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// WithNow fixes the clock for tests.
func (b *Breaker) WithNow(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// Allow reports whether a call may proceed. While open, only a probe
// after ResetTimeout is let through.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return nil
	}
	if b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		// Half-open: let one probe through. A failure reopens via Record.
		return nil
	}
	return ErrBreakerOpen
}

// Record feeds a call outcome into the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.failures = 0
		b.open = false
		return
	}
	b.failures++
	if b.failures >= b.cfg.FailureThreshold || b.open {
		b.open = true
		b.openedAt = b.now()
	}
}

// Open reports whether the breaker is currently rejecting calls.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open && b.now().Sub(b.openedAt) < b.cfg.ResetTimeout
}

// BreakerSet holds one breaker per provider id.
type BreakerSet struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[string]*Breaker
}

// NewBreakerSet creates an empty per-provider breaker registry.
func NewBreakerSet(cfg BreakerConfig) *BreakerSet {
	return &BreakerSet{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for a provider, creating it on first use.
func (s *BreakerSet) Get(providerID string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[providerID]
	if !ok {
		b = NewBreaker(s.cfg)
		s.breakers[providerID] = b
	}
	return b
}
