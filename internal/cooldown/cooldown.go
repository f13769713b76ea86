package cooldown

import (
	"sync"
	"time"

	"stealth-signal-bot/internal/config"
)

// Entry is the cooldown state for one symbol.
type Entry struct {
	LastSignalAt time.Time     `json:"last_signal_at"`
	TTL          time.Duration `json:"ttl"`
	Confidence   float64       `json:"confidence"`
}

func (e Entry) activeAt(now time.Time) bool {
	return now.Before(e.LastSignalAt.Add(e.TTL))
}

// Manager suppresses repeated signals for a symbol inside its TTL.
// Under the override policy a signal whose confidence beats the recorded
// one by at least the override delta is let through.
type Manager struct {
	mu      sync.Mutex
	ttl     time.Duration
	policy  string
	delta   float64
	now     func() time.Time
	entries map[string]Entry
}

type Option func(*Manager)

// WithClock replaces time.Now as the source of signal timestamps.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// New creates a Manager. An unknown policy behaves as strict.
func New(ttl time.Duration, policy string, delta float64, opts ...Option) *Manager {
	m := &Manager{
		ttl:     ttl,
		policy:  policy,
		delta:   delta,
		now:     time.Now,
		entries: make(map[string]Entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewFromConfig creates a Manager from the scanner section.
func NewFromConfig(cfg config.Scanner, opts ...Option) *Manager {
	return New(cfg.CooldownTTL(), cfg.CooldownPolicy, cfg.OverrideDelta, opts...)
}

// Configure changes ttl and policy for future decisions. Existing entries
// keep the ttl they were recorded with.
func (m *Manager) Configure(ttl time.Duration, policy string, delta float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttl, m.policy, m.delta = ttl, policy, delta
}

// Allow reports whether a signal for symbol at confidence may be emitted.
// On allow, the symbol's entry is stamped with now.
func (m *Manager) Allow(symbol string, confidence float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[symbol]; ok && e.activeAt(now) {
		if m.policy != config.CooldownOverride || confidence < e.Confidence+m.delta {
			return false
		}
	}
	m.entries[symbol] = Entry{LastSignalAt: now, TTL: m.ttl, Confidence: confidence}
	return true
}

// Forget drops the entry for symbol, e.g. when the allowed signal could not be stored.
func (m *Manager) Forget(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, symbol)
}

// Clear drops every entry.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]Entry)
}

// Active counts symbols currently in cooldown and prunes expired entries.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for sym, e := range m.entries {
		if e.activeAt(now) {
			n++
		} else {
			delete(m.entries, sym)
		}
	}
	return n
}

// Get returns the active entry for symbol.
func (m *Manager) Get(symbol string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[symbol]
	if !ok || !e.activeAt(m.now()) {
		return Entry{}, false
	}
	return e, true
}
