package marketdata

import (
	"context"
	"sync"
	"time"
)

type cacheEntry struct {
	v   any
	exp time.Time
}

// Cached wraps a Provider and reuses responses for ttl.
type Cached struct {
	next Provider
	ttl  time.Duration
	now  func() time.Time

	mu sync.RWMutex
	m  map[string]cacheEntry
}

// NewCached wraps next. A non-positive ttl disables caching.
func NewCached(next Provider, ttl time.Duration) *Cached {
	return &Cached{next: next, ttl: ttl, now: time.Now, m: make(map[string]cacheEntry)}
}

func (c *Cached) get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(e.exp) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return nil, false
	}
	return e.v, true
}

func (c *Cached) set(key string, v any) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.m[key] = cacheEntry{v: v, exp: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// GetQuote returns a cached quote when one is fresh.
func (c *Cached) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	if v, ok := c.get("q:" + symbol); ok {
		q := *v.(*Quote)
		return &q, nil
	}
	q, err := c.next.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	c.set("q:"+symbol, q)
	out := *q
	return &out, nil
}

// GetSnapshot returns a cached snapshot when one is fresh. A fresh snapshot
// also refreshes the quote cache for the symbol.
func (c *Cached) GetSnapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	if v, ok := c.get("s:" + symbol); ok {
		return v.(*Snapshot), nil
	}
	s, err := c.next.GetSnapshot(ctx, symbol)
	if err != nil {
		return nil, err
	}
	c.set("s:"+symbol, s)
	q := s.Quote
	c.set("q:"+symbol, &q)
	return s, nil
}

// Invalidate drops every cached entry.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	c.m = make(map[string]cacheEntry)
	c.mu.Unlock()
}
