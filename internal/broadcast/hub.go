package broadcast

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"stealth-signal-bot/internal/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sink is the transport for one subscriber.
type Sink interface {
	// Send writes one event. It is only called from the subscriber's own
	// delivery goroutine.
	Send(e Event) error
	// Ping writes a keep-alive frame. It may be called concurrently with Send.
	Ping() error
	Close() error
}

// DeliveryError is reported when a subscriber is dropped because its sink failed.
type DeliveryError struct {
	Subscriber string
	Err        error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to subscriber %s failed: %v", e.Subscriber, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Metrics receives hub counters.
type Metrics interface {
	EventPublished(eventType string)
	EventDropped()
	SubscribersChanged(n int)
}

type nopMetrics struct{}

func (nopMetrics) EventPublished(string) {}
func (nopMetrics) EventDropped() {}
func (nopMetrics) SubscribersChanged(int) {}

// Option configures a Hub.
type Option func(*Hub)

// WithMetrics reports hub activity to m.
func WithMetrics(m Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithClock overrides the hub's time source.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// Hub fans events out to registered subscribers. Every subscriber owns a
// bounded queue drained by its own goroutine, so a slow or dead subscriber
// never blocks Broadcast or delays the others.
type Hub struct {
	logger    *zap.Logger
	heartbeat time.Duration
	queueSize int
	metrics   Metrics
	now       func() time.Time

	mu   sync.RWMutex
	subs map[string]*Subscriber
}

// NewHub creates a Hub from the broadcast config.
func NewHub(cfg config.Broadcast, logger *zap.Logger, opts ...Option) *Hub {
	h := &Hub{
		logger:    logger.Named("broadcast"),
		heartbeat: cfg.Heartbeat,
		queueSize: cfg.QueueSize,
		metrics:   nopMetrics{},
		now:       time.Now,
		subs:      make(map[string]*Subscriber),
	}
	if h.heartbeat <= 0 {
		h.heartbeat = 30 * time.Second
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Heartbeat is the keep-alive period.
func (h *Hub) Heartbeat() time.Duration { return h.heartbeat }

// Subscriber is one registered endpoint.
type Subscriber struct {
	id       string
	hub      *Hub
	sink     Sink
	queue    *queue
	lastSeen atomic.Int64
	dropped  atomic.Int64
	done     chan struct{}
	once     sync.Once

	mu       sync.RWMutex
	channels map[EventType]bool
}

// ID identifies the subscriber.
func (s *Subscriber) ID() string { return s.id }

// Done is closed once the subscriber has been removed.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Touch records activity from the peer.
func (s *Subscriber) Touch() { s.lastSeen.Store(s.hub.now().UnixNano()) }

// Dropped counts events discarded from this subscriber's queue on overflow.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// SetChannels limits delivery to the given event types. An empty list
// restores delivery of every type.
func (s *Subscriber) SetChannels(types []EventType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(types) == 0 {
		s.channels = nil
		return
	}
	s.channels = make(map[EventType]bool, len(types))
	for _, t := range types {
		s.channels[t] = true
	}
}

func (s *Subscriber) wants(t EventType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channels == nil || s.channels[t]
}

// Enqueue queues e for this subscriber only.
func (s *Subscriber) Enqueue(e Event) {
	if s.queue.push(e) {
		s.dropped.Add(1)
		s.hub.metrics.EventDropped()
	}
}

func (s *Subscriber) deliver() {
	for {
		select {
		case <-s.done:
			return
		case <-s.queue.notify:
		}
		for _, e := range s.queue.drain() {
			select {
			case <-s.done:
				return
			default:
			}
			if err := s.sink.Send(e); err != nil {
				s.hub.drop(s, &DeliveryError{Subscriber: s.id, Err: err})
				return
			}
		}
	}
}

// Subscribe registers sink and starts its delivery goroutine.
func (h *Hub) Subscribe(sink Sink) *Subscriber {
	s := &Subscriber{
		id:    uuid.NewString(),
		hub:   h,
		sink:  sink,
		queue: newQueue(h.queueSize),
		done:  make(chan struct{}),
	}
	s.Touch()

	h.mu.Lock()
	h.subs[s.id] = s
	n := len(h.subs)
	h.mu.Unlock()

	h.metrics.SubscribersChanged(n)
	h.logger.Debug("Subscriber registered", zap.String("subscriber", s.id), zap.Int("subscribers", n))
	go s.deliver()
	return s
}

// Unsubscribe removes the subscriber with id. It is safe to call more than once.
func (h *Hub) Unsubscribe(id string) {
	h.mu.RLock()
	s, ok := h.subs[id]
	h.mu.RUnlock()
	if ok {
		h.drop(s, nil)
	}
}

func (h *Hub) drop(s *Subscriber, reason error) {
	s.once.Do(func() {
		h.mu.Lock()
		delete(h.subs, s.id)
		n := len(h.subs)
		h.mu.Unlock()

		close(s.done)
		s.queue.drain()
		_ = s.sink.Close()

		h.metrics.SubscribersChanged(n)
		if reason != nil {
			h.logger.Warn("Subscriber dropped", zap.String("subscriber", s.id), zap.Error(reason))
		} else {
			h.logger.Debug("Subscriber removed", zap.String("subscriber", s.id))
		}
	})
}

// Broadcast queues e for every subscriber that wants its type. It never blocks
// on subscriber I/O.
func (h *Hub) Broadcast(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = h.now().UTC()
	}
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	h.metrics.EventPublished(string(e.Type))
	for _, s := range subs {
		if s.wants(e.Type) {
			s.Enqueue(e)
		}
	}
}

// Publish is a shorthand for Broadcast(NewEvent(t, data)).
func (h *Hub) Publish(t EventType, data interface{}) {
	h.Broadcast(NewEvent(t, data))
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Sweep drops subscribers silent for more than two heartbeats and pings the rest.
func (h *Hub) Sweep() {
	now := h.now()
	deadline := 2 * h.heartbeat

	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		silent := now.Sub(time.Unix(0, s.lastSeen.Load()))
		if silent > deadline {
			h.drop(s, &DeliveryError{Subscriber: s.id, Err: fmt.Errorf("silent for %s", silent.Round(time.Millisecond))})
			continue
		}
		if err := s.sink.Ping(); err != nil {
			h.drop(s, &DeliveryError{Subscriber: s.id, Err: err})
		}
	}
}

// Run sweeps every heartbeat until ctx is done, then removes all subscribers.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.Sweep()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()
	for _, s := range subs {
		h.drop(s, nil)
	}
}
