package broadcast

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"stealth-signal-bot/internal/config"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu      sync.Mutex
	events  []Event
	sendErr error
	pingErr error
	block   chan struct{}
	closed  bool
	pings   int
}

func (s *recordingSink) Send(e Event) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pings++
	return s.pingErr
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) received() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *recordingSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func newTestHub(queueSize int) *Hub {
	return NewHub(config.Broadcast{Heartbeat: time.Minute, QueueSize: queueSize}, zap.NewNop())
}

func TestHub_BroadcastReachesEverySubscriber(t *testing.T) {
	// Arrange
	hub := newTestHub(16)
	sinks := make([]*recordingSink, 5)
	for i := range sinks {
		sinks[i] = &recordingSink{}
		hub.Subscribe(sinks[i])
	}

	// Act
	hub.Publish(EventSignal, map[string]string{"symbol": "AAPL"})
	hub.Publish(EventTrade, map[string]string{"symbol": "AAPL"})

	// Assert
	for _, s := range sinks {
		s := s
		assert.Eventually(t, func() bool { return len(s.received()) == 2 }, time.Second, 5*time.Millisecond)
		got := s.received()
		assert.Equal(t, EventSignal, got[0].Type)
		assert.Equal(t, EventTrade, got[1].Type)
	}
	assert.Equal(t, 5, hub.Count())
}

func TestHub_ChannelFilter(t *testing.T) {
	hub := newTestHub(16)
	sink := &recordingSink{}
	sub := hub.Subscribe(sink)
	sub.SetChannels([]EventType{EventAlert})

	hub.Publish(EventSignal, nil)
	hub.Publish(EventAlert, Alert{Level: "info", Message: "closed"})

	assert.Eventually(t, func() bool { return len(sink.received()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, EventAlert, sink.received()[0].Type)
}

func TestHub_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	// Arrange
	hub := newTestHub(4)
	slow := &recordingSink{block: make(chan struct{})}
	fast := &recordingSink{}
	slowSub := hub.Subscribe(slow)
	hub.Subscribe(fast)

	// Act
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish(EventMarketUpdate, i)
		}
		close(done)
	}()

	// Assert
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}
	assert.Eventually(t, func() bool {
		got := fast.received()
		return len(got) > 0 && got[len(got)-1].Data == 99
	}, time.Second, 5*time.Millisecond, "the newest event always survives")
	assert.Greater(t, slowSub.Dropped(), int64(0))

	close(slow.block)
}

func TestQueue_DropsOldest(t *testing.T) {
	q := newQueue(3)
	for i := 0; i < 5; i++ {
		q.push(Event{Data: i})
	}

	got := q.drain()

	require.Len(t, got, 3)
	assert.Equal(t, 2, got[0].Data)
	assert.Equal(t, 4, got[2].Data)
	assert.Equal(t, 0, q.len())
}

func TestHub_FailingSinkIsDropped(t *testing.T) {
	hub := newTestHub(4)
	bad := &recordingSink{sendErr: errors.New("broken pipe")}
	good := &recordingSink{}
	badSub := hub.Subscribe(bad)
	hub.Subscribe(good)

	hub.Publish(EventSignal, nil)

	select {
	case <-badSub.Done():
	case <-time.After(time.Second):
		t.Fatal("failing subscriber was not removed")
	}
	assert.True(t, bad.isClosed())
	assert.Equal(t, 1, hub.Count())
	assert.Eventually(t, func() bool { return len(good.received()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestHub_SweepDropsSilentPeers(t *testing.T) {
	// Arrange
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	hub := NewHub(config.Broadcast{Heartbeat: 10 * time.Second, QueueSize: 4}, zap.NewNop(), WithClock(clock))
	silent := &recordingSink{}
	alive := &recordingSink{}
	silentSub := hub.Subscribe(silent)
	aliveSub := hub.Subscribe(alive)

	// Act
	mu.Lock()
	now = now.Add(25 * time.Second)
	mu.Unlock()
	aliveSub.Touch()
	hub.Sweep()

	// Assert
	<-silentSub.Done()
	assert.True(t, silent.isClosed())
	assert.Equal(t, 1, hub.Count())
	assert.Equal(t, 1, alive.pings)
}

func TestHub_PingFailureDrops(t *testing.T) {
	hub := newTestHub(4)
	sink := &recordingSink{pingErr: errors.New("gone")}
	sub := hub.Subscribe(sink)

	hub.Sweep()

	<-sub.Done()
	assert.Equal(t, 0, hub.Count())
}

func TestHub_ChurnLeavesNothingBehind(t *testing.T) {
	hub := newTestHub(8)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := hub.Subscribe(&recordingSink{})
			hub.Publish(EventBotStatus, nil)
			hub.Unsubscribe(sub.ID())
			hub.Unsubscribe(sub.ID())
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, hub.Count())
}

func TestServeWS(t *testing.T) {
	// Arrange
	hub := newTestHub(16)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventConnected, ev.Type)

	t.Run("ping is answered with pong", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(clientMessage{Type: "ping"}))
		var got Event
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, EventPong, got.Type)
	})

	t.Run("subscribe filters the stream", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(clientMessage{Type: "subscribe", Channels: []string{"trade"}}))
		var got Event
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, EventSubscribed, got.Type)

		hub.Publish(EventSignal, nil)
		hub.Publish(EventTrade, map[string]string{"symbol": "TSLA"})

		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, EventTrade, got.Type)
	})

	t.Run("closing the socket unsubscribes", func(t *testing.T) {
		require.NoError(t, conn.Close())
		assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
	})
}
