package broadcast

import "time"

// EventType names an event on the stream.
type EventType string

const (
	EventSignal       EventType = "signal"
	EventTrade        EventType = "trade"
	EventBotStatus    EventType = "bot_status"
	EventMarketUpdate EventType = "market_update"
	EventAlert        EventType = "alert"

	// control messages, only sent to a single subscriber
	EventConnected  EventType = "connected"
	EventPong       EventType = "pong"
	EventSubscribed EventType = "subscribed"
)

// Channels are the event types a subscriber can filter on.
var Channels = []EventType{EventSignal, EventTrade, EventBotStatus, EventMarketUpdate, EventAlert}

// Event is the envelope delivered to subscribers.
type Event struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent stamps data with the current time.
func NewEvent(t EventType, data interface{}) Event {
	return Event{Type: t, Data: data, Timestamp: time.Now().UTC()}
}

// Alert is the payload of an alert event.
type Alert struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Symbol  string `json:"symbol,omitempty"`
}
