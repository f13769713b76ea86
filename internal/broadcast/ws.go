package broadcast

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientMessage is what peers send on the socket.
type clientMessage struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels,omitempty"`
}

type wsSink struct {
	conn *websocket.Conn
}

func (s *wsSink) Send(e Event) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(e)
}

func (s *wsSink) Ping() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (s *wsSink) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return s.conn.Close()
}

// ServeWS upgrades the request and registers the connection as a subscriber
// until the peer goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	sub := h.Subscribe(&wsSink{conn: conn})
	defer h.Unsubscribe(sub.ID())

	conn.SetPongHandler(func(string) error {
		sub.Touch()
		return nil
	})
	sub.Enqueue(NewEvent(EventConnected, map[string]interface{}{
		"subscriber": sub.ID(),
		"channels":   Channels,
		"heartbeat":  h.heartbeat.String(),
	}))

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("Websocket read failed", zap.String("subscriber", sub.ID()), zap.Error(err))
			}
			return
		}
		sub.Touch()

		switch strings.ToLower(msg.Type) {
		case "ping":
			sub.Enqueue(NewEvent(EventPong, nil))
		case "subscribe":
			types := parseChannels(msg.Channels)
			sub.SetChannels(types)
			if len(types) == 0 {
				types = Channels
			}
			sub.Enqueue(NewEvent(EventSubscribed, map[string]interface{}{"channels": types}))
		default:
			h.logger.Debug("Ignoring client message", zap.String("subscriber", sub.ID()), zap.String("type", msg.Type))
		}
	}
}

func parseChannels(names []string) []EventType {
	known := make(map[EventType]bool, len(Channels))
	for _, c := range Channels {
		known[c] = true
	}
	var out []EventType
	for _, n := range names {
		t := EventType(strings.ToLower(strings.TrimSpace(n)))
		if known[t] {
			out = append(out, t)
		}
	}
	return out
}
