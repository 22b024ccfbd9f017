package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pollstream/internal/broadcast"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// @Summary     Live results feed
// @Description Upgrades to a WebSocket and emits one {pollOptionId, votes} message per counter change.
// @Tags        polls
// @Param       pollId  path  string  true  "Poll ID"
// @Success     101
// @Failure     400  {object}  map[string]string  "invalid poll id"
// @Router      /polls/{pollId}/results [get]
func (h *Handler) handlePollResults(w http.ResponseWriter, r *http.Request) {
	pollID, err := parseUUIDParam(r, "pollId")
	if err != nil {
		errorResponse(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}

	sub := &wsSubscriber{conn: conn, writeTimeout: h.wsWriteTimeout}
	handle := h.hub.Subscribe(pollID, sub)

	// The read loop exists only to detect the peer going away. Its exit
	// deregisters the subscription promptly so the hub never accumulates
	// dead connections. Unsubscribe is idempotent, so racing with the
	// hub's own delivery-failure cleanup is fine.
	go func() {
		defer h.hub.Unsubscribe(handle)
		defer conn.Close()
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// wsSubscriber adapts one WebSocket connection to the hub's Subscriber
// interface. Writes are serialized by the mutex; gorilla connections do
// not allow concurrent writers.
type wsSubscriber struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (s *wsSubscriber) Deliver(ev broadcast.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteJSON(ev)
}

func (s *wsSubscriber) Close() {
	_ = s.conn.Close()
}
