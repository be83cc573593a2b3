package realtime

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const writeWait = 10 * time.Second

// clientMessage is the inbound subscribe/unsubscribe envelope from
// spec §4.7's WebSocket subprotocol.
type clientMessage struct {
	Subscribe   []string `json:"subscribe,omitempty"`
	Unsubscribe []string `json:"unsubscribe,omitempty"`
}

// ServeWS upgrades the connection and pumps subscribed events to the
// client until it disconnects. Mounted at "/" same-origin as the read API
// per spec §4.8.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	id, events := h.subscribe(nil)
	defer h.unsubscribeAll(id)

	done := make(chan struct{})
	go h.readLoop(conn, id, done)
	h.writeLoop(conn, events, done)
}

func (h *Hub) readLoop(conn *websocket.Conn, id uint64, done chan struct{}) {
	defer close(done)
	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if len(msg.Subscribe) > 0 {
			h.addTopics(id, msg.Subscribe)
		}
		if len(msg.Unsubscribe) > 0 {
			h.removeTopics(id, msg.Unsubscribe)
		}
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, events <-chan Event, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
