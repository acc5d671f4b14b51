package stream

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy belongs to the reverse proxy in front of the
		// engine.
		return true
	},
}

// ServeWS streams hub events to one websocket client. The keepalive envelope
// becomes a ping control frame; any failed write drops the connection.
func ServeWS(h *Hub, w http.ResponseWriter, r *http.Request, logger zerolog.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	sub := h.Subscribe(identityFromRequest(r))

	// Read side only services pong frames and detects the peer going away.
	go func() {
		defer func() {
			h.Unsubscribe(sub)
			conn.Close()
		}()
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		defer conn.Close()
		for env := range sub.C() {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if env.Type == Keepalive {
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					h.Unsubscribe(sub)
					return
				}
				continue
			}
			if err := conn.WriteJSON(env); err != nil {
				h.Unsubscribe(sub)
				return
			}
		}
	}()
}
