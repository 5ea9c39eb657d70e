package broadcast

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// clientCommand is the only message kind subscribers send upstream
type clientCommand struct {
	Action string `json:"action"` // "history" requests the retained records
}

// ServeWS upgrades an HTTP request to a websocket subscription on the hub
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub := hub.Subscribe()

	welcome, _ := json.Marshal(Message{
		Type:      "connected",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})

	go writePump(hub.logger, conn, sub, welcome)
	go readPump(hub, conn, sub)
}

// writePump streams hub messages to the socket and keeps the connection
// alive with pings. Exits when the subscriber channel closes or a write
// fails, which drops the client.
func writePump(logger *slog.Logger, conn *websocket.Conn, sub *Subscriber, welcome []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	if welcome != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, welcome); err != nil {
			return
		}
	}

	for {
		select {
		case msg, ok := <-sub.Receive():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes client commands until the connection drops, then
// detaches the subscriber
func readPump(hub *Hub, conn *websocket.Conn, sub *Subscriber) {
	defer func() {
		sub.Close()
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				hub.logger.Debug("websocket read error", "error", err)
			}
			return
		}

		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			continue
		}
		if cmd.Action == "history" {
			data, err := json.Marshal(Message{
				Type:      "history",
				Timestamp: time.Now().UTC().Format(time.RFC3339),
				Data:      hub.History(),
			})
			if err != nil {
				continue
			}
			sub.deliver(data)
		}
	}
}
