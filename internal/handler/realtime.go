package handler

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/nowshin-108/capstone/internal/notify"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 1024
)

// streamMsg is a client command on the bidding stream.
type streamMsg struct {
	Action   string `json:"action"` // join-flight | leave-flight
	FlightID string `json:"flight_id"`
}

// streamReply acknowledges a command.
type streamReply struct {
	Event    string `json:"event"` // joined | left | error
	FlightID string `json:"flight_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RealtimeHandler upgrades GET /v1/bidding/stream to a WebSocket and
// forwards the events of every flight the client joined.
type RealtimeHandler struct {
	Hub      *notify.Hub
	Buffer   int
	upgrader websocket.Upgrader
}

// NewRealtimeHandler constructs a RealtimeHandler.  checkOrigin may be
// nil to accept same-origin requests only.
func NewRealtimeHandler(hub *notify.Hub, buffer int, checkOrigin func(r *http.Request) bool) *RealtimeHandler {
	return &RealtimeHandler{
		Hub:    hub,
		Buffer: buffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Stream serves one client until it disconnects.
func (h *RealtimeHandler) Stream(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil // the upgrader already wrote the error response
	}
	sub := h.Hub.NewSubscriber(h.Buffer)
	replies := make(chan streamReply, 8)
	done := make(chan struct{})

	go func() {
		defer close(done)
		writePump(conn, sub.Events(), replies)
	}()

	readPump(conn, sub, replies)
	sub.Close()
	close(replies)
	<-done
	return nil
}

// readPump handles client commands.  It returns when the connection
// fails or the client stops answering pings.
func readPump(conn *websocket.Conn, sub *notify.Subscriber, replies chan<- streamReply) {
	conn.SetReadLimit(maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg streamMsg
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("stream: read: %v", err)
			}
			return
		}
		flightID := strings.TrimSpace(msg.FlightID)
		reply := streamReply{FlightID: flightID}
		switch {
		case flightID == "":
			reply.Event, reply.Error = "error", "flight_id is required"
		case msg.Action == "join-flight":
			sub.Join(flightID)
			reply.Event = "joined"
		case msg.Action == "leave-flight":
			sub.Leave(flightID)
			reply.Event = "left"
		default:
			reply.Event, reply.Error = "error", "unknown action "+msg.Action
		}
		select {
		case replies <- reply:
		default:
		}
	}
}

// writePump is the only writer on the connection.
func writePump(conn *websocket.Conn, events <-chan notify.Event, replies <-chan streamReply) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		var payload any
		select {
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return
			}
			payload = ev
		case r, ok := <-replies:
			if !ok {
				return
			}
			payload = r
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(payload); err != nil {
			return
		}
	}
}
