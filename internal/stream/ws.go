package stream

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/penwyp/podscope/internal/util"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ServeWebSocket upgrades the request and relays session events as text
// frames. A client close or read error disconnects the session.
func ServeWebSocket(w http.ResponseWriter, r *http.Request, s *Session) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Close()
		util.LogWarn("WebSocket upgrade failed", util.F("session", s.ID()), util.F("error", err))
		return
	}
	defer conn.Close()

	// Reader goroutine only detects the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			s.Close()
			return
		case ev, ok := <-s.Events():
			if !ok {
				writeClose(conn)
				return
			}
			data, err := sonic.Marshal(ev)
			if err != nil {
				util.LogError("Encode stream event failed", util.F("session", s.ID()), util.F("error", err))
				s.Close()
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.Close()
				return
			}
			if ev.Terminal() {
				writeClose(conn)
				return
			}
		}
	}
}

func writeClose(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
