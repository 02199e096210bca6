package solid

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/penwyp/podscope/internal/core/constants"
	"github.com/penwyp/podscope/internal/feed"
	"github.com/penwyp/podscope/internal/util"
)

// Subprotocol is the websocket subprotocol Solid notification servers speak.
const Subprotocol = "solid-0.1"

// Open dials a provisioned receiveFrom endpoint.
func (c *Client) Open(ctx context.Context, endpoint string) (feed.EventSource, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: constants.ChannelHandshakeWait,
		Subprotocols:     []string{Subprotocol},
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, c.header.Clone())
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	src := &wsSource{
		conn:   conn,
		events: make(chan struct{}, 1),
	}
	go src.readLoop()
	util.LogInfo("WebSocket connected", util.F("endpoint", endpoint))
	return src, nil
}

// wsSource turns every websocket message into a notification. Messages carry
// activity descriptions but only their arrival matters.
type wsSource struct {
	conn   *websocket.Conn
	events chan struct{}

	mu      sync.Mutex
	closing bool
	err     error
	once    sync.Once
}

func (s *wsSource) Events() <-chan struct{} { return s.events }

func (s *wsSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *wsSource) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()

		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = s.conn.Close()
	})
	return err
}

func (s *wsSource) readLoop() {
	defer close(s.events)
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			if !s.closing && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.err = err
			} else if !s.closing {
				s.err = errors.New("server closed the channel")
			}
			s.mu.Unlock()
			util.LogDebug("WebSocket disconnected", util.F("error", err))
			return
		}
		util.LogDebug("Received update", util.F("bytes", len(message)))
		select {
		case s.events <- struct{}{}:
		default:
		}
	}
}
