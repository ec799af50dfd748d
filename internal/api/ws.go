package api

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The lab control plane is open; origins are not restricted.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn serializes writes to one websocket client. The stream pump and
// the ping/pong responder both write, so a lock is required.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// handleFlowStream streams every ingested, enriched flow to the client
// as {"type":"flow","data":...} envelopes.
func (s *Server) handleFlowStream(w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("flow stream upgrade failed", zap.Error(err))
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.Close()

	ch := s.broadcaster.Subscribe(256)
	defer s.broadcaster.Unsubscribe(ch)

	s.logger.Info("flow stream client connected", zap.String("remote", raw.RemoteAddr().String()))
	conn.writeJSON(map[string]any{
		"type":      "connected",
		"message":   "Connected to NetFlow stream",
		"timestamp": nowISO(),
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for f := range ch {
			if err := conn.writeJSON(map[string]any{"type": "flow", "data": f}); err != nil {
				return
			}
		}
	}()

	s.keepalive(conn, done)
	s.logger.Info("flow stream client disconnected", zap.String("remote", raw.RemoteAddr().String()))
}

// handleNotificationStream streams trigger events as they dispatch.
func (s *Server) handleNotificationStream(w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("notification stream upgrade failed", zap.Error(err))
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.Close()

	ch := s.notifier.Subscribe(64)
	defer s.notifier.Unsubscribe(ch)

	s.logger.Info("notification client connected", zap.String("remote", raw.RemoteAddr().String()))
	conn.writeJSON(map[string]any{
		"type":      "connected",
		"message":   "Connected to NetFlow notifications",
		"timestamp": nowISO(),
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for n := range ch {
			if err := conn.writeJSON(n); err != nil {
				return
			}
		}
	}()

	s.keepalive(conn, done)
	s.logger.Info("notification client disconnected", zap.String("remote", raw.RemoteAddr().String()))
}

// keepalive reads client messages until the connection or the stream
// pump ends, answering each with a pong envelope.
func (s *Server) keepalive(conn *wsConn, pumpDone <-chan struct{}) {
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.conn.ReadMessage(); err != nil {
				return
			}
			if err := conn.writeJSON(map[string]any{"type": "pong", "timestamp": nowISO()}); err != nil {
				return
			}
		}
	}()

	select {
	case <-pumpDone:
	case <-readDone:
	}
}
