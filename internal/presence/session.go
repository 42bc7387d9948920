package presence

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Channel is one live connection to a rider or captain. Implementations must
// be safe for concurrent Send.
type Channel interface {
	Send(event string, payload any) error
	Close() error
}

// Envelope is the wire frame: one event name, one JSON payload.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Session wraps a websocket connection. gorilla/websocket allows one
// concurrent writer, so writes are serialized with a mutex.
type Session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func NewSession(conn *websocket.Conn) *Session {
	return &Session{conn: conn}
}

func (s *Session) Send(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(Envelope{Event: event, Data: payload})
}

func (s *Session) Close() error {
	return s.conn.Close()
}
