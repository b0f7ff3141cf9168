package server

import (
	"sync"
)

// MenuState tracks whether a session's free text belongs to the chat menu
// or to whatever game it is inside.
type MenuState int

const (
	InMenu MenuState = iota
	InGame
)

func (m MenuState) String() string {
	switch m {
	case InMenu:
		return "menu"
	case InGame:
		return "game"
	default:
		return "unknown"
	}
}

// Session is one connected client's server-side state. The handler owns the
// connection's read side; Send may be called from any goroutine.
type Session struct {
	ID   int64
	Name string

	conn  Conn
	mu    sync.RWMutex
	state MenuState
}

// NewSession creates a session in the menu state. Name is trimmed of any
// line terminators by the caller.
func NewSession(id int64, name string, conn Conn) *Session {
	return &Session{
		ID:    id,
		Name:  name,
		conn:  conn,
		state: InMenu,
	}
}

// Send writes one line to the client, best effort.
func (s *Session) Send(line string) error {
	return s.conn.SendLine(line)
}

// SendAll writes several lines in order, stopping at the first failure.
func (s *Session) SendAll(lines ...string) error {
	for _, line := range lines {
		if err := s.conn.SendLine(line); err != nil {
			return err
		}
	}
	return nil
}

// Conn exposes the underlying connection to the session's own handler.
func (s *Session) Conn() Conn {
	return s.conn
}

func (s *Session) MenuState() MenuState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) SetMenuState(state MenuState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// InMenuNow is a convenience for the dispatch rules in the handler.
func (s *Session) InMenuNow() bool {
	return s.MenuState() == InMenu
}
