package server

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ErrDuplicateID means Register saw an id it already holds. Ids come from a
// monotonic counter, so this only fires when a test wires sessions up wrong.
var ErrDuplicateID = errors.New("session id already registered")

// NoExclude is the sentinel for Broadcast calls that reach every session.
const NoExclude int64 = 0

// Registry is the roster of connected sessions. One lock guards the map;
// every iteration works on a snapshot taken under the lock so no network
// write ever happens while it is held.
//
// Lock order: when the registry lock and the trivia lock are both needed,
// the registry lock is taken first.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[int64]*Session
	idCounter atomic.Int64
	logger    zerolog.Logger
}

// NewRegistry creates an empty roster.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		sessions: make(map[int64]*Session),
		logger:   logger.With().Str("component", "registry").Logger(),
	}
}

// NextID hands out session ids, monotonically from 1. Ids are never reused.
func (r *Registry) NextID() int64 {
	return r.idCounter.Add(1)
}

// Register adds a session to the roster.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return ErrDuplicateID
	}
	r.sessions[s.ID] = s
	r.logger.Info().Int64("session_id", s.ID).Str("name", s.Name).Int("total", len(r.sessions)).Msg("session registered")
	return nil
}

// Unregister removes a session; removing an absent id is a no-op.
func (r *Registry) Unregister(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)
	r.logger.Info().Int64("session_id", id).Int("total", len(r.sessions)).Msg("session unregistered")
}

// Lookup returns the session with the given id, if present.
func (r *Registry) Lookup(id int64) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// LookupByConn finds the session that owns conn.
func (r *Registry) LookupByConn(conn Conn) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.conn == conn {
			return s, true
		}
	}
	return nil, false
}

// SetMenuState flips the menu flag of the session with the given id; a
// missing id is a no-op.
func (r *Registry) SetMenuState(id int64, state MenuState) {
	if s, ok := r.Lookup(id); ok {
		s.SetMenuState(state)
	}
}

// Count returns the current roster size.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns a point-in-time copy of the roster ordered by session id,
// for iteration without holding the lock.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Broadcast sends line to every registered session except exclude
// (NoExclude reaches everyone). Delivery is best effort per recipient: a
// failed send is logged and does not stop the rest.
func (r *Registry) Broadcast(line string, exclude int64) {
	recipients := r.Snapshot()

	sent := 0
	for _, s := range recipients {
		if s.ID == exclude {
			continue
		}
		if err := s.Send(line); err != nil {
			r.logger.Debug().Err(err).Int64("session_id", s.ID).Str("name", s.Name).Msg("broadcast send failed")
			continue
		}
		sent++
	}
	r.logger.Debug().Int("recipients", sent).Msg("broadcast delivered")
}
