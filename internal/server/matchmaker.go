package server

import (
	"errors"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
)

// ErrNobodyJoined means the matchmaking wait expired with no second player.
var ErrNobodyJoined = errors.New("nobody joined the match")

// Matchmaker holds the single process-wide waiting slot for player-vs-player
// matches. Claim-or-create is one critical section so two concurrent
// requests always pair up and a third starts a fresh slot.
//
// Lock order: the matchmaker lock is taken before any match lock.
type Matchmaker struct {
	clock       quartz.Clock
	logger      zerolog.Logger
	joinTimeout time.Duration

	mu      sync.Mutex
	waiting *Match
}

// NewMatchmaker creates a matchmaker whose waits are bounded by joinTimeout.
func NewMatchmaker(clock quartz.Clock, joinTimeout time.Duration, logger zerolog.Logger) *Matchmaker {
	return &Matchmaker{
		clock:       clock,
		logger:      logger.With().Str("component", "matchmaker").Logger(),
		joinTimeout: joinTimeout,
	}
}

// Find pairs s with the waiting player, or parks s as the waiting player
// until someone claims it or the join timeout expires. The timed-out party
// clears the slot itself; a claim that races the timeout is resolved under
// the lock, so a session never joins a match its owner already abandoned.
func (mm *Matchmaker) Find(s *Session) (*Match, Role, error) {
	mm.mu.Lock()
	if m := mm.waiting; m != nil {
		mm.waiting = nil
		m.join(s)
		mm.mu.Unlock()
		mm.logger.Info().Int64("player1", m.Player(RolePlayer1).ID).Int64("player2", s.ID).Msg("match formed")
		return m, RolePlayer2, nil
	}
	m := newMatch(s, mm.clock, mm.logger)
	mm.waiting = m
	mm.mu.Unlock()
	mm.logger.Debug().Int64("session_id", s.ID).Msg("waiting for an opponent")

	timer := mm.clock.NewTimer(mm.joinTimeout)
	defer timer.Stop()

	select {
	case <-m.joined:
		return m, RolePlayer1, nil
	case <-timer.C:
	}

	mm.mu.Lock()
	if mm.waiting == m {
		mm.waiting = nil
		mm.mu.Unlock()
		mm.logger.Debug().Int64("session_id", s.ID).Msg("matchmaking wait expired")
		return nil, RolePlayer1, ErrNobodyJoined
	}
	mm.mu.Unlock()

	// A claim slipped in between the timer firing and the re-check; the
	// match is real, wait out the (already sent) join signal.
	<-m.joined
	return m, RolePlayer1, nil
}

// HasWaiting reports whether a session is currently parked in the slot.
func (mm *Matchmaker) HasWaiting() bool {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.waiting != nil
}
