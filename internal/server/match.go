package server

import (
	"errors"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
)

// MatchState is the per-round phase of a player-vs-player match. Transitions
// are monotonic within one round and happen under the match lock:
//
//	AwaitingMoves -> Resolved -> AwaitingReplay -> Decided
//
// A replay agreed by both players starts the next round by bumping the round
// counter and returning to AwaitingMoves.
type MatchState int

const (
	MatchAwaitingMoves MatchState = iota
	MatchResolved
	MatchAwaitingReplay
	MatchDecided
)

// Role identifies a participant within one match.
type Role int

const (
	RolePlayer1 Role = iota
	RolePlayer2
)

func (r Role) index() int { return int(r) }

// Opponent returns the other role.
func (r Role) Opponent() Role {
	if r == RolePlayer1 {
		return RolePlayer2
	}
	return RolePlayer1
}

var (
	ErrMatchAborted = errors.New("match aborted")
	ErrWaitTimeout  = errors.New("wait timed out")
)

// Abort reasons, surfaced to the surviving player so it can pick the right
// notice.
const (
	AbortDisconnected = "disconnected"
	AbortCancelled    = "cancelled"
)

type replayVote int

const (
	voteNone replayVote = iota
	voteYes
	voteNo
)

// RoundResult is one resolved round, with the outcome from player1's
// perspective.
type RoundResult struct {
	Moves   [2]Move
	Outcome Outcome
}

// Match coordinates one rock-paper-scissors match between two sessions whose
// handlers run on their own goroutines. All mutable state sits behind one
// lock; WaitState is the rendezvous primitive both sides block on.
type Match struct {
	clock  quartz.Clock
	logger zerolog.Logger

	// joined is closed exactly once, when player2 claims the match.
	joined chan struct{}

	mu          sync.Mutex
	players     [2]*Session
	state       MatchState
	round       int
	moves       [2]Move
	votes       [2]replayVote
	resultSent  bool
	playAgain   bool
	aborted     bool
	abortReason string
	changed     chan struct{}
}

func newMatch(p1 *Session, clock quartz.Clock, logger zerolog.Logger) *Match {
	m := &Match{
		clock:   clock,
		logger:  logger.With().Str("component", "match").Int64("player1", p1.ID).Logger(),
		joined:  make(chan struct{}),
		changed: make(chan struct{}),
	}
	m.players[RolePlayer1.index()] = p1
	return m
}

// join installs player2 and wakes the waiting player1. Called by the
// matchmaker under its own lock; participant identity is immutable after
// this point.
func (m *Match) join(p2 *Session) {
	m.mu.Lock()
	m.players[RolePlayer2.index()] = p2
	m.mu.Unlock()
	close(m.joined)
}

// notifyLocked wakes every WaitState caller. Callers re-check the state and
// go back to sleep on the fresh channel if their condition still holds.
func (m *Match) notifyLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}

// Player returns the session holding the given role.
func (m *Match) Player(role Role) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.players[role.index()]
}

// Peer returns the opposing session.
func (m *Match) Peer(role Role) *Session {
	return m.Player(role.Opponent())
}

// Round returns the current round number, starting at 0.
func (m *Match) Round() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.round
}

// WaitState blocks until the match reaches at least min within the given
// round, the round has moved past it, the match is aborted, or the timeout
// elapses. A timeout of zero waits indefinitely (still abort-safe).
func (m *Match) WaitState(min MatchState, round int, timeout time.Duration) error {
	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := m.clock.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	m.mu.Lock()
	for {
		switch {
		case m.aborted:
			m.mu.Unlock()
			return ErrMatchAborted
		case m.round > round || m.state >= min:
			m.mu.Unlock()
			return nil
		}
		ch := m.changed
		m.mu.Unlock()

		select {
		case <-ch:
		case <-timeoutC:
			return ErrWaitTimeout
		}
		m.mu.Lock()
	}
}

// SubmitMove records a player's normalized move. When both moves are in,
// the round transitions to Resolved and both waiters wake.
func (m *Match) SubmitMove(role Role, mv Move) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.aborted || m.state != MatchAwaitingMoves {
		return
	}
	m.moves[role.index()] = mv
	if m.moves[0] != "" && m.moves[1] != "" {
		m.state = MatchResolved
		m.notifyLocked()
	}
}

// Resolve computes the round result. Both sides call it after observing
// Resolved; exactly one gets computed=true and owns announcing the result.
// The winning transition to AwaitingReplay rides on the same critical
// section so the result is computed exactly once per round.
func (m *Match) Resolve() (res RoundResult, computed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res = RoundResult{Moves: m.moves, Outcome: Decide(m.moves[0], m.moves[1])}
	if m.state == MatchResolved && !m.resultSent {
		m.resultSent = true
		m.state = MatchAwaitingReplay
		m.notifyLocked()
		return res, true
	}
	return res, false
}

// SubmitReplay records a player's replay vote. Once both votes are in the
// match is Decided; the round repeats only if both said yes.
func (m *Match) SubmitReplay(role Role, yes bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.aborted || m.state != MatchAwaitingReplay {
		return
	}
	if yes {
		m.votes[role.index()] = voteYes
	} else {
		m.votes[role.index()] = voteNo
	}
	if m.votes[0] != voteNone && m.votes[1] != voteNone {
		m.decideLocked()
	}
}

// ForceDecide closes the replay vote after a bounded wait expired. A missing
// vote counts as no.
func (m *Match) ForceDecide() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.aborted || m.state != MatchAwaitingReplay {
		return
	}
	m.decideLocked()
}

func (m *Match) decideLocked() {
	m.playAgain = m.votes[0] == voteYes && m.votes[1] == voteYes
	m.state = MatchDecided
	m.notifyLocked()
}

// PlayAgain reports the replay decision of the current round.
func (m *Match) PlayAgain() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playAgain && !m.aborted
}

// NextRound resets the per-round fields for the round after fromRound. Both
// sides call it; the first caller performs the reset, the second observes
// the bumped round counter and does nothing.
func (m *Match) NextRound(fromRound int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.aborted || m.round != fromRound || !m.playAgain {
		return
	}
	// playAgain survives the reset on purpose: the slower side still has to
	// observe the yes decision of the finished round. The next round's vote
	// overwrites it.
	m.round++
	m.moves = [2]Move{}
	m.votes = [2]replayVote{}
	m.resultSent = false
	m.state = MatchAwaitingMoves
	m.notifyLocked()
}

// Abort ends the match for both sides: every WaitState returns
// ErrMatchAborted and further submissions are ignored. Safe to call more
// than once; the first reason wins.
func (m *Match) Abort(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.aborted {
		return
	}
	m.aborted = true
	m.abortReason = reason
	m.notifyLocked()
	m.logger.Debug().Str("reason", reason).Msg("match aborted")
}

// AbortReason returns why the match ended, if Abort was called.
func (m *Match) AbortReason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.abortReason
}

// Aborted reports whether the match has been torn down.
func (m *Match) Aborted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aborted
}
