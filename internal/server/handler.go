package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
)

// errCancelled means the player backed out of a flow, either with the
// cancellation token or by exhausting the invalid-input retries.
var errCancelled = errors.New("cancelled by player")

// SessionHandler is the per-client control loop: it performs the name
// exchange, owns the session's place in the registry, and dispatches every
// incoming line to chat, trivia or the match coordinator. One handler runs
// per connection on its own goroutine; the connection's read side belongs
// exclusively to it.
type SessionHandler struct {
	registry    *Registry
	trivia      *Trivia
	matchmaker  *Matchmaker
	clock       quartz.Clock
	cfg         Config
	machineMove func() Move
	logger      zerolog.Logger

	conn    Conn
	session *Session
}

func newSessionHandler(registry *Registry, trivia *Trivia, matchmaker *Matchmaker, clock quartz.Clock, cfg Config, machineMove func() Move, logger zerolog.Logger, conn Conn) *SessionHandler {
	return &SessionHandler{
		registry:    registry,
		trivia:      trivia,
		matchmaker:  matchmaker,
		clock:       clock,
		cfg:         cfg,
		machineMove: machineMove,
		logger:      logger.With().Str("component", "handler").Str("remote", conn.RemoteAddr()).Logger(),
		conn:        conn,
	}
}

// Run drives the session from name exchange to disconnect. It returns only
// when the connection is done; the deferred unregister is the last thing
// that happens to the session.
func (h *SessionHandler) Run() {
	defer func() { _ = h.conn.Close() }()

	name, err := h.handshake()
	if err != nil {
		h.logger.Debug().Err(err).Msg("handshake failed")
		return
	}

	sess := NewSession(h.registry.NextID(), name, h.conn)
	if err := h.registry.Register(sess); err != nil {
		h.logger.Error().Err(err).Msg("could not register session")
		return
	}
	h.session = sess
	h.logger = h.logger.With().Int64("session_id", sess.ID).Str("name", name).Logger()

	defer func() {
		h.registry.Unregister(sess.ID)
		h.registry.Broadcast(fmt.Sprintf(msgLeft, name), sess.ID)
		h.logger.Info().Msg("session ended")
	}()

	_ = sess.Send(fmt.Sprintf(msgWelcome, name))
	_ = sess.SendAll(menuLines()...)
	h.registry.Broadcast(fmt.Sprintf(msgJoined, name), sess.ID)

	h.loop()
}

// handshake reads the display name; the first line a client sends is its
// name. Blank names are re-prompted a few times before giving up.
func (h *SessionHandler) handshake() (string, error) {
	for attempt := 0; attempt < h.cfg.NameAttempts; attempt++ {
		if err := h.conn.SendLine(msgAskName); err != nil {
			return "", err
		}
		line, err := h.conn.ReadLine()
		if err != nil {
			return "", err
		}
		if name := strings.TrimSpace(line); name != "" {
			return name, nil
		}
	}
	return "", errors.New("no name provided")
}

// loop dispatches lines in precedence order: game-start commands, trivia
// answers while a round is open, the stop token, then the chat rules.
func (h *SessionHandler) loop() {
	sess := h.session
	for {
		line, err := h.conn.ReadLine()
		if err != nil {
			h.logger.Debug().Err(err).Msg("read loop ended")
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case line == CmdTrivia:
			if err := h.trivia.Start(); errors.Is(err, ErrTriviaRunning) {
				_ = sess.Send(msgTriviaRunning)
			}

		case line == CmdRPS:
			if err := h.runRPS(); err != nil {
				return
			}

		case line == CmdWho:
			h.sendRoster()

		case h.trivia.Active() && !sess.InMenuNow():
			h.trivia.Submit(sess, line)

		case line == CmdBye:
			_ = sess.Send(fmt.Sprintf(msgFarewell, sess.Name))
			return

		case sess.InMenuNow() && h.registry.Count() == 2:
			h.sendPrivate(line)

		case sess.InMenuNow():
			_ = sess.Send(msgMenuReminder)

		default:
			h.registry.Broadcast(fmt.Sprintf(msgRoomLine, sess.Name, line), sess.ID)
		}
	}
}

func (h *SessionHandler) sendRoster() {
	_ = h.session.Send(msgWhoHeader)
	for _, s := range h.registry.Snapshot() {
		_ = h.session.Send("- " + s.Name)
	}
}

// sendPrivate delivers a line to the only other registered session. The
// two-party condition was checked at dispatch; if the roster changed since,
// fall back to a room broadcast.
func (h *SessionHandler) sendPrivate(line string) {
	for _, other := range h.registry.Snapshot() {
		if other.ID != h.session.ID {
			_ = other.Send(fmt.Sprintf(msgPrivate, h.session.Name, line))
			return
		}
	}
	h.registry.Broadcast(fmt.Sprintf(msgRoomLine, h.session.Name, line), h.session.ID)
}

// runRPS handles the whole rock-paper-scissors flow: mode selection, then
// either the machine loop or matchmaking plus the match round loop. A nil
// return means the session goes back to the menu; an error means the
// connection is dead.
func (h *SessionHandler) runRPS() error {
	sess := h.session
	sess.SetMenuState(InGame)
	defer func() {
		sess.SetMenuState(InMenu)
		_ = sess.Send(msgBackToChat)
		_ = sess.SendAll(menuLines()...)
	}()

	mode, err := h.askMode()
	switch {
	case errors.Is(err, errCancelled):
		return nil
	case err != nil:
		return err
	}

	if mode == 1 {
		return h.runVsMachine()
	}
	return h.runVsPlayer()
}

// askMode reads the 1/2 mode selection with bounded retries.
func (h *SessionHandler) askMode() (int, error) {
	for attempt := 0; attempt < h.cfg.MoveAttempts; attempt++ {
		if err := h.session.Send(msgRPSModePrompt); err != nil {
			return 0, err
		}
		line, err := h.conn.ReadLine()
		if err != nil {
			return 0, err
		}
		switch strings.TrimSpace(line) {
		case "1":
			return 1, nil
		case "2":
			return 2, nil
		}
		if isCancel(line) {
			return 0, errCancelled
		}
		_ = h.session.Send(msgRPSModeInvalid)
	}
	return 0, errCancelled
}

// readMove prompts for one move with bounded invalid-input retries. The
// cancellation token, or running out of attempts, yields errCancelled; any
// connection error is passed through.
func (h *SessionHandler) readMove() (Move, error) {
	for attempt := 0; attempt < h.cfg.MoveAttempts; attempt++ {
		if err := h.session.Send(msgMovePrompt); err != nil {
			return "", err
		}
		line, err := h.conn.ReadLine()
		if err != nil {
			return "", err
		}
		if isCancel(line) {
			return "", errCancelled
		}
		if mv, ok := NormalizeMove(line); ok {
			return mv, nil
		}
		_ = h.session.Send(msgMoveInvalid)
	}
	_ = h.session.Send(msgMoveAttempts)
	return "", errCancelled
}

// askReplay reads the replay vote with a bounded wait; a timed-out or
// unreadable reply counts as no.
func (h *SessionHandler) askReplay() (bool, error) {
	if err := h.session.Send(msgReplayPrompt); err != nil {
		return false, err
	}
	_ = h.conn.SetReadDeadline(time.Now().Add(h.cfg.ReplayTimeout))
	line, err := h.conn.ReadLine()
	_ = h.conn.SetReadDeadline(time.Time{})
	if err != nil {
		if IsTimeout(err) {
			return false, nil
		}
		return false, err
	}
	return isAffirmative(line), nil
}

// runVsMachine plays against the server's move generator. Only a tie offers
// a replay; a decisive result returns straight to the menu.
func (h *SessionHandler) runVsMachine() error {
	sess := h.session
	_ = sess.Send(msgMachineIntro)
	for {
		mv, err := h.readMove()
		switch {
		case errors.Is(err, errCancelled):
			return nil
		case err != nil:
			return err
		}

		machine := h.machineMove()
		_ = sess.Send(fmt.Sprintf(msgRoundMoves, mv, machine))
		_ = sess.Send(outcomeLine(mv, machine))

		if Decide(mv, machine) != OutcomeTie {
			return nil
		}
		again, err := h.askReplay()
		if err != nil {
			return err
		}
		if !again {
			return nil
		}
	}
}

// runVsPlayer asks the matchmaker for an opponent and runs the match loop.
func (h *SessionHandler) runVsPlayer() error {
	sess := h.session
	_ = sess.Send(msgSearching)

	m, role, err := h.matchmaker.Find(sess)
	if errors.Is(err, ErrNobodyJoined) {
		_ = sess.Send(msgNobodyJoined)
		return nil
	}

	_ = sess.Send(fmt.Sprintf(msgMatchedWith, m.Peer(role).Name))
	return h.runMatch(m, role)
}

// runMatch is one side of the player-vs-player round loop. Both sides run
// it concurrently against the shared match. Whoever aborts the match also
// notifies the peer; a side that merely observes the abort exits quietly
// (its own notice already arrived on its connection).
func (h *SessionHandler) runMatch(m *Match, role Role) error {
	for {
		round := m.Round()

		mv, err := h.readMove()
		switch {
		case errors.Is(err, errCancelled):
			m.Abort(AbortCancelled)
			_ = m.Peer(role).Send(msgMatchCancelled)
			_ = h.session.Send(msgMatchCancelled)
			return nil
		case err != nil:
			m.Abort(AbortDisconnected)
			_ = m.Peer(role).Send(msgPeerLeft)
			return err
		}
		m.SubmitMove(role, mv)

		// The move wait is unbounded: the peer has its own retry budget and
		// every abort path wakes this.
		if err := m.WaitState(MatchResolved, round, 0); err != nil {
			return nil
		}

		if res, computed := m.Resolve(); computed {
			p1, p2 := m.Player(RolePlayer1), m.Player(RolePlayer2)
			_ = p1.Send(fmt.Sprintf(msgRoundMoves, res.Moves[0], res.Moves[1]))
			_ = p1.Send(outcomeLine(res.Moves[0], res.Moves[1]))
			_ = p2.Send(fmt.Sprintf(msgRoundMoves, res.Moves[1], res.Moves[0]))
			_ = p2.Send(outcomeLine(res.Moves[1], res.Moves[0]))
		}
		if err := m.WaitState(MatchAwaitingReplay, round, 0); err != nil {
			return nil
		}

		again, err := h.askReplay()
		if err != nil {
			m.Abort(AbortDisconnected)
			_ = m.Peer(role).Send(msgPeerLeft)
			return err
		}
		m.SubmitReplay(role, again)

		if err := m.WaitState(MatchDecided, round, h.cfg.ReplayTimeout); err != nil {
			if errors.Is(err, ErrWaitTimeout) {
				m.ForceDecide()
			} else {
				return nil
			}
		}
		if !m.PlayAgain() {
			return nil
		}
		m.NextRound(round)
	}
}
