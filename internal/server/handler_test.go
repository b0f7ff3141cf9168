package server

import (
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
)

type handlerFixture struct {
	registry   *Registry
	trivia     *Trivia
	matchmaker *Matchmaker
	clock      quartz.Clock
	cfg        Config
	machine    Move
}

func newHandlerFixture(clock quartz.Clock) *handlerFixture {
	cfg := DefaultConfig()
	cfg.Questions = []Question{{Text: "2+2?", Answer: "4"}}
	cfg.QuestionPause = 0

	registry := NewRegistry(testLogger())
	return &handlerFixture{
		registry:   registry,
		trivia:     NewTrivia(registry, clock, cfg.Questions, cfg.AnswerWindow, cfg.QuestionPause, testLogger()),
		matchmaker: NewMatchmaker(clock, cfg.JoinTimeout, testLogger()),
		clock:      clock,
		cfg:        cfg,
		machine:    MoveScissors,
	}
}

// connect runs a handler goroutine for a fake client that introduces itself
// with name, and waits for it to appear in the roster.
func (f *handlerFixture) connect(t *testing.T, name string) (*fakeConn, *Session) {
	t.Helper()
	conn := newFakeConn()
	conn.push(name)

	h := newSessionHandler(f.registry, f.trivia, f.matchmaker, f.clock, f.cfg, func() Move { return f.machine }, testLogger(), conn)
	go h.Run()

	var sess *Session
	waitForCondition(t, func() bool {
		for _, s := range f.registry.Snapshot() {
			if s.Name == name && s.Conn() == Conn(conn) {
				sess = s
				return true
			}
		}
		return false
	}, time.Second, name+" should be registered")
	return conn, sess
}

func TestHandlerWelcomeContainsName(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(quartz.NewReal())

	conn, sess := f.connect(t, "Ana")
	conn.waitForLine(t, "Bienvenido/a, Ana!", time.Second)
	conn.waitForLine(t, msgMenuHeader, time.Second)
	assert.Equal(t, InMenu, sess.MenuState())
}

func TestHandlerRepromptsEmptyName(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(quartz.NewReal())

	conn := newFakeConn()
	conn.push("", "   ", "Ana")
	h := newSessionHandler(f.registry, f.trivia, f.matchmaker, f.clock, f.cfg, func() Move { return f.machine }, testLogger(), conn)
	go h.Run()

	waitForCondition(t, func() bool { return f.registry.Count() == 1 }, time.Second, "Ana should register after re-prompts")
	conn.waitForLine(t, "Bienvenido/a, Ana!", time.Second)
}

func TestHandlerJoinNoticeBroadcast(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(quartz.NewReal())

	anaConn, _ := f.connect(t, "Ana")
	_, _ = f.connect(t, "Beto")

	anaConn.waitForLine(t, "Beto se ha unido a la sala.", time.Second)
}

func TestHandlerPrivateChatBetweenTwo(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(quartz.NewReal())

	anaConn, _ := f.connect(t, "Ana")
	betoConn, _ := f.connect(t, "Beto")

	anaConn.push("hola")

	betoConn.waitForLine(t, "Ana (privado): hola", time.Second)
	assert.False(t, anaConn.hasLine("Ana (privado): hola"), "sender does not receive its own private line")
}

func TestHandlerMenuReminderWhenNotTwoParty(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(quartz.NewReal())

	anaConn, _ := f.connect(t, "Ana")
	anaConn.push("hola")
	anaConn.waitForLine(t, msgMenuReminder, time.Second)
}

func TestHandlerRoomBroadcastWhenInGame(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(quartz.NewReal())

	anaConn, ana := f.connect(t, "Ana")
	betoConn, _ := f.connect(t, "Beto")

	// A session left in the game state outside a recognized flow falls back
	// to the room broadcast.
	ana.SetMenuState(InGame)
	anaConn.push("hola sala")

	betoConn.waitForLine(t, "Ana: hola sala", time.Second)
}

func TestHandlerByeFarewellAndUnregister(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(quartz.NewReal())

	anaConn, _ := f.connect(t, "Ana")
	betoConn, _ := f.connect(t, "Beto")

	anaConn.push(CmdBye)

	anaConn.waitForLine(t, "Hasta pronto, Ana!", time.Second)
	waitForCondition(t, func() bool { return f.registry.Count() == 1 }, time.Second, "Ana should unregister on BYE")
	betoConn.waitForLine(t, "Ana ha salido de la sala.", time.Second)
}

func TestHandlerRosterCommand(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(quartz.NewReal())

	anaConn, _ := f.connect(t, "Ana")
	_, _ = f.connect(t, "Beto")

	anaConn.push(CmdWho)
	anaConn.waitForLine(t, msgWhoHeader, time.Second)
	anaConn.waitForLine(t, "- Beto", time.Second)
}

func TestHandlerTriviaRound(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(quartz.NewReal())

	anaConn, ana := f.connect(t, "Ana")
	betoConn, beto := f.connect(t, "Beto")

	anaConn.push(CmdTrivia)

	betoConn.waitForLine(t, "2+2?", time.Second)
	waitForCondition(t, func() bool {
		return ana.MenuState() == InGame && beto.MenuState() == InGame
	}, time.Second, "both sessions enter the game state")

	// Beto's free text is routed to the trivia coordinator.
	betoConn.push("4")

	anaConn.waitForLine(t, "Beto respondió correctamente! La respuesta era: 4", 2*time.Second)
	anaConn.waitForLine(t, formatScore("Beto", 1), 2*time.Second)
	anaConn.waitForLine(t, formatScore("Ana", 0), 2*time.Second)
	anaConn.waitForLine(t, msgBackToMenu, 2*time.Second)

	waitForCondition(t, func() bool { return !f.trivia.Active() }, 2*time.Second, "round should finish")
	waitForCondition(t, func() bool {
		return ana.MenuState() == InMenu && beto.MenuState() == InMenu
	}, time.Second, "both sessions return to the menu")
}

func TestHandlerTriviaAlreadyRunning(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(quartz.NewReal())

	anaConn, _ := f.connect(t, "Ana")
	betoConn, _ := f.connect(t, "Beto")

	anaConn.push(CmdTrivia)
	betoConn.waitForLine(t, "2+2?", time.Second)

	// The round is still open; a second start request is refused. Commands
	// are dispatched before answer routing, so the literal command text is
	// never treated as a trivia answer.
	anaConn.push(CmdTrivia)
	anaConn.waitForLine(t, msgTriviaRunning, time.Second)
}

func TestHandlerVsMachineDecisiveEndsGame(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(quartz.NewReal())
	f.machine = MoveScissors

	anaConn, _ := f.connect(t, "Ana")
	anaConn.push(CmdRPS, "1", "piedra")

	anaConn.waitForLine(t, msgMachineIntro, time.Second)
	anaConn.waitForLine(t, msgOutcomeWin, time.Second)
	anaConn.waitForLine(t, msgBackToChat, time.Second)
	assert.False(t, anaConn.hasLine(msgReplayPrompt), "a decisive result offers no replay")
}

func TestHandlerVsMachineTieOffersReplay(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(quartz.NewReal())
	f.machine = MoveScissors

	anaConn, _ := f.connect(t, "Ana")
	anaConn.push(CmdRPS, "1", "tijera", "no")

	anaConn.waitForLine(t, msgOutcomeTie, time.Second)
	anaConn.waitForLine(t, msgReplayPrompt, time.Second)
	anaConn.waitForLine(t, msgBackToChat, time.Second)
}

func TestHandlerVsMachineInvalidMovesCancel(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(quartz.NewReal())

	anaConn, _ := f.connect(t, "Ana")
	anaConn.push(CmdRPS, "1", "banana", "rock", "lagarto", "spock")

	anaConn.waitForLine(t, msgMoveInvalid, time.Second)
	anaConn.waitForLine(t, msgMoveAttempts, time.Second)
	anaConn.waitForLine(t, msgBackToChat, time.Second)
}

func TestHandlerVsPlayerMatch(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(quartz.NewReal())

	anaConn, _ := f.connect(t, "Ana")
	betoConn, _ := f.connect(t, "Beto")

	anaConn.push(CmdRPS, "2", "piedra", "no")
	betoConn.push(CmdRPS, "2", "tijera", "no")

	anaConn.waitForLine(t, "Emparejado con Beto", 2*time.Second)
	betoConn.waitForLine(t, "Emparejado con Ana", 2*time.Second)

	anaConn.waitForLine(t, "Tu jugada: piedra. Jugada rival: tijera.", 2*time.Second)
	betoConn.waitForLine(t, "Tu jugada: tijera. Jugada rival: piedra.", 2*time.Second)
	anaConn.waitForLine(t, msgOutcomeWin, 2*time.Second)
	betoConn.waitForLine(t, msgOutcomeLoss, 2*time.Second)

	anaConn.waitForLine(t, msgBackToChat, 2*time.Second)
	betoConn.waitForLine(t, msgBackToChat, 2*time.Second)
}

func TestHandlerVsPlayerReplayRound(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(quartz.NewReal())

	anaConn, _ := f.connect(t, "Ana")
	betoConn, _ := f.connect(t, "Beto")

	anaConn.push(CmdRPS, "2", "piedra", "si", "papel", "no")
	betoConn.push(CmdRPS, "2", "piedra", "si", "tijera", "no")

	anaConn.waitForLine(t, msgOutcomeTie, 2*time.Second)
	betoConn.waitForLine(t, msgOutcomeTie, 2*time.Second)

	// Both said yes: a second round runs with fresh moves.
	anaConn.waitForLine(t, "Tu jugada: papel. Jugada rival: tijera.", 2*time.Second)
	anaConn.waitForLine(t, msgOutcomeLoss, 2*time.Second)
	betoConn.waitForLine(t, msgOutcomeWin, 2*time.Second)

	anaConn.waitForLine(t, msgBackToChat, 2*time.Second)
	betoConn.waitForLine(t, msgBackToChat, 2*time.Second)
}

func TestHandlerMatchmakingTimeout(t *testing.T) {
	t.Parallel()
	mock := quartz.NewMock(t)
	f := newHandlerFixture(mock)

	anaConn, ana := f.connect(t, "Ana")
	anaConn.push(CmdRPS, "2")

	anaConn.waitForLine(t, msgSearching, time.Second)
	waitForCondition(t, f.matchmaker.HasWaiting, time.Second, "Ana should be parked")
	time.Sleep(20 * time.Millisecond)
	mock.Advance(30 * time.Second)

	anaConn.waitForLine(t, msgNobodyJoined, time.Second)
	anaConn.waitForLine(t, msgBackToChat, time.Second)
	waitForCondition(t, func() bool { return ana.MenuState() == InMenu }, time.Second, "Ana should return to the menu")
}

func TestHandlerCancelDuringMatch(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(quartz.NewReal())

	anaConn, _ := f.connect(t, "Ana")
	betoConn, _ := f.connect(t, "Beto")

	anaConn.push(CmdRPS, "2", "CANCEL")
	betoConn.push(CmdRPS, "2", "piedra")

	anaConn.waitForLine(t, msgMatchCancelled, 2*time.Second)
	betoConn.waitForLine(t, msgMatchCancelled, 2*time.Second)
	anaConn.waitForLine(t, msgBackToChat, 2*time.Second)
	betoConn.waitForLine(t, msgBackToChat, 2*time.Second)
}

func TestHandlerDisconnectDuringMatch(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(quartz.NewReal())

	anaConn, _ := f.connect(t, "Ana")
	betoConn, _ := f.connect(t, "Beto")

	anaConn.push(CmdRPS, "2", "piedra")
	betoConn.push(CmdRPS, "2")

	anaConn.waitForLine(t, "Emparejado con Beto", 2*time.Second)

	// Beto drops mid-round; Ana is told and returns to the menu, Beto's
	// session is cleaned up.
	_ = betoConn.Close()

	anaConn.waitForLine(t, msgPeerLeft, 2*time.Second)
	anaConn.waitForLine(t, msgBackToChat, 2*time.Second)
	waitForCondition(t, func() bool { return f.registry.Count() == 1 }, 2*time.Second, "Beto should be unregistered")
}

func TestHandlerModeSelectionCancel(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(quartz.NewReal())

	anaConn, ana := f.connect(t, "Ana")
	anaConn.push(CmdRPS, "CANCEL")

	anaConn.waitForLine(t, msgBackToChat, time.Second)
	waitForCondition(t, func() bool { return ana.MenuState() == InMenu }, time.Second, "Ana should return to the menu")
}
