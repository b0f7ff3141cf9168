package server

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
)

// ErrTriviaRunning means a round was requested while one is in progress.
var ErrTriviaRunning = errors.New("trivia round already running")

// Question is one trivia prompt and its canonical answer.
type Question struct {
	Text   string
	Answer string
}

// Trivia runs the process-wide trivia round: a fixed sequence of questions,
// each with a bounded answer window where the first normalized-correct
// submission takes the point.
//
// One lock guards the whole round state. Submit's check-and-set of the
// answered flag is a single critical section, which is what makes "first
// correct answer wins" exact under concurrent submissions. The lock is
// never held across a broadcast or a timed wait.
//
// Lock order: callers needing both locks take the registry lock first. The
// coordinator itself takes roster snapshots before acquiring its own lock.
type Trivia struct {
	registry *Registry
	clock    quartz.Clock
	logger   zerolog.Logger

	questions      []Question
	answerWindow   time.Duration
	pauseAfterward time.Duration

	mu            sync.Mutex
	active        bool
	questionIndex int
	currentAnswer string
	windowOpen    bool
	answered      bool
	lastResponder int64
	responderName string
	scores        map[int64]int
	// answeredCh gets one token when a correct answer lands, so the round
	// loop wakes immediately instead of sleeping out the window.
	answeredCh chan struct{}
}

// NewTrivia wires the coordinator. Every bounded wait runs off clock so
// tests can drive it with a mock.
func NewTrivia(registry *Registry, clock quartz.Clock, questions []Question, answerWindow, pause time.Duration, logger zerolog.Logger) *Trivia {
	return &Trivia{
		registry:       registry,
		clock:          clock,
		logger:         logger.With().Str("component", "trivia").Logger(),
		questions:      questions,
		answerWindow:   answerWindow,
		pauseAfterward: pause,
	}
}

// Active reports whether a round is in progress.
func (t *Trivia) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Start begins a round: seeds every currently registered session with a
// zero score, flips them into the game state, announces the rules and kicks
// off the question loop on its own goroutine. Returns ErrTriviaRunning if a
// round is already active.
func (t *Trivia) Start() error {
	roster := t.registry.Snapshot()

	t.mu.Lock()
	if t.active {
		t.mu.Unlock()
		return ErrTriviaRunning
	}
	t.active = true
	t.questionIndex = 0
	t.scores = make(map[int64]int, len(roster))
	for _, s := range roster {
		t.scores[s.ID] = 0
	}
	t.mu.Unlock()

	for _, s := range roster {
		s.SetMenuState(InGame)
	}
	t.registry.Broadcast(fmt.Sprintf(msgTriviaRules, len(t.questions), int(t.answerWindow.Seconds())), NoExclude)
	t.logger.Info().Int("questions", len(t.questions)).Int("players", len(roster)).Msg("trivia round started")

	go t.run()
	return nil
}

func (t *Trivia) run() {
	for i, q := range t.questions {
		t.askQuestion(i, q)
		if i < len(t.questions)-1 {
			t.sleep(t.pauseAfterward)
		}
	}
	t.finish()
}

func (t *Trivia) askQuestion(index int, q Question) {
	t.mu.Lock()
	t.questionIndex = index
	t.currentAnswer = normalizeToken(q.Answer)
	t.answered = false
	t.lastResponder = 0
	t.responderName = ""
	t.windowOpen = true
	t.answeredCh = make(chan struct{}, 1)
	answeredCh := t.answeredCh
	t.mu.Unlock()

	t.registry.Broadcast(q.Text, NoExclude)
	t.registry.Broadcast(fmt.Sprintf(msgTriviaTimer, int(t.answerWindow.Seconds())), NoExclude)

	timer := t.clock.NewTimer(t.answerWindow)
	defer timer.Stop()
	select {
	case <-answeredCh:
	case <-timer.C:
	}

	t.mu.Lock()
	t.windowOpen = false
	answered := t.answered
	winner := t.responderName
	t.mu.Unlock()

	if answered {
		t.registry.Broadcast(fmt.Sprintf(msgTriviaWinner, winner, q.Answer), NoExclude)
	} else {
		t.registry.Broadcast(fmt.Sprintf(msgTriviaNobody, q.Answer), NoExclude)
	}
}

// Submit offers a candidate answer from a session. It returns true when the
// submission took the point for the open question. Sessions that joined
// after the round started have no score entry and cannot score.
func (t *Trivia) Submit(s *Session, candidate string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active || !t.windowOpen || t.answered {
		return false
	}
	if normalizeToken(candidate) != t.currentAnswer {
		return false
	}
	if _, seeded := t.scores[s.ID]; !seeded {
		return false
	}
	t.answered = true
	t.lastResponder = s.ID
	t.responderName = s.Name
	t.scores[s.ID]++
	select {
	case t.answeredCh <- struct{}{}:
	default:
	}
	t.logger.Debug().Int64("session_id", s.ID).Int("question", t.questionIndex).Msg("question answered")
	return true
}

func (t *Trivia) finish() {
	// Completion-time roster: sessions that left mid-round are omitted from
	// the results even though they may have scored earlier.
	roster := t.registry.Snapshot()

	t.mu.Lock()
	scores := t.scores
	t.active = false
	t.windowOpen = false
	t.scores = nil
	t.mu.Unlock()

	t.registry.Broadcast(msgTriviaResults, NoExclude)
	for _, s := range roster {
		points, seeded := scores[s.ID]
		if !seeded {
			continue
		}
		t.registry.Broadcast(formatScore(s.Name, points), NoExclude)
	}
	t.registry.Broadcast(msgBackToMenu, NoExclude)

	for _, s := range roster {
		if _, seeded := scores[s.ID]; !seeded {
			continue
		}
		s.SetMenuState(InMenu)
		for _, line := range menuLines() {
			if err := s.Send(line); err != nil {
				break
			}
		}
	}
	t.logger.Info().Msg("trivia round finished")
}

// Scores returns a copy of the live score table, for tests and the final
// report.
func (t *Trivia) Scores() map[int64]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[int64]int, len(t.scores))
	for id, n := range t.scores {
		out[id] = n
	}
	return out
}

func (t *Trivia) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	timer := t.clock.NewTimer(d)
	defer timer.Stop()
	<-timer.C
}
