package server

// Move is a canonical rock-paper-scissors move. The canonical values are the
// Spanish protocol tokens.
type Move string

const (
	MoveRock     Move = "piedra"
	MovePaper    Move = "papel"
	MoveScissors Move = "tijera"
)

// Moves lists the canonical moves in a fixed order, for the machine player
// to draw from.
var Moves = [3]Move{MoveRock, MovePaper, MoveScissors}

// NormalizeMove maps recognized short and long forms onto a canonical move.
// Matching is case-insensitive; normalization is idempotent over canonical
// values. ok is false for anything unrecognized.
func NormalizeMove(s string) (Move, bool) {
	switch normalizeToken(s) {
	case "piedra", "p":
		return MoveRock, true
	case "papel", "pa":
		return MovePaper, true
	case "tijera", "tijeras", "t":
		return MoveScissors, true
	}
	return "", false
}

// Outcome of a round from the first mover's perspective.
type Outcome int

const (
	OutcomeTie Outcome = iota
	OutcomeFirstWins
	OutcomeSecondWins
)

// Decide resolves two moves: equal moves tie, rock beats scissors, scissors
// beats paper, paper beats rock. Any pairing outside those rules falls to
// the second mover, which cannot happen with normalized input.
func Decide(a, b Move) Outcome {
	if a == b {
		return OutcomeTie
	}
	switch {
	case a == MoveRock && b == MoveScissors,
		a == MoveScissors && b == MovePaper,
		a == MovePaper && b == MoveRock:
		return OutcomeFirstWins
	}
	return OutcomeSecondWins
}

// outcomeLine renders a personalized result line for the player who played
// mine against theirs.
func outcomeLine(mine, theirs Move) string {
	switch Decide(mine, theirs) {
	case OutcomeTie:
		return msgOutcomeTie
	case OutcomeFirstWins:
		return msgOutcomeWin
	default:
		return msgOutcomeLoss
	}
}
