package server

import (
	"fmt"
	"strings"
)

// Canonical user-visible protocol lines. The vocabulary is Spanish and is
// part of the wire protocol: clients match on these exact strings.
const (
	CmdTrivia = "/juego_trivia"
	CmdRPS    = "/piedra_papel_tijera"
	CmdWho    = "/quienes"
	CmdBye    = "BYE"

	TokenCancel = "CANCEL"
)

const (
	msgAskName       = "Ingresa tu nombre:"
	msgMenuHeader    = "--- Menú ---"
	msgMenuTrivia    = CmdTrivia + " : jugar una ronda de trivia"
	msgMenuRPS       = CmdRPS + " : jugar piedra, papel o tijera"
	msgMenuWho       = CmdWho + " : ver quién está conectado"
	msgMenuBye       = CmdBye + " : salir del chat"
	msgMenuReminder  = "Comando no reconocido. Escribe " + CmdTrivia + ", " + CmdRPS + ", " + CmdWho + " o " + CmdBye + "."
	msgTriviaRunning = "Ya hay una trivia en curso."
	msgTriviaNobody  = "Nadie respondió. La respuesta era: %s"
	msgTriviaWinner  = "%s respondió correctamente! La respuesta era: %s"
	msgTriviaRules   = "Comienza la trivia! %d preguntas, %d segundos por pregunta. Escribe tu respuesta directamente."
	msgTriviaTimer   = "Tienes %d segundos..."
	msgTriviaResults = "--- Resultados ---"
	msgTriviaScore   = "%s: %d punto(s)"
	msgBackToMenu    = "Volviendo al menú..."

	msgRPSModePrompt  = "Elige modo: 1 = contra la máquina, 2 = contra otro jugador (" + TokenCancel + " para volver)"
	msgRPSModeInvalid = "Opción inválida. Escribe 1 o 2."
	msgMovePrompt     = "Elige tu jugada: piedra (p), papel (pa) o tijera (t)"
	msgMoveInvalid    = "Jugada inválida. Escribe piedra, papel o tijera."
	msgMoveAttempts   = "Demasiados intentos inválidos. Partida cancelada."
	msgReplayPrompt   = "Otra ronda? (si/no)"
	msgSearching      = "Buscando rival... espera un momento."
	msgNobodyJoined   = "Nadie se unió a la partida."
	msgMatchedWith    = "Emparejado con %s. Que empiece el duelo!"
	msgPeerLeft       = "El otro jugador abandonó la partida."
	msgMatchCancelled = "Partida cancelada."
	msgMachineIntro   = "Juegas contra la máquina."
	msgRoundMoves     = "Tu jugada: %s. Jugada rival: %s."
	msgOutcomeWin     = "Ganaste!"
	msgOutcomeLoss    = "Perdiste..."
	msgOutcomeTie     = "Empate!"
	msgBackToChat     = "Volviendo al chat..."

	msgFarewell  = "Hasta pronto, %s!"
	msgWelcome   = "Bienvenido/a, %s!"
	msgJoined    = "%s se ha unido a la sala."
	msgLeft      = "%s ha salido de la sala."
	msgPrivate   = "%s (privado): %s"
	msgRoomLine  = "%s: %s"
	msgWhoHeader = "Conectados:"
)

func menuLines() []string {
	return []string{
		msgMenuHeader,
		msgMenuTrivia,
		msgMenuRPS,
		msgMenuWho,
		msgMenuBye,
	}
}

func formatScore(name string, points int) string {
	return fmt.Sprintf(msgTriviaScore, name, points)
}

// normalizeToken lower-cases and trims a client token. Trivia answers,
// moves and yes/no replies are matched case-insensitively; commands are not.
func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// isAffirmative reports whether a replay reply counts as "yes". Anything
// else, including an empty or timed-out reply, counts as "no".
func isAffirmative(s string) bool {
	switch normalizeToken(s) {
	case "si", "s", "yes", "y":
		return true
	}
	return false
}

func isCancel(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), TokenCancel)
}
