package server

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the runtime configuration of a server instance.
type Config struct {
	Addr   string // TCP listen address for the line protocol
	WSAddr string // HTTP listen address for /ws and /health; empty disables it

	AnswerWindow  time.Duration // trivia: per-question answer window
	QuestionPause time.Duration // trivia: pause between questions
	JoinTimeout   time.Duration // matchmaking: wait for a second player
	ReplayTimeout time.Duration // match: wait for a replay vote
	MoveAttempts  int           // match: invalid-move retries before cancelling
	NameAttempts  int           // handshake: empty-name retries before dropping

	Seed      int64 // machine-player RNG seed; 0 draws from the wall clock
	Questions []Question
}

// DefaultConfig returns the reference timeouts and the built-in question
// deck.
func DefaultConfig() Config {
	return Config{
		Addr:          ":8000",
		AnswerWindow:  10 * time.Second,
		QuestionPause: 1 * time.Second,
		JoinTimeout:   30 * time.Second,
		ReplayTimeout: 15 * time.Second,
		MoveAttempts:  4,
		NameAttempts:  3,
		Questions:     defaultQuestions(),
	}
}

func defaultQuestions() []Question {
	return []Question{
		{Text: "Cuánto es 2+2?", Answer: "4"},
		{Text: "Capital de Chile?", Answer: "Santiago"},
		{Text: "Cuántos planetas tiene el sistema solar?", Answer: "8"},
		{Text: "En qué año llegó el ser humano a la Luna?", Answer: "1969"},
		{Text: "Color que resulta de mezclar azul y amarillo?", Answer: "verde"},
	}
}

// FileConfig is the HCL layout of an optional config file:
//
//	server {
//	  address          = ":8000"
//	  ws_address       = ":8080"
//	  answer_window_s  = 10
//	  join_timeout_s   = 30
//	  replay_timeout_s = 15
//	}
//
//	question "Cuánto es 2+2?" {
//	  answer = "4"
//	}
type FileConfig struct {
	Server    *ServerSettings  `hcl:"server,block"`
	Questions []QuestionConfig `hcl:"question,block"`
}

// ServerSettings is the server block of the config file.
type ServerSettings struct {
	Address        string `hcl:"address,optional"`
	WSAddress      string `hcl:"ws_address,optional"`
	AnswerWindowS  int    `hcl:"answer_window_s,optional"`
	QuestionPauseS int    `hcl:"question_pause_s,optional"`
	JoinTimeoutS   int    `hcl:"join_timeout_s,optional"`
	ReplayTimeoutS int    `hcl:"replay_timeout_s,optional"`
	MoveAttempts   int    `hcl:"move_attempts,optional"`
}

// QuestionConfig is one question block; the label is the question text.
type QuestionConfig struct {
	Text   string `hcl:"text,label"`
	Answer string `hcl:"answer"`
}

// LoadConfigFile parses an HCL config file and overlays it on the defaults.
// Questions in the file replace the built-in deck entirely.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return cfg, fmt.Errorf("parsing config file: %s", diags.Error())
	}

	var fc FileConfig
	if diags := gohcl.DecodeBody(file.Body, nil, &fc); diags.HasErrors() {
		return cfg, fmt.Errorf("decoding config file: %s", diags.Error())
	}

	if s := fc.Server; s != nil {
		if s.Address != "" {
			cfg.Addr = s.Address
		}
		if s.WSAddress != "" {
			cfg.WSAddr = s.WSAddress
		}
		if s.AnswerWindowS > 0 {
			cfg.AnswerWindow = time.Duration(s.AnswerWindowS) * time.Second
		}
		if s.QuestionPauseS > 0 {
			cfg.QuestionPause = time.Duration(s.QuestionPauseS) * time.Second
		}
		if s.JoinTimeoutS > 0 {
			cfg.JoinTimeout = time.Duration(s.JoinTimeoutS) * time.Second
		}
		if s.ReplayTimeoutS > 0 {
			cfg.ReplayTimeout = time.Duration(s.ReplayTimeoutS) * time.Second
		}
		if s.MoveAttempts > 0 {
			cfg.MoveAttempts = s.MoveAttempts
		}
	}

	if len(fc.Questions) > 0 {
		questions := make([]Question, 0, len(fc.Questions))
		for _, q := range fc.Questions {
			if q.Text == "" || q.Answer == "" {
				return cfg, fmt.Errorf("question %q: text and answer are both required", q.Text)
			}
			questions = append(questions, Question{Text: q.Text, Answer: q.Answer})
		}
		cfg.Questions = questions
	}

	return cfg, nil
}
