package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tertulia.hcl")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	t.Parallel()
	path := writeConfigFile(t, `
server {
  address          = ":9500"
  ws_address       = ":9501"
  answer_window_s  = 5
  question_pause_s = 2
  join_timeout_s   = 60
  replay_timeout_s = 20
  move_attempts    = 2
}
`)

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9500", cfg.Addr)
	assert.Equal(t, ":9501", cfg.WSAddr)
	assert.Equal(t, 5*time.Second, cfg.AnswerWindow)
	assert.Equal(t, 2*time.Second, cfg.QuestionPause)
	assert.Equal(t, 60*time.Second, cfg.JoinTimeout)
	assert.Equal(t, 20*time.Second, cfg.ReplayTimeout)
	assert.Equal(t, 2, cfg.MoveAttempts)

	// Unset fields keep their defaults.
	assert.Equal(t, DefaultConfig().NameAttempts, cfg.NameAttempts)
	assert.Equal(t, defaultQuestions(), cfg.Questions)
}

func TestLoadConfigFileQuestionsReplaceDeck(t *testing.T) {
	t.Parallel()
	path := writeConfigFile(t, `
question "Capital de Perú?" {
  answer = "Lima"
}

question "Cuánto es 3*3?" {
  answer = "9"
}
`)

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	require.Len(t, cfg.Questions, 2)
	assert.Equal(t, Question{Text: "Capital de Perú?", Answer: "Lima"}, cfg.Questions[0])
	assert.Equal(t, Question{Text: "Cuánto es 3*3?", Answer: "9"}, cfg.Questions[1])

	// Timeouts were not mentioned, so the defaults apply.
	assert.Equal(t, DefaultConfig().AnswerWindow, cfg.AnswerWindow)
}

func TestLoadConfigFileEmptyFileKeepsDefaults(t *testing.T) {
	t.Parallel()
	path := writeConfigFile(t, "")

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFileRejectsEmptyAnswer(t *testing.T) {
	t.Parallel()
	path := writeConfigFile(t, `
question "Sin respuesta?" {
  answer = ""
}
`)

	_, err := LoadConfigFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Sin respuesta?")
}

func TestLoadConfigFileRejectsBadSyntax(t *testing.T) {
	t.Parallel()
	path := writeConfigFile(t, `server { address = `)

	_, err := LoadConfigFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoadConfigFileMissing(t *testing.T) {
	t.Parallel()
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.hcl"))
	require.Error(t, err)
}
