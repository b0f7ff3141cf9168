package main

import (
	"time"

	"github.com/vcastillo/tertulia/cmd/tertulia/shared"
	"github.com/vcastillo/tertulia/internal/randutil"
	"github.com/vcastillo/tertulia/internal/server"
)

// ServerCmd contains server configuration
type ServerCmd struct {
	Addr   string `kong:"help='TCP listen address for the line protocol (default :8000)'"`
	WSAddr string `kong:"help='HTTP listen address for the WebSocket endpoint (disabled when empty)'"`
	Config string `kong:"type='existingfile',help='HCL config file with server settings and trivia questions'"`
	Debug  bool   `kong:"help='Enable debug logging'"`
	Seed   *int64 `kong:"help='Deterministic RNG seed for the machine player (optional)'"`
}

func (c *ServerCmd) Run() error {
	logger := shared.SetupLogger(c.Debug)

	var seed int64
	if c.Seed != nil {
		seed = *c.Seed
		logger.Info().Int64("seed", seed).Msg("Using deterministic seed")
	} else {
		seed = time.Now().UnixNano()
		logger.Info().Int64("seed", seed).Msg("Using random seed")
	}
	rng := randutil.New(seed)

	cfg := server.DefaultConfig()
	if c.Config != "" {
		var err error
		cfg, err = server.LoadConfigFile(c.Config)
		if err != nil {
			return err
		}
	}
	// Flags beat the config file.
	if c.Addr != "" {
		cfg.Addr = c.Addr
	}
	if c.WSAddr != "" {
		cfg.WSAddr = c.WSAddr
	}
	cfg.Seed = seed

	s := server.NewServer(logger, rng, server.WithConfig(cfg))

	logger.Info().
		Str("address", cfg.Addr).
		Str("ws_address", cfg.WSAddr).
		Dur("answer_window", cfg.AnswerWindow).
		Dur("join_timeout", cfg.JoinTimeout).
		Dur("replay_timeout", cfg.ReplayTimeout).
		Int("questions", len(cfg.Questions)).
		Msg("Starting tertulia server")

	ctx := shared.SetupSignalHandlerWithLogger(logger)
	return s.Start(ctx)
}
