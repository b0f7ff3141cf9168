package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	rand "math/rand/v2"

	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Server owns the shared coordination components and accepts clients over
// TCP and, optionally, WebSocket. Each accepted connection gets its own
// handler goroutine; the server itself has no central scheduler.
type Server struct {
	cfg        Config
	logger     zerolog.Logger
	clock      quartz.Clock
	registry   *Registry
	trivia     *Trivia
	matchmaker *Matchmaker
	upgrader   websocket.Upgrader

	rngMu sync.Mutex
	rng   *rand.Rand

	mu       sync.Mutex
	listener net.Listener
	httpSrv  *http.Server
}

// Option tweaks server construction.
type Option func(*Server)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(s *Server) { s.cfg = cfg }
}

// WithClock injects a clock, for tests driving the timeouts.
func WithClock(clock quartz.Clock) Option {
	return func(s *Server) { s.clock = clock }
}

// NewServer wires the registry, trivia coordinator and matchmaker around
// the provided RNG (machine moves) and options.
func NewServer(logger zerolog.Logger, rng *rand.Rand, opts ...Option) *Server {
	s := &Server{
		cfg:    DefaultConfig(),
		logger: logger.With().Str("component", "server").Logger(),
		clock:  quartz.NewReal(),
		rng:    rng,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registry = NewRegistry(logger)
	s.trivia = NewTrivia(s.registry, s.clock, s.cfg.Questions, s.cfg.AnswerWindow, s.cfg.QuestionPause, logger)
	s.matchmaker = NewMatchmaker(s.clock, s.cfg.JoinTimeout, logger)
	return s
}

// Registry exposes the roster, mainly for tests and the roster command.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Addr returns the bound TCP address once Start is listening, which matters
// when the configured address picks an ephemeral port.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// machineMove draws the machine player's move. The RNG is shared across
// handlers, so draws go through one mutex.
func (s *Server) machineMove() Move {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return Moves[s.rng.IntN(len(Moves))]
}

// Start listens until ctx is cancelled or a listener fails. The TCP line
// protocol always runs; the WebSocket endpoint only when cfg.WSAddr is set.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info().Str("addr", s.cfg.Addr).Msg("listening for line-protocol clients")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.acceptLoop(ctx, ln)
	})

	if s.cfg.WSAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", s.handleWebSocket)
		mux.HandleFunc("/health", s.handleHealth)
		httpSrv := &http.Server{Addr: s.cfg.WSAddr, Handler: mux}
		s.mu.Lock()
		s.httpSrv = httpSrv
		s.mu.Unlock()

		g.Go(func() error {
			s.logger.Info().Str("addr", s.cfg.WSAddr).Msg("listening for websocket clients")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		s.shutdown()
		return nil
	})

	err = g.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		c := NewTCPConn(conn, s.logger)
		go s.handle(c)
	}
}

func (s *Server) handle(conn Conn) {
	h := newSessionHandler(s.registry, s.trivia, s.matchmaker, s.clock, s.cfg, s.machineMove, s.logger, conn)
	h.Run()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsc, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := NewWSConn(wsc, s.logger)
	go s.handle(c)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "OK")
}

// shutdown stops the listeners and tells every connected session goodbye.
func (s *Server) shutdown() {
	s.logger.Info().Msg("shutting down")

	s.mu.Lock()
	ln := s.listener
	httpSrv := s.httpSrv
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}

	for _, sess := range s.registry.Snapshot() {
		_ = sess.Send("Servidor cerrando. Hasta pronto!")
		_ = sess.Conn().Close()
	}
}
