package server

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a line to the peer before giving up on it
	writeWait = 10 * time.Second

	// Outgoing line buffer per connection; a client that cannot drain this
	// many lines is considered stuck and gets closed
	sendBuffer = 64

	// Maximum line length accepted from a peer
	maxLineSize = 1024
)

var (
	ErrConnClosed  = errors.New("connection closed")
	ErrSendBlocked = errors.New("send buffer full")
	ErrReadTimeout = errors.New("read timed out")
	ErrLineTooLong = errors.New("line exceeds maximum length")
)

// Conn is one client's bidirectional line channel. Reads belong to the
// session handler goroutine; SendLine may be called from any goroutine.
type Conn interface {
	// SendLine queues one line for delivery. Best effort: a closed or
	// stuck connection returns an error, it never blocks the caller.
	SendLine(line string) error

	// ReadLine blocks until the next line, the deadline set via
	// SetReadDeadline, or connection failure.
	ReadLine() (string, error)

	// SetReadDeadline bounds the next ReadLine. The zero time clears it.
	SetReadDeadline(t time.Time) error

	Close() error
	RemoteAddr() string
}

// IsTimeout reports whether a ReadLine error was a deadline expiry rather
// than a dead connection.
func IsTimeout(err error) bool {
	if errors.Is(err, ErrReadTimeout) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// tcpConn adapts a raw net.Conn into the line protocol. A dedicated writer
// goroutine drains the send channel so a slow client never blocks whoever
// is broadcasting.
type tcpConn struct {
	conn      net.Conn
	reader    *bufio.Reader
	send      chan string
	done      chan struct{}
	closeOnce sync.Once
	logger    zerolog.Logger
}

// NewTCPConn wraps conn and starts its writer goroutine.
func NewTCPConn(conn net.Conn, logger zerolog.Logger) Conn {
	c := &tcpConn{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, maxLineSize),
		send:   make(chan string, sendBuffer),
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "conn").Str("remote", conn.RemoteAddr().String()).Logger(),
	}
	go c.writeLoop()
	return c
}

func (c *tcpConn) writeLoop() {
	for {
		select {
		case line := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
				c.logger.Debug().Err(err).Msg("write failed, closing connection")
				_ = c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *tcpConn) SendLine(line string) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- line:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		c.logger.Warn().Msg("send buffer full, closing connection")
		_ = c.Close()
		return ErrSendBlocked
	}
}

func (c *tcpConn) ReadLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		if len(line) > 0 && errors.Is(err, bufio.ErrBufferFull) {
			return "", ErrLineTooLong
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *tcpConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *tcpConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *tcpConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// wsConn carries the same line protocol over a WebSocket: one text message
// per line. Shares the writer-goroutine shape with tcpConn.
type wsConn struct {
	conn      *websocket.Conn
	send      chan string
	done      chan struct{}
	closeOnce sync.Once
	logger    zerolog.Logger
}

// NewWSConn wraps an upgraded websocket connection.
func NewWSConn(conn *websocket.Conn, logger zerolog.Logger) Conn {
	c := &wsConn{
		conn:   conn,
		send:   make(chan string, sendBuffer),
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "wsconn").Str("remote", conn.RemoteAddr().String()).Logger(),
	}
	conn.SetReadLimit(maxLineSize)
	go c.writeLoop()
	return c
}

func (c *wsConn) writeLoop() {
	for {
		select {
		case line := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				c.logger.Debug().Err(err).Msg("write failed, closing connection")
				_ = c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *wsConn) SendLine(line string) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- line:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		c.logger.Warn().Msg("send buffer full, closing connection")
		_ = c.Close()
		return ErrSendBlocked
	}
}

func (c *wsConn) ReadLine() (string, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return "", err
	}
	// A client may batch lines in one message; everything past the first
	// newline is dropped rather than buffered.
	line, _, _ := strings.Cut(string(data), "\n")
	return strings.TrimRight(line, "\r"), nil
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
