package server

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeConn is an in-memory Conn for driving handlers and components from
// tests: the test pushes client input with push and inspects server output
// with sentLines / waitForLine.
type fakeConn struct {
	in        chan string
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	sent     []string
	deadline time.Time

	failSends atomic.Bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:   make(chan string, 64),
		done: make(chan struct{}),
	}
}

// push queues a line as if the client had typed it.
func (c *fakeConn) push(lines ...string) {
	for _, line := range lines {
		c.in <- line
	}
}

func (c *fakeConn) SendLine(line string) error {
	if c.failSends.Load() {
		return ErrSendBlocked
	}
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	c.mu.Lock()
	c.sent = append(c.sent, line)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) ReadLine() (string, error) {
	c.mu.Lock()
	deadline := c.deadline
	c.mu.Unlock()

	var timeoutC <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case line := <-c.in:
		return line, nil
	case <-c.done:
		return "", ErrConnClosed
	case <-timeoutC:
		return "", ErrReadTimeout
	}
}

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.deadline = t
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) RemoteAddr() string { return "fake" }

func (c *fakeConn) sentLines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) hasLine(substr string) bool {
	for _, line := range c.sentLines() {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

// waitForLine blocks until a line containing substr has been sent to this
// connection, failing the test after timeout.
func (c *fakeConn) waitForLine(t *testing.T, substr string, timeout time.Duration) {
	t.Helper()
	waitForCondition(t, func() bool { return c.hasLine(substr) }, timeout,
		"expected a line containing "+substr)
}

func waitForCondition(t *testing.T, condition func() bool, timeout time.Duration, errMsg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error(errMsg)
}
