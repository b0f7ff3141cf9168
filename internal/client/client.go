// Package client implements the interactive terminal client for the
// tertulia line protocol: a read goroutine renders server lines while the
// main loop forwards stdin.
package client

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// Config holds client connection settings.
type Config struct {
	Addr string
	Name string
}

var (
	privateStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	noticeStyle  = lipgloss.NewStyle().Faint(true)
	headerStyle  = lipgloss.NewStyle().Bold(true)
	winStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	tieStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// Run connects to the server and relays lines until either side hangs up.
func Run(cfg Config) error {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: false,
		Prefix:          "tertulia",
	})

	conn, err := net.Dial("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.Addr, err)
	}
	defer conn.Close()
	logger.Info("Connected", "addr", cfg.Addr)

	// The server's first line asks for a name; answer it from the flag when
	// given so scripted sessions work.
	if cfg.Name != "" {
		if _, err := fmt.Fprintln(conn, cfg.Name); err != nil {
			return fmt.Errorf("sending name: %w", err)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			fmt.Println(render(scanner.Text()))
		}
		if err := scanner.Err(); err != nil {
			logger.Debug("Read loop ended", "error", err)
		}
	}()

	input := make(chan string)
	go func() {
		defer close(input)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			input <- scanner.Text()
		}
	}()

	for {
		select {
		case <-done:
			logger.Info("Server closed the connection")
			return nil
		case line, ok := <-input:
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintln(conn, line); err != nil {
				return fmt.Errorf("sending line: %w", err)
			}
		}
	}
}

// render applies a little color to the lines a human cares about and leaves
// the rest untouched.
func render(line string) string {
	switch {
	case strings.Contains(line, "(privado):"):
		return privateStyle.Render(line)
	case strings.HasPrefix(line, "---"):
		return headerStyle.Render(line)
	case line == "Ganaste!":
		return winStyle.Render(line)
	case line == "Perdiste...":
		return lossStyle.Render(line)
	case line == "Empate!":
		return tieStyle.Render(line)
	case strings.HasPrefix(line, "Volviendo") || strings.HasPrefix(line, "Buscando"):
		return noticeStyle.Render(line)
	}
	return line
}
