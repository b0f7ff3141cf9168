package main

import (
	"strings"

	"github.com/vcastillo/tertulia/internal/client"
)

// ClientCmd connects to a running server as an interactive user
type ClientCmd struct {
	Addr string `kong:"default='localhost:8000',help='Server address'"`
	Name string `kong:"default='',help='Display name sent as the first line (prompted otherwise)'"`
}

func (c *ClientCmd) Run() error {
	return client.Run(client.Config{
		Addr: strings.TrimSpace(c.Addr),
		Name: strings.TrimSpace(c.Name),
	})
}
