package ircd

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/slackirc/bridge/pkg/bridgeerr"
	"github.com/slackirc/bridge/pkg/logger"
)

// Server listens on a single TCP address and hands off accepted
// connections one at a time: spec.md §4.5 "Only one IRC client may be
// attached at a time. A second connection is refused."
type Server struct {
	listener net.Listener
	log      *logger.Logger

	mu     sync.Mutex
	active bool
}

// Listen binds bindIP:port. Per spec.md §6, a non-loopback bind is refused
// by config.Validate before this is ever called; Listen itself just binds.
func Listen(bindIP string, port int, log *logger.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", bindIP, port))
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindConfig, "listen on irc port", err)
	}
	return &Server{listener: ln, log: log}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Close stops accepting new connections.
func (s *Server) Close() error { return s.listener.Close() }

// Accept blocks for the next connection. If a client is already attached,
// newly accepted connections are immediately refused and closed, and
// Accept keeps waiting for the next one.
func (s *Server) Accept(ctx context.Context) (*Conn, error) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			return nil, err
		}

		s.mu.Lock()
		busy := s.active
		if !busy {
			s.active = true
		}
		s.mu.Unlock()

		if busy {
			s.log.Warn("refusing second irc connection", "remote", conn.RemoteAddr())
			conn.Write([]byte(Format(ServerName, "ERROR", "Another client is already attached") + "\r\n"))
			conn.Close()
			continue
		}

		return NewConn(conn), nil
	}
}

// Release marks the server as free to accept another connection, called
// once the attached client disconnects and the bridge returns to DORMANT.
func (s *Server) Release() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}
