// Package control implements the out-of-band Unix control socket of spec.md
// §4.8: one length-prefixed JSON request per connection, answered with one
// length-prefixed JSON response, available only while an IRC client is
// attached.
package control

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/slackirc/bridge/pkg/logger"
)

// Request is the decoded shape of every recognised op.
type Request struct {
	Op     string `json:"op"`
	Target string `json:"target,omitempty"`
	Text   string `json:"text,omitempty"`
	Path   string `json:"path,omitempty"`
}

// Response is the length-prefixed JSON reply.
type Response struct {
	OK     bool        `json:"ok"`
	Error  string      `json:"error,omitempty"`
	Result interface{} `json:"result,omitempty"`
}

// Handler executes a decoded Request and returns its Response. It is
// supplied by the bridge core, since send-message/send-file ultimately
// need to act on the attached IRC client and the Slack session.
type Handler func(req Request) Response

// Server owns the Unix socket. It exists only while the bridge has an
// attached IRC client: Start/Stop are called on every DORMANT<->RUNNING
// transition, per spec.md §4.8 ("If no IRC client is attached, the socket
// does not exist").
type Server struct {
	path    string
	log     *logger.Logger
	handler Handler

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// New builds a Server bound to path, dispatching requests to handler.
func New(path string, handler Handler, log *logger.Logger) *Server {
	return &Server{path: path, handler: handler, log: log}
}

// Start begins accepting connections. It is a no-op (returns nil) if path
// is empty, since the control socket is optional.
func (s *Server) Start() error {
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create control socket directory: %w", err)
	}
	os.Remove(s.path)

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen on control socket: %w", err)
	}
	if err := os.Chmod(s.path, 0o660); err != nil {
		ln.Close()
		return fmt.Errorf("chmod control socket: %w", err)
	}

	s.listener = ln
	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Stop closes the listener and removes the socket file. Safe to call
// whether or not Start ever succeeded.
func (s *Server) Stop() {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()

	if ln == nil {
		return
	}
	ln.Close()
	s.wg.Wait()
	os.Remove(s.path)
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	reqID := uuid.NewString()
	log := s.log.With("request_id", reqID)

	req, err := readRequest(conn)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			log.Warn("control socket: malformed request", "error", err)
		}
		return
	}

	log.Debug("control socket request", "op", req.Op)
	resp := s.handler(req)

	if err := writeResponse(conn, resp); err != nil {
		log.Warn("control socket: failed to write response", "error", err)
	}
}

func readRequest(r io.Reader) (Request, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Request{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Request{}, err
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return Request{}, err
	}
	return req, nil
}

func writeResponse(w io.Writer, resp Response) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}
