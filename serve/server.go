// Package serve exposes the suggestion service over a Unix domain socket so
// a shell widget can request suggestions without starting a process per
// keystroke. Each connection carries one JSON request line and receives at
// most one JSON response line.
package serve

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"sync"

	aicmd "github.com/npv12/zsh-ai-cmd"
	"github.com/npv12/zsh-ai-cmd/sanitize"
)

// Suggester produces a suggestion for input. *suggest.Service satisfies it.
type Suggester interface {
	CompleteWith(ctx context.Context, provider, input string) (string, error)
}

// sessionEntry tracks a cancellable in-flight request for a session.
type sessionEntry struct {
	requestID int
	cancel    context.CancelFunc
}

// Server listens on a Unix domain socket for suggestion requests.
type Server struct {
	listener  net.Listener
	sockPath  string
	suggester Suggester

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

// NewServer creates a server bound to sockPath. A stale socket file is
// removed first.
func NewServer(sockPath string, suggester Suggester) (*Server, error) {
	if err := os.Remove(sockPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, err
	}

	return &Server{
		listener:  listener,
		sockPath:  sockPath,
		suggester: suggester,
		sessions:  make(map[string]*sessionEntry),
	}, nil
}

// Addr returns the socket path.
func (s *Server) Addr() string {
	return s.sockPath
}

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Close stops the listener, cancels in-flight requests and removes the
// socket file.
func (s *Server) Close() {
	s.listener.Close()
	s.mu.Lock()
	for sid, entry := range s.sessions {
		entry.cancel()
		delete(s.sessions, sid)
	}
	s.mu.Unlock()
	os.Remove(s.sockPath)
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}

	var req aicmd.Request
	if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
		slog.Warn("invalid request", "error", err)
		return
	}
	slog.Debug("request",
		"type", req.Type,
		"session", req.SessionID,
		"request_id", req.RequestID,
		"input", sanitize.RedactCommand(req.Input),
	)

	if req.Type == aicmd.CancelRequestType {
		s.cancelSession(req.SessionID)
		return
	}

	// Cancel any in-flight request for this session and create a new context.
	ctx, cancel := context.WithCancel(context.Background())
	sid := req.SessionID
	reqID := req.RequestID
	entry := &sessionEntry{requestID: reqID, cancel: cancel}
	if sid != "" {
		s.mu.Lock()
		if prev, ok := s.sessions[sid]; ok {
			prev.cancel()
		}
		s.sessions[sid] = entry
		s.mu.Unlock()
	}
	defer func() {
		cancel()
		if sid != "" {
			s.mu.Lock()
			// Only this connection's entry; request ids repeat across clients.
			if s.sessions[sid] == entry {
				delete(s.sessions, sid)
			}
			s.mu.Unlock()
		}
	}()

	suggestion, err := s.suggester.CompleteWith(ctx, req.Provider, req.Input)

	// If cancelled, skip writing; the client has already moved on.
	if ctx.Err() != nil {
		slog.Debug("request cancelled", "session", sid, "request_id", reqID)
		return
	}

	resp := aicmd.Response{RequestID: reqID, Suggestion: suggestion, Error: aicmd.NewError(err)}
	if err != nil {
		resp.Suggestion = ""
		slog.Debug("request failed", "request_id", reqID, "code", resp.Error.Code, "error", err)
	}

	data, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}
	conn.Write(append(data, '\n'))
}

func (s *Server) cancelSession(sid string) {
	if sid == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.sessions[sid]; ok {
		entry.cancel()
		delete(s.sessions, sid)
		slog.Debug("session cancelled", "session", sid, "request_id", entry.requestID)
	}
}
