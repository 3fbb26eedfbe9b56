package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/TensoriumAi/Glyde/internal/logging"
)

// Handler executes one parsed command and produces its response.
type Handler interface {
	Handle(ctx context.Context, req Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req Request) Response

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Server accepts connections on a session's Unix socket and dispatches one
// request per connection. All command handling is strictly serialized: the
// accept loop handles each connection to completion before accepting the
// next, because the underlying browser page is not safe for concurrent
// mutation. Pending connections queue in the OS backlog.
type Server struct {
	socketPath string
	handler    Handler
	ln         net.Listener
}

// NewServer returns a server bound to nothing yet; Serve binds and listens.
func NewServer(socketPath string, handler Handler) *Server {
	return &Server{socketPath: socketPath, handler: handler}
}

// Serve binds the socket and accepts until ctx is cancelled. Bind failures
// are fatal and returned; per-connection failures never are. The socket file
// is removed again on shutdown.
func (s *Server) Serve(ctx context.Context) error {
	// Pre-bind cleanup is idempotent; Resolve already removed a stale
	// socket at startup, but a restart of Serve alone must also succeed.
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	s.ln = ln
	logging.Server("listening on %s", s.socketPath)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				break
			}
			logging.ServerError("accept: %v", err)
			continue
		}
		// Sequential on purpose: this is the serialization guarantee.
		s.handleConn(ctx, conn)
	}

	_ = os.Remove(s.socketPath)
	logging.Server("stopped listening on %s", s.socketPath)
	return nil
}

// handleConn walks one connection through the request lifecycle: buffer the
// full request until the peer half-closes, parse, dispatch, write exactly
// one response, close.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	id := uuid.NewString()
	start := time.Now()

	raw, err := io.ReadAll(conn)
	if err != nil {
		logging.ServerError("[%s] read request: %v", id, err)
		s.writeResponse(conn, id, Fail("Invalid command format"))
		return
	}

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil || req.Command == "" {
		logging.ServerError("[%s] parse request (%d bytes): %v", id, len(raw), err)
		s.writeResponse(conn, id, Fail("Invalid command format"))
		return
	}

	logging.ServerDebug("[%s] dispatch %q", id, req.Command)
	resp := s.dispatch(ctx, id, req)
	s.writeResponse(conn, id, resp)
	logging.Server("[%s] %s completed in %s (error=%v)", id, req.Command, time.Since(start).Round(time.Millisecond), resp.Error != "")
}

// dispatch invokes the handler with panic containment: a handler panic
// becomes an error response, never a dead controller.
func (s *Server) dispatch(ctx context.Context, id string, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			logging.ServerError("[%s] panic in %q handler: %v\n%s", id, req.Command, r, debug.Stack())
			resp = Fail("internal error: %v", r)
		}
	}()
	return s.handler.Handle(ctx, req)
}

func (s *Server) writeResponse(conn net.Conn, id string, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		// Response values come from handlers; a result that cannot be
		// marshalled still owes the client exactly one response.
		data, _ = json.Marshal(Fail("unserializable result: %v", err))
	}
	if _, err := conn.Write(data); err != nil {
		logging.ServerError("[%s] write response: %v", id, err)
	}
}
