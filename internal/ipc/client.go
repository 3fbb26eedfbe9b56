package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
)

// Client sends exactly one command per call over a fresh connection.
type Client struct {
	socketPath string
}

// NewClient returns a client for the given session socket.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// ErrNotRunning is returned when the session socket does not exist.
var ErrNotRunning = errors.New("controller not running")

// Send connects, writes the request, half-closes the send side, reads the
// full response, and returns the result value or the server's error. If the
// socket file is absent the controller is not running and no connection is
// attempted.
func (c *Client) Send(ctx context.Context, command string, args interface{}) (interface{}, error) {
	if _, err := os.Stat(c.socketPath); err != nil {
		return nil, fmt.Errorf("%w (no socket at %s)", ErrNotRunning, c.socketPath)
	}

	req := Request{Command: command}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encode args: %w", err)
		}
		req.Args = raw
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to controller: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	// Half-close signals end-of-request; the connection stays readable.
	if uc, ok := conn.(*net.UnixConn); ok {
		if err := uc.CloseWrite(); err != nil {
			return nil, fmt.Errorf("half-close: %w", err)
		}
	}

	raw, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parse response (%d bytes): %w", len(raw), err)
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return resp.Result, nil
}
