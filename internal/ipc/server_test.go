package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// startServer runs a server over a temp socket and returns its path plus a
// cancel that blocks until the accept loop has exited.
func startServer(t *testing.T, h Handler) (string, func()) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "glyde.sock")
	ctx, cancel := context.WithCancel(context.Background())

	srv := NewServer(sock, h)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	waitForServer(t, sock)
	return sock, func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve returned error: %v", err)
		}
	}
}

// waitForServer blocks until the listener at path accepts a connection.
// Stat-based readiness is not enough: a stale file left at the path would
// satisfy it before the server has replaced it with a bound socket.
func waitForServer(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("unix", path); err == nil {
			conn.Close()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("server at %s never became dialable", path)
}

func echoHandler() Handler {
	return HandlerFunc(func(_ context.Context, req Request) Response {
		return OK(req.Command)
	})
}

func TestRoundTrip(t *testing.T) {
	sock, stop := startServer(t, echoHandler())
	defer stop()

	res, err := NewClient(sock).Send(context.Background(), "url", nil)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if res != "url" {
		t.Errorf("result = %v", res)
	}
}

func TestExactlyOneResponsePerConnection(t *testing.T) {
	sock, stop := startServer(t, echoHandler())
	defer stop()

	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(`{"command":"reload"}`)); err != nil {
		t.Fatal(err)
	}
	if err := conn.(*net.UnixConn).CloseWrite(); err != nil {
		t.Fatal(err)
	}

	// Read until the server closes; the buffer must be one JSON object.
	raw, err := io.ReadAll(conn)
	if err != nil {
		t.Fatal(err)
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("response is not exactly one JSON object: %q (%v)", raw, err)
	}
	if resp.Result != "reload" {
		t.Errorf("result = %v", resp.Result)
	}
}

func TestMalformedRequest(t *testing.T) {
	sock, stop := startServer(t, echoHandler())
	defer stop()

	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("this is not json")); err != nil {
		t.Fatal(err)
	}
	if err := conn.(*net.UnixConn).CloseWrite(); err != nil {
		t.Fatal(err)
	}

	raw, _ := io.ReadAll(conn)
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("bad response %q: %v", raw, err)
	}
	if resp.Error != "Invalid command format" {
		t.Errorf("error = %q, want Invalid command format", resp.Error)
	}
}

func TestHandlerPanicBecomesErrorResponse(t *testing.T) {
	sock, stop := startServer(t, HandlerFunc(func(_ context.Context, _ Request) Response {
		panic("handler exploded")
	}))
	defer stop()

	_, err := NewClient(sock).Send(context.Background(), "eval", "1+1")
	if err == nil {
		t.Fatal("expected error response from panicking handler")
	}

	// Server must still be alive for the next command.
	sock2 := sock
	conn, dialErr := net.Dial("unix", sock2)
	if dialErr != nil {
		t.Fatalf("server died after handler panic: %v", dialErr)
	}
	conn.Close()
}

func TestSerializedDispatch(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var order []string

	h := HandlerFunc(func(_ context.Context, req Request) Response {
		if req.Command == "slow" {
			close(entered)
			<-release
		}
		mu.Lock()
		order = append(order, req.Command)
		mu.Unlock()
		return OK(req.Command)
	})

	sock, stop := startServer(t, h)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := NewClient(sock).Send(context.Background(), "slow", nil); err != nil {
			t.Errorf("slow failed: %v", err)
		}
	}()

	<-entered
	fastDone := make(chan struct{})
	go func() {
		defer wg.Done()
		if _, err := NewClient(sock).Send(context.Background(), "fast", nil); err != nil {
			t.Errorf("fast failed: %v", err)
		}
		close(fastDone)
	}()

	// While slow is blocked in its handler, fast must not complete.
	select {
	case <-fastDone:
		t.Fatal("second command completed while first was still executing")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "slow" || order[1] != "fast" {
		t.Errorf("dispatch order = %v, want [slow fast]", order)
	}
}

func TestServeRecoversFromStaleSocket(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "glyde.sock")
	if err := os.WriteFile(sock, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(sock, echoHandler())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	waitForServer(t, sock)

	if _, err := NewClient(sock).Send(context.Background(), "url", nil); err != nil {
		t.Errorf("server not functional after stale socket recovery: %v", err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Serve returned error: %v", err)
	}
	if _, err := os.Stat(sock); !os.IsNotExist(err) {
		t.Error("socket file not removed at shutdown")
	}
}

func TestClientFailsFastWithoutSocket(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "absent.sock"))
	start := time.Now()
	_, err := c.Send(context.Background(), "url", nil)
	if !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("missing-socket failure should be immediate")
	}
}
