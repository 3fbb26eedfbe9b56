// Package session resolves a named control session to its on-disk namespace:
// four working directories and one Unix socket, all derived deterministically
// from the session name. Directories persist across controller runs; the
// socket never does.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/TensoriumAi/Glyde/internal/logging"
)

// DefaultName is used when no session is selected.
const DefaultName = "default"

// SocketFile is the socket filename inside a session directory.
const SocketFile = "glyde.sock"

// Context describes one session's filesystem namespace.
type Context struct {
	Name string
	Root string

	LogsDir        string
	StateDir       string
	ScreenshotsDir string
	ProfileDir     string

	SocketPath string
}

// BaseDir returns the root under which all sessions live. GLYDE_HOME
// overrides the default of ~/.glyde (tests rely on this).
func BaseDir() (string, error) {
	if env := os.Getenv("GLYDE_HOME"); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".glyde"), nil
}

// Paths derives a session's namespace without touching the filesystem.
// Clients use this to locate the socket; only the controller calls Resolve.
func Paths(name string) (*Context, error) {
	if name == "" {
		name = DefaultName
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	base, err := BaseDir()
	if err != nil {
		return nil, err
	}
	root := filepath.Join(base, "sessions", name)
	return &Context{
		Name:           name,
		Root:           root,
		LogsDir:        filepath.Join(root, "logs"),
		StateDir:       filepath.Join(root, "state"),
		ScreenshotsDir: filepath.Join(root, "screenshots"),
		ProfileDir:     filepath.Join(root, "profile"),
		SocketPath:     filepath.Join(root, SocketFile),
	}, nil
}

// Resolve derives the namespace, ensures all four directories exist, and
// removes any stale socket left behind by a crashed controller. A directory
// creation failure is fatal: the controller must not bind a socket or launch
// a browser against a half-built namespace.
func Resolve(name string) (*Context, error) {
	ctx, err := Paths(name)
	if err != nil {
		return nil, err
	}
	for _, dir := range []string{ctx.LogsDir, ctx.StateDir, ctx.ScreenshotsDir, ctx.ProfileDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create session directory %s: %w", dir, err)
		}
	}
	// No listener may ever start with a leftover artifact from a previous
	// instance. Removal is unconditional and idempotent.
	if err := os.Remove(ctx.SocketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale socket %s: %w", ctx.SocketPath, err)
	}
	logging.Session("resolved session %q at %s", ctx.Name, ctx.Root)
	return ctx, nil
}

func validateName(name string) error {
	if strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return fmt.Errorf("invalid session name %q", name)
	}
	return nil
}
