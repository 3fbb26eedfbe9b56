// Package inject decides which scripts to evaluate into the page after each
// load, driven by a declarative manifest. The manifest is re-read on every
// page load so edits take effect on the next navigation without a restart.
package inject

import (
	"context"
	"os"

	"github.com/TensoriumAi/Glyde/internal/logging"
)

// Evaluator is the single browser capability the engine consumes.
type Evaluator interface {
	Evaluate(ctx context.Context, script string) (interface{}, error)
}

// Engine runs one injection cycle per page-load event. It keeps no state
// between cycles; matching is pure data evaluation over the manifest.
type Engine struct {
	manifestPath string
	session      string
}

// NewEngine returns an engine for the given manifest file and session name.
func NewEngine(manifestPath, session string) *Engine {
	return &Engine{manifestPath: manifestPath, session: session}
}

// ManifestPath returns the manifest file location (used by watch mode).
func (e *Engine) ManifestPath() string {
	return e.manifestPath
}

// OnPageLoad runs one injection cycle for the given URL. An unreadable
// manifest aborts the cycle; a single script's read or evaluation failure is
// logged and the remaining eligible scripts are still attempted. Nothing is
// returned to the command path; the engine is a pure side-effecting hook.
func (e *Engine) OnPageLoad(ctx context.Context, url string, ev Evaluator) {
	if e.manifestPath == "" {
		return
	}
	m, err := LoadManifest(e.manifestPath)
	if err != nil {
		logging.InjectWarn("manifest unreadable, skipping cycle: %v", err)
		return
	}

	eligible := m.Eligible(e.session, url)
	if len(eligible) == 0 {
		logging.Inject("no eligible scripts for %s (session %q)", url, e.session)
		return
	}

	injected := 0
	for _, entry := range eligible {
		path := ScriptPath(e.manifestPath, entry)
		body, err := os.ReadFile(path)
		if err != nil {
			logging.InjectWarn("read script %s: %v", path, err)
			continue
		}
		if _, err := ev.Evaluate(ctx, string(body)); err != nil {
			logging.InjectWarn("evaluate script %s: %v", path, err)
			continue
		}
		injected++
		logging.Inject("injected %s into %s", entry.Path, url)
	}
	logging.Inject("cycle complete: %d/%d scripts injected for %s", injected, len(eligible), url)
}

// ScriptPaths returns every script path the manifest currently references,
// resolved relative to the manifest file. Used by watch mode.
func (e *Engine) ScriptPaths() ([]string, error) {
	m, err := LoadManifest(e.manifestPath)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(m.Scripts))
	for _, entry := range m.Scripts {
		paths = append(paths, ScriptPath(e.manifestPath, entry))
	}
	return paths, nil
}
