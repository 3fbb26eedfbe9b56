package inject

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Wildcard matches any session or any URL in manifest rules.
const Wildcard = "*"

// PatternSet holds per-environment URL substring patterns.
type PatternSet struct {
	Dev  []string `yaml:"dev"`
	Prod []string `yaml:"prod"`
}

// Entry is one manifest rule: a script path plus the sessions and URLs it
// applies to. A script is eligible for a (session, url) pair iff Sessions
// contains the session name or the wildcard, AND the environment's pattern
// list contains the wildcard or a substring of the URL.
type Entry struct {
	Path        string     `yaml:"path"`
	Sessions    []string   `yaml:"sessions"`
	URLPatterns PatternSet `yaml:"url_patterns"`
}

// Manifest is an ordered list of injection rules. Order matters: later
// scripts may depend on globals set by earlier ones.
type Manifest struct {
	Scripts []Entry `yaml:"scripts"`
}

// LoadManifest parses the manifest file at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// Environment classification. Localhost-style URLs are dev; everything
// else is prod.
const (
	EnvDev  = "dev"
	EnvProd = "prod"
)

var devMarkers = []string{"localhost", "127.0.0.1", "0.0.0.0"}

// ClassifyEnv returns EnvDev for localhost-style URLs, EnvProd otherwise.
func ClassifyEnv(url string) string {
	for _, marker := range devMarkers {
		if strings.Contains(url, marker) {
			return EnvDev
		}
	}
	return EnvProd
}

// MatchesSession reports whether the entry applies to the named session.
func (e Entry) MatchesSession(name string) bool {
	for _, s := range e.Sessions {
		if s == Wildcard || s == name {
			return true
		}
	}
	return false
}

// MatchesURL reports whether the entry's pattern list for env matches url.
func (e Entry) MatchesURL(env, url string) bool {
	patterns := e.URLPatterns.Prod
	if env == EnvDev {
		patterns = e.URLPatterns.Dev
	}
	for _, p := range patterns {
		if p == Wildcard || (p != "" && strings.Contains(url, p)) {
			return true
		}
	}
	return false
}

// Eligible returns the entries that should be injected for the given
// session and URL, preserving manifest order.
func (m *Manifest) Eligible(sessionName, url string) []Entry {
	env := ClassifyEnv(url)
	var out []Entry
	for _, e := range m.Scripts {
		if e.MatchesSession(sessionName) && e.MatchesURL(env, url) {
			out = append(out, e)
		}
	}
	return out
}

// ScriptPath resolves an entry's script path relative to the manifest file.
func ScriptPath(manifestPath string, e Entry) string {
	if filepath.IsAbs(e.Path) {
		return e.Path
	}
	return filepath.Join(filepath.Dir(manifestPath), e.Path)
}
