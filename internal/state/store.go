// Package state persists a session's cookie/localStorage snapshot across
// controller restarts. Snapshots are append-only, timestamp-named JSON files;
// the lexicographically last filename is the most recent. Restore is a
// fill-gaps merge: live values always win, persisted values only land in
// slots the live session has not populated.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/TensoriumAi/Glyde/internal/logging"
)

// Cookie is the persisted subset of a browser cookie. Identity for merge
// purposes is (Name, Domain).
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"http_only,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
}

// Snapshot captures the persistable browser state at one point in time.
type Snapshot struct {
	Cookies      []Cookie          `json:"cookies"`
	LocalStorage map[string]string `json:"local_storage"`
	Timestamp    time.Time         `json:"timestamp"`
}

// Empty reports whether the snapshot carries no cookies and no storage keys.
// Callers should not persist empty snapshots: Load trusts the newest file,
// so an empty one would shadow earlier, richer snapshots across a restart.
func (s Snapshot) Empty() bool {
	return len(s.Cookies) == 0 && len(s.LocalStorage) == 0
}

// Store reads and writes snapshot files in a session's state directory.
type Store struct {
	dir string
}

// NewStore returns a store over the given state directory.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

const snapshotPrefix = "state-"

// Save writes a new timestamped snapshot file. Existing files are never
// touched; history is append-only. Failure is reported to the caller for
// logging but must never be treated as fatal.
func (s *Store) Save(snap Snapshot) error {
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now()
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	// Nanosecond stamp keeps names unique and lexicographically ordered.
	name := fmt.Sprintf("%s%s.json", snapshotPrefix, snap.Timestamp.UTC().Format("20060102T150405.000000000"))
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create snapshot %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	logging.State("saved snapshot %s (%d cookies, %d storage keys)", name, len(snap.Cookies), len(snap.LocalStorage))
	return nil
}

// Load returns the most recent snapshot, or ok=false when none exists.
// A snapshot file that fails to parse is logged and treated as absent.
func (s *Store) Load() (Snapshot, bool) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.StateWarn("read state directory %s: %v", s.dir, err)
		}
		return Snapshot{}, false
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), snapshotPrefix) && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return Snapshot{}, false
	}
	sort.Strings(names)
	latest := names[len(names)-1]

	data, err := os.ReadFile(filepath.Join(s.dir, latest))
	if err != nil {
		logging.StateWarn("read snapshot %s: %v", latest, err)
		return Snapshot{}, false
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		logging.StateWarn("parse snapshot %s: %v", latest, err)
		return Snapshot{}, false
	}
	logging.State("loaded snapshot %s (%d cookies, %d storage keys)", latest, len(snap.Cookies), len(snap.LocalStorage))
	return snap, true
}

// Merge computes the fill-gaps restore set: the portion of saved that may be
// applied on top of live without overwriting anything. A saved cookie is
// included only if no live cookie shares its (name, domain) identity; a saved
// storage key only if the live session lacks that key.
func Merge(live, saved Snapshot) Snapshot {
	out := Snapshot{LocalStorage: make(map[string]string)}

	seen := make(map[[2]string]bool, len(live.Cookies))
	for _, c := range live.Cookies {
		seen[[2]string{c.Name, c.Domain}] = true
	}
	for _, c := range saved.Cookies {
		if !seen[[2]string{c.Name, c.Domain}] {
			out.Cookies = append(out.Cookies, c)
		}
	}

	for k, v := range saved.LocalStorage {
		if _, ok := live.LocalStorage[k]; !ok {
			out.LocalStorage[k] = v
		}
	}
	return out
}
