package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	snap := Snapshot{
		Cookies:      []Cookie{{Name: "a", Domain: "x", Value: "1"}},
		LocalStorage: map[string]string{"theme": "dark"},
		Timestamp:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := store.Save(snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, ok := store.Load()
	if !ok {
		t.Fatal("Load returned no snapshot")
	}
	if diff := cmp.Diff(snap.Cookies, loaded.Cookies); diff != "" {
		t.Errorf("cookies mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(snap.LocalStorage, loaded.LocalStorage); diff != "" {
		t.Errorf("storage mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadPicksMostRecent(t *testing.T) {
	store := NewStore(t.TempDir())

	old := Snapshot{
		LocalStorage: map[string]string{"k": "old"},
		Timestamp:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	recent := Snapshot{
		LocalStorage: map[string]string{"k": "new"},
		Timestamp:    time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := store.Save(old); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(recent); err != nil {
		t.Fatal(err)
	}

	loaded, ok := store.Load()
	if !ok {
		t.Fatal("Load returned no snapshot")
	}
	if loaded.LocalStorage["k"] != "new" {
		t.Errorf("expected most recent snapshot, got %q", loaded.LocalStorage["k"])
	}
}

func TestSaveIsAppendOnly(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	for i := 0; i < 3; i++ {
		if err := store.Save(Snapshot{}); err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("expected 3 snapshot files, got %d", len(entries))
	}
}

func TestLoadEmptyDirectory(t *testing.T) {
	store := NewStore(t.TempDir())
	if _, ok := store.Load(); ok {
		t.Error("expected no snapshot from empty directory")
	}
}

func TestLoadMissingDirectory(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nope"))
	if _, ok := store.Load(); ok {
		t.Error("expected no snapshot from missing directory")
	}
}

func TestLoadCorruptSnapshotIsAbsent(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	path := filepath.Join(dir, "state-20260101T000000.000000000.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Load(); ok {
		t.Error("corrupt snapshot should be treated as absent")
	}
}

func TestMergeFillsGapsOnly(t *testing.T) {
	live := Snapshot{
		Cookies: []Cookie{
			{Name: "a", Domain: "x", Value: "live"},
		},
		LocalStorage: map[string]string{"keep": "live"},
	}
	saved := Snapshot{
		Cookies: []Cookie{
			{Name: "a", Domain: "x", Value: "stale"}, // same identity, must not apply
			{Name: "a", Domain: "y", Value: "other-domain"},
			{Name: "b", Domain: "x", Value: "fresh"},
		},
		LocalStorage: map[string]string{
			"keep": "stale",
			"fill": "restored",
		},
	}

	got := Merge(live, saved)

	want := []Cookie{
		{Name: "a", Domain: "y", Value: "other-domain"},
		{Name: "b", Domain: "x", Value: "fresh"},
	}
	if diff := cmp.Diff(want, got.Cookies); diff != "" {
		t.Errorf("cookie merge mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"fill": "restored"}, got.LocalStorage); diff != "" {
		t.Errorf("storage merge mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeEmptyLive(t *testing.T) {
	saved := Snapshot{
		Cookies:      []Cookie{{Name: "a", Domain: "x", Value: "1"}},
		LocalStorage: map[string]string{"k": "v"},
	}
	got := Merge(Snapshot{}, saved)
	if len(got.Cookies) != 1 || got.Cookies[0].Value != "1" {
		t.Errorf("expected saved cookie to apply into empty live state, got %+v", got.Cookies)
	}
	if got.LocalStorage["k"] != "v" {
		t.Errorf("expected saved key to apply, got %+v", got.LocalStorage)
	}
}

func TestSnapshotEmpty(t *testing.T) {
	if !(Snapshot{}).Empty() {
		t.Error("zero snapshot should be empty")
	}
	if !(Snapshot{LocalStorage: map[string]string{}, Timestamp: time.Now()}).Empty() {
		t.Error("timestamp alone should not make a snapshot non-empty")
	}
	if (Snapshot{Cookies: []Cookie{{Name: "a", Domain: "x"}}}).Empty() {
		t.Error("snapshot with a cookie should not be empty")
	}
	if (Snapshot{LocalStorage: map[string]string{"k": "v"}}).Empty() {
		t.Error("snapshot with a storage key should not be empty")
	}
}

// An empty snapshot written after a rich one shadows it on load; the
// controller relies on Empty to avoid writing the later file at all.
func TestLoadTrustsNewestFile(t *testing.T) {
	store := NewStore(t.TempDir())

	rich := Snapshot{
		Cookies:   []Cookie{{Name: "sid", Domain: "example.com", Value: "1"}},
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := store.Save(rich); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	empty := Snapshot{Timestamp: time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)}
	if err := store.Save(empty); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, ok := store.Load()
	if !ok {
		t.Fatal("Load returned no snapshot")
	}
	if !loaded.Empty() {
		t.Errorf("expected the newest (empty) snapshot to win, got %+v", loaded)
	}
}
