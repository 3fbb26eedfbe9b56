package browser

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/TensoriumAi/Glyde/internal/inject"
	"github.com/TensoriumAi/Glyde/internal/logging"
)

// watchDebounce collapses editor write bursts into one reload.
const watchDebounce = 300 * time.Millisecond

// WatchInjection watches the manifest file and every script it references,
// invoking onChange (debounced) whenever any of them is written. Used by
// serve --watch so edited injection scripts take effect via a page reload.
// Blocks until ctx is cancelled; setup failures are returned, watch-loop
// errors are logged and survived.
func WatchInjection(ctx context.Context, engine *inject.Engine, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch directories rather than files: editors replace files on save,
	// which drops file-level watches.
	dirs := map[string]bool{filepath.Dir(engine.ManifestPath()): true}
	if paths, err := engine.ScriptPaths(); err == nil {
		for _, p := range paths {
			dirs[filepath.Dir(p)] = true
		}
	} else {
		logging.InjectWarn("watch: manifest unreadable at startup: %v", err)
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			logging.InjectWarn("watch %s: %v", dir, err)
		}
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			logging.Inject("watch: %s changed", ev.Name)
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			onChange()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.InjectWarn("watch error: %v", err)
		}
	}
}
