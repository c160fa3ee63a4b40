package skillconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Watcher reloads a Loader's root template whenever the root document or any
// subagent document it transitively references changes on disk, debouncing
// bursts of writes from the same save. The reloaded template is discarded;
// only the Load error is passed on, to onReload.
type Watcher struct {
	loader    *Loader
	rootPath  string
	debounce  time.Duration
	onReload  func(err error)
	fsWatcher *fsnotify.Watcher

	mu      sync.Mutex
	watched map[string]struct{}
	cancel  func()
}

// NewWatcher starts watching rootPath (and its subagent tree) for changes,
// invoking onReload with the new Load error (nil on success) after each
// change settles. Call Stop to release the underlying OS watch.
func NewWatcher(loader *Loader, rootPath string, debounce time.Duration, onReload func(err error)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("skillconfig: create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	w := &Watcher{
		loader:    loader,
		rootPath:  rootPath,
		debounce:  debounce,
		onReload:  onReload,
		fsWatcher: fsWatcher,
		watched:   map[string]struct{}{},
	}
	if err := w.refreshWatches(); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	stop := make(chan struct{})
	w.cancel = sync.OnceFunc(func() { close(stop) })
	go w.run(stop)
	return w, nil
}

// Stop releases the underlying filesystem watch.
func (w *Watcher) Stop() {
	w.cancel()
	w.fsWatcher.Close()
}

// refreshWatches re-reads the root document and the subagent documents it
// references from disk (or, if that walk fails, takes just the root path)
// and adds an fsnotify watch on every such file not yet watched, so a
// newly-referenced subagent document starts being watched after the next
// successful reload.
func (w *Watcher) refreshWatches() error {
	paths, err := referencedPaths(w.rootPath)
	if err != nil {
		// The root document might be transiently invalid; still watch it so
		// a fix triggers a reload.
		paths = []string{w.rootPath}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range paths {
		if _, ok := w.watched[p]; ok {
			continue
		}
		if err := w.fsWatcher.Add(p); err != nil {
			return fmt.Errorf("skillconfig: watch %s: %w", p, err)
		}
		w.watched[p] = struct{}{}
	}
	return nil
}

func (w *Watcher) run(stop <-chan struct{}) {
	var timer *time.Timer
	for {
		select {
		case <-stop:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)
		case _, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) reload() {
	_, err := w.loader.Load(w.rootPath)
	if err == nil {
		_ = w.refreshWatches()
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}

// referencedPaths returns rootPath plus the absolute path of every subagent
// document it (transitively) references, without validating tool names —
// callers watch files that may be mid-edit and temporarily invalid.
func referencedPaths(rootPath string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	var walk func(path string) error
	walk = func(path string) error {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if seen[abs] {
			return nil
		}
		seen[abs] = true
		out = append(out, abs)

		data, err := os.ReadFile(abs)
		if err != nil {
			return err
		}
		var doc Document
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return err
		}
		baseDir := filepath.Dir(abs)
		for _, rel := range doc.Subagents {
			childPath := rel
			if !filepath.IsAbs(childPath) {
				childPath = filepath.Join(baseDir, rel)
			}
			if err := walk(childPath); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(rootPath); err != nil {
		return out, err
	}
	return out, nil
}
