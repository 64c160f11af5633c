package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/filecompass/compass/internal/gitignore"
)

const dataDirName = ".compass"

// FSWatcher implements Watcher using fsnotify as the primary mechanism,
// falling back to polling when fsnotify can't be initialized (e.g. on
// filesystems or containers that don't support inotify).
type FSWatcher struct {
	fsWatcher     *fsnotify.Watcher
	pollWatcher   *PollingWatcher
	useFsnotify   bool
	debouncer     *Debouncer
	gitignore     *gitignore.Matcher
	events        chan FileEvent
	errors        chan error
	stopCh        chan struct{}
	rootPath      string
	opts          Options
	mu            sync.RWMutex
	stopped       bool
	droppedEvents atomic.Uint64
}

var _ Watcher = (*FSWatcher)(nil)

// NewFSWatcher creates a watcher with the given options, preferring fsnotify
// and transparently falling back to polling if the OS refuses to hand out a
// native watch handle.
func NewFSWatcher(opts Options) (*FSWatcher, error) {
	opts = opts.WithDefaults()

	w := &FSWatcher{
		debouncer: NewDebouncer(opts.DebounceWindow),
		gitignore: gitignore.New(),
		events:    make(chan FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		opts:      opts,
	}

	for _, pattern := range opts.IgnorePatterns {
		w.gitignore.AddPattern(pattern)
	}
	w.gitignore.AddPattern(dataDirName + "/")
	w.gitignore.AddPattern(dataDirName + "/**")

	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		w.fsWatcher = fsw
		w.useFsnotify = true
	} else {
		w.useFsnotify = false
		w.pollWatcher = NewPollingWatcher(opts.PollInterval)
	}

	return w, nil
}

// Start begins watching the given directory. It blocks until the context is
// cancelled or Stop is called.
func (w *FSWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	w.rootPath = absPath

	w.loadGitignore()

	go w.forwardDebouncedEvents(ctx)

	if w.useFsnotify {
		return w.startFsnotify(ctx)
	}
	return w.startPolling(ctx)
}

func (w *FSWatcher) startFsnotify(ctx context.Context) error {
	if err := w.addRecursive(w.rootPath); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *FSWatcher) startPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case event, ok := <-w.pollWatcher.Events():
				if !ok {
					return
				}
				w.dispatch(event)
			case err, ok := <-w.pollWatcher.Errors():
				if !ok {
					return
				}
				w.emitError(err)
			}
		}
	}()

	return w.pollWatcher.Start(ctx, w.rootPath)
}

func (w *FSWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	relPath, err := filepath.Rel(w.rootPath, event.Name)
	if err != nil {
		relPath = event.Name
	}

	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		if isDir {
			_ = w.fsWatcher.Add(event.Name)
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}

	w.dispatch(FileEvent{Path: relPath, Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

// dispatch filters a raw event and, unless it's a special config/gitignore
// path, hands it to the debouncer for coalescing.
func (w *FSWatcher) dispatch(event FileEvent) {
	if w.shouldIgnore(event.Path, event.IsDir) {
		return
	}

	base := filepath.Base(event.Path)
	switch base {
	case ".gitignore":
		w.loadGitignore()
		w.debouncer.Add(FileEvent{Path: event.Path, Operation: OpGitignoreChange, Timestamp: time.Now()})
		return
	case ".compass.yaml", ".compass.yml":
		w.debouncer.Add(FileEvent{Path: event.Path, Operation: OpConfigChange, Timestamp: time.Now()})
		return
	}

	w.debouncer.Add(event)
}

func (w *FSWatcher) forwardDebouncedEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			for _, ev := range batch {
				w.emitEvent(ev)
			}
		}
	}
}

func (w *FSWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		relPath, _ := filepath.Rel(w.rootPath, path)
		if relPath == "." {
			return w.fsWatcher.Add(path)
		}
		if w.shouldIgnoreDir(relPath) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *FSWatcher) shouldIgnoreDir(relPath string) bool {
	if strings.HasPrefix(relPath, ".git") || relPath == ".git" {
		return true
	}
	if strings.HasPrefix(relPath, dataDirName) || relPath == dataDirName {
		return true
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.gitignore.Match(relPath, true)
}

func (w *FSWatcher) shouldIgnore(relPath string, isDir bool) bool {
	if relPath == "." || relPath == "" {
		return true
	}
	if strings.HasPrefix(relPath, ".git/") || relPath == ".git" {
		return true
	}
	if strings.HasPrefix(relPath, dataDirName+"/") || relPath == dataDirName {
		return true
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.gitignore.Match(relPath, isDir)
}

func (w *FSWatcher) loadGitignore() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.gitignore = gitignore.New()
	for _, pattern := range w.opts.IgnorePatterns {
		w.gitignore.AddPattern(pattern)
	}
	w.gitignore.AddPattern(dataDirName + "/")
	w.gitignore.AddPattern(dataDirName + "/**")

	rootGitignore := filepath.Join(w.rootPath, ".gitignore")
	if err := w.gitignore.AddFromFile(rootGitignore, ""); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load root gitignore", slog.String("path", rootGitignore), slog.String("error", err.Error()))
	}

	_ = filepath.WalkDir(w.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if d.Name() == ".gitignore" && path != rootGitignore {
			base, _ := filepath.Rel(w.rootPath, filepath.Dir(path))
			if err := w.gitignore.AddFromFile(path, base); err != nil {
				slog.Warn("failed to read nested gitignore", slog.String("path", path), slog.String("error", err.Error()))
			}
		}
		return nil
	})
}

func (w *FSWatcher) emitEvent(event FileEvent) {
	w.mu.RLock()
	stopped := w.stopped
	w.mu.RUnlock()
	if stopped {
		return
	}

	select {
	case w.events <- event:
	default:
		count := w.droppedEvents.Add(1)
		slog.Warn("event buffer full, dropping event", slog.String("path", event.Path), slog.Uint64("total_dropped", count))
	}
}

func (w *FSWatcher) emitError(err error) {
	w.mu.RLock()
	stopped := w.stopped
	w.mu.RUnlock()
	if stopped {
		return
	}

	select {
	case w.errors <- err:
	default:
	}
}

// Stop stops the watcher and releases resources. Safe to call multiple times.
func (w *FSWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)

	w.debouncer.Stop()

	if w.useFsnotify && w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
	if w.pollWatcher != nil {
		_ = w.pollWatcher.Stop()
	}

	close(w.events)
	close(w.errors)
	return nil
}

// Events returns the channel of file events, unrolled from debounced batches.
func (w *FSWatcher) Events() <-chan FileEvent {
	return w.events
}

// Errors returns the channel of non-fatal watcher errors.
func (w *FSWatcher) Errors() <-chan error {
	return w.errors
}

// DroppedEvents returns the number of events dropped due to buffer overflow.
func (w *FSWatcher) DroppedEvents() uint64 {
	return w.droppedEvents.Load()
}

// WatcherType reports which underlying mechanism is active, for status
// reporting and diagnostics.
func (w *FSWatcher) WatcherType() string {
	if w.useFsnotify {
		return "fsnotify"
	}
	return "polling"
}
