package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// PollingWatcher detects changes by periodically re-walking the tree and
// diffing (modtime, size) snapshots. It is the fallback for filesystems
// where fsnotify can't deliver events: network mounts, some container
// volumes.
type PollingWatcher struct {
	interval time.Duration
	rootPath string

	mu      sync.RWMutex
	known   map[string]fileSnapshot
	events  chan FileEvent
	errors  chan error
	stopCh  chan struct{}
	stopped bool
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// NewPollingWatcher creates a polling watcher that rescans at interval.
func NewPollingWatcher(interval time.Duration) *PollingWatcher {
	return &PollingWatcher{
		interval: interval,
		known:    make(map[string]fileSnapshot),
		events:   make(chan FileEvent, 100),
		errors:   make(chan error, 10),
		stopCh:   make(chan struct{}),
	}
}

// Start takes an initial snapshot and then polls until the context is
// cancelled or Stop is called.
func (p *PollingWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	p.rootPath = absPath

	p.mu.Lock()
	p.known, err = p.snapshotTree()
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("initial snapshot: %w", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.diffAgainstKnown(); err != nil {
				select {
				case p.errors <- err:
				default:
				}
			}
		}
	}
}

// Stop halts polling and closes both channels. Safe to call twice.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}

// Events returns the channel of file events.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// Errors returns the channel of non-fatal polling errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errors
}

// snapshotTree walks the root and records every entry's (modtime, size).
// Unreadable entries are skipped; a poll pass must never fail on one bad
// file.
func (p *PollingWatcher) snapshotTree() (map[string]fileSnapshot, error) {
	snap := make(map[string]fileSnapshot)

	err := filepath.WalkDir(p.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		relPath, err := filepath.Rel(p.rootPath, path)
		if err != nil || relPath == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		snap[relPath] = fileSnapshot{modTime: info.ModTime(), size: info.Size(), isDir: d.IsDir()}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return snap, nil
}

// diffAgainstKnown takes a fresh snapshot, emits create/modify/delete
// events for every difference, and adopts the fresh snapshot as known.
func (p *PollingWatcher) diffAgainstKnown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	current, err := p.snapshotTree()
	if err != nil {
		return err
	}

	for relPath, snap := range current {
		prev, existed := p.known[relPath]
		switch {
		case !existed:
			p.emit(FileEvent{Path: relPath, Operation: OpCreate, IsDir: snap.isDir, Timestamp: time.Now()})
		case prev.modTime != snap.modTime || prev.size != snap.size:
			p.emit(FileEvent{Path: relPath, Operation: OpModify, IsDir: snap.isDir, Timestamp: time.Now()})
		}
	}

	for relPath, snap := range p.known {
		if _, still := current[relPath]; !still {
			p.emit(FileEvent{Path: relPath, Operation: OpDelete, IsDir: snap.isDir, Timestamp: time.Now()})
		}
	}

	p.known = current
	return nil
}

// emit sends without blocking; a full buffer drops the event with a log
// line. Callers hold p.mu.
func (p *PollingWatcher) emit(event FileEvent) {
	if p.stopped {
		return
	}
	select {
	case p.events <- event:
	default:
		slog.Warn("polling watcher buffer full, dropping event",
			slog.String("path", event.Path),
			slog.String("op", event.Operation.String()),
		)
	}
}
