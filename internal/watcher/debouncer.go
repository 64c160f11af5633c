package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid file events so a save storm becomes one
// reindex. Events for the same path within the window merge by operation
// sequence:
//
//	CREATE then MODIFY  -> CREATE  (file is still new)
//	CREATE then DELETE  -> dropped (file never really existed)
//	MODIFY then DELETE  -> DELETE
//	DELETE then CREATE  -> MODIFY  (file was replaced)
type Debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]*trackedEvent
	timer   *time.Timer
	output  chan []FileEvent
	stopped bool
}

// trackedEvent remembers the first operation seen for a path; the merge
// outcome depends on how the sequence started, not just the latest event.
type trackedEvent struct {
	event   FileEvent
	firstOp Operation
}

// NewDebouncer creates a Debouncer that emits coalesced batches after
// window of quiet time per schedule.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*trackedEvent),
		output:  make(chan []FileEvent, 10),
	}
}

// Add records an event, merging it into any pending event for the same
// path, and (re)arms the flush timer.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	tracked, exists := d.pending[event.Path]
	if !exists {
		d.pending[event.Path] = &trackedEvent{event: event, firstOp: event.Operation}
		d.armFlush()
		return
	}

	merged, keep := mergeEvents(tracked.firstOp, tracked.event, event)
	if !keep {
		delete(d.pending, event.Path)
	} else {
		tracked.event = merged
	}
	d.armFlush()
}

// mergeEvents resolves two events for one path into the single event the
// indexer should see. keep=false means the pair cancels out entirely.
func mergeEvents(firstOp Operation, prev, next FileEvent) (merged FileEvent, keep bool) {
	switch firstOp {
	case OpCreate:
		switch next.Operation {
		case OpModify:
			return prev, true
		case OpDelete:
			return FileEvent{}, false
		}
	case OpDelete:
		if next.Operation == OpCreate {
			next.Operation = OpModify
			return next, true
		}
	}
	return next, true
}

// armFlush restarts the quiet-period timer. Callers hold d.mu.
func (d *Debouncer) armFlush() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush emits everything pending as one batch. The send never blocks: a
// stalled consumer loses the batch (and gets a log line) rather than
// wedging the watcher goroutine.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(d.pending))
	for _, te := range d.pending {
		batch = append(batch, te.event)
	}
	d.pending = make(map[string]*trackedEvent)

	select {
	case d.output <- batch:
	default:
		slog.Warn("debouncer output full, dropping batch", slog.Int("batch_size", len(batch)))
	}
}

// Output returns the channel of coalesced event batches.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop halts the flush timer and closes the output channel. Safe to call
// more than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
