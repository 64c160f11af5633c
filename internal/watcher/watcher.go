package watcher

import (
	"context"
	"time"
)

// Operation classifies a file system event.
type Operation int

const (
	// OpCreate: a new file or directory appeared.
	OpCreate Operation = iota
	// OpModify: an existing file's content changed.
	OpModify
	// OpDelete: a file or directory went away.
	OpDelete
	// OpRename: a file or directory moved.
	OpRename
	// OpGitignoreChange: a .gitignore changed; the consumer should
	// reconcile which files are indexable at all.
	OpGitignoreChange
	// OpConfigChange: the project config file changed; exclude patterns
	// may need reloading.
	OpConfigChange
)

// String returns the operation's log label.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	case OpGitignoreChange:
		return "GITIGNORE_CHANGE"
	case OpConfigChange:
		return "CONFIG_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one observed change, path relative to the watched root.
type FileEvent struct {
	Path      string
	OldPath   string // previous path, rename events only
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Watcher is the common surface of the fsnotify and polling
// implementations.
type Watcher interface {
	// Start watches path recursively until Stop or context cancellation.
	Start(ctx context.Context, path string) error

	// Stop releases resources; safe to call more than once.
	Stop() error

	// Events streams observed changes; closed when the watcher stops.
	Events() <-chan FileEvent

	// Errors streams non-fatal problems; the watcher keeps running.
	Errors() <-chan error
}

// Options tunes watcher behavior.
type Options struct {
	// DebounceWindow is how long the event stream must stay quiet before
	// the pending coalesced events are emitted as one batch; any new event
	// restarts the wait.
	DebounceWindow time.Duration

	// PollInterval is the rescan period for the polling fallback.
	PollInterval time.Duration

	// EventBufferSize is the event channel capacity.
	EventBufferSize int

	// IgnorePatterns are extra gitignore-syntax patterns applied on top of
	// the project's .gitignore files.
	IgnorePatterns []string
}

// DefaultOptions returns the defaults used by the watch command.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  200 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 1000,
	}
}

// Validate checks the options; every field currently has a safe zero
// interpretation, so it never fails.
func (o Options) Validate() error {
	return nil
}

// WithDefaults fills zero-valued fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval == 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}
