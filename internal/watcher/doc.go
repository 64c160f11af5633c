// Package watcher watches a project tree for changes and feeds debounced,
// gitignore-filtered file events to the incremental indexer. FSWatcher uses
// fsnotify where the platform supports it and falls back to stat-polling
// where it doesn't (network mounts, some container volumes). Rapid event
// bursts from editors and git operations are coalesced by the Debouncer
// before they reach a consumer.
package watcher
