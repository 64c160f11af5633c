package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFSWatcher(t *testing.T) {
	w, err := NewFSWatcher(DefaultOptions())
	require.NoError(t, err)
	require.NotNil(t, w)
	defer func() { _ = w.Stop() }()
}

func TestFSWatcher_DetectsFileCreation(t *testing.T) {
	tempDir := t.TempDir()
	opts := Options{
		DebounceWindow:  20 * time.Millisecond,
		EventBufferSize: 100,
	}.WithDefaults()

	w, err := NewFSWatcher(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	go func() {
		close(started)
		_ = w.Start(ctx, tempDir)
	}()
	<-started
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "test.go"), []byte("package main"), 0o644))

	select {
	case event := <-w.Events():
		assert.Equal(t, "test.go", event.Path)
		assert.Equal(t, OpCreate, event.Operation)
	case err := <-w.Errors():
		t.Fatalf("got error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for create event")
	}

	require.NoError(t, w.Stop())
}

func TestFSWatcher_IgnoresDataDir(t *testing.T) {
	tempDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tempDir, dataDirName), 0o755))

	opts := Options{
		DebounceWindow:  20 * time.Millisecond,
		EventBufferSize: 100,
	}.WithDefaults()

	w, err := NewFSWatcher(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Start(ctx, tempDir) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(tempDir, dataDirName, "files.db"), []byte("x"), 0o644))

	select {
	case event := <-w.Events():
		t.Fatalf("expected no event for data dir churn, got %+v", event)
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, w.Stop())
}

func TestFSWatcher_ConfigChangeEvent(t *testing.T) {
	tempDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, ".compass.yaml"), []byte("version: 1\n"), 0o644))

	opts := Options{
		DebounceWindow:  20 * time.Millisecond,
		EventBufferSize: 100,
	}.WithDefaults()

	w, err := NewFSWatcher(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Start(ctx, tempDir) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(tempDir, ".compass.yaml"), []byte("version: 1\nextra: true\n"), 0o644))

	select {
	case event := <-w.Events():
		assert.Equal(t, OpConfigChange, event.Operation)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config change event")
	}

	require.NoError(t, w.Stop())
}

func TestFSWatcher_StopIsIdempotent(t *testing.T) {
	w, err := NewFSWatcher(DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}

func TestFSWatcher_WatcherType(t *testing.T) {
	w, err := NewFSWatcher(DefaultOptions())
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()
	assert.Contains(t, []string{"fsnotify", "polling"}, w.WatcherType())
}
