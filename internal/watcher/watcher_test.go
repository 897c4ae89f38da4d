package watcher

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func waitForBatch(t *testing.T, w *Watcher, wantPath string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case batch := <-w.Batches():
			if slices.Contains(batch, wantPath) {
				return
			}
			// Unrelated noise (e.g. directory creation events); keep
			// draining until the deadline.
		case <-deadline:
			t.Fatalf("no batch containing %s", wantPath)
		}
	}
}

func TestWatcherDeliversDebouncedBatch(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	waitForBatch(t, w, path)
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// Give the watcher a moment to register the new directory before
	// writing into it.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(sub, "nested.txt")
	if err := os.WriteFile(path, []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	waitForBatch(t, w, path)
}
