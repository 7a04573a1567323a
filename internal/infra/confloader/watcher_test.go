package confloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
}

func startWatcher(t *testing.T, paths ...string) <-chan string {
	t.Helper()
	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	t.Cleanup(func() { w.Stop() })

	for _, p := range paths {
		if err := w.Watch(p); err != nil {
			t.Fatalf("Watch(%s) error = %v", p, err)
		}
	}

	changes := make(chan string, 8)
	w.OnChange(func(path string) { changes <- path })
	w.StartAsync()
	return changes
}

func TestWatcher_NotifiesOnWrite(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	writeFile(t, configFile, "log:\n  level: info\n")

	changes := startWatcher(t, configFile)

	writeFile(t, configFile, "log:\n  level: debug\n")

	select {
	case got := <-changes:
		if filepath.Base(got) != "config.yaml" {
			t.Errorf("OnChange path = %s, want config.yaml", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification after write")
	}
}

func TestWatcher_NotifiesOnReplace(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	writeFile(t, configFile, "a: 1\n")

	changes := startWatcher(t, configFile)

	// Editors replace config files by writing a temp file and renaming
	// it over the original.
	tmp := filepath.Join(dir, "config.yaml.tmp")
	writeFile(t, tmp, "a: 2\n")
	if err := os.Rename(tmp, configFile); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-changes:
			if filepath.Base(got) == "config.yaml" {
				return
			}
		case <-deadline:
			t.Fatal("no change notification after rename replace")
		}
	}
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	writeFile(t, configFile, "a: 1\n")

	changes := startWatcher(t, configFile)

	// A churning sibling in the same directory must not fire reloads.
	writeFile(t, filepath.Join(dir, "access.log"), "line\n")

	select {
	case got := <-changes:
		t.Errorf("OnChange fired for unwatched file %s", got)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_StopIdempotent(t *testing.T) {
	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}
