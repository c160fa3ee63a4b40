package skillconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloadsOnRootFileChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "root.yaml", `
name: root
system_prompt: be helpful
`)

	reloads := make(chan error, 4)
	w, err := NewWatcher(newLoader(), path, 20*time.Millisecond, func(err error) { reloads <- err })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeFile(t, dir, "root.yaml", `
name: root
system_prompt: be more helpful
`)

	select {
	case err := <-reloads:
		if err != nil {
			t.Fatalf("expected a successful reload, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a reload notification")
	}
}

func TestWatcherReportsLoadErrorsWithoutCrashing(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "root.yaml", `
name: root
system_prompt: be helpful
`)

	reloads := make(chan error, 4)
	w, err := NewWatcher(newLoader(), path, 20*time.Millisecond, func(err error) { reloads <- err })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeFile(t, dir, "root.yaml", `
description: no name anymore, this document is now invalid
`)

	select {
	case err := <-reloads:
		if err == nil {
			t.Fatalf("expected the reload to report the invalid document")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a reload notification")
	}
}

func TestReferencedPathsIncludesSubagents(t *testing.T) {
	dir := t.TempDir()
	agentsDir := filepath.Join(dir, "agents")
	if err := os.Mkdir(agentsDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, agentsDir, "child.yaml", `
name: child
system_prompt: help
`)
	rootPath := writeFile(t, dir, "root.yaml", `
name: root
system_prompt: delegate
subagents:
  helper: agents/child.yaml
`)

	paths, err := referencedPaths(rootPath)
	if err != nil {
		t.Fatalf("referencedPaths: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("got %v", paths)
	}
}
