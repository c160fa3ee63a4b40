package skillconfig

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentmesh/agentmesh/internal/execctx"
	"github.com/agentmesh/agentmesh/internal/llmprovider"
	"github.com/agentmesh/agentmesh/internal/toolkit"
)

type stubTool struct{ name string }

func (s stubTool) Name() string        { return s.name }
func (s stubTool) Description() string { return "stub" }
func (s stubTool) Schema() []byte      { return nil }
func (s stubTool) Execute(ctx context.Context, ec *execctx.Context, args json.RawMessage) (any, error) {
	return "ok", nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func newLoader() *Loader {
	registry := toolkit.NewRegistry()
	registry.Register(stubTool{name: "echo"})
	return &Loader{
		Tools:       registry,
		NewProvider: func() llmprovider.Provider { return llmprovider.NewMock() },
	}
}

func TestLoadSimpleDocument(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "root.yaml", `
name: root
description: the root agent
system_prompt: be helpful
tools: ["echo"]
max_iterations: 5
`)
	tmpl, err := newLoader().Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tmpl.Name != "root" || tmpl.SystemPrompt != "be helpful" || tmpl.MaxIterations != 5 {
		t.Fatalf("got %+v", tmpl)
	}
	if tool, ok := tmpl.Tools.Lookup("echo"); !ok || tool.Name() != "echo" {
		t.Fatalf("expected echo tool to be wired, got %v %v", tool, ok)
	}
}

func TestLoadMissingNameFails(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "root.yaml", `
description: no name here
system_prompt: be helpful
`)
	if _, err := newLoader().Load(path); err == nil {
		t.Fatalf("expected an error for a document with no name")
	}
}

func TestLoadMissingSystemPromptFails(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "root.yaml", `
name: root
description: no prompt here
`)
	if _, err := newLoader().Load(path); err == nil {
		t.Fatalf("expected an error for a document with no system_prompt")
	}
}

func TestLoadUnknownToolFails(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "root.yaml", `
name: root
system_prompt: be helpful
tools: ["nonexistent"]
`)
	if _, err := newLoader().Load(path); err == nil {
		t.Fatalf("expected an error for an unregistered tool name")
	}
}

func TestLoadResolvesSubagentsRelativeToParent(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "agents")
	if err := os.Mkdir(subDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, subDir, "child.yaml", `
name: child
system_prompt: help with subtasks
`)
	rootPath := writeFile(t, dir, "root.yaml", `
name: root
system_prompt: delegate work
subagents:
  helper: agents/child.yaml
`)

	tmpl, err := newLoader().Load(rootPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	child, ok := tmpl.Subagents["helper"]
	if !ok {
		t.Fatalf("expected a subagent named helper")
	}
	if child.Name != "child" || child.SystemPrompt != "help with subtasks" {
		t.Fatalf("got %+v", child)
	}
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", `
name: a
system_prompt: a prompt
subagents:
  b: b.yaml
`)
	writeFile(t, dir, "b.yaml", `
name: b
system_prompt: b prompt
subagents:
  a: a.yaml
`)
	if _, err := newLoader().Load(filepath.Join(dir, "a.yaml")); err == nil {
		t.Fatalf("expected a cycle error")
	}
}

func TestLoadAppliesCompactionOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "root.yaml", `
name: root
system_prompt: be helpful
compaction:
  enabled: true
  threshold: 0.5
  protect_recent_messages: 4
  min_old_messages: 2
  context_limit: 50000
`)
	tmpl, err := newLoader().Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !tmpl.Compaction.Enabled || tmpl.Compaction.Threshold != 0.5 || tmpl.Compaction.ContextLimit != 50000 {
		t.Fatalf("got %+v", tmpl.Compaction)
	}
}
