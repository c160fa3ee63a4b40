// Package skillconfig loads an agent's configuration from YAML and builds
// the runtime.Template tree the Orchestrator launches agents from. A
// template's subagents are declared by name and a path to another YAML
// file, resolved relative to the file that references them, mirroring the
// $include resolution the rest of this codebase's configuration loader
// uses for its own nested documents.
package skillconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/agentmesh/agentmesh/internal/compaction"
	"github.com/agentmesh/agentmesh/internal/llmprovider"
	"github.com/agentmesh/agentmesh/internal/runtime"
	"github.com/agentmesh/agentmesh/internal/toolkit"
)

// Document is the on-disk shape of one agent's YAML definition.
type Document struct {
	Name          string            `yaml:"name"`
	Description   string            `yaml:"description"`
	SystemPrompt  string            `yaml:"system_prompt"`
	Tools         []string          `yaml:"tools"`
	MaxIterations int               `yaml:"max_iterations"`
	Compaction    *CompactionConfig `yaml:"compaction"`
	// Subagents maps the name an agent may launch_subagents by to the path
	// of that subagent's own YAML document, relative to this file.
	Subagents map[string]string `yaml:"subagents"`
}

// CompactionConfig mirrors compaction.Config with yaml tags; a nil
// *CompactionConfig on a Document leaves the runtime default in place.
type CompactionConfig struct {
	Enabled               bool    `yaml:"enabled"`
	Threshold             float64 `yaml:"threshold"`
	ProtectRecentMessages int     `yaml:"protect_recent_messages"`
	MinOldMessages        int     `yaml:"min_old_messages"`
	ContextLimit          int     `yaml:"context_limit"`
}

func (c *CompactionConfig) toConfig() compaction.Config {
	if c == nil {
		return compaction.Config{}
	}
	return compaction.Config{
		Enabled:               c.Enabled,
		Threshold:             c.Threshold,
		ProtectRecentMessages: c.ProtectRecentMessages,
		MinOldMessages:        c.MinOldMessages,
		ContextLimit:          c.ContextLimit,
	}
}

// Loader resolves tool names to toolkit.Tool implementations and builds a
// fresh llmprovider.Provider for every agent instantiated from a template.
// Both are supplied by the caller because they depend on process-wide
// collaborators (a tool registry, API credentials) this package has no
// business constructing itself.
type Loader struct {
	Tools       *toolkit.Registry
	NewProvider func() llmprovider.Provider
}

// Load reads the YAML document at path and every subagent document it
// transitively references, returning the root as a *runtime.Template.
func (l *Loader) Load(path string) (*runtime.Template, error) {
	return l.load(path, map[string]bool{})
}

func (l *Loader) load(path string, seen map[string]bool) (*runtime.Template, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("skillconfig: resolve path %q: %w", path, err)
	}
	if seen[absPath] {
		return nil, fmt.Errorf("skillconfig: subagent include cycle at %s", absPath)
	}
	seen[absPath] = true
	defer delete(seen, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("skillconfig: read %s: %w", absPath, err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("skillconfig: parse %s: %w", absPath, err)
	}
	if doc.Name == "" {
		return nil, fmt.Errorf("skillconfig: %s: name is required", absPath)
	}
	if doc.SystemPrompt == "" {
		return nil, fmt.Errorf("skillconfig: %s: system_prompt is required", absPath)
	}

	tmpl := &runtime.Template{
		Name:          doc.Name,
		Description:   doc.Description,
		SystemPrompt:  doc.SystemPrompt,
		MaxIterations: doc.MaxIterations,
		NewProvider:   l.NewProvider,
		Compaction:    doc.Compaction.toConfig(),
	}

	if len(doc.Tools) > 0 {
		tmpl.Tools = toolkit.NewRegistry()
		for _, name := range doc.Tools {
			tool, ok := l.Tools.Lookup(name)
			if !ok {
				return nil, fmt.Errorf("skillconfig: %s: unknown tool %q", absPath, name)
			}
			tmpl.Tools.Register(tool)
		}
	}

	if len(doc.Subagents) > 0 {
		tmpl.Subagents = make(map[string]*runtime.Template, len(doc.Subagents))
		baseDir := filepath.Dir(absPath)
		for name, rel := range doc.Subagents {
			childPath := rel
			if !filepath.IsAbs(childPath) {
				childPath = filepath.Join(baseDir, rel)
			}
			child, err := l.load(childPath, seen)
			if err != nil {
				return nil, fmt.Errorf("skillconfig: %s: subagent %q: %w", absPath, name, err)
			}
			tmpl.Subagents[name] = child
		}
	}

	return tmpl, nil
}
