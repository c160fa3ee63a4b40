// Package runtime drives one agent's conversation with its LLM provider —
// the main loop of spec section 4.3: prompt, parse, dispatch, suspend or
// finish — and the message-delivery loop that wakes suspended agents when
// the Orchestrator's bus has something for them.
package runtime

import (
	"errors"

	"github.com/agentmesh/agentmesh/internal/compaction"
	"github.com/agentmesh/agentmesh/internal/llmprovider"
	"github.com/agentmesh/agentmesh/internal/toolkit"
)

// DefaultMaxIterations bounds an agent's main loop when a Template doesn't
// set one explicitly.
const DefaultMaxIterations = 15

// DefaultParseRetries is how many times a ParseError is fed back to the LLM
// for correction before the iteration fails.
const DefaultParseRetries = 2

// ErrWaitWouldDeadlock is returned when a wait Action has nothing to wait
// for — no pending subagents and no peer message already queued. The
// Python original blocks forever in this case; failing the iteration here
// is a deliberate correction (spec's REDESIGN FLAGS invite exactly this).
var ErrWaitWouldDeadlock = errors.New("runtime: wait action has no pending subagents or queued messages to wait for")

// Template describes how to construct one kind of agent. A Runtime builds
// a fresh provider, tool dispatcher, and compaction policy from a Template
// every time it instantiates an agent — root or subagent — so sibling
// agents never share conversation history.
type Template struct {
	Name          string
	Description   string
	SystemPrompt  string
	Tools         *toolkit.Registry
	MaxIterations int
	// NewProvider constructs a fresh, independent Provider for one agent
	// instance. Required.
	NewProvider func() llmprovider.Provider
	// Subagents maps the names this template is allowed to launch via
	// launch_subagents to the templates used to build them.
	Subagents map[string]*Template
	Compaction compaction.Config
}

func (t *Template) maxIterations() int {
	if t.MaxIterations > 0 {
		return t.MaxIterations
	}
	return DefaultMaxIterations
}

func (t *Template) tools() *toolkit.Registry {
	if t.Tools != nil {
		return t.Tools
	}
	return toolkit.NewRegistry()
}

func (t *Template) compactionConfig() compaction.Config {
	if t.Compaction == (compaction.Config{}) {
		return compaction.DefaultConfig()
	}
	return t.Compaction
}
