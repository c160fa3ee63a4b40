package toolkit

import (
	"context"
	"encoding/json"

	"github.com/agentmesh/agentmesh/internal/execctx"
)

// Tool is a named callable with a JSON-schema-described parameter list and a
// human description. Implementations may be purely synchronous or may block
// on I/O; the Dispatcher awaits completion or the Context's abort signal,
// whichever fires first.
//
// A Tool that needs the calling Context (permissions, abort, truncation,
// session store) accepts it as its second argument; one that doesn't care
// can ignore it. The LLM never sees the Context — the dispatcher injects it.
type Tool interface {
	Name() string
	Description() string
	// Schema returns the JSON Schema (as raw bytes) describing Arguments.
	// A nil/empty schema means arguments are passed through unvalidated.
	Schema() []byte
	// Execute runs the tool. It may return a plain value (wrapped into a
	// successful Result), a Result (passed through unchanged), or an error
	// (wrapped into an error Result). It must never panic across this
	// boundary; the dispatcher recovers defensively regardless.
	Execute(ctx context.Context, ec *execctx.Context, args json.RawMessage) (any, error)
}

// Registry indexes a set of tools by name, scoped to one agent.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Register adds t to the registry, replacing any existing tool of the same
// name in place (preserving original position).
func (r *Registry) Register(t Tool) {
	name := t.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Lookup returns the tool registered under name, if any.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
