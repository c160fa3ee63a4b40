// Package echo provides a trivial tool that returns its input verbatim,
// used to exercise the tool-dispatch path in tests without any real side
// effects.
package echo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentmesh/agentmesh/internal/execctx"
)

// Tool echoes its "text" argument back as the tool output.
type Tool struct{}

// New returns an echo Tool.
func New() *Tool { return &Tool{} }

func (t *Tool) Name() string { return "echo" }

func (t *Tool) Description() string {
	return "Return the given text unchanged. Useful for testing the tool-call path."
}

func (t *Tool) Schema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {
			"text": {"type": "string", "description": "the text to echo back"}
		},
		"required": ["text"]
	}`)
}

type input struct {
	Text string `json:"text"`
}

func (t *Tool) Execute(ctx context.Context, ec *execctx.Context, args json.RawMessage) (any, error) {
	var in input
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("echo: parse arguments: %w", err)
	}
	return in.Text, nil
}
