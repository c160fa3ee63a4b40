// Package sleep provides a tool that blocks for a configurable duration,
// used to give subagents disparate simulated latencies in end-to-end
// scenarios (e.g. parallel subagents whose results must be assembled in
// completion order rather than launch order).
package sleep

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentmesh/agentmesh/internal/execctx"
)

// MaxDuration caps how long a single call may block, regardless of the
// requested duration, so a misbehaving prompt can't hang an agent forever.
const MaxDuration = 30 * time.Second

// Tool sleeps for the requested number of milliseconds, or until its
// Context's abort signal fires, whichever comes first.
type Tool struct{}

// New returns a sleep Tool.
func New() *Tool { return &Tool{} }

func (t *Tool) Name() string { return "sleep" }

func (t *Tool) Description() string {
	return "Pause for the given number of milliseconds, then return. Useful for simulating work of varying duration."
}

func (t *Tool) Schema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {
			"duration_ms": {"type": "integer", "description": "how long to pause, in milliseconds"}
		},
		"required": ["duration_ms"]
	}`)
}

type input struct {
	DurationMs int `json:"duration_ms"`
}

func (t *Tool) Execute(ctx context.Context, ec *execctx.Context, args json.RawMessage) (any, error) {
	var in input
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("sleep: parse arguments: %w", err)
	}
	if in.DurationMs < 0 {
		return nil, fmt.Errorf("sleep: duration_ms must be non-negative")
	}
	d := time.Duration(in.DurationMs) * time.Millisecond
	if d > MaxDuration {
		d = MaxDuration
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	abortCtx := ctx
	if ec != nil && ec.Abort != nil {
		abortCtx = ec.Abort.Context()
	}

	select {
	case <-timer.C:
		return fmt.Sprintf("slept for %s", d), nil
	case <-abortCtx.Done():
		return nil, abortCtx.Err()
	}
}
