package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/agentmesh/agentmesh/internal/execctx"
)

// schemaCache compiles each distinct schema document at most once, mirroring
// the pattern used for plugin config validation: schemas are immutable once
// declared, so the compiled form can be shared across every call.
var schemaCache sync.Map

func compileSchema(schema []byte) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	key := string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}
	compiled, err := jsonschema.CompileString("tool-arguments.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// Dispatcher looks up, validates, invokes, and normalizes tool calls for one
// agent's Registry.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher builds a Dispatcher over registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Dispatch runs one tool call to completion, never propagating a panic,
// error, or raw exception past this call: every outcome becomes a Result.
func (d *Dispatcher) Dispatch(ctx context.Context, ec *execctx.Context, name string, args json.RawMessage) Result {
	tool, ok := d.registry.Lookup(name)
	if !ok {
		names := d.registry.Names()
		sort.Strings(names)
		return errorResult("tool not found", fmt.Sprintf("unknown tool %q; available tools: %s", name, strings.Join(names, ", ")))
	}

	if err := validateArgs(tool, args); err != nil {
		return errorResult(tool.Name(), fmt.Sprintf("invalid arguments: %v", err))
	}

	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- d.invoke(ctx, ec, tool, args)
	}()

	var abortDone <-chan struct{}
	if ec != nil && ec.Abort != nil {
		abortDone = ec.Abort.Context().Done()
	}

	select {
	case res := <-resultCh:
		return d.truncate(ec, res)
	case <-abortDone:
		_, reason := ec.Abort.Tripped()
		return errorResult(tool.Name(), fmt.Sprintf("cancelled: %s", reason))
	case <-ctx.Done():
		return errorResult(tool.Name(), fmt.Sprintf("cancelled: %v", ctx.Err()))
	}
}

func validateArgs(tool Tool, args json.RawMessage) error {
	schema, err := compileSchema(tool.Schema())
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	if schema == nil {
		return nil
	}
	if len(args) == 0 {
		args = []byte("{}")
	}
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return schema.Validate(decoded)
}

func (d *Dispatcher) invoke(ctx context.Context, ec *execctx.Context, tool Tool, args json.RawMessage) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = errorResult(tool.Name(), fmt.Sprintf("tool panicked: %v", r))
		}
	}()

	value, err := tool.Execute(ctx, ec, args)
	if err != nil {
		return errorResult(tool.Name(), err.Error())
	}
	switch v := value.(type) {
	case Result:
		return v
	case *Result:
		if v == nil {
			return successResult(tool.Name(), "")
		}
		return *v
	case string:
		return successResult(tool.Name(), v)
	case fmt.Stringer:
		return successResult(tool.Name(), v.String())
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return successResult(tool.Name(), fmt.Sprintf("%v", v))
		}
		return successResult(tool.Name(), string(encoded))
	}
}

func (d *Dispatcher) truncate(ec *execctx.Context, res Result) Result {
	if ec == nil || ec.Truncator == nil || res.Output == "" {
		return res
	}
	callID := ec.CallID
	if callID == "" {
		callID = fmt.Sprintf("%d", time.Now().UnixNano())
	}
	truncated, err := ec.Truncator.Truncate(callID, res.Output)
	if err != nil {
		return res
	}
	if !truncated.Truncated {
		return res
	}
	res.Output = truncated.Text
	if res.Metadata == nil {
		res.Metadata = map[string]any{}
	}
	res.Metadata["is_truncated"] = true
	res.Metadata["total_lines"] = truncated.TotalLines
	res.Metadata["total_bytes"] = truncated.TotalBytes
	res.Metadata["spill_path"] = truncated.SpillPath
	return res
}
