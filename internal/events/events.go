// Package events defines the agent lifecycle event stream and the Sink
// registration mechanism embedding callers use to observe it, grounded in
// the teacher's internal/agent/event_sink.go MultiSink/CallbackSink family.
package events

import (
	"context"
	"time"
)

// Kind identifies the stage of agent execution an Event describes.
type Kind string

const (
	KindAgentStart     Kind = "agent_start"
	KindIterationStart Kind = "iteration_start"
	KindIterationEnd   Kind = "iteration_end"
	KindLLMRequest     Kind = "llm_request"
	KindLLMResponse    Kind = "llm_response"
	KindParseSuccess   Kind = "parse_success"
	KindParseError     Kind = "parse_error"
	KindToolCall       Kind = "tool_call"
	KindToolResult     Kind = "tool_result"
	KindSubagentCall   Kind = "subagent_call"
	KindSubagentResult Kind = "subagent_result"
	KindAgentFinish    Kind = "agent_finish"
	KindError          Kind = "error"
)

// Event is the single envelope emitted for every lifecycle moment. Exactly
// the fields relevant to Kind are populated; the rest are zero.
type Event struct {
	Kind      Kind
	Time      time.Time
	AgentID   string
	AgentName string
	Iteration int

	Prompt       string
	Response     string
	ToolName     string
	ToolCallID   string
	ToolArgs     string
	ToolOutput   string
	ToolError    bool
	ChildName    string
	ChildID      string
	Message      string
	ParseError   string
	Err          error
}

// Sink receives events as they occur. Implementations must be safe for
// concurrent use; the runtime emits from whichever goroutine is driving an
// agent's turn.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, e Event)

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }

// NopSink discards every event.
type NopSink struct{}

// Emit does nothing.
func (NopSink) Emit(context.Context, Event) {}

// MultiSink fans an event out to every registered sink, in registration
// order, matching spec.md's requirement that callbacks fire in the order
// they were added.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink builds a MultiSink from zero or more sinks. Nil sinks are
// dropped.
func NewMultiSink(sinks ...Sink) *MultiSink {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return &MultiSink{sinks: filtered}
}

// Register appends a sink, to be called after all previously registered
// sinks.
func (m *MultiSink) Register(s Sink) {
	if s != nil {
		m.sinks = append(m.sinks, s)
	}
}

// Emit dispatches e to every registered sink in registration order.
func (m *MultiSink) Emit(ctx context.Context, e Event) {
	for _, s := range m.sinks {
		s.Emit(ctx, e)
	}
}
