package events

import (
	"context"

	"github.com/agentmesh/agentmesh/internal/observability"
)

// LogSink emits every Event as a structured log record, so a Logger
// registered as a Sink gives an embedding caller trace-level visibility
// with no extra wiring.
type LogSink struct {
	logger *observability.Logger
}

// NewLogSink wraps logger as a Sink.
func NewLogSink(logger *observability.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit logs e at debug level, tagged with its Kind and agent identity; an
// error event that carries an Err is logged at error level instead.
func (s *LogSink) Emit(ctx context.Context, e Event) {
	if s.logger == nil {
		return
	}
	args := []any{"kind", string(e.Kind), "agent_id", e.AgentID, "agent_name", e.AgentName}
	if e.Iteration > 0 {
		args = append(args, "iteration", e.Iteration)
	}
	switch e.Kind {
	case KindToolCall:
		args = append(args, "tool", e.ToolName, "call_id", e.ToolCallID)
	case KindToolResult:
		args = append(args, "tool", e.ToolName, "call_id", e.ToolCallID, "is_error", e.ToolError)
	case KindSubagentCall, KindSubagentResult:
		args = append(args, "child_name", e.ChildName, "child_id", e.ChildID)
	case KindParseError:
		args = append(args, "parse_error", e.ParseError)
	case KindError:
		if e.Err != nil {
			s.logger.Error(ctx, "agent error", append(args, "error", e.Err)...)
			return
		}
	}
	s.logger.Debug(ctx, "agent event", args...)
}
