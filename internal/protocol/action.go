// Package protocol turns the raw assistant text of one LLM turn into a
// typed Action, per the structured text protocol described in the runtime
// specification.
package protocol

import "encoding/json"

// Kind discriminates the variant carried by an Action.
type Kind string

const (
	KindTool           Kind = "tool"
	KindLaunchSubagents Kind = "launch_subagents"
	KindWait           Kind = "wait"
	KindSendMessage    Kind = "send_message"
	KindFinish         Kind = "finish"
)

// ToolCall is the payload of a KindTool Action.
type ToolCall struct {
	Name      string
	Arguments json.RawMessage
}

// LaunchSubagents is the payload of a KindLaunchSubagents Action. Agents and
// Tasks always have equal, non-zero length once parsed successfully.
type LaunchSubagents struct {
	Agents []string
	Tasks  []string
}

// SendMessage is the payload of a KindSendMessage Action.
type SendMessage struct {
	Recipient string
	Message   string
}

// Finish is the payload of a KindFinish Action.
type Finish struct {
	Content string
}

// Action is the result of parsing exactly one LLM turn: a single variant
// selected by Kind, with an optional free-text Thought that may precede it.
type Action struct {
	Kind    Kind
	Thought string

	Tool    ToolCall
	Launch  LaunchSubagents
	Send    SendMessage
	Finish  Finish
}
