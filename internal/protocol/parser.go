package protocol

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ParseError is raised when LLM output cannot be parsed into an Action. Its
// message is written to be fed straight back to the LLM as feedback.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string { return e.Message }

func parseErrorf(format string, args ...any) *ParseError {
	return &ParseError{Message: fmt.Sprintf(format, args...)}
}

var (
	thoughtRe   = regexp.MustCompile(`(?is)Thought:\s*(.+?)(?:\n\s*Action:)`)
	actionRe    = regexp.MustCompile(`(?i)Action:\s*(\w+)`)
	toolNameRe  = regexp.MustCompile(`(?im)^Tool:\s*(.+?)\s*$`)
	argumentsRe        = regexp.MustCompile(`(?is)Arguments:\s*(\{.*\})`)
	argumentsPresentRe = regexp.MustCompile(`(?im)^Arguments:`)
	agentsRe    = regexp.MustCompile(`(?is)Agents:\s*(\[.*?\])`)
	tasksRe     = regexp.MustCompile(`(?is)Tasks:\s*(\[.*?\])`)
	recipientRe = regexp.MustCompile(`(?im)^Recipient:\s*(.+?)\s*$`)
	messageRe   = regexp.MustCompile(`(?im)^Message:\s*(.+?)\s*$`)
	contentRe   = regexp.MustCompile(`(?is)Content:\s*(.+)`)
	responseRe  = regexp.MustCompile(`(?is)Response:\s*(.+)`)
)

// Parse turns raw assistant text into exactly one Action, or a *ParseError
// describing the missing or malformed field.
func Parse(text string) (Action, error) {
	actionMatch := actionRe.FindStringSubmatch(text)
	if actionMatch == nil {
		return Action{}, parseErrorf("could not find 'Action:' field in output")
	}

	var thought string
	if m := thoughtRe.FindStringSubmatch(text); m != nil {
		thought = strings.TrimSpace(m[1])
	}

	kind := Kind(strings.ToLower(actionMatch[1]))
	switch kind {
	case KindTool:
		return parseTool(text, thought)
	case KindLaunchSubagents:
		return parseLaunch(text, thought)
	case KindWait:
		return Action{Kind: KindWait, Thought: thought}, nil
	case KindSendMessage:
		return parseSend(text, thought)
	case KindFinish:
		return parseFinish(text, thought)
	default:
		return Action{}, parseErrorf("invalid action type %q: must be one of tool, launch_subagents, wait, send_message, finish", kind)
	}
}

func parseTool(text, thought string) (Action, error) {
	nameMatch := toolNameRe.FindStringSubmatch(text)
	if nameMatch == nil {
		return Action{}, parseErrorf("tool action requires a 'Tool:' field")
	}
	name := strings.TrimSpace(nameMatch[1])

	args := json.RawMessage("{}")
	if argMatch := argumentsRe.FindStringSubmatch(text); argMatch != nil {
		raw := strings.TrimSpace(argMatch[1])
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			return Action{}, parseErrorf("invalid JSON in Arguments: %v", err)
		}
		if _, ok := decoded.(map[string]any); !ok {
			return Action{}, parseErrorf("Arguments must be a JSON object")
		}
		args = json.RawMessage(raw)
	} else if argumentsPresentRe.MatchString(text) {
		return Action{}, parseErrorf("Arguments must be a JSON object")
	}

	return Action{
		Kind:    KindTool,
		Thought: thought,
		Tool:    ToolCall{Name: name, Arguments: args},
	}, nil
}

func parseLaunch(text, thought string) (Action, error) {
	agentsMatch := agentsRe.FindStringSubmatch(text)
	tasksMatch := tasksRe.FindStringSubmatch(text)
	if agentsMatch == nil {
		return Action{}, parseErrorf("launch_subagents action requires an 'Agents:' field")
	}
	if tasksMatch == nil {
		return Action{}, parseErrorf("launch_subagents action requires a 'Tasks:' field")
	}

	var agents, tasks []string
	if err := json.Unmarshal([]byte(agentsMatch[1]), &agents); err != nil {
		return Action{}, parseErrorf("invalid JSON array in Agents: %v", err)
	}
	if err := json.Unmarshal([]byte(tasksMatch[1]), &tasks); err != nil {
		return Action{}, parseErrorf("invalid JSON array in Tasks: %v", err)
	}
	if len(agents) == 0 {
		return Action{}, parseErrorf("launch_subagents requires at least one agent")
	}
	if len(agents) != len(tasks) {
		return Action{}, parseErrorf("Agents (%d) and Tasks (%d) must have equal length", len(agents), len(tasks))
	}

	return Action{
		Kind:   KindLaunchSubagents,
		Thought: thought,
		Launch: LaunchSubagents{Agents: agents, Tasks: tasks},
	}, nil
}

func parseSend(text, thought string) (Action, error) {
	recipientMatch := recipientRe.FindStringSubmatch(text)
	messageMatch := messageRe.FindStringSubmatch(text)
	if recipientMatch == nil {
		return Action{}, parseErrorf("send_message action requires a 'Recipient:' field")
	}
	if messageMatch == nil {
		return Action{}, parseErrorf("send_message action requires a 'Message:' field")
	}

	message := strings.TrimSpace(messageMatch[1])
	for _, forbidden := range []string{"Action:", "Tool:", "Arguments:"} {
		if strings.Contains(message, forbidden) {
			return Action{}, parseErrorf("send_message Message must be single-line and must not contain %q", forbidden)
		}
	}

	return Action{
		Kind:    KindSendMessage,
		Thought: thought,
		Send:    SendMessage{Recipient: strings.TrimSpace(recipientMatch[1]), Message: message},
	}, nil
}

func parseFinish(text, thought string) (Action, error) {
	content := ""
	if m := contentRe.FindStringSubmatch(text); m != nil {
		content = strings.TrimSpace(m[1])
	} else if m := responseRe.FindStringSubmatch(text); m != nil {
		content = strings.TrimSpace(m[1])
	} else {
		return Action{}, parseErrorf("finish action requires a 'Content:' field (or legacy 'Response:')")
	}

	return Action{Kind: KindFinish, Thought: thought, Finish: Finish{Content: content}}, nil
}

// FormatInstruction returns the protocol description to embed in an agent's
// system prompt, so the LLM knows exactly which shape to emit.
func FormatInstruction() string {
	return strings.TrimSpace(`
You must format every response using one of the following shapes exactly.
Field order outside Thought/Action does not matter; field names are matched
case-insensitively.

Thought: <optional free text>
Action: tool
Tool: <tool name>
Arguments: {<JSON object>}

Action: launch_subagents
Agents: ["name", ...]
Tasks: ["task", ...]

Action: wait

Action: send_message
Recipient: <peer name>
Message: <single-line text>

Action: finish
Content: <final answer>
`)
}
