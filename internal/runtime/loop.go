package runtime

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agentmesh/agentmesh/internal/events"
	"github.com/agentmesh/agentmesh/internal/llmprovider"
	"github.com/agentmesh/agentmesh/internal/orchestrator"
	"github.com/agentmesh/agentmesh/internal/protocol"
	"github.com/agentmesh/agentmesh/internal/toolkit"
)

const forcedSummaryPrompt = "You have reached the maximum number of iterations for this task. " +
	"Produce your best final answer now, formatted as:\n\nAction: finish\nContent: <final answer>"

// run is the shared body of an agent's initial execution and every resume,
// implementing spec.md §4.3's five-step main loop.
func (r *Runtime) run(ctx context.Context, id string, tmpl *Template, state *orchestrator.State, resumed bool) {
	inst := r.get(id)
	if inst == nil {
		return
	}
	provider := inst.provider

	var nextPrompt string
	if resumed {
		if hist, ok := state.History.([]llmprovider.Message); ok {
			provider.SetHistory(hist)
		}
		nextPrompt = buildResumePrompt(state)
		state.Completed = map[string]string{}
		state.Failed = map[string]string{}
		state.PeerMessages = nil
	} else {
		nextPrompt = state.Task
		r.emit(ctx, events.Event{Kind: events.KindAgentStart, Time: time.Now(), AgentID: id, AgentName: tmpl.Name})
	}

	for {
		state.Iteration++
		iteration := state.Iteration
		r.emit(ctx, events.Event{Kind: events.KindIterationStart, Time: time.Now(), AgentID: id, AgentName: tmpl.Name, Iteration: iteration})

		if iteration > tmpl.maxIterations() {
			text, err := provider.Chat(ctx, forcedSummaryPrompt, tmpl.SystemPrompt)
			if err != nil {
				r.fail(ctx, id, tmpl, iteration, fmt.Errorf("forced summary turn: %w", err))
				return
			}
			action, parseErr := protocol.Parse(text)
			content := text
			if parseErr == nil && action.Kind == protocol.KindFinish {
				content = action.Finish.Content
			}
			r.finish(ctx, id, tmpl, iteration, content)
			return
		}

		r.maybeCompact(ctx, inst)

		r.emit(ctx, events.Event{Kind: events.KindLLMRequest, Time: time.Now(), AgentID: id, AgentName: tmpl.Name, Iteration: iteration, Prompt: nextPrompt})
		text, err := provider.Chat(ctx, nextPrompt, tmpl.SystemPrompt)
		if err != nil {
			r.fail(ctx, id, tmpl, iteration, fmt.Errorf("llm chat: %w", err))
			return
		}
		r.emit(ctx, events.Event{Kind: events.KindLLMResponse, Time: time.Now(), AgentID: id, AgentName: tmpl.Name, Iteration: iteration, Response: text})

		action, err := r.parseWithRetries(ctx, id, tmpl, provider, text, iteration)
		if err != nil {
			r.fail(ctx, id, tmpl, iteration, err)
			return
		}

		var done bool
		nextPrompt, done = r.dispatch(ctx, id, tmpl, inst, state, iteration, action)
		if done {
			return
		}
		r.emit(ctx, events.Event{Kind: events.KindIterationEnd, Time: time.Now(), AgentID: id, AgentName: tmpl.Name, Iteration: iteration})
	}
}

// dispatch handles one parsed Action. It returns the prompt for the next
// iteration and whether the agent's goroutine should exit now (suspended
// or terminal).
func (r *Runtime) dispatch(ctx context.Context, id string, tmpl *Template, inst *instance, state *orchestrator.State, iteration int, action protocol.Action) (string, bool) {
	switch action.Kind {
	case protocol.KindTool:
		return r.dispatchTool(ctx, id, tmpl, inst, iteration, action), false

	case protocol.KindLaunchSubagents:
		return r.dispatchLaunch(ctx, id, tmpl, state, iteration, action), false

	case protocol.KindSendMessage:
		toID, ok := r.orch.FindAgentByName(action.Send.Recipient, id)
		if !ok {
			return fmt.Sprintf("Observation: no sibling agent named %q is registered.", action.Send.Recipient), false
		}
		r.orch.SendPeerMessage(id, tmpl.Name, toID, action.Send.Message)
		r.suspend(id, state, inst.provider)
		return "", true

	case protocol.KindWait:
		if len(state.Pending) == 0 {
			// A peer message may already have queued up while this agent
			// was busy (not yet suspended) rather than racing through the
			// bus's suspend/resume path; consume it immediately instead of
			// suspending and waiting on a wakeup that already happened.
			if env, ok := r.orch.DrainOneQueuedPeer(id); ok {
				state.PeerMessages = append(state.PeerMessages, orchestrator.PeerMessage{From: env.SenderName, Message: env.Message})
				return buildResumePrompt(state), false
			}
			r.fail(ctx, id, tmpl, iteration, ErrWaitWouldDeadlock)
			return "", true
		}
		r.suspend(id, state, inst.provider)
		return "", true

	case protocol.KindFinish:
		r.finish(ctx, id, tmpl, iteration, action.Finish.Content)
		return "", true

	default:
		r.fail(ctx, id, tmpl, iteration, fmt.Errorf("runtime: unhandled action kind %q", action.Kind))
		return "", true
	}
}

func (r *Runtime) dispatchTool(ctx context.Context, id string, tmpl *Template, inst *instance, iteration int, action protocol.Action) string {
	ec := r.buildContext(ctx, id, tmpl, inst)
	r.emit(ctx, events.Event{Kind: events.KindToolCall, Time: time.Now(), AgentID: id, AgentName: tmpl.Name, Iteration: iteration, ToolName: action.Tool.Name, ToolCallID: ec.CallID, ToolArgs: string(action.Tool.Arguments)})
	result := inst.dispatcher.Dispatch(ctx, ec, action.Tool.Name, action.Tool.Arguments)
	r.emit(ctx, events.Event{Kind: events.KindToolResult, Time: time.Now(), AgentID: id, AgentName: tmpl.Name, Iteration: iteration, ToolName: action.Tool.Name, ToolCallID: ec.CallID, ToolOutput: result.Output, ToolError: !result.IsSuccess()})
	return "Observation: " + formatToolResult(result)
}

func (r *Runtime) dispatchLaunch(ctx context.Context, id string, tmpl *Template, state *orchestrator.State, iteration int, action protocol.Action) string {
	var b strings.Builder
	b.WriteString("Observation: ")
	for i, name := range action.Launch.Agents {
		task := action.Launch.Tasks[i]
		childID, err := r.launchChild(ctx, id, tmpl, name, task)
		if err != nil {
			fmt.Fprintf(&b, "failed to launch %q: %v; ", name, err)
			continue
		}
		state.Launched[name] = &orchestrator.ChildRecord{Name: name, Status: orchestrator.StatusRunning, StartTime: time.Now()}
		state.Pending[name] = true
		r.emit(ctx, events.Event{Kind: events.KindSubagentCall, Time: time.Now(), AgentID: id, AgentName: tmpl.Name, Iteration: iteration, ChildName: name, ChildID: childID})
		fmt.Fprintf(&b, "launched %q; ", name)
	}
	b.WriteString("subagents run concurrently and will report back when done.")
	return b.String()
}

func (r *Runtime) suspend(id string, state *orchestrator.State, provider llmprovider.Provider) {
	state.History = provider.History()
	r.orch.SaveState(id, state)
}

func (r *Runtime) finish(ctx context.Context, id string, tmpl *Template, iteration int, content string) {
	r.emit(ctx, events.Event{Kind: events.KindAgentFinish, Time: time.Now(), AgentID: id, AgentName: tmpl.Name, Iteration: iteration, Response: content})
	r.orch.MarkCompleted(id, orchestrator.Response{Content: content, Iterations: iteration, Success: true})
	r.forget(id)
}

func (r *Runtime) fail(ctx context.Context, id string, tmpl *Template, iteration int, err error) {
	r.emit(ctx, events.Event{Kind: events.KindError, Time: time.Now(), AgentID: id, AgentName: tmpl.Name, Iteration: iteration, Err: err})
	r.orch.MarkFailed(id, orchestrator.Response{Content: err.Error(), Iterations: iteration, Success: false})
	r.forget(id)
}

func (r *Runtime) maybeCompact(ctx context.Context, inst *instance) {
	history := inst.provider.History()
	should, _, _ := inst.detector.ShouldCompact(history)
	if !should {
		return
	}
	inst.provider.SetHistory(inst.compactor.Compact(ctx, history))
}

func (r *Runtime) parseWithRetries(ctx context.Context, id string, tmpl *Template, provider llmprovider.Provider, text string, iteration int) (protocol.Action, error) {
	for attempt := 0; ; attempt++ {
		action, err := protocol.Parse(text)
		if err == nil {
			r.emit(ctx, events.Event{Kind: events.KindParseSuccess, Time: time.Now(), AgentID: id, AgentName: tmpl.Name, Iteration: iteration})
			return action, nil
		}
		r.orch.RecordParseFailure()
		r.emit(ctx, events.Event{Kind: events.KindParseError, Time: time.Now(), AgentID: id, AgentName: tmpl.Name, Iteration: iteration, ParseError: err.Error()})
		if attempt >= r.opts.ParseRetries {
			return protocol.Action{}, fmt.Errorf("parse retries exhausted: %w", err)
		}
		feedback := fmt.Sprintf("Your previous output could not be parsed: %s\n\n%s", err.Error(), protocol.FormatInstruction())
		retry, chatErr := provider.Chat(ctx, feedback, tmpl.SystemPrompt)
		if chatErr != nil {
			return protocol.Action{}, fmt.Errorf("llm chat during parse retry: %w", chatErr)
		}
		text = retry
	}
}

// buildResumePrompt implements step 2's resume branch: enumerate newly
// completed children, peer messages received while suspended, and any
// children still pending.
func buildResumePrompt(state *orchestrator.State) string {
	var b strings.Builder

	if len(state.Completed) > 0 || len(state.Failed) > 0 {
		names := make([]string, 0, len(state.Completed)+len(state.Failed))
		for n := range state.Completed {
			names = append(names, n)
		}
		for n := range state.Failed {
			names = append(names, n)
		}
		sort.Strings(names)
		b.WriteString("Subagent results:\n")
		for _, n := range names {
			if res, ok := state.Completed[n]; ok {
				fmt.Fprintf(&b, "- %s completed: %s\n", n, res)
			} else {
				fmt.Fprintf(&b, "- %s failed: %s\n", n, state.Failed[n])
			}
		}
	}

	if len(state.PeerMessages) > 0 {
		b.WriteString("Peer messages received while suspended:\n")
		for _, m := range state.PeerMessages {
			fmt.Fprintf(&b, "- from %s: %s\n", m.From, m.Message)
		}
	}

	if len(state.Pending) > 0 {
		pending := make([]string, 0, len(state.Pending))
		for n := range state.Pending {
			pending = append(pending, n)
		}
		sort.Strings(pending)
		fmt.Fprintf(&b, "Still pending: %s\n", strings.Join(pending, ", "))
	}

	if b.Len() == 0 {
		return "Resume your task."
	}
	return b.String()
}

func formatToolResult(res toolkit.Result) string {
	if !res.IsSuccess() {
		return fmt.Sprintf("[%s] error: %s", res.Title, res.Error)
	}
	return res.Output
}
