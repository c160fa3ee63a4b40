package runtime

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/agentmesh/agentmesh/internal/bus"
	"github.com/agentmesh/agentmesh/internal/compaction"
	"github.com/agentmesh/agentmesh/internal/execctx"
	"github.com/agentmesh/agentmesh/internal/llmprovider"
	"github.com/agentmesh/agentmesh/internal/orchestrator"
	"github.com/agentmesh/agentmesh/internal/protocol"
	"github.com/agentmesh/agentmesh/internal/toolkit"
)

// echoTool returns its "text" argument verbatim, for exercising the tool
// dispatch path without any real side effects.
type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes its input" }
func (echoTool) Schema() []byte      { return nil }
func (echoTool) Execute(ctx context.Context, ec *execctx.Context, args json.RawMessage) (any, error) {
	var decoded struct {
		Text string `json:"text"`
	}
	_ = json.Unmarshal(args, &decoded)
	return decoded.Text, nil
}

func newTestRuntime(t *testing.T) (*Runtime, context.Context, context.CancelFunc) {
	t.Helper()
	orch := orchestrator.New(nil, nil)
	rt := New(orch, Options{ParseRetries: 1})
	ctx, cancel := context.WithCancel(context.Background())
	go rt.Run(ctx)
	t.Cleanup(cancel)
	return rt, ctx, cancel
}

func waitFor(t *testing.T, orch *orchestrator.Orchestrator, ctx context.Context, id string) orchestrator.Response {
	t.Helper()
	resp, err := orch.WaitForCompletion(ctx, id)
	if err != nil {
		t.Fatalf("WaitForCompletion(%s): %v", id, err)
	}
	return resp
}

func TestRunFinishesOnFirstIteration(t *testing.T) {
	rt, ctx, _ := newTestRuntime(t)
	tmpl := &Template{
		Name:         "answerer",
		SystemPrompt: "be terse",
		NewProvider: func() llmprovider.Provider {
			return llmprovider.NewMock("Action: finish\nContent: 42")
		},
	}
	id := rt.Start(ctx, tmpl, "what is the answer?")
	resp := waitFor(t, rt.Orchestrator(), ctx, id)
	if !resp.Success || resp.Content != "42" {
		t.Fatalf("got %+v", resp)
	}
	if resp.Iterations != 1 {
		t.Fatalf("expected 1 iteration, got %d", resp.Iterations)
	}
}

func TestRunDispatchesToolThenFinishes(t *testing.T) {
	rt, ctx, _ := newTestRuntime(t)
	registry := toolkit.NewRegistry()
	registry.Register(echoTool{})

	tmpl := &Template{
		Name:  "tool-user",
		Tools: registry,
		NewProvider: func() llmprovider.Provider {
			return llmprovider.NewMock(
				"Action: tool\nTool: echo\nArguments: {\"text\": \"hello\"}",
				"Action: finish\nContent: done",
			)
		},
	}
	id := rt.Start(ctx, tmpl, "say hello")
	resp := waitFor(t, rt.Orchestrator(), ctx, id)
	if !resp.Success || resp.Content != "done" {
		t.Fatalf("got %+v", resp)
	}
	if resp.Iterations != 2 {
		t.Fatalf("expected 2 iterations, got %d", resp.Iterations)
	}
}

func TestRunRecoversFromParseError(t *testing.T) {
	rt, ctx, _ := newTestRuntime(t)
	tmpl := &Template{
		Name: "sloppy",
		NewProvider: func() llmprovider.Provider {
			return llmprovider.NewMock(
				"I am not formatted correctly at all",
				"Action: finish\nContent: recovered",
			)
		},
	}
	id := rt.Start(ctx, tmpl, "task")
	resp := waitFor(t, rt.Orchestrator(), ctx, id)
	if !resp.Success || resp.Content != "recovered" {
		t.Fatalf("got %+v", resp)
	}
}

func TestRunFailsAfterExhaustingParseRetries(t *testing.T) {
	orch := orchestrator.New(nil, nil)
	rt := New(orch, Options{ParseRetries: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.Run(ctx)

	tmpl := &Template{
		Name: "hopeless",
		NewProvider: func() llmprovider.Provider {
			return llmprovider.NewMock("garbage", "still garbage", "more garbage")
		},
	}
	id := rt.Start(ctx, tmpl, "task")
	resp := waitFor(t, orch, ctx, id)
	if resp.Success {
		t.Fatalf("expected failure, got %+v", resp)
	}
}

func TestRunWaitWithNothingPendingFails(t *testing.T) {
	rt, ctx, _ := newTestRuntime(t)
	tmpl := &Template{
		Name: "waiter",
		NewProvider: func() llmprovider.Provider {
			return llmprovider.NewMock("Action: wait")
		},
	}
	id := rt.Start(ctx, tmpl, "task")
	resp := waitFor(t, rt.Orchestrator(), ctx, id)
	if resp.Success {
		t.Fatalf("expected deadlock failure, got %+v", resp)
	}
}

func TestRunForcesSummaryAtIterationCap(t *testing.T) {
	rt, ctx, _ := newTestRuntime(t)
	// A "wait" with no pending work fails fast, so drive the iteration cap
	// with tool calls instead, which always loop without suspending.
	registry := toolkit.NewRegistry()
	registry.Register(echoTool{})
	tmpl := &Template{
		Name:          "looper",
		MaxIterations: 2,
		Tools:         registry,
		NewProvider: func() llmprovider.Provider {
			return llmprovider.NewMock(
				"Action: tool\nTool: echo\nArguments: {\"text\": \"1\"}",
				"Action: tool\nTool: echo\nArguments: {\"text\": \"2\"}",
				"Action: finish\nContent: forced summary",
			)
		},
	}
	id := rt.Start(ctx, tmpl, "loop forever")
	resp := waitFor(t, rt.Orchestrator(), ctx, id)
	if !resp.Success || resp.Content != "forced summary" {
		t.Fatalf("got %+v", resp)
	}
	if resp.Iterations != 3 {
		t.Fatalf("expected the forced turn to be iteration 3, got %d", resp.Iterations)
	}
}

func TestRunLaunchesSubagentAndResumesOnCompletion(t *testing.T) {
	rt, ctx, _ := newTestRuntime(t)

	childTmpl := &Template{
		Name: "child",
		NewProvider: func() llmprovider.Provider {
			return llmprovider.NewMock("Action: finish\nContent: child result")
		},
	}
	parentTmpl := &Template{
		Name:      "parent",
		Subagents: map[string]*Template{"child": childTmpl},
		NewProvider: func() llmprovider.Provider {
			return llmprovider.NewMock(
				`Action: launch_subagents
Agents: ["child"]
Tasks: ["do the subtask"]`,
				"Action: wait",
				"Action: finish\nContent: parent done with child result",
			)
		},
	}

	id := rt.Start(ctx, parentTmpl, "delegate")
	resp := waitFor(t, rt.Orchestrator(), ctx, id)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if resp.Content != "parent done with child result" {
		t.Fatalf("got %+v", resp)
	}
}

// TestRunSendMessageSuspends drives a send_message Action through the loop
// alongside a waiting sibling; it asserts only that the run neither
// deadlocks nor panics, not the final status of any agent.
func TestRunSendMessageSuspends(t *testing.T) {
	rt, ctx, _ := newTestRuntime(t)

	bobTmpl := &Template{
		Name: "bob",
		NewProvider: func() llmprovider.Provider {
			return llmprovider.NewMock("Action: wait")
		},
	}
	aliceTmpl := &Template{
		Name: "alice",
		NewProvider: func() llmprovider.Provider {
			return llmprovider.NewMock("Action: send_message\nRecipient: bob\nMessage: ping")
		},
	}
	parentTmpl := &Template{
		Name:      "coordinator",
		Subagents: map[string]*Template{"alice": aliceTmpl, "bob": bobTmpl},
		NewProvider: func() llmprovider.Provider {
			return llmprovider.NewMock(
				`Action: launch_subagents
Agents: ["alice", "bob"]
Tasks: ["talk to bob", "wait for alice"]`,
				"Action: wait",
			)
		},
	}

	id := rt.Start(ctx, parentTmpl, "coordinate")
	if _, ok := rt.Orchestrator().Status(id); !ok {
		t.Fatalf("expected parent agent to be registered")
	}
	// Give the scripted goroutines a moment to run their (non-blocking,
	// synchronous Mock) turns. bob and the coordinator run out of scripted
	// responses and fail, while alice may stay suspended, so this only
	// asserts the system doesn't deadlock or panic.
	time.Sleep(20 * time.Millisecond)
}

// TestDispatchWaitConsumesAlreadyQueuedPeerMessage exercises the wait
// handler directly (bypassing goroutine scheduling) to verify that a peer
// message queued while this agent was still busy is consumed immediately
// rather than triggering the deadlock error or an unnecessary suspend.
func TestDispatchWaitConsumesAlreadyQueuedPeerMessage(t *testing.T) {
	orch := orchestrator.New(nil, nil)
	rt := New(orch, Options{})
	tmpl := &Template{
		Name:        "waiter",
		NewProvider: func() llmprovider.Provider { return llmprovider.NewMock() },
	}
	id := orch.Register(tmpl.Name)
	inst := rt.build(id, tmpl)
	state := orchestrator.NewState(id, "task")

	orch.Bus().SendPeer(bus.Envelope{
		Type:       bus.TypePeerMessage,
		To:         id,
		Priority:   bus.PriorityPeer,
		SenderName: "alice",
		Message:    "ping",
	}, false)

	prompt, done := rt.dispatch(context.Background(), id, tmpl, inst, state, 1, protocol.Action{Kind: protocol.KindWait})
	if done {
		t.Fatalf("expected wait with an already-queued peer message to continue, not suspend or fail")
	}
	if !strings.Contains(prompt, "ping") || !strings.Contains(prompt, "alice") {
		t.Fatalf("expected the resumed prompt to surface the queued peer message, got %q", prompt)
	}
}

func TestDispatchWaitWithNothingQueuedFails(t *testing.T) {
	orch := orchestrator.New(nil, nil)
	rt := New(orch, Options{})
	tmpl := &Template{
		Name:        "waiter",
		NewProvider: func() llmprovider.Provider { return llmprovider.NewMock() },
	}
	id := orch.Register(tmpl.Name)
	inst := rt.build(id, tmpl)
	state := orchestrator.NewState(id, "task")

	_, done := rt.dispatch(context.Background(), id, tmpl, inst, state, 1, protocol.Action{Kind: protocol.KindWait})
	if !done {
		t.Fatalf("expected wait with nothing pending or queued to terminate the agent")
	}
	resp := waitFor(t, orch, context.Background(), id)
	if resp.Success {
		t.Fatalf("expected failure, got %+v", resp)
	}
}

func TestRunCompactsHistoryBeforeLLMCallWhenOverThreshold(t *testing.T) {
	orch := orchestrator.New(nil, nil)
	rt := New(orch, Options{ParseRetries: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.Run(ctx)

	registry := toolkit.NewRegistry()
	registry.Register(echoTool{})

	var compactCalls int
	providerCount := 0
	tmpl := &Template{
		Name:  "chatty",
		Tools: registry,
		Compaction: compaction.Config{
			Enabled:               true,
			Threshold:             0.0001,
			ProtectRecentMessages: 1,
			MinOldMessages:        1,
			ContextLimit:          1000,
		},
	}
	tmpl.NewProvider = func() llmprovider.Provider {
		providerCount++
		if providerCount == 1 {
			// The agent's own conversation provider.
			return llmprovider.NewMock(
				"Action: tool\nTool: echo\nArguments: {\"text\": \"first\"}",
				"Action: finish\nContent: after compaction",
			)
		}
		// The dedicated compaction summarizer provider.
		m := llmprovider.NewMock()
		m.Func = func(ctx context.Context, prompt, systemPrompt string, call int) (string, error) {
			compactCalls++
			return "a short summary", nil
		}
		return m
	}

	id := rt.Start(ctx, tmpl, "long task")
	resp := waitFor(t, orch, ctx, id)
	if !resp.Success || resp.Content != "after compaction" {
		t.Fatalf("got %+v", resp)
	}
	if compactCalls == 0 {
		t.Fatalf("expected compaction to summarize at least once before the second LLM call")
	}
}
