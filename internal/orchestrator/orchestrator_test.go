package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/agentmesh/agentmesh/internal/bus"
)

func TestRegisterChildTracksRelationship(t *testing.T) {
	o := New(nil, nil)
	parent := o.Register("root")
	child := o.RegisterChild(parent, "worker")

	children := o.Children(parent)
	if len(children) != 1 || children[0] != child {
		t.Fatalf("expected parent to list child, got %v", children)
	}
	status, ok := o.Status(child)
	if !ok || status != StatusRunning {
		t.Fatalf("expected child status running, got %v ok=%v", status, ok)
	}
}

func TestMarkCompletedNotifiesParent(t *testing.T) {
	o := New(nil, nil)
	parent := o.Register("root")
	child := o.RegisterChild(parent, "worker")

	o.MarkCompleted(child, Response{Content: "done", Success: true})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	env, ok := o.Bus().Next(ctx)
	if !ok {
		t.Fatal("expected completion envelope on parent's queue")
	}
	if env.Type != bus.TypeSubagentCompleted || env.To != parent || env.AgentName != "worker" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestWaitForCompletionIsIdempotent(t *testing.T) {
	o := New(nil, nil)
	id := o.Register("root")
	o.MarkCompleted(id, Response{Content: "ok", Iterations: 3, Success: true})

	ctx := context.Background()
	first, err := o.WaitForCompletion(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := o.WaitForCompletion(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical result on repeat wait: %+v vs %+v", first, second)
	}
}

func TestFindAgentByNameOnlyMatchesSiblings(t *testing.T) {
	o := New(nil, nil)
	parentA := o.Register("root-a")
	parentB := o.Register("root-b")
	siblingA := o.RegisterChild(parentA, "worker")
	o.RegisterChild(parentB, "worker")

	found, ok := o.FindAgentByName("worker", siblingA)
	if !ok {
		t.Fatal("expected to find sibling worker")
	}
	// siblingA itself isn't under parentA's siblings list search target but
	// another child under parentA with same name would match; here there's
	// only one child of parentA so it should resolve to itself via name
	// index since FindAgentByName doesn't exclude the requester by id.
	if found != siblingA {
		t.Fatalf("expected sibling lookup to resolve within the same parent, got %s", found)
	}
}

func TestSaveStateDrainsPendingEnvelopes(t *testing.T) {
	o := New(nil, nil)
	id := o.Register("root")

	o.EnqueuePending(id, bus.Envelope{To: id, Type: bus.TypePeerMessage, Message: "arrived early"})
	o.SaveState(id, NewState(id, "task"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	env, ok := o.Bus().Next(ctx)
	if !ok || env.Message != "arrived early" {
		t.Fatalf("expected pending envelope to be redelivered, got %+v ok=%v", env, ok)
	}
}

func TestMergeEnvelopeUpdatesPendingAndCompleted(t *testing.T) {
	o := New(nil, nil)
	id := o.Register("root")
	state := NewState(id, "task")
	state.Pending["worker"] = true
	state.Launched["worker"] = &ChildRecord{Name: "worker", Status: StatusRunning}
	o.SaveState(id, state)

	merged := o.MergeEnvelope(id, bus.Envelope{To: id, Type: bus.TypeSubagentCompleted, AgentName: "worker", Result: "42"})
	if merged == nil {
		t.Fatal("expected merged state")
	}
	if merged.Completed["worker"] != "42" {
		t.Fatalf("expected completed result recorded, got %+v", merged.Completed)
	}
	if merged.Pending["worker"] {
		t.Fatal("expected worker removed from pending")
	}
	if _, stillSaved := o.State(id); stillSaved {
		t.Fatal("expected state ownership to transfer away from orchestrator on merge")
	}
}
