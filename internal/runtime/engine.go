package runtime

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/agentmesh/agentmesh/internal/bus"
	"github.com/agentmesh/agentmesh/internal/compaction"
	"github.com/agentmesh/agentmesh/internal/events"
	"github.com/agentmesh/agentmesh/internal/execctx"
	"github.com/agentmesh/agentmesh/internal/llmprovider"
	"github.com/agentmesh/agentmesh/internal/observability"
	"github.com/agentmesh/agentmesh/internal/orchestrator"
	"github.com/agentmesh/agentmesh/internal/toolkit"
)

// Options configures a Runtime's ambient collaborators. Every field is
// optional; the zero value is a usable, permissive configuration suited to
// tests.
type Options struct {
	Logger       *observability.Logger
	Sink         events.Sink
	Permissions  execctx.Handler
	Truncator    *execctx.Truncator
	WorkingDir   string
	ParseRetries int
}

// instance is one live agent's collaborators: its provider (and therefore
// its conversation history), its tool dispatcher, its compaction policy,
// and its session-scoped key/value store.
type instance struct {
	template   *Template
	provider   llmprovider.Provider
	dispatcher *toolkit.Dispatcher
	detector   *compaction.Detector
	compactor  *compaction.Agent
	session    *execctx.SessionStore
}

// Runtime owns the set of live agent instances bound to a single
// Orchestrator, and the goroutine that drives each agent's turn.
type Runtime struct {
	orch *orchestrator.Orchestrator
	opts Options

	mu        sync.Mutex
	instances map[string]*instance
}

// New builds a Runtime bound to orch. Call Run in its own goroutine to
// start the message-delivery loop, then Start to launch a root agent.
func New(orch *orchestrator.Orchestrator, opts Options) *Runtime {
	if opts.ParseRetries <= 0 {
		opts.ParseRetries = DefaultParseRetries
	}
	return &Runtime{orch: orch, opts: opts, instances: map[string]*instance{}}
}

// Orchestrator exposes the bound Orchestrator, e.g. for WaitForCompletion.
func (r *Runtime) Orchestrator() *orchestrator.Orchestrator { return r.orch }

// Run consumes the Orchestrator's bus until ctx is cancelled or the bus is
// closed, delivering each envelope to its recipient and resuming suspended
// agents as needed. Intended to run in its own goroutine for the lifetime
// of the process.
func (r *Runtime) Run(ctx context.Context) {
	for {
		env, ok := r.orch.Bus().Next(ctx)
		if !ok {
			return
		}
		r.deliver(ctx, env)
	}
}

// deliver implements spec.md §4.5's delivery step: merge into a saved
// state and resume, or park as pending if the recipient hasn't saved its
// snapshot yet, or drop and log if the recipient is unknown entirely or has
// already completed or failed.
func (r *Runtime) deliver(ctx context.Context, env bus.Envelope) {
	state := r.orch.MergeEnvelope(env.To, env)
	if state != nil {
		r.resume(ctx, env.To, state)
		return
	}
	status, known := r.orch.Status(env.To)
	if !known {
		r.logWarn(ctx, "dropping envelope for unknown agent", "to", env.To, "type", string(env.Type))
		return
	}
	if status == orchestrator.StatusCompleted || status == orchestrator.StatusFailed {
		r.logWarn(ctx, "dropping envelope for finished agent", "to", env.To, "type", string(env.Type))
		return
	}
	r.orch.EnqueuePending(env.To, env)
}

// Start registers and launches a new root agent (no parent) from tmpl,
// returning its id immediately; the run proceeds on its own goroutine.
func (r *Runtime) Start(ctx context.Context, tmpl *Template, task string) string {
	id := r.orch.Register(tmpl.Name)
	r.build(id, tmpl)
	state := orchestrator.NewState(id, task)
	go r.run(ctx, id, tmpl, state, false)
	return id
}

// launchChild registers and launches a subagent named name under parentID,
// using parentTmpl.Subagents[name] as its template.
func (r *Runtime) launchChild(ctx context.Context, parentID string, parentTmpl *Template, name, task string) (string, error) {
	childTmpl, ok := parentTmpl.Subagents[name]
	if !ok {
		return "", &unknownSubagentError{name: name}
	}
	id := r.orch.RegisterChild(parentID, name)
	r.build(id, childTmpl)
	state := orchestrator.NewState(id, task)
	go r.run(ctx, id, childTmpl, state, false)
	return id, nil
}

// resume restarts an agent's main loop from a merged suspend snapshot,
// first draining one queued peer envelope (if any) so a busy-queued
// message becomes the resume trigger instead of starving behind the next
// unrelated wakeup.
func (r *Runtime) resume(ctx context.Context, id string, state *orchestrator.State) {
	inst := r.get(id)
	if inst == nil {
		r.logWarn(ctx, "resume for agent with no live instance", "agent_id", id)
		return
	}
	if env, ok := r.orch.DrainOneQueuedPeer(id); ok {
		state.PeerMessages = append(state.PeerMessages, orchestrator.PeerMessage{From: env.SenderName, Message: env.Message})
	}
	go r.run(ctx, id, inst.template, state, true)
}

func (r *Runtime) build(id string, tmpl *Template) *instance {
	provider := tmpl.NewProvider()
	// The compaction summarizer gets its own provider instance so
	// summarization calls never touch the agent's own conversation history.
	summarizer := tmpl.NewProvider()
	cfg := tmpl.compactionConfig()
	inst := &instance{
		template:   tmpl,
		provider:   provider,
		dispatcher: toolkit.NewDispatcher(tmpl.tools()),
		detector:   compaction.NewDetector(cfg),
		compactor:  compaction.NewAgent(cfg, summarizer),
		session:    execctx.NewSessionStore(),
	}
	r.mu.Lock()
	r.instances[id] = inst
	r.mu.Unlock()
	return inst
}

func (r *Runtime) get(id string) *instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instances[id]
}

func (r *Runtime) forget(id string) {
	r.mu.Lock()
	delete(r.instances, id)
	r.mu.Unlock()
}

func (r *Runtime) buildContext(ctx context.Context, id string, tmpl *Template, inst *instance) *execctx.Context {
	return &execctx.Context{
		SessionID:   id,
		CallID:      uuid.NewString(),
		AgentName:   tmpl.Name,
		WorkingDir:  r.opts.WorkingDir,
		Permissions: r.opts.Permissions,
		Abort:       execctx.NewAbort(ctx),
		Session:     inst.session,
		Truncator:   r.opts.Truncator,
	}
}

func (r *Runtime) emit(ctx context.Context, e events.Event) {
	if r.opts.Sink == nil {
		return
	}
	r.opts.Sink.Emit(ctx, e)
}

func (r *Runtime) logWarn(ctx context.Context, msg string, args ...any) {
	if r.opts.Logger == nil {
		return
	}
	r.opts.Logger.Warn(ctx, msg, args...)
}

type unknownSubagentError struct{ name string }

func (e *unknownSubagentError) Error() string {
	return "runtime: template has no subagent named " + e.name
}
