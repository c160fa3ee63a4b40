package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentmesh/agentmesh/internal/bus"
)

// entry is one agent's bookkeeping row in the orchestrator's table.
type entry struct {
	name       string
	status     Status
	state      *State
	completion chan struct{}
	result     Response
	resultSet  bool
}

// Orchestrator is the single process-wide coordinator described in the
// runtime specification. Its tables are touched only while holding mu — the
// single-mutex substitute for Python's single-threaded event loop, safe to
// call concurrently from every agent goroutine.
type Orchestrator struct {
	mu       sync.Mutex
	agents   map[string]*entry
	children map[string][]string // parent id -> child ids
	parents  map[string]string   // child id -> parent id
	byName   map[string][]string // agent name -> ids

	bus    *bus.Bus
	logger *slog.Logger
	seq    uint64

	metrics metrics
}

type metrics struct {
	activeAgents    prometheus.Gauge
	suspendedAgents prometheus.Gauge
	messagesSent    prometheus.Counter
	parseFailures   prometheus.Counter
}

// New returns an empty Orchestrator. Metrics are registered against reg if
// non-nil; pass nil to skip metrics registration (e.g. in unit tests).
func New(logger *slog.Logger, reg prometheus.Registerer) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		agents:   map[string]*entry{},
		children: map[string][]string{},
		parents:  map[string]string{},
		byName:   map[string][]string{},
		bus:      bus.New(),
		logger:   logger,
	}
	o.metrics = metrics{
		activeAgents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agentmesh_active_agents",
			Help: "Number of agents currently running.",
		}),
		suspendedAgents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agentmesh_suspended_agents",
			Help: "Number of agents currently suspended awaiting a message.",
		}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentmesh_messages_delivered_total",
			Help: "Total envelopes delivered through the message bus.",
		}),
		parseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentmesh_parse_failures_total",
			Help: "Total output-parser failures across all agents.",
		}),
	}
	if reg != nil {
		reg.MustRegister(o.metrics.activeAgents, o.metrics.suspendedAgents, o.metrics.messagesSent, o.metrics.parseFailures)
	}
	return o
}

// Bus exposes the underlying message bus for the runtime's delivery loop.
func (o *Orchestrator) Bus() *bus.Bus { return o.bus }

// RecordParseFailure increments the parse-failure counter; the runtime
// calls this each time protocol.Parse returns an error.
func (o *Orchestrator) RecordParseFailure() {
	o.metrics.parseFailures.Inc()
}

func (o *Orchestrator) nextID(name string) string {
	o.seq++
	return fmt.Sprintf("%s_%d", name, o.seq)
}

// Register creates a fresh root-level agent entry (no parent) in StatusIdle
// and returns its id.
func (o *Orchestrator) Register(name string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextID(name)
	o.agents[id] = &entry{name: name, status: StatusIdle, completion: make(chan struct{})}
	o.byName[name] = append(o.byName[name], id)
	o.metrics.activeAgents.Inc()
	return id
}

// RegisterChild registers a subagent under parentID, marks it running, and
// records the parent/child relationship. The caller (the runtime package)
// is responsible for actually starting the child's goroutine.
func (o *Orchestrator) RegisterChild(parentID, name string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextID(name)
	o.agents[id] = &entry{name: name, status: StatusRunning, completion: make(chan struct{})}
	o.byName[name] = append(o.byName[name], id)
	o.children[parentID] = append(o.children[parentID], id)
	o.parents[id] = parentID
	o.metrics.activeAgents.Inc()
	return id
}

// SetStatus updates agentID's status. Unknown ids are a no-op: orchestrator
// errors (missing recipient) are logged and dropped, never propagated.
func (o *Orchestrator) SetStatus(agentID string, status Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.agents[agentID]
	if !ok {
		o.logger.Warn("set status on unknown agent", "agent_id", agentID)
		return
	}
	e.status = status
}

// Status returns agentID's current status.
func (o *Orchestrator) Status(agentID string) (Status, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.agents[agentID]
	if !ok {
		return "", false
	}
	return e.status, true
}

// SaveState stores state as agentID's suspend snapshot, marks it suspended,
// and drains any envelopes that arrived while it was still finishing its
// current turn back onto the main queue.
func (o *Orchestrator) SaveState(agentID string, state *State) {
	o.mu.Lock()
	e, ok := o.agents[agentID]
	if !ok {
		o.mu.Unlock()
		o.logger.Warn("save state on unknown agent", "agent_id", agentID)
		return
	}
	e.state = state
	e.status = StatusSuspended
	o.metrics.suspendedAgents.Inc()
	o.mu.Unlock()

	o.bus.DrainPending(agentID)
}

// State returns agentID's saved suspend snapshot, if any.
func (o *Orchestrator) State(agentID string) (*State, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.agents[agentID]
	if !ok || e.state == nil {
		return nil, false
	}
	return e.state, true
}

// MergeEnvelope applies env to agentID's saved state — updating pending
// children and completed/failed results for parent-destined completion
// envelopes, or appending to the peer-message buffer for peer envelopes —
// and clears the saved state (ownership transfers back to the runtime for
// the resumed turn). It returns the merged state, or nil if the agent has
// no saved state (the caller should queue env as pending instead).
func (o *Orchestrator) MergeEnvelope(agentID string, env bus.Envelope) *State {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.agents[agentID]
	if !ok || e.state == nil {
		return nil
	}
	state := e.state
	switch env.Type {
	case bus.TypePeerMessage:
		state.PeerMessages = append(state.PeerMessages, PeerMessage{From: env.SenderName, Message: env.Message})
	case bus.TypeSubagentCompleted:
		state.Completed[env.AgentName] = env.Result
		delete(state.Pending, env.AgentName)
		if rec, ok := state.Launched[env.AgentName]; ok {
			rec.Status = StatusCompleted
			rec.Result = env.Result
			rec.EndTime = time.Now()
		}
	case bus.TypeSubagentFailed:
		state.Failed[env.AgentName] = env.Err
		delete(state.Pending, env.AgentName)
		if rec, ok := state.Launched[env.AgentName]; ok {
			rec.Status = StatusFailed
			rec.Err = env.Err
			rec.EndTime = time.Now()
		}
	}
	e.state = nil
	e.status = StatusRunning
	o.metrics.suspendedAgents.Dec()
	return state
}

// EnqueuePending forwards to the bus's pending-state FIFO for agentID — the
// race window where an envelope arrives before the recipient has finished
// saving its suspend snapshot.
func (o *Orchestrator) EnqueuePending(agentID string, env bus.Envelope) {
	o.bus.EnqueuePending(agentID, env)
}

// DrainOneQueuedPeer removes and returns the oldest peer envelope queued for
// agentID, if any. The runtime calls this immediately before resuming an
// agent's turn so a busy-queued message becomes the resume trigger.
func (o *Orchestrator) DrainOneQueuedPeer(agentID string) (bus.Envelope, bool) {
	return o.bus.DrainOnePeer(agentID)
}

// MarkCompleted finalizes agentID with a successful or failed terminal
// result, fires its completion signal, and — if it has a parent — enqueues
// a subagent_completed/subagent_failed envelope addressed to that parent.
func (o *Orchestrator) MarkCompleted(agentID string, resp Response) {
	o.complete(agentID, resp, bus.TypeSubagentCompleted)
}

// MarkFailed is MarkCompleted's failure counterpart.
func (o *Orchestrator) MarkFailed(agentID string, resp Response) {
	o.complete(agentID, resp, bus.TypeSubagentFailed)
}

func (o *Orchestrator) complete(agentID string, resp Response, envType bus.Type) {
	o.mu.Lock()
	e, ok := o.agents[agentID]
	if !ok {
		o.mu.Unlock()
		o.logger.Warn("mark completed on unknown agent", "agent_id", agentID)
		return
	}
	if envType == bus.TypeSubagentCompleted {
		e.status = StatusCompleted
	} else {
		e.status = StatusFailed
	}
	e.result = resp
	e.resultSet = true
	name := e.name
	parentID, hasParent := o.parents[agentID]
	o.metrics.activeAgents.Dec()
	o.mu.Unlock()

	close(e.completion)

	if hasParent {
		env := bus.Envelope{
			Type:      envType,
			From:      agentID,
			To:        parentID,
			Priority:  bus.PriorityChildDone,
			AgentName: name,
		}
		if envType == bus.TypeSubagentCompleted {
			env.Result = resp.Content
		} else {
			env.Err = resp.Content
		}
		o.bus.Send(env)
		o.metrics.messagesSent.Inc()
	}
}

// WaitForCompletion blocks until agentID reaches a terminal state and
// returns its result. Calling it again after termination returns the same
// result immediately — the completion channel is closed exactly once.
func (o *Orchestrator) WaitForCompletion(ctx context.Context, agentID string) (Response, error) {
	o.mu.Lock()
	e, ok := o.agents[agentID]
	o.mu.Unlock()
	if !ok {
		return Response{}, fmt.Errorf("unknown agent %q", agentID)
	}
	select {
	case <-e.completion:
		o.mu.Lock()
		defer o.mu.Unlock()
		return e.result, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// FindAgentByName returns the id of an agent named name whose parent is the
// same as requesterID's parent — i.e. a sibling. Cross-branch lookups are
// intentionally unsupported.
func (o *Orchestrator) FindAgentByName(name, requesterID string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	requesterParent, ok := o.parents[requesterID]
	if !ok {
		return "", false
	}
	for _, candidate := range o.byName[name] {
		if o.parents[candidate] == requesterParent {
			return candidate, true
		}
	}
	return "", false
}

// SendPeerMessage implements the send_peer convenience path: it forwards to
// the main queue if the recipient is suspended, otherwise queues on the
// recipient's peer FIFO.
func (o *Orchestrator) SendPeerMessage(fromID, fromName, toID, message string) {
	status, _ := o.Status(toID)
	o.bus.SendPeer(bus.Envelope{
		Type:       bus.TypePeerMessage,
		From:       fromID,
		To:         toID,
		Priority:   bus.PriorityPeer,
		SenderName: fromName,
		Message:    message,
	}, status == StatusSuspended)
	o.metrics.messagesSent.Inc()
}

// Reset zeros every table, for testability.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.agents = map[string]*entry{}
	o.children = map[string][]string{}
	o.parents = map[string]string{}
	o.byName = map[string][]string{}
	o.bus = bus.New()
	o.seq = 0
}

// Name returns agentID's registered display name.
func (o *Orchestrator) Name(agentID string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.agents[agentID]
	if !ok {
		return "", false
	}
	return e.name, true
}

// Children returns the ids of every subagent launched by parentID.
func (o *Orchestrator) Children(parentID string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.children[parentID]))
	copy(out, o.children[parentID])
	return out
}
