// Package orchestrator is the process-wide coordinator: it owns every
// agent's table entry, the parent/child and name-index relationship
// tables, and the message bus queues. It knows nothing about how an agent
// actually runs — that is the Agent Runtime's job, built on top of this
// package.
package orchestrator

import "time"

// Status is one of an agent's lifecycle states.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ChildRecord tracks one subagent launched by an agent, as seen from the
// parent's suspend snapshot.
type ChildRecord struct {
	Name      string
	Status    Status
	StartTime time.Time
	EndTime   time.Time
	Result    string
	Err       string
}

// PeerMessage is one peer envelope merged into a State's buffer, surfaced to
// the LLM on the agent's next turn.
type PeerMessage struct {
	From    string
	Message string
}

// State is the suspend snapshot for one agent: everything needed to resume
// its conversation exactly where it left off.
type State struct {
	AgentID   string
	Task      string
	Iteration int

	// History holds the LLM conversation in role/content pairs. Its element
	// type is left to the runtime package (via History any) so this package
	// has no dependency on the LLM provider's message shape; the runtime
	// type-asserts it back on resume.
	History any

	// Launched is every child this agent has launched, keyed by child name.
	Launched map[string]*ChildRecord
	// Pending is the subset of Launched names still awaiting a result.
	Pending map[string]bool
	// Completed maps a finished child's name to its result text.
	Completed map[string]string
	// Failed maps a finished child's name to its error text.
	Failed map[string]string

	// PeerMessages buffers peer envelopes observed while suspended but not
	// yet surfaced to the LLM.
	PeerMessages []PeerMessage

	// Context is free-form state the runtime attaches and reads back.
	Context map[string]any
}

// NewState returns an empty suspend snapshot for a fresh agent run.
func NewState(agentID, task string) *State {
	return &State{
		AgentID:   agentID,
		Task:      task,
		Launched:  map[string]*ChildRecord{},
		Pending:   map[string]bool{},
		Completed: map[string]string{},
		Failed:    map[string]string{},
		Context:   map[string]any{},
	}
}

// Response is the final, terminal result of one agent's run.
type Response struct {
	Content    string
	Iterations int
	Success    bool
}
