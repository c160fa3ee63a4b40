// Package bus implements the ordered, multi-producer/single-consumer
// message queue that carries parent/child completion notices and
// peer-to-peer messages between agents.
package bus

import "time"

// Type discriminates the payload carried by an Envelope.
type Type string

const (
	TypeSubagentCompleted Type = "subagent_completed"
	TypeSubagentFailed    Type = "subagent_failed"
	TypePeerMessage       Type = "peer_message"
)

// Priority levels. Parent-destined completion/failure envelopes are lifted
// above peer messages so that progress toward the root is never starved by
// peer chatter.
const (
	PriorityPeer      = 0
	PriorityChildDone = 10
)

// Envelope is one message traveling through the bus.
type Envelope struct {
	Type      Type
	From      string
	To        string
	Priority  int
	Timestamp time.Time

	// AgentName is the display name of the subagent this envelope concerns
	// (set for TypeSubagentCompleted/TypeSubagentFailed).
	AgentName string
	// Result/Err carry the child's outcome for completion envelopes.
	Result string
	Err    string

	// SenderName/Message carry a peer_message's payload.
	SenderName string
	Message    string

	// seq breaks ties between equal-priority envelopes so the queue stays
	// FIFO within a priority band.
	seq uint64
}
