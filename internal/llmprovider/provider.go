// Package llmprovider adapts concrete LLM SDKs to the single collaborator
// contract the agent runtime consumes: chat(prompt, system_prompt?) → text,
// plus history get/set/reset. The core never parses provider-specific
// response fields — everything provider-specific stays behind this
// boundary.
package llmprovider

import (
	"context"
	"sync"
)

// Message is one turn of conversation history.
type Message struct {
	Role    string
	Content string
}

// Provider is the LLM transport collaborator. Implementations must be
// substitutable and safe for use by a single agent goroutine at a time —
// the runtime never calls the same Provider concurrently from two turns of
// the same agent.
type Provider interface {
	// Chat sends prompt (and, if the history is currently empty,
	// systemPrompt) and returns the assistant's reply text.
	Chat(ctx context.Context, prompt, systemPrompt string) (string, error)
	// Model returns the model name in use. Compaction does not consult it;
	// its context limit comes from compaction.Config.
	Model() string

	History() []Message
	SetHistory(history []Message)
	ResetHistory()
}

// historyMixin implements the history bookkeeping shared by every Provider
// so each transport only has to implement Chat and Model.
type historyMixin struct {
	mu      sync.Mutex
	history []Message
}

func (h *historyMixin) History() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, len(h.history))
	copy(out, h.history)
	return out
}

func (h *historyMixin) SetHistory(history []Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = append([]Message(nil), history...)
}

func (h *historyMixin) ResetHistory() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = nil
}

func (h *historyMixin) append(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = append(h.history, msg)
}

func (h *historyMixin) snapshot() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, len(h.history))
	copy(out, h.history)
	return out
}

func (h *historyMixin) empty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.history) == 0
}
