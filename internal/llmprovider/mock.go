package llmprovider

import (
	"context"
	"fmt"
	"sync"
)

// Mock is a scripted Provider for deterministic tests: each call to Chat
// returns the next entry in Responses, or invokes Func if set.
type Mock struct {
	historyMixin

	mu        sync.Mutex
	Responses []string
	call      int
	Func      func(ctx context.Context, prompt, systemPrompt string, call int) (string, error)
	ModelName string
}

// NewMock returns a Mock that replays responses in order.
func NewMock(responses ...string) *Mock {
	return &Mock{Responses: responses, ModelName: "mock-model"}
}

func (m *Mock) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

func (m *Mock) Chat(ctx context.Context, prompt, systemPrompt string) (string, error) {
	m.mu.Lock()
	call := m.call
	m.call++
	m.mu.Unlock()

	m.append(Message{Role: "user", Content: prompt})

	var text string
	var err error
	if m.Func != nil {
		text, err = m.Func(ctx, prompt, systemPrompt, call)
	} else if call < len(m.Responses) {
		text = m.Responses[call]
	} else {
		err = fmt.Errorf("mock provider: no scripted response for call %d", call)
	}
	if err != nil {
		return "", err
	}

	m.append(Message{Role: "assistant", Content: text})
	return text, nil
}
