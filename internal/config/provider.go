package config

import (
	"fmt"

	"github.com/agentmesh/agentmesh/internal/llmprovider"
)

// NewProviderFactory returns the func(() llmprovider.Provider) a
// runtime.Template needs, closed over this LLMConfig. Every call returns a
// fresh, independent Provider instance — the runtime relies on that to keep
// an agent's compaction summarizer from sharing history with its main
// conversation.
func (c LLMConfig) NewProviderFactory() (func() llmprovider.Provider, error) {
	switch c.Provider {
	case "anthropic":
		return func() llmprovider.Provider {
			return llmprovider.NewAnthropic(llmprovider.AnthropicConfig{
				APIKey:    c.APIKey,
				Model:     c.Model,
				MaxTokens: int64(c.MaxTokens),
			})
		}, nil
	case "openai":
		return func() llmprovider.Provider {
			return llmprovider.NewOpenAI(llmprovider.OpenAIConfig{
				APIKey:    c.APIKey,
				Model:     c.Model,
				MaxTokens: c.MaxTokens,
			})
		}, nil
	case "mock", "":
		return func() llmprovider.Provider {
			return llmprovider.NewMock("Action: finish\nContent: (mock provider; no response configured)")
		}, nil
	default:
		return nil, fmt.Errorf("config: unknown llm.provider %q", c.Provider)
	}
}
