package llmprovider

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures an Anthropic-backed Provider.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int64
}

// Anthropic adapts Anthropic's Messages API to the Provider contract.
type Anthropic struct {
	historyMixin
	client anthropic.Client
	model  string
	maxTok int64
}

// NewAnthropic builds an Anthropic provider from config.
func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	maxTok := cfg.MaxTokens
	if maxTok <= 0 {
		maxTok = 4096
	}
	return &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  model,
		maxTok: maxTok,
	}
}

func (a *Anthropic) Model() string { return a.model }

// Chat sends prompt as a user turn, with systemPrompt applied only while
// history is empty (matching the spec's "system_prompt only used if history
// is empty" contract), and appends both turns to history on success.
func (a *Anthropic) Chat(ctx context.Context, prompt, systemPrompt string) (string, error) {
	wasEmpty := a.empty()
	a.append(Message{Role: "user", Content: prompt})

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTok,
	}
	if wasEmpty && systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	messages := make([]anthropic.MessageParam, 0, len(a.snapshot()))
	for _, m := range a.snapshot() {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}
	params.Messages = messages

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic chat: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	a.append(Message{Role: "assistant", Content: text})
	return text, nil
}
