package llmprovider

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAI-backed Provider.
type OpenAIConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
}

// OpenAI adapts the Chat Completions API to the Provider contract.
type OpenAI struct {
	historyMixin
	client *openai.Client
	model  string
	maxTok int
}

// NewOpenAI builds an OpenAI provider from config.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	model := cfg.Model
	if model == "" {
		model = openai.GPT4o
	}
	maxTok := cfg.MaxTokens
	if maxTok <= 0 {
		maxTok = 4096
	}
	return &OpenAI{
		client: openai.NewClient(cfg.APIKey),
		model:  model,
		maxTok: maxTok,
	}
}

func (o *OpenAI) Model() string { return o.model }

func (o *OpenAI) Chat(ctx context.Context, prompt, systemPrompt string) (string, error) {
	wasEmpty := o.empty()
	o.append(Message{Role: openai.ChatMessageRoleUser, Content: prompt})

	messages := make([]openai.ChatCompletionMessage, 0, len(o.snapshot())+1)
	if wasEmpty && systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	for _, m := range o.snapshot() {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.model,
		Messages:  messages,
		MaxTokens: o.maxTok,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat: no choices returned")
	}

	text := resp.Choices[0].Message.Content
	o.append(Message{Role: openai.ChatMessageRoleAssistant, Content: text})
	return text, nil
}
