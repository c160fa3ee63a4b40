// Package compaction implements the cross-cutting history-compaction hook:
// a policy object queried before each LLM call that, once the estimated
// token usage of an agent's history crosses a threshold, replaces the older
// prefix with a single synthetic summary message.
package compaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentmesh/agentmesh/internal/llmprovider"
)

// Config tunes when and how compaction triggers. Mirrors the
// CompactionConfig/CompactionDetector split of the original source.
type Config struct {
	Enabled              bool
	Threshold            float64 // fraction of the model's context limit
	ProtectRecentMessages int
	MinOldMessages       int
	ContextLimit         int // tokens; 0 uses DefaultContextLimit
}

// DefaultConfig matches the original source's defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:               true,
		Threshold:             0.75,
		ProtectRecentMessages: 6,
		MinOldMessages:        3,
		ContextLimit:          DefaultContextLimit,
	}
}

// DefaultContextLimit is used when Config.ContextLimit is unset.
const DefaultContextLimit = 128_000

// EstimateTokens approximates token count as one token per four characters
// of content — no tokenizer library in this module's dependency set covers
// every provider's vocabulary, and the compaction threshold only needs to
// be approximately right.
func EstimateTokens(history []llmprovider.Message) int {
	total := 0
	for _, m := range history {
		total += (len(m.Content) + 3) / 4
	}
	return total
}

// Detector decides whether an agent's history needs compacting.
type Detector struct {
	cfg Config
}

// NewDetector builds a Detector from cfg.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// ShouldCompact reports whether history should be compacted, along with the
// estimated current and threshold token counts.
func (d *Detector) ShouldCompact(history []llmprovider.Message) (bool, int, int) {
	limit := d.cfg.ContextLimit
	if limit <= 0 {
		limit = DefaultContextLimit
	}
	threshold := int(float64(limit) * d.cfg.Threshold)
	current := EstimateTokens(history)

	startIdx := 0
	if len(history) > 0 && history[0].Role == "system" {
		startIdx = 1
	}
	splitPoint := len(history) - d.cfg.ProtectRecentMessages
	numOld := splitPoint - startIdx
	if numOld < 0 {
		numOld = 0
	}

	should := d.cfg.Enabled && current >= threshold && numOld >= d.cfg.MinOldMessages
	return should, current, threshold
}

// Summarizer generates a short summary of a message slice using an LLM
// provider. It is satisfied by llmprovider.Provider, but accepting just the
// Chat method keeps compaction decoupled from history bookkeeping it
// doesn't need.
type Summarizer interface {
	Chat(ctx context.Context, prompt, systemPrompt string) (string, error)
}

const systemPrompt = `You are a context compression assistant. Produce a brief summary of the conversation below.
Focus on what was done, what is in progress, and what must be remembered to continue the conversation.
Aim for 20-30% of the original length. Use short sentences or bullet points.`

// Agent executes compaction: it splits history into an old prefix and a
// protected recent suffix, summarizes the prefix through an LLM, and
// returns [system?, summary, ...recent]. On any failure it returns the
// original history unchanged — compaction failures must never break the
// main agent loop.
type Agent struct {
	cfg        Config
	summarizer Summarizer
}

// NewAgent builds a compaction Agent.
func NewAgent(cfg Config, summarizer Summarizer) *Agent {
	return &Agent{cfg: cfg, summarizer: summarizer}
}

// Compact returns a new history in which the old prefix is replaced by a
// summary message, preserving the most recent ProtectRecentMessages
// verbatim; history itself is left unmodified.
func (a *Agent) Compact(ctx context.Context, history []llmprovider.Message) []llmprovider.Message {
	if !a.cfg.Enabled || len(history) <= a.cfg.ProtectRecentMessages {
		return history
	}

	var system *llmprovider.Message
	startIdx := 0
	if len(history) > 0 && history[0].Role == "system" {
		system = &history[0]
		startIdx = 1
	}

	splitPoint := len(history) - a.cfg.ProtectRecentMessages
	if splitPoint <= startIdx {
		return history
	}

	old := history[startIdx:splitPoint]
	recent := history[splitPoint:]
	if len(old) < a.cfg.MinOldMessages {
		return history
	}

	summary, err := a.summarize(ctx, old)
	if err != nil {
		return history
	}

	compacted := make([]llmprovider.Message, 0, len(recent)+2)
	if system != nil {
		compacted = append(compacted, *system)
	}
	compacted = append(compacted, llmprovider.Message{
		Role:    "system",
		Content: fmt.Sprintf("[Previous conversation summary]\n\n%s", summary),
	})
	compacted = append(compacted, recent...)
	return compacted
}

func (a *Agent) summarize(ctx context.Context, messages []llmprovider.Message) (string, error) {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n\n", strings.ToUpper(m.Role), m.Content)
	}

	tokens := EstimateTokens(messages)
	targetWords := tokens * 3 / 10
	if targetWords < 50 {
		targetWords = 50
	}

	prompt := fmt.Sprintf(
		"Summarize the following conversation in at most %d words:\n\n%s\nYour summary must be much shorter than the original.",
		targetWords, b.String(),
	)
	return a.summarizer.Chat(ctx, prompt, systemPrompt)
}
