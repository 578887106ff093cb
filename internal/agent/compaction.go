package agent

import (
	"context"
	"fmt"
	"strings"

	ctxwindow "github.com/loomrun/loom/internal/context"
)

// CompactionConfig controls when and how a turn's message list is
// compacted before it is sent to the model.
type CompactionConfig struct {
	// ContextWindow is the model's window W in tokens. Zero means look
	// the window up by model id, falling back to DefaultContextWindow.
	ContextWindow int

	// Threshold is the fraction θ of the window at which compaction
	// triggers. Zero means DefaultCompactionThreshold.
	Threshold float64

	// PrefixFraction is how much of the current token total the
	// summarized prefix should cover. Zero means
	// DefaultCompactionPrefixFraction.
	PrefixFraction float64

	// SummaryModel picks the model used for the summarization call;
	// empty uses the provider default (typically the faster secondary
	// model when the router is configured with one).
	SummaryModel string
}

// DefaultContextWindow is assumed when the model id is unknown.
const DefaultContextWindow = 100_000

// DefaultCompactionThreshold is θ: compaction triggers at 80% of the
// window.
const DefaultCompactionThreshold = 0.8

// DefaultCompactionPrefixFraction is how much of the conversation the
// summarized prefix should absorb.
const DefaultCompactionPrefixFraction = 0.6

// messageTokenOverhead is the per-message estimate surcharge covering
// role framing and structure.
const messageTokenOverhead = 8

// compactionSummaryMaxTokens bounds the summarization response.
const compactionSummaryMaxTokens = 512

// Compactor shrinks a completion request when its estimated token count
// crosses θ·W: a leading prefix of messages is summarized by the model
// and folded into the request's system text, and the prefix is dropped.
// When the summarization call fails, the prefix is dropped without a
// summary (naive fallback) so the turn can still proceed.
//
// The prefix never includes the most recent user message, and never
// splits an assistant tool-call message from the tool message carrying
// its results.
type Compactor struct {
	provider LLMProvider
	config   CompactionConfig
}

// NewCompactor creates a compactor summarizing through the provider.
func NewCompactor(provider LLMProvider, config CompactionConfig) *Compactor {
	if config.Threshold <= 0 || config.Threshold > 1 {
		config.Threshold = DefaultCompactionThreshold
	}
	if config.PrefixFraction <= 0 || config.PrefixFraction > 1 {
		config.PrefixFraction = DefaultCompactionPrefixFraction
	}
	return &Compactor{provider: provider, config: config}
}

// windowFor resolves W for the request's model.
func (c *Compactor) windowFor(model string) int {
	if c.config.ContextWindow > 0 {
		return c.config.ContextWindow
	}
	if tokens, ok := ctxwindow.GetModelContextWindow(model); ok && tokens > 0 {
		return tokens
	}
	return DefaultContextWindow
}

// EstimateTokens is the cheap, monotonic token estimate used for the
// threshold check: content length over four plus a per-message overhead.
func EstimateTokens(msgs []CompletionMessage) int {
	total := 0
	for i := range msgs {
		total += estimateMessageTokens(&msgs[i])
	}
	return total
}

func estimateMessageTokens(m *CompletionMessage) int {
	n := len(m.Content)
	for _, tc := range m.ToolCalls {
		n += len(tc.Name) + len(tc.Input)
	}
	for _, tr := range m.ToolResults {
		n += len(tr.Content)
	}
	return n/4 + messageTokenOverhead
}

// MaybeCompact applies the θ·W rule to a request's system text and
// message list. It returns the (possibly rewritten) system text and
// messages, and whether compaction happened.
func (c *Compactor) MaybeCompact(ctx context.Context, model, system string, msgs []CompletionMessage) (string, []CompletionMessage, bool) {
	window := c.windowFor(model)
	limit := int(float64(window) * c.config.Threshold)

	total := EstimateTokens(msgs) + len(system)/4
	if total < limit || len(msgs) < 2 {
		return system, msgs, false
	}

	cut := c.prefixEnd(msgs, total)
	if cut <= 0 {
		return system, msgs, false
	}

	summary, err := c.summarize(ctx, msgs[:cut])
	if err != nil || strings.TrimSpace(summary) == "" {
		// Naive fallback: drop the oldest messages until the estimate
		// is back under the limit, honoring the same boundaries.
		return system, c.naiveDrop(msgs, limit), true
	}

	newSystem := system
	if newSystem != "" {
		newSystem += "\n\n"
	}
	newSystem += "Summary of the earlier conversation (older messages were compacted):\n" + strings.TrimSpace(summary)

	rest := make([]CompletionMessage, len(msgs)-cut)
	copy(rest, msgs[cut:])
	return newSystem, rest, true
}

// prefixEnd picks the index up to which messages are compacted away:
// enough leading messages to cover PrefixFraction of the total estimate,
// nudged forward so a tool-call/tool-result pair is never split, and
// clamped so the most recent user message (and everything after it)
// survives.
func (c *Compactor) prefixEnd(msgs []CompletionMessage, totalTokens int) int {
	lastUser := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			lastUser = i
			break
		}
	}

	target := int(float64(totalTokens) * c.config.PrefixFraction)
	acc := 0
	cut := 0
	for i := range msgs {
		acc += estimateMessageTokens(&msgs[i])
		cut = i + 1
		if acc >= target {
			break
		}
	}

	// Never cut between an assistant message carrying tool calls and
	// the tool message answering it.
	for cut < len(msgs) && msgs[cut].Role == "tool" {
		cut++
	}

	if lastUser >= 0 && cut > lastUser {
		cut = lastUser
		for cut > 0 && msgs[cut-1].Role == "assistant" && len(msgs[cut-1].ToolCalls) > 0 {
			cut--
		}
	}
	if cut >= len(msgs) {
		cut = len(msgs) - 1
	}
	if cut < 0 {
		cut = 0
	}
	return cut
}

// naiveDrop removes leading messages until the estimate is under limit,
// keeping the most recent user message and whole tool pairs.
func (c *Compactor) naiveDrop(msgs []CompletionMessage, limit int) []CompletionMessage {
	lastUser := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			lastUser = i
			break
		}
	}

	start := 0
	for start < len(msgs)-1 && EstimateTokens(msgs[start:]) >= limit {
		if lastUser >= 0 && start >= lastUser {
			break
		}
		start++
		for start < len(msgs)-1 && msgs[start].Role == "tool" {
			start++
		}
	}
	out := make([]CompletionMessage, len(msgs)-start)
	copy(out, msgs[start:])
	return out
}

// summarize asks the provider for a concise summary of the prefix.
func (c *Compactor) summarize(ctx context.Context, prefix []CompletionMessage) (string, error) {
	if c.provider == nil {
		return "", fmt.Errorf("no provider for summarization")
	}

	var b strings.Builder
	for i := range prefix {
		m := &prefix[i]
		if m.Content != "" {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, clipText(m.Content, 600))
		}
		for _, tc := range m.ToolCalls {
			fmt.Fprintf(&b, "%s called %s(%s)\n", m.Role, tc.Name, clipText(string(tc.Input), 200))
		}
		for _, tr := range m.ToolResults {
			status := "ok"
			if tr.IsError {
				status = "error"
			}
			fmt.Fprintf(&b, "tool result (%s): %s\n", status, clipText(tr.Content, 300))
		}
	}

	prompt := "Summarize this conversation so far in a concise paragraph. Preserve decisions, open tasks, file paths, and any values that later steps depend on. Reply with only the summary.\n\n" + b.String()

	chunks, err := c.provider.Complete(ctx, &CompletionRequest{
		Model:     c.config.SummaryModel,
		Messages:  []CompletionMessage{{Role: "user", Content: prompt}},
		MaxTokens: compactionSummaryMaxTokens,
	})
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			return "", chunk.Error
		}
		out.WriteString(chunk.Text)
	}
	return out.String(), nil
}
