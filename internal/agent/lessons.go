package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/loomrun/loom/pkg/models"
)

// lessonScanWindow bounds how many trailing messages of a session are
// scanned for error→correction→success patterns after a turn completes.
const lessonScanWindow = 20

// lessonMaxLen truncates the stored lesson value; one sentence is the
// target and anything longer is almost always prompt bloat.
const lessonMaxLen = 300

// LessonSink stores a derived lesson under the learned_lessons category.
// The semantic fact store satisfies this through a thin adapter.
type LessonSink interface {
	StoreLesson(key, value string)
}

// LessonSinkFunc adapts a function to the LessonSink interface.
type LessonSinkFunc func(key, value string)

// StoreLesson calls the wrapped function.
func (f LessonSinkFunc) StoreLesson(key, value string) { f(key, value) }

// lessonCandidate is one error→success pair found in a session transcript:
// a tool call that failed and a later call of the same tool that succeeded.
type lessonCandidate struct {
	Tool         string
	ErrorContent string
	SuccessInput string
}

// findLessonCandidates scans the trailing window of messages for a tool
// result with IsError set followed by a later non-error result of the same
// tool. The tool name is resolved through the assistant messages that
// carried the original calls.
func findLessonCandidates(history []*models.Message) []lessonCandidate {
	if len(history) > lessonScanWindow {
		history = history[len(history)-lessonScanWindow:]
	}

	// tool_call_id → (name, input) from assistant messages
	callNames := make(map[string]string)
	callInputs := make(map[string]string)
	for _, m := range history {
		for _, tc := range m.ToolCalls {
			callNames[tc.ID] = tc.Name
			callInputs[tc.ID] = string(tc.Input)
		}
	}

	type failure struct {
		content string
		index   int
	}
	firstFailure := make(map[string]failure)
	var out []lessonCandidate
	resolved := make(map[string]bool)

	for i, m := range history {
		for _, tr := range m.ToolResults {
			name := callNames[tr.ToolCallID]
			if name == "" {
				continue
			}
			if tr.IsError {
				if _, seen := firstFailure[name]; !seen {
					firstFailure[name] = failure{content: tr.Content, index: i}
				}
				continue
			}
			fail, failed := firstFailure[name]
			if !failed || fail.index >= i || resolved[name] {
				continue
			}
			resolved[name] = true
			out = append(out, lessonCandidate{
				Tool:         name,
				ErrorContent: fail.content,
				SuccessInput: callInputs[tr.ToolCallID],
			})
		}
	}
	return out
}

// lessonKey derives the stable fact key for a candidate: the tool name
// plus a fingerprint of the error text, so re-learning the same failure
// overwrites rather than accumulates.
func lessonKey(tool, errContent string) string {
	fp := strings.ToLower(errContent)
	if len(fp) > 40 {
		fp = fp[:40]
	}
	var b strings.Builder
	for _, r := range fp {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	key := strings.Trim(b.String(), "_")
	for strings.Contains(key, "__") {
		key = strings.ReplaceAll(key, "__", "_")
	}
	if key == "" {
		key = "error"
	}
	return tool + "_" + key
}

// MaybeExtractLessons inspects the session transcript after a successful
// turn and, for every error→success pattern it finds, asks the provider
// for a one-sentence lesson and stores it under learned_lessons. The
// provider call is optional: with a nil provider a mechanical lesson is
// stored instead, so learning degrades rather than disappears when no
// secondary model is available.
func MaybeExtractLessons(ctx context.Context, provider LLMProvider, model string, history []*models.Message, sink LessonSink) {
	if sink == nil {
		return
	}
	for _, cand := range findLessonCandidates(history) {
		lesson := ""
		if provider != nil {
			lesson = summarizeLesson(ctx, provider, model, cand)
		}
		if lesson == "" {
			lesson = fmt.Sprintf("%s failed with %q but succeeded on retry; check the failing input before repeating it.",
				cand.Tool, clipText(cand.ErrorContent, 120))
		}
		sink.StoreLesson(lessonKey(cand.Tool, cand.ErrorContent), clipText(lesson, lessonMaxLen))
	}
}

func summarizeLesson(ctx context.Context, provider LLMProvider, model string, cand lessonCandidate) string {
	prompt := fmt.Sprintf(
		"A tool call failed and a later attempt with different input succeeded.\n"+
			"Tool: %s\nError: %s\nWorking input: %s\n\n"+
			"State, in one sentence, the reusable lesson that would avoid the error next time. Reply with only the sentence.",
		cand.Tool, clipText(cand.ErrorContent, 400), clipText(cand.SuccessInput, 400))

	chunks, err := provider.Complete(ctx, &CompletionRequest{
		Model:     model,
		Messages:  []CompletionMessage{{Role: "user", Content: prompt}},
		MaxTokens: 120,
	})
	if err != nil {
		return ""
	}
	var b strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			return ""
		}
		b.WriteString(chunk.Text)
	}
	return strings.TrimSpace(b.String())
}

func clipText(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
