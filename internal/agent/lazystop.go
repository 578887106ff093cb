package agent

import (
	"encoding/json"
	"strings"

	"github.com/loomrun/loom/pkg/models"
)

// lazyStopMinChars is the minimum response length considered for the
// lazy-stop heuristic; shorter responses are assumed to be genuine answers
// rather than scaffolding left for the user to finish.
const lazyStopMinChars = 100

// lazyStopEarlyIterationWindow bounds how many iterations count as "early"
// for the scaffolding-only early-stop rule.
const lazyStopEarlyIterationWindow = 5

// lazyStopLateIterationThreshold is the iteration count at which the model
// is considered to have already done substantial work, raising the
// deferral-phrase bar from 2 to 3.
const lazyStopLateIterationThreshold = 8

// strongCompletionSignals are phrases that indicate the model genuinely
// finished the task; their presence always overrides the deferral count.
var strongCompletionSignals = []string{
	"all files created",
	"all files have been created",
	"task complete",
	"task is complete",
	"all tests pass",
	"all tests passing",
	"successfully completed",
	"implementation is complete",
	"fully implemented",
	"done and verified",
}

// deferralPhrases are hedges that suggest the model described work instead
// of doing it, leaving follow-up steps to the user.
var deferralPhrases = []string{
	"you can customize",
	"you can configure",
	"feel free to",
	"you'll need to",
	"you will need to",
	"you would need to",
	"make sure to",
	"don't forget to",
	"remember to",
	"you should",
	"next steps",
	"to complete this",
	"once you",
	"before running",
}

// scaffoldingPhrases indicate the model merely set something up rather than
// finishing the underlying task.
var scaffoldingPhrases = []string{
	"is now set up",
	"is now configured",
	"has been scaffolded",
	"basic structure is in place",
}

// IsLazyStop implements the lazy-stop heuristic: it decides whether an
// assistant turn that emitted no tool calls actually finished the task, or
// merely described what remains to be done. It is a guard against
// premature completion, not a ground truth, and must never fire when the
// caller has determined the previous turn just launched a long-running
// server process (see ServerJustStarted).
func IsLazyStop(text string, iteration int) bool {
	if len(text) < lazyStopMinChars {
		return false
	}

	lower := strings.ToLower(text)

	for _, signal := range strongCompletionSignals {
		if strings.Contains(lower, signal) {
			return false
		}
	}

	deferralCount := countOccurrences(lower, deferralPhrases)

	if iteration <= lazyStopEarlyIterationWindow {
		hasScaffold := containsAny(lower, scaffoldingPhrases)
		if hasScaffold && deferralCount >= 1 {
			return true
		}
	}

	threshold := 2
	if iteration >= lazyStopLateIterationThreshold {
		threshold = 3
	}

	return deferralCount >= threshold
}

// ServerJustStarted reports whether the lazy-stop heuristic should be
// suppressed because a background or dev-server process was launched this
// turn and the assistant's text references it starting.
func ServerJustStarted(serverProcessLaunched bool, text string) bool {
	if !serverProcessLaunched {
		return false
	}
	lower := strings.ToLower(text)
	return strings.Contains(lower, "server") && (strings.Contains(lower, "start") || strings.Contains(lower, "running") || strings.Contains(lower, "listening"))
}

func countOccurrences(haystack string, phrases []string) int {
	count := 0
	for _, phrase := range phrases {
		count += strings.Count(haystack, phrase)
	}
	return count
}

func containsAny(haystack string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(haystack, phrase) {
			return true
		}
	}
	return false
}

// backgroundExecRequested reports whether any tool call in the batch is
// an exec call with background:true, the signal that a long-running
// server or dev process was just launched. The lazy-stop guard stands
// down for the following iteration when it fires.
func backgroundExecRequested(toolCalls []models.ToolCall) bool {
	for _, tc := range toolCalls {
		if tc.Name != "exec" {
			continue
		}
		var input struct {
			Background bool `json:"background"`
		}
		if err := json.Unmarshal(tc.Input, &input); err == nil && input.Background {
			return true
		}
	}
	return false
}
