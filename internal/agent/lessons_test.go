package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/loomrun/loom/pkg/models"
)

func msgWithCall(id, name, input string) *models.Message {
	return &models.Message{
		Role:      models.RoleAssistant,
		ToolCalls: []models.ToolCall{{ID: id, Name: name, Input: json.RawMessage(input)}},
	}
}

func msgWithResult(callID, content string, isErr bool) *models.Message {
	return &models.Message{
		Role:        models.RoleTool,
		ToolResults: []models.ToolResult{{ToolCallID: callID, Content: content, IsError: isErr}},
	}
}

func TestFindLessonCandidates(t *testing.T) {
	history := []*models.Message{
		msgWithCall("c1", "exec", `{"command":"ls /missing"}`),
		msgWithResult("c1", "no such file or directory", true),
		msgWithCall("c2", "exec", `{"command":"ls /tmp"}`),
		msgWithResult("c2", "file1 file2", false),
	}

	cands := findLessonCandidates(history)
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1", len(cands))
	}
	c := cands[0]
	if c.Tool != "exec" {
		t.Errorf("tool = %q", c.Tool)
	}
	if c.ErrorContent != "no such file or directory" {
		t.Errorf("error = %q", c.ErrorContent)
	}
	if c.SuccessInput != `{"command":"ls /tmp"}` {
		t.Errorf("success input = %q", c.SuccessInput)
	}
}

func TestFindLessonCandidatesNoPattern(t *testing.T) {
	// Success before failure is not a correction.
	history := []*models.Message{
		msgWithCall("c1", "exec", `{}`),
		msgWithResult("c1", "ok", false),
		msgWithCall("c2", "exec", `{}`),
		msgWithResult("c2", "boom", true),
	}
	if got := findLessonCandidates(history); len(got) != 0 {
		t.Errorf("got %d candidates, want 0", len(got))
	}

	// Different tools never pair up.
	history = []*models.Message{
		msgWithCall("c1", "exec", `{}`),
		msgWithResult("c1", "boom", true),
		msgWithCall("c2", "file_read", `{}`),
		msgWithResult("c2", "ok", false),
	}
	if got := findLessonCandidates(history); len(got) != 0 {
		t.Errorf("cross-tool pairing: got %d candidates, want 0", len(got))
	}
}

func TestLessonKeyStable(t *testing.T) {
	k1 := lessonKey("exec", "No such file or directory: /missing")
	k2 := lessonKey("exec", "No such file or directory: /missing")
	if k1 != k2 {
		t.Errorf("key not stable: %q vs %q", k1, k2)
	}
	if k1 == "exec_" || k1 == "exec_error" {
		t.Errorf("key lost the fingerprint: %q", k1)
	}
	for _, r := range k1 {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_') {
			t.Errorf("key contains %q", r)
		}
	}
}

func TestMaybeExtractLessonsStoresFallback(t *testing.T) {
	history := []*models.Message{
		msgWithCall("c1", "http_fetch", `{"url":"http:/bad"}`),
		msgWithResult("c1", "invalid URL", true),
		msgWithCall("c2", "http_fetch", `{"url":"http://ok"}`),
		msgWithResult("c2", "200 OK", false),
	}

	stored := map[string]string{}
	MaybeExtractLessons(context.Background(), nil, "", history, LessonSinkFunc(func(key, value string) {
		stored[key] = value
	}))

	if len(stored) != 1 {
		t.Fatalf("stored %d lessons, want 1", len(stored))
	}
	for k, v := range stored {
		if v == "" {
			t.Errorf("empty lesson for %s", k)
		}
	}
}
