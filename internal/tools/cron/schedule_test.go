package cron

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/loomrun/loom/internal/tasks"
)

func TestScheduleOneShot(t *testing.T) {
	store := tasks.NewMemoryStore()
	tool := NewScheduleTool(store)

	fireAt := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	input, _ := json.Marshal(map[string]string{
		"label":       "follow up",
		"description": "continue the work in session X",
		"fire_at":     fireAt,
	})
	res, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("schedule errored: %s", res.Content)
	}
	if !strings.Contains(res.Content, "one-shot") {
		t.Errorf("content = %s", res.Content)
	}

	list, _ := store.ListTasks(context.Background(), tasks.ListTasksOptions{})
	if len(list) != 1 {
		t.Fatalf("tasks = %d", len(list))
	}
	if !list[0].IsOneShot() || !list[0].Active() {
		t.Errorf("task = %+v", list[0])
	}
}

func TestScheduleRecurring(t *testing.T) {
	store := tasks.NewMemoryStore()
	tool := NewScheduleTool(store)

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"description":"daily report","cron":"0 9 * * *"}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("schedule errored: %s", res.Content)
	}

	list, _ := store.ListTasks(context.Background(), tasks.ListTasksOptions{})
	if len(list) != 1 || list[0].IsOneShot() {
		t.Fatalf("tasks = %+v", list)
	}
	if list[0].NextRunAt.IsZero() {
		t.Error("recurring task has no next run")
	}
}

func TestScheduleValidation(t *testing.T) {
	tool := NewScheduleTool(tasks.NewMemoryStore())

	cases := []string{
		`{"description":""}`,
		`{"description":"x"}`,
		`{"description":"x","cron":"0 9 * * *","fire_at":"2099-01-01T00:00:00Z"}`,
		`{"description":"x","cron":"not a cron"}`,
		`{"description":"x","fire_at":"yesterday"}`,
		`{"description":"x","fire_at":"2001-01-01T00:00:00Z"}`,
	}
	for _, c := range cases {
		res, err := tool.Execute(context.Background(), json.RawMessage(c))
		if err != nil {
			t.Fatal(err)
		}
		if !res.IsError {
			t.Errorf("input %s should have errored", c)
		}
	}
}

func TestListAndCancel(t *testing.T) {
	store := tasks.NewMemoryStore()
	schedule := NewScheduleTool(store)
	list := NewListTool(store)
	cancel := NewCancelTool(store)

	res, _ := schedule.Execute(context.Background(), json.RawMessage(`{"label":"r","description":"tick","cron":"* * * * *"}`))
	if res.IsError {
		t.Fatal(res.Content)
	}
	all, _ := store.ListTasks(context.Background(), tasks.ListTasksOptions{})
	id := all[0].ID

	out, _ := list.Execute(context.Background(), json.RawMessage(`{}`))
	if !strings.Contains(out.Content, id) {
		t.Errorf("list missing task: %s", out.Content)
	}

	out, _ = cancel.Execute(context.Background(), json.RawMessage(`{"task_id":"`+id+`"}`))
	if out.IsError {
		t.Fatalf("cancel errored: %s", out.Content)
	}

	// Active-only listing is now empty.
	out, _ = list.Execute(context.Background(), json.RawMessage(`{}`))
	if !strings.Contains(out.Content, "No scheduled tasks") {
		t.Errorf("cancelled task still listed: %s", out.Content)
	}

	out, _ = cancel.Execute(context.Background(), json.RawMessage(`{"task_id":"ghost"}`))
	if !out.IsError {
		t.Error("cancel of unknown task should error")
	}
}
