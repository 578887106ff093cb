package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loomrun/loom/internal/agent"
	"github.com/loomrun/loom/internal/tasks"
)

// ScheduleTool creates recurring or one-shot scheduled tasks.
type ScheduleTool struct {
	store tasks.Store
}

// NewScheduleTool creates the cron_schedule tool.
func NewScheduleTool(store tasks.Store) *ScheduleTool {
	return &ScheduleTool{store: store}
}

func (t *ScheduleTool) Name() string { return "cron_schedule" }

func (t *ScheduleTool) Description() string {
	return "Schedule a task: a cron expression for recurring work, or fire_at (RFC3339) for a one-shot. The description is processed as a prompt when the task fires. One-shot tasks deactivate after firing."
}

func (t *ScheduleTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"label": {"type": "string", "description": "Short human-readable name"},
			"description": {"type": "string", "description": "The prompt to run when the task fires"},
			"cron": {"type": "string", "description": "Cron expression for recurring tasks (e.g. '0 9 * * *')"},
			"fire_at": {"type": "string", "description": "RFC3339 time for a one-shot task"},
			"session_id": {"type": "string", "description": "Run in this session instead of a fresh one"}
		},
		"required": ["description"]
	}`)
}

// IsMutating reports that scheduling creates durable state.
func (t *ScheduleTool) IsMutating() bool { return true }

// RiskLevel reflects that a scheduled task later acts autonomously.
func (t *ScheduleTool) RiskLevel() int { return 4 }

func (t *ScheduleTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Label       string `json:"label"`
		Description string `json:"description"`
		Cron        string `json:"cron"`
		FireAt      string `json:"fire_at"`
		SessionID   string `json:"session_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: "invalid input: " + err.Error(), IsError: true}, nil
	}
	if strings.TrimSpace(input.Description) == "" {
		return &agent.ToolResult{Content: "description is required", IsError: true}, nil
	}
	if (input.Cron == "") == (input.FireAt == "") {
		return &agent.ToolResult{Content: "exactly one of cron or fire_at is required", IsError: true}, nil
	}

	now := time.Now().UTC()
	task := &tasks.ScheduledTask{
		ID:          uuid.NewString(),
		Name:        input.Label,
		Description: input.Description,
		Prompt:      input.Description,
		Status:      tasks.TaskStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
		Config:      tasks.TaskConfig{SessionID: input.SessionID},
	}

	if input.FireAt != "" {
		fireAt, err := time.Parse(time.RFC3339, input.FireAt)
		if err != nil {
			return &agent.ToolResult{Content: "fire_at must be RFC3339: " + err.Error(), IsError: true}, nil
		}
		if fireAt.Before(now) {
			return &agent.ToolResult{Content: "fire_at is in the past", IsError: true}, nil
		}
		task.Schedule = "@at " + fireAt.Format(time.RFC3339)
		task.NextRunAt = fireAt
	} else {
		next, err := tasks.NextRun(input.Cron, "", now)
		if err != nil {
			return &agent.ToolResult{Content: "invalid cron expression: " + err.Error(), IsError: true}, nil
		}
		task.Schedule = input.Cron
		task.NextRunAt = next
	}

	if err := t.store.CreateTask(ctx, task); err != nil {
		return &agent.ToolResult{Content: "failed to create task: " + err.Error(), IsError: true}, nil
	}

	kind := "recurring"
	if task.IsOneShot() {
		kind = "one-shot"
	}
	return &agent.ToolResult{
		Content: fmt.Sprintf("Scheduled %s task %s; first fire at %s.", kind, task.ID, task.NextRunAt.Format(time.RFC3339)),
	}, nil
}

// ListTool lists scheduled tasks.
type ListTool struct {
	store tasks.Store
}

// NewListTool creates the cron_list tool.
func NewListTool(store tasks.Store) *ListTool {
	return &ListTool{store: store}
}

func (t *ListTool) Name() string { return "cron_list" }

func (t *ListTool) Description() string {
	return "List scheduled tasks with their schedules, next fire times, and fire counts."
}

func (t *ListTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"all": {"type": "boolean", "description": "Include inactive tasks"}
		}
	}`)
}

func (t *ListTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		All bool `json:"all"`
	}
	_ = json.Unmarshal(params, &input)

	opts := tasks.ListTasksOptions{}
	if !input.All {
		active := tasks.TaskStatusActive
		opts.Status = &active
	}
	list, err := t.store.ListTasks(ctx, opts)
	if err != nil {
		return &agent.ToolResult{Content: "failed to list tasks: " + err.Error(), IsError: true}, nil
	}
	if len(list) == 0 {
		return &agent.ToolResult{Content: "No scheduled tasks."}, nil
	}

	var b strings.Builder
	for _, task := range list {
		label := task.Name
		if label == "" {
			label = "(unlabeled)"
		}
		fmt.Fprintf(&b, "- %s %s [%s] %s — next %s, fired %d times\n",
			task.ID, label, task.Schedule, task.Status,
			task.NextRunAt.Format(time.RFC3339), task.FireCount)
	}
	return &agent.ToolResult{Content: strings.TrimRight(b.String(), "\n")}, nil
}

// CancelTool deactivates a scheduled task.
type CancelTool struct {
	store tasks.Store
}

// NewCancelTool creates the cron_cancel tool.
func NewCancelTool(store tasks.Store) *CancelTool {
	return &CancelTool{store: store}
}

func (t *CancelTool) Name() string { return "cron_cancel" }

func (t *CancelTool) Description() string {
	return "Cancel a scheduled task by id. The task stops firing but its history is kept."
}

func (t *CancelTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task_id": {"type": "string"}
		},
		"required": ["task_id"]
	}`)
}

// IsMutating reports that cancellation changes durable state.
func (t *CancelTool) IsMutating() bool { return true }

// RiskLevel is low.
func (t *CancelTool) RiskLevel() int { return 1 }

func (t *CancelTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: "invalid input: " + err.Error(), IsError: true}, nil
	}
	task, err := t.store.GetTask(ctx, input.TaskID)
	if err != nil || task == nil {
		return &agent.ToolResult{Content: "task not found: " + input.TaskID, IsError: true}, nil
	}
	task.Status = tasks.TaskStatusDisabled
	task.UpdatedAt = time.Now().UTC()
	if err := t.store.UpdateTask(ctx, task); err != nil {
		return &agent.ToolResult{Content: "failed to cancel: " + err.Error(), IsError: true}, nil
	}
	return &agent.ToolResult{Content: "Cancelled task " + task.ID + "."}, nil
}
