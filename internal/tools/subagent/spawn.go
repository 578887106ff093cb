// Package subagent implements sub-agent delegation: spawning specialist
// workers as a dependency DAG, waiting on them, and inspecting status.
package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/loomrun/loom/internal/agent"
	"github.com/loomrun/loom/pkg/models"
)

// SpawnTool schedules a sub-agent task, optionally gated on dependencies.
type SpawnTool struct {
	scheduler *Scheduler
}

// NewSpawnTool creates the sub_agent_spawn tool.
func NewSpawnTool(scheduler *Scheduler) *SpawnTool {
	return &SpawnTool{scheduler: scheduler}
}

func (t *SpawnTool) Name() string { return "sub_agent_spawn" }

func (t *SpawnTool) Description() string {
	return "Spawn a specialist sub-agent (planner, coder, reviewer, researcher, tester, devops) to work on a task. depends_on delays the task until those sub-agents complete and feeds it their results. Returns the task id."
}

func (t *SpawnTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"role": {"type": "string", "description": "Specialist role: planner, coder, reviewer, researcher, tester, devops"},
			"task": {"type": "string", "description": "What the sub-agent should do"},
			"context_summary": {"type": "string", "description": "Background the sub-agent needs from this conversation"},
			"depends_on": {"type": "array", "items": {"type": "string"}, "description": "Task ids that must complete first"},
			"goal_id": {"type": "string", "description": "Goal this task works toward"},
			"step_id": {"type": "string", "description": "Goal step this task settles on completion"},
			"allowed_tools": {"type": "array", "items": {"type": "string"}},
			"denied_tools": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["task"]
	}`)
}

// IsMutating reports that spawning runs an autonomous worker.
func (t *SpawnTool) IsMutating() bool { return true }

// RiskLevel reflects that the sub-agent inherits the full tool surface.
func (t *SpawnTool) RiskLevel() int { return 5 }

func (t *SpawnTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Role           string   `json:"role"`
		Task           string   `json:"task"`
		ContextSummary string   `json:"context_summary"`
		DependsOn      []string `json:"depends_on"`
		GoalID         string   `json:"goal_id"`
		StepID         string   `json:"step_id"`
		AllowedTools   []string `json:"allowed_tools"`
		DeniedTools    []string `json:"denied_tools"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: "invalid input: " + err.Error(), IsError: true}, nil
	}

	parentSession := ""
	if session := agent.SessionFromContext(ctx); session != nil {
		parentSession = session.ID
	}

	task, err := t.scheduler.Spawn(SpawnSpec{
		Role:            input.Role,
		Task:            input.Task,
		ParentSessionID: parentSession,
		ContextSummary:  input.ContextSummary,
		DependsOn:       input.DependsOn,
		GoalID:          input.GoalID,
		StepID:          input.StepID,
		AllowedTools:    input.AllowedTools,
		DeniedTools:     input.DeniedTools,
	})
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}

	return &agent.ToolResult{
		Content: fmt.Sprintf("Spawned %s sub-agent %s (status: %s). Use sub_agent_wait or sub_agent_status with this id.",
			roleLabel(task.Role), task.ID, task.Status),
	}, nil
}

func roleLabel(role string) string {
	if strings.TrimSpace(role) == "" {
		return "worker"
	}
	return role
}

// WaitTool blocks until listed sub-agent tasks settle.
type WaitTool struct {
	scheduler *Scheduler
}

// NewWaitTool creates the sub_agent_wait tool.
func NewWaitTool(scheduler *Scheduler) *WaitTool {
	return &WaitTool{scheduler: scheduler}
}

func (t *WaitTool) Name() string { return "sub_agent_wait" }

func (t *WaitTool) Description() string {
	return "Wait until every listed sub-agent task completes or fails, then return their results. timeout_secs of 0 waits without limit."
}

func (t *WaitTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task_ids": {"type": "array", "items": {"type": "string"}},
			"timeout_secs": {"type": "integer", "description": "0 means no limit"}
		},
		"required": ["task_ids"]
	}`)
}

func (t *WaitTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		TaskIDs     []string `json:"task_ids"`
		TimeoutSecs int      `json:"timeout_secs"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: "invalid input: " + err.Error(), IsError: true}, nil
	}
	if len(input.TaskIDs) == 0 {
		return &agent.ToolResult{Content: "task_ids is required", IsError: true}, nil
	}

	snap, settled := t.scheduler.Wait(ctx, input.TaskIDs, time.Duration(input.TimeoutSecs)*time.Second)
	out := formatTasks(snap)
	if !settled {
		return &agent.ToolResult{Content: "timed out waiting for sub-agents:\n" + out, IsError: true}, nil
	}
	return &agent.ToolResult{Content: out}, nil
}

// StatusTool is a non-blocking snapshot of sub-agent tasks.
type StatusTool struct {
	scheduler *Scheduler
}

// NewStatusTool creates the sub_agent_status tool.
func NewStatusTool(scheduler *Scheduler) *StatusTool {
	return &StatusTool{scheduler: scheduler}
}

func (t *StatusTool) Name() string { return "sub_agent_status" }

func (t *StatusTool) Description() string {
	return "Check sub-agent task status without blocking. With no task_ids, reports every task."
}

func (t *StatusTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task_ids": {"type": "array", "items": {"type": "string"}}
		}
	}`)
}

func (t *StatusTool) Execute(_ context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		TaskIDs []string `json:"task_ids"`
	}
	_ = json.Unmarshal(params, &input)

	snap := t.scheduler.Snapshot(input.TaskIDs)
	if len(snap) == 0 {
		return &agent.ToolResult{Content: "No sub-agent tasks."}, nil
	}
	return &agent.ToolResult{Content: formatTasks(snap)}, nil
}

func formatTasks(tasks []models.SubTask) string {
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	var b strings.Builder
	for _, t := range tasks {
		fmt.Fprintf(&b, "- %s [%s] %s: %s", t.ID, roleLabel(t.Role), t.Status, truncate(t.Task, 80))
		switch t.Status {
		case models.SubTaskCompleted:
			fmt.Fprintf(&b, "\n  result: %s", truncate(t.Result, 400))
		case models.SubTaskFailed:
			fmt.Fprintf(&b, "\n  error: %s", truncate(t.Error, 400))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "…"
}
