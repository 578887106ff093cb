// Package goals provides the goal planner tools: creating goals, listing
// them, updating status, and managing plan steps.
package goals

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/loomrun/loom/internal/agent"
	"github.com/loomrun/loom/internal/goals"
	"github.com/loomrun/loom/pkg/models"
)

// CreateTool creates a new goal, optionally with an initial plan.
type CreateTool struct {
	planner *goals.Planner
}

// NewCreateTool creates the goal_create tool.
func NewCreateTool(planner *goals.Planner) *CreateTool {
	return &CreateTool{planner: planner}
}

func (t *CreateTool) Name() string { return "goal_create" }

func (t *CreateTool) Description() string {
	return "Create a long-term goal with a priority (1 = most important, 10 = least). Optionally provide initial plan steps. Goals persist across sessions and appear in your context until completed."
}

func (t *CreateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"description": {"type": "string", "description": "What the goal is"},
			"priority": {"type": "integer", "description": "1 (highest) to 10 (lowest), default 5"},
			"steps": {"type": "array", "items": {"type": "string"}, "description": "Optional ordered plan steps"},
			"parent_id": {"type": "string", "description": "Optional parent goal id"}
		},
		"required": ["description"]
	}`)
}

// IsMutating reports that goal creation changes durable state.
func (t *CreateTool) IsMutating() bool { return true }

// RiskLevel is low: goals only shape future prompts.
func (t *CreateTool) RiskLevel() int { return 1 }

func (t *CreateTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Description string   `json:"description"`
		Priority    int      `json:"priority"`
		Steps       []string `json:"steps"`
		ParentID    string   `json:"parent_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: "invalid input: " + err.Error(), IsError: true}, nil
	}
	if strings.TrimSpace(input.Description) == "" {
		return &agent.ToolResult{Content: "description is required", IsError: true}, nil
	}
	if input.Priority == 0 {
		input.Priority = 5
	}

	sessionID := ""
	if session := agent.SessionFromContext(ctx); session != nil {
		sessionID = session.ID
	}
	g := t.planner.Create(input.Description, input.Priority, input.ParentID, sessionID)
	for _, desc := range input.Steps {
		if strings.TrimSpace(desc) == "" {
			continue
		}
		_, _ = t.planner.AddStep(g.ID, desc)
	}

	return &agent.ToolResult{
		Content: fmt.Sprintf("Created goal %s (priority %d) with %d steps.", g.ID, g.Priority, len(input.Steps)),
	}, nil
}

// ListTool lists goals, optionally filtered to active only.
type ListTool struct {
	planner *goals.Planner
}

// NewListTool creates the goal_list tool.
func NewListTool(planner *goals.Planner) *ListTool {
	return &ListTool{planner: planner}
}

func (t *ListTool) Name() string { return "goal_list" }

func (t *ListTool) Description() string {
	return "List goals with their status, priority, progress, and steps. By default only active goals are shown."
}

func (t *ListTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"all": {"type": "boolean", "description": "Include completed, failed, paused, and cancelled goals"}
		}
	}`)
}

func (t *ListTool) Execute(_ context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		All bool `json:"all"`
	}
	_ = json.Unmarshal(params, &input)

	var list []models.Goal
	if input.All {
		list = t.planner.All()
	} else {
		list = t.planner.Active()
	}
	if len(list) == 0 {
		return &agent.ToolResult{Content: "No goals."}, nil
	}

	var b strings.Builder
	for _, g := range list {
		fmt.Fprintf(&b, "- [%s] %s (priority %d, %s, %.0f%%)\n", g.ID, g.Description, g.Priority, g.Status, g.Progress()*100)
		for _, s := range g.Steps {
			fmt.Fprintf(&b, "    - [%s] %s (%s)\n", s.ID, s.Description, s.Status)
		}
	}
	return &agent.ToolResult{Content: strings.TrimRight(b.String(), "\n")}, nil
}

// UpdateTool changes a goal's status or adds steps.
type UpdateTool struct {
	planner *goals.Planner
}

// NewUpdateTool creates the goal_update tool.
func NewUpdateTool(planner *goals.Planner) *UpdateTool {
	return &UpdateTool{planner: planner}
}

func (t *UpdateTool) Name() string { return "goal_update" }

func (t *UpdateTool) Description() string {
	return "Update a goal: change its status (active, completed, failed, paused, cancelled), record a retrospective, or append plan steps."
}

func (t *UpdateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"goal_id": {"type": "string"},
			"status": {"type": "string", "enum": ["active", "completed", "failed", "paused", "cancelled"]},
			"retrospective": {"type": "string", "description": "Closing note when finishing a goal"},
			"add_steps": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["goal_id"]
	}`)
}

// IsMutating reports that goal updates change durable state.
func (t *UpdateTool) IsMutating() bool { return true }

// RiskLevel is low.
func (t *UpdateTool) RiskLevel() int { return 1 }

func (t *UpdateTool) Execute(_ context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		GoalID        string   `json:"goal_id"`
		Status        string   `json:"status"`
		Retrospective string   `json:"retrospective"`
		AddSteps      []string `json:"add_steps"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: "invalid input: " + err.Error(), IsError: true}, nil
	}

	if input.Status != "" {
		if err := t.planner.SetStatus(input.GoalID, models.GoalStatus(input.Status), input.Retrospective); err != nil {
			return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
		}
	}
	for _, desc := range input.AddSteps {
		if strings.TrimSpace(desc) == "" {
			continue
		}
		if _, err := t.planner.AddStep(input.GoalID, desc); err != nil {
			return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
		}
	}
	g, err := t.planner.Get(input.GoalID)
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &agent.ToolResult{
		Content: fmt.Sprintf("Goal %s is now %s (%.0f%% complete, %d steps).", g.ID, g.Status, g.Progress()*100, len(g.Steps)),
	}, nil
}

// StepTool updates one step of a goal's plan.
type StepTool struct {
	planner *goals.Planner
}

// NewStepTool creates the goal_step tool.
func NewStepTool(planner *goals.Planner) *StepTool {
	return &StepTool{planner: planner}
}

func (t *StepTool) Name() string { return "goal_step" }

func (t *StepTool) Description() string {
	return "Mark a goal step as in_progress, completed, or failed, optionally recording its result. Completing the last step completes the goal."
}

func (t *StepTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"goal_id": {"type": "string"},
			"step_id": {"type": "string"},
			"status": {"type": "string", "enum": ["pending", "in_progress", "completed", "failed"]},
			"result": {"type": "string"}
		},
		"required": ["goal_id", "step_id", "status"]
	}`)
}

// IsMutating reports that step updates change durable state.
func (t *StepTool) IsMutating() bool { return true }

// RiskLevel is low.
func (t *StepTool) RiskLevel() int { return 1 }

func (t *StepTool) Execute(_ context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		GoalID string `json:"goal_id"`
		StepID string `json:"step_id"`
		Status string `json:"status"`
		Result string `json:"result"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: "invalid input: " + err.Error(), IsError: true}, nil
	}
	if err := t.planner.UpdateStep(input.GoalID, input.StepID, models.StepStatus(input.Status), input.Result); err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	g, err := t.planner.Get(input.GoalID)
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &agent.ToolResult{
		Content: fmt.Sprintf("Step updated; goal %s is %s at %.0f%%.", g.ID, g.Status, g.Progress()*100),
	}, nil
}
