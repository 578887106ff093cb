package models

import "time"

// SubTaskStatus tracks a sub-task through the dependency scheduler's
// lifecycle. A task starts in WaitingForDeps if it names dependencies,
// or Pending otherwise, and only ever moves forward.
type SubTaskStatus string

const (
	// SubTaskWaitingForDeps means one or more DependsOn tasks have not
	// yet reached a terminal status.
	SubTaskWaitingForDeps SubTaskStatus = "waiting_for_deps"

	// SubTaskPending means all dependencies are satisfied and the task
	// is eligible to run once a scheduler slot frees up.
	SubTaskPending SubTaskStatus = "pending"

	// SubTaskRunning means the task's sub-agent is actively executing.
	SubTaskRunning SubTaskStatus = "running"

	// SubTaskCompleted is a terminal success state.
	SubTaskCompleted SubTaskStatus = "completed"

	// SubTaskFailed is a terminal failure state, reached either because
	// the sub-agent itself failed or because a dependency failed first.
	SubTaskFailed SubTaskStatus = "failed"
)

// Terminal reports whether the status will never change again.
func (s SubTaskStatus) Terminal() bool {
	return s == SubTaskCompleted || s == SubTaskFailed
}

// SubTask is a unit of delegated work within a sub-agent dependency DAG.
// Tasks belonging to the same goal share a GoalID; StepID links a task
// back to the specific plan step that spawned it, if any.
type SubTask struct {
	ID        string `json:"id"`
	ParentID  string `json:"parent_id"`
	SessionID string `json:"session_id"`
	GoalID    string `json:"goal_id,omitempty"`
	StepID    string `json:"step_id,omitempty"`

	// Role selects the specialist system prompt the sub-agent runs with
	// (planner, coder, reviewer, researcher, tester, devops).
	Role string `json:"role"`
	Task string `json:"task"`

	DependsOn []string      `json:"depends_on,omitempty"`
	Status    SubTaskStatus `json:"status"`

	AllowedTools []string `json:"allowed_tools,omitempty"`
	DeniedTools  []string `json:"denied_tools,omitempty"`

	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
