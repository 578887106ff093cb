package models

import "time"

// StepStatus tracks an individual step of a Goal's plan.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// Terminal reports whether the step will never change status again.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed
}

// Step is one planned unit of work toward a Goal.
type Step struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
	Result      string     `json:"result,omitempty"`
	SubTaskID   string     `json:"sub_task_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// GoalStatus tracks a Goal across its lifetime.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalFailed    GoalStatus = "failed"
	GoalPaused    GoalStatus = "paused"
	GoalCancelled GoalStatus = "cancelled"
)

// Goal is a durable, multi-turn objective a session is working toward. It
// holds an ordered plan of Steps; the runtime consults the active goals
// when deciding whether to auto-resume a session after exhausting a turn
// budget, and injects them into every system prompt.
type Goal struct {
	ID        string `json:"id"`
	ParentID  string `json:"parent_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	Description string     `json:"description"`
	Priority    int        `json:"priority"` // 1 (highest) .. 10
	Status      GoalStatus `json:"status"`
	Steps       []Step     `json:"steps,omitempty"`

	// Retrospective is a closing note recorded when the goal reaches a
	// terminal status.
	Retrospective string `json:"retrospective,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Progress is the fraction of steps completed, in [0,1]. A goal without
// steps reports 0 until it is explicitly completed, then 1.
func (g *Goal) Progress() float64 {
	if len(g.Steps) == 0 {
		if g.Status == GoalCompleted {
			return 1
		}
		return 0
	}
	done := 0
	for _, s := range g.Steps {
		if s.Status == StepCompleted {
			done++
		}
	}
	return float64(done) / float64(len(g.Steps))
}

// StepsSettled reports whether every step has reached a terminal status.
func (g *Goal) StepsSettled() bool {
	if len(g.Steps) == 0 {
		return false
	}
	for _, s := range g.Steps {
		if !s.Status.Terminal() {
			return false
		}
	}
	return true
}

// AnyStepFailed reports whether at least one step failed.
func (g *Goal) AnyStepFailed() bool {
	for _, s := range g.Steps {
		if s.Status == StepFailed {
			return true
		}
	}
	return false
}
