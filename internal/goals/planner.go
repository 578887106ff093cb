// Package goals implements the planner: durable multi-turn objectives with
// ordered steps, progress rollup, and settlement hooks for work delegated
// to sub-agents or mesh peers.
package goals

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loomrun/loom/pkg/models"
)

// ErrNotFound is returned when a goal or step id does not exist.
var ErrNotFound = errors.New("goal not found")

// PersistFunc receives every changed goal for asynchronous persistence.
type PersistFunc func(goal *models.Goal)

// Planner owns every goal in the process. It is safe for concurrent use;
// all methods hold the internal lock only for the duration of the map
// operation, never across I/O.
type Planner struct {
	mu      sync.Mutex
	goals   map[string]*models.Goal
	persist PersistFunc

	// delegated maps an external task id (sub-agent or mesh) to the
	// goal step it settles.
	delegated map[string]stepRef
}

type stepRef struct {
	goalID string
	stepID string
}

// NewPlanner creates an empty planner.
func NewPlanner() *Planner {
	return &Planner{
		goals:     make(map[string]*models.Goal),
		delegated: make(map[string]stepRef),
	}
}

// SetPersistFunc installs the async persistence hook.
func (p *Planner) SetPersistFunc(fn PersistFunc) {
	p.mu.Lock()
	p.persist = fn
	p.mu.Unlock()
}

// Load replaces the planner contents with previously persisted goals.
func (p *Planner) Load(goals []models.Goal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range goals {
		g := goals[i]
		p.goals[g.ID] = &g
	}
}

// Create adds a new active goal. Priority is clamped to 1..10.
func (p *Planner) Create(description string, priority int, parentID, sessionID string) *models.Goal {
	if priority < 1 {
		priority = 1
	}
	if priority > 10 {
		priority = 10
	}
	now := time.Now().UTC()
	g := &models.Goal{
		ID:          uuid.NewString(),
		ParentID:    parentID,
		SessionID:   sessionID,
		Description: description,
		Priority:    priority,
		Status:      models.GoalActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	p.mu.Lock()
	p.goals[g.ID] = g
	p.mu.Unlock()
	p.persistAsync(g)
	cp := *g
	return &cp
}

// Get returns a copy of the goal, or ErrNotFound.
func (p *Planner) Get(id string) (*models.Goal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.goals[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneGoal(g)
	return &cp, nil
}

// Active returns every active goal, highest priority first.
func (p *Planner) Active() []models.Goal {
	p.mu.Lock()
	out := make([]models.Goal, 0, len(p.goals))
	for _, g := range p.goals {
		if g.Status == models.GoalActive {
			out = append(out, cloneGoal(g))
		}
	}
	p.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// All returns every goal.
func (p *Planner) All() []models.Goal {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Goal, 0, len(p.goals))
	for _, g := range p.goals {
		out = append(out, cloneGoal(g))
	}
	return out
}

// SetStatus moves a goal to the given status, recording an optional
// retrospective when the status is terminal.
func (p *Planner) SetStatus(id string, status models.GoalStatus, retrospective string) error {
	p.mu.Lock()
	g, ok := p.goals[id]
	if !ok {
		p.mu.Unlock()
		return ErrNotFound
	}
	g.Status = status
	if retrospective != "" {
		g.Retrospective = retrospective
	}
	g.UpdatedAt = time.Now().UTC()
	cp := cloneGoal(g)
	p.mu.Unlock()
	p.persistAsync(&cp)
	return nil
}

// AddStep appends a pending step to the goal's plan and returns its id.
func (p *Planner) AddStep(goalID, description string) (string, error) {
	now := time.Now().UTC()
	step := models.Step{
		ID:          uuid.NewString(),
		Description: description,
		Status:      models.StepPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	p.mu.Lock()
	g, ok := p.goals[goalID]
	if !ok {
		p.mu.Unlock()
		return "", ErrNotFound
	}
	g.Steps = append(g.Steps, step)
	g.UpdatedAt = now
	cp := cloneGoal(g)
	p.mu.Unlock()
	p.persistAsync(&cp)
	return step.ID, nil
}

// UpdateStep sets a step's status (and result for terminal statuses),
// then rolls the goal status up: all steps Completed → goal Completed;
// any Failed with none InProgress → goal Failed.
func (p *Planner) UpdateStep(goalID, stepID string, status models.StepStatus, result string) error {
	p.mu.Lock()
	g, ok := p.goals[goalID]
	if !ok {
		p.mu.Unlock()
		return ErrNotFound
	}
	found := false
	now := time.Now().UTC()
	for i := range g.Steps {
		if g.Steps[i].ID != stepID {
			continue
		}
		g.Steps[i].Status = status
		if result != "" {
			g.Steps[i].Result = result
		}
		g.Steps[i].UpdatedAt = now
		found = true
		break
	}
	if !found {
		p.mu.Unlock()
		return ErrNotFound
	}
	rollupLocked(g, now)
	cp := cloneGoal(g)
	p.mu.Unlock()
	p.persistAsync(&cp)
	return nil
}

// rollupLocked applies the terminal-status invariant. Caller holds the lock.
func rollupLocked(g *models.Goal, now time.Time) {
	if g.Status != models.GoalActive || !g.StepsSettled() {
		g.UpdatedAt = now
		return
	}
	if g.AnyStepFailed() {
		g.Status = models.GoalFailed
	} else {
		g.Status = models.GoalCompleted
	}
	g.UpdatedAt = now
}

// TrackDelegated links an external task id to a goal step so a later
// result from a sub-agent or mesh peer settles the step.
func (p *Planner) TrackDelegated(taskID, goalID, stepID string) {
	p.mu.Lock()
	p.delegated[taskID] = stepRef{goalID: goalID, stepID: stepID}
	p.mu.Unlock()
}

// CompleteDelegated settles the step linked to taskID as Completed with
// the given result. Unknown task ids are ignored.
func (p *Planner) CompleteDelegated(taskID, result string) {
	p.settleDelegated(taskID, models.StepCompleted, result)
}

// FailDelegated settles the step linked to taskID as Failed.
func (p *Planner) FailDelegated(taskID, errMsg string) {
	p.settleDelegated(taskID, models.StepFailed, errMsg)
}

func (p *Planner) settleDelegated(taskID string, status models.StepStatus, result string) {
	p.mu.Lock()
	ref, ok := p.delegated[taskID]
	if ok {
		delete(p.delegated, taskID)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	_ = p.UpdateStep(ref.goalID, ref.stepID, status, result)
}

func (p *Planner) persistAsync(g *models.Goal) {
	p.mu.Lock()
	persist := p.persist
	p.mu.Unlock()
	if persist != nil {
		go persist(g)
	}
}

func cloneGoal(g *models.Goal) models.Goal {
	cp := *g
	cp.Steps = append([]models.Step(nil), g.Steps...)
	return cp
}
