package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/loomrun/loom/pkg/models"
)

// GoalStore persists planner goals, steps included.
type GoalStore interface {
	UpsertGoal(ctx context.Context, goal *models.Goal) error
	LoadGoals(ctx context.Context) ([]models.Goal, error)
}

type cockroachGoalStore struct {
	db *sql.DB
}

// NewCockroachGoalStore creates a SQL-backed goal store. Steps are stored
// as a JSON column: the planner always writes whole goals, so row-per-step
// granularity buys nothing.
func NewCockroachGoalStore(db *sql.DB) GoalStore {
	return &cockroachGoalStore{db: db}
}

func (s *cockroachGoalStore) UpsertGoal(ctx context.Context, goal *models.Goal) error {
	if goal == nil || goal.ID == "" {
		return fmt.Errorf("goal id is required")
	}
	steps, err := json.Marshal(goal.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO goals (id, parent_id, session_id, description, priority, status, steps, retrospective, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 ON CONFLICT (id) DO UPDATE SET
		   description = excluded.description,
		   priority = excluded.priority,
		   status = excluded.status,
		   steps = excluded.steps,
		   retrospective = excluded.retrospective,
		   updated_at = excluded.updated_at`,
		goal.ID, goal.ParentID, goal.SessionID, goal.Description, goal.Priority,
		string(goal.Status), steps, goal.Retrospective, goal.CreatedAt, goal.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert goal: %w", err)
	}
	return nil
}

func (s *cockroachGoalStore) LoadGoals(ctx context.Context) ([]models.Goal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, parent_id, session_id, description, priority, status, steps, retrospective, created_at, updated_at
		 FROM goals ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("load goals: %w", err)
	}
	defer rows.Close()

	var out []models.Goal
	for rows.Next() {
		var g models.Goal
		var status string
		var steps []byte
		if err := rows.Scan(&g.ID, &g.ParentID, &g.SessionID, &g.Description, &g.Priority,
			&status, &steps, &g.Retrospective, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		g.Status = models.GoalStatus(status)
		if len(steps) > 0 {
			if err := json.Unmarshal(steps, &g.Steps); err != nil {
				return nil, fmt.Errorf("unmarshal steps: %w", err)
			}
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

type memoryGoalStore struct {
	mu    sync.RWMutex
	goals map[string]models.Goal
}

// NewMemoryGoalStore creates an in-process GoalStore.
func NewMemoryGoalStore() GoalStore {
	return &memoryGoalStore{goals: make(map[string]models.Goal)}
}

func (s *memoryGoalStore) UpsertGoal(_ context.Context, goal *models.Goal) error {
	if goal == nil || goal.ID == "" {
		return fmt.Errorf("goal id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *goal
	cp.Steps = append([]models.Step(nil), goal.Steps...)
	s.goals[goal.ID] = cp
	return nil
}

func (s *memoryGoalStore) LoadGoals(_ context.Context) ([]models.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Goal, 0, len(s.goals))
	for _, g := range s.goals {
		out = append(out, g)
	}
	return out, nil
}
