package subagent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loomrun/loom/internal/agent"
	"github.com/loomrun/loom/internal/goals"
	"github.com/loomrun/loom/internal/tools/policy"
	"github.com/loomrun/loom/pkg/models"
)

// schedulerTick is how often the dependency watcher scans for runnable
// tasks between event-driven kicks.
const schedulerTick = 250 * time.Millisecond

// rolePrompts are the specialist framings prepended to a sub-agent's
// system prompt. Unknown roles fall back to the generic worker prompt.
var rolePrompts = map[string]string{
	"planner":    "You are a planning specialist. Break the task into concrete, ordered steps with clear success criteria. Output the plan, not an essay.",
	"coder":      "You are a software engineer. Write working code for the task, run it where possible, and report what you built.",
	"reviewer":   "You are a code reviewer. Examine the provided work critically: correctness first, then clarity. Report concrete findings.",
	"researcher": "You are a research specialist. Gather the requested information from available sources and report findings with their origins.",
	"tester":     "You are a test engineer. Exercise the work under test, probe edge cases, and report pass/fail with reproduction steps.",
	"devops":     "You are an infrastructure specialist. Handle deployment, configuration, and operational tasks; verify each change took effect.",
}

const genericRolePrompt = "You are a focused worker agent. Complete the assigned task and report the result."

// RolePrompt returns the specialist prompt for a role.
func RolePrompt(role string) string {
	if p, ok := rolePrompts[strings.ToLower(strings.TrimSpace(role))]; ok {
		return p
	}
	return genericRolePrompt
}

// ResultSink receives a completed sub-task's result for long-term memory.
type ResultSink func(task *models.SubTask)

// SpawnSpec describes one sub-task to schedule.
type SpawnSpec struct {
	Role            string
	Task            string
	ParentSessionID string
	ContextSummary  string
	DependsOn       []string
	GoalID          string
	StepID          string
	AllowedTools    []string
	DeniedTools     []string
}

// Scheduler executes sub-tasks as a dependency DAG: a task waits until
// every dependency completes, inherits their results as context, and runs
// as an independent turn in a fresh session against the shared runtime.
type Scheduler struct {
	runtime *agent.Runtime
	planner *goals.Planner
	sink    ResultSink

	mu        sync.Mutex
	tasks     map[string]*models.SubTask
	contexts  map[string]string // task id → parent context summary
	running   int
	maxActive int
	kick      chan struct{}
	stop      context.CancelFunc
	done      chan struct{}
}

// NewScheduler creates a scheduler. maxActive bounds concurrently running
// sub-agents; planner and sink may be nil.
func NewScheduler(runtime *agent.Runtime, planner *goals.Planner, sink ResultSink, maxActive int) *Scheduler {
	if maxActive <= 0 {
		maxActive = 5
	}
	return &Scheduler{
		runtime:   runtime,
		planner:   planner,
		sink:      sink,
		tasks:     make(map[string]*models.SubTask),
		contexts:  make(map[string]string),
		maxActive: maxActive,
		kick:      make(chan struct{}, 1),
	}
}

// Start launches the background watcher.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.stop = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(schedulerTick)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-s.kick:
			case <-ticker.C:
			}
			s.advance(runCtx)
		}
	}()
}

// Stop halts the watcher. Running sub-agents finish on their own.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop := s.stop
	done := s.done
	s.mu.Unlock()
	if stop != nil {
		stop()
		<-done
	}
}

// Spawn registers a sub-task. It starts in WaitingForDeps when it names
// dependencies, Pending otherwise; the watcher picks it up from there.
func (s *Scheduler) Spawn(spec SpawnSpec) (*models.SubTask, error) {
	if strings.TrimSpace(spec.Task) == "" {
		return nil, fmt.Errorf("task description is required")
	}

	status := models.SubTaskPending
	if len(spec.DependsOn) > 0 {
		status = models.SubTaskWaitingForDeps
	}

	task := &models.SubTask{
		ID:           uuid.NewString(),
		ParentID:     spec.ParentSessionID,
		SessionID:    "sub-" + uuid.NewString()[:8],
		GoalID:       spec.GoalID,
		StepID:       spec.StepID,
		Role:         spec.Role,
		Task:         spec.Task,
		DependsOn:    append([]string(nil), spec.DependsOn...),
		Status:       status,
		AllowedTools: spec.AllowedTools,
		DeniedTools:  spec.DeniedTools,
		CreatedAt:    time.Now().UTC(),
	}

	s.mu.Lock()
	// Unknown dependency ids fail fast rather than waiting forever.
	for _, dep := range task.DependsOn {
		if _, ok := s.tasks[dep]; !ok {
			s.mu.Unlock()
			return nil, fmt.Errorf("unknown dependency: %s", dep)
		}
	}
	s.tasks[task.ID] = task
	s.mu.Unlock()

	if spec.GoalID != "" && spec.StepID != "" && s.planner != nil {
		s.planner.TrackDelegated(task.ID, spec.GoalID, spec.StepID)
	}

	// Stash the parent context for the runner.
	s.setContext(task.ID, spec.ContextSummary)

	s.kickWatcher()
	cp := *task
	return &cp, nil
}

func (s *Scheduler) setContext(taskID, summary string) {
	if summary == "" {
		return
	}
	s.mu.Lock()
	s.contexts[taskID] = summary
	s.mu.Unlock()
}

func (s *Scheduler) takeContext(taskID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary := s.contexts[taskID]
	delete(s.contexts, taskID)
	return summary
}

func (s *Scheduler) kickWatcher() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// advance transitions tasks: WaitingForDeps→Pending when dependencies
// completed (or Failed on a failed dependency), Pending→Running while
// slots remain.
func (s *Scheduler) advance(ctx context.Context) {
	var toRun []*models.SubTask

	s.mu.Lock()
	for _, t := range s.tasks {
		if t.Status != models.SubTaskWaitingForDeps {
			continue
		}
		allDone := true
		failedDep := ""
		for _, dep := range t.DependsOn {
			d := s.tasks[dep]
			if d == nil || !d.Status.Terminal() {
				allDone = false
				break
			}
			if d.Status == models.SubTaskFailed {
				failedDep = dep
			}
		}
		if !allDone {
			continue
		}
		if failedDep != "" {
			t.Status = models.SubTaskFailed
			t.Error = "dependency failed: " + failedDep
			now := time.Now().UTC()
			t.CompletedAt = &now
			continue
		}
		t.Status = models.SubTaskPending
	}

	for _, t := range s.tasks {
		if s.running >= s.maxActive {
			break
		}
		if t.Status != models.SubTaskPending {
			continue
		}
		t.Status = models.SubTaskRunning
		now := time.Now().UTC()
		t.StartedAt = &now
		s.running++
		toRun = append(toRun, t)
	}
	s.mu.Unlock()

	for _, t := range toRun {
		cp := *t
		go s.execute(ctx, &cp)
	}
}

// execute runs one sub-task as an independent turn and settles it.
func (s *Scheduler) execute(ctx context.Context, task *models.SubTask) {
	defer func() {
		s.mu.Lock()
		s.running--
		s.mu.Unlock()
		s.kickWatcher()
	}()

	prompt := s.buildPrompt(task)

	session := &models.Session{
		ID:        task.SessionID,
		AgentID:   task.ID,
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.CreatedAt,
	}
	msg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: task.SessionID,
		Role:      models.RoleUser,
		Content:   task.Task,
		CreatedAt: time.Now(),
	}

	runCtx := agent.WithSystemPrompt(ctx, prompt)
	if len(task.AllowedTools) > 0 || len(task.DeniedTools) > 0 {
		resolver := policy.NewResolver()
		runCtx = agent.WithToolPolicy(runCtx, resolver, &policy.Policy{
			Allow: task.AllowedTools,
			Deny:  task.DeniedTools,
		})
	}

	if s.runtime == nil {
		s.settle(task.ID, "", "no runtime configured")
		return
	}

	chunks, err := s.runtime.Process(runCtx, session, msg)
	if err != nil {
		s.settle(task.ID, "", err.Error())
		return
	}

	var text strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			s.settle(task.ID, "", chunk.Error.Error())
			return
		}
		text.WriteString(chunk.Text)
	}
	s.settle(task.ID, text.String(), "")
}

// buildPrompt composes the role prompt, the parent's context summary, and
// each completed dependency's result.
func (s *Scheduler) buildPrompt(task *models.SubTask) string {
	var b strings.Builder
	b.WriteString(RolePrompt(task.Role))

	if summary := s.takeContext(task.ID); summary != "" {
		b.WriteString("\n\nContext from the main agent:\n")
		b.WriteString(summary)
	}

	if len(task.DependsOn) > 0 {
		s.mu.Lock()
		var results []string
		for _, dep := range task.DependsOn {
			if d := s.tasks[dep]; d != nil && d.Result != "" {
				results = append(results, fmt.Sprintf("Result of %s (%s):\n%s", dep, d.Role, d.Result))
			}
		}
		s.mu.Unlock()
		if len(results) > 0 {
			b.WriteString("\n\nResults from completed dependencies:\n")
			b.WriteString(strings.Join(results, "\n\n"))
		}
	}
	return b.String()
}

// settle records the terminal status, settles any linked goal step, and
// hands the result to the sink.
func (s *Scheduler) settle(taskID, result, errMsg string) {
	s.mu.Lock()
	task, ok := s.tasks[taskID]
	if !ok || task.Status.Terminal() {
		s.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	task.CompletedAt = &now
	if errMsg != "" {
		task.Status = models.SubTaskFailed
		task.Error = errMsg
	} else {
		task.Status = models.SubTaskCompleted
		task.Result = result
	}
	cp := *task
	s.mu.Unlock()

	if s.planner != nil && cp.GoalID != "" && cp.StepID != "" {
		if cp.Status == models.SubTaskCompleted {
			s.planner.CompleteDelegated(cp.ID, cp.Result)
		} else {
			s.planner.FailDelegated(cp.ID, cp.Error)
		}
	}
	if s.sink != nil && cp.Status == models.SubTaskCompleted {
		s.sink(&cp)
	}
}

// Get returns a copy of one task.
func (s *Scheduler) Get(id string) (*models.SubTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

// Snapshot returns copies of the requested tasks; an empty id list means
// every task.
func (s *Scheduler) Snapshot(ids []string) []models.SubTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SubTask
	if len(ids) == 0 {
		for _, t := range s.tasks {
			out = append(out, *t)
		}
		return out
	}
	for _, id := range ids {
		if t, ok := s.tasks[id]; ok {
			out = append(out, *t)
		}
	}
	return out
}

// Wait blocks until every listed task reaches a terminal status, the
// timeout elapses (0 = no limit), or ctx ends. It returns the final
// snapshots and whether all listed tasks settled.
func (s *Scheduler) Wait(ctx context.Context, ids []string, timeout time.Duration) ([]models.SubTask, bool) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		snap := s.Snapshot(ids)
		settled := len(snap) == len(ids)
		for _, t := range snap {
			if !t.Status.Terminal() {
				settled = false
				break
			}
		}
		if settled {
			return snap, true
		}
		select {
		case <-ctx.Done():
			return snap, false
		case <-deadline:
			return snap, false
		case <-ticker.C:
		}
	}
}
