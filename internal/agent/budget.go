package agent

import (
	"errors"
	"sync"
	"time"
)

// ErrBudgetExceeded indicates a turn aborted because it exceeded its
// configured daily spend or per-loop tool-call budget.
var ErrBudgetExceeded = errors.New("budget exceeded")

// BudgetSnapshot is a read-only view of the current budget state.
type BudgetSnapshot struct {
	DailySpendUSD   float64   `json:"daily_spend_usd"`
	DailyLimitUSD   float64   `json:"daily_limit_usd"`
	Day             string    `json:"day"`
	ToolCallsInLoop int       `json:"tool_calls_in_loop"`
	ToolCallLimit   int       `json:"tool_call_limit"`
	ResetAt         time.Time `json:"reset_at"`
}

// Budget tracks the daily USD spend across all turns and the per-loop tool
// call count for a single in-flight turn. A Budget is safe for concurrent
// use: many turns across many sessions share one Budget and each commits
// spend independently.
//
// Daily spend resets at UTC midnight. The per-loop tool-call counter is
// owned by the turn's loop state and reset per turn; Budget only enforces
// the configured cap when asked.
type Budget struct {
	mu sync.Mutex

	dailyLimitUSD float64
	toolCallLimit int

	day   string
	spent float64
}

// NewBudget creates a Budget with the given daily USD limit and per-loop
// tool-call limit. A zero value for either disables that check.
func NewBudget(dailyLimitUSD float64, toolCallLimit int) *Budget {
	return &Budget{
		dailyLimitUSD: dailyLimitUSD,
		toolCallLimit: toolCallLimit,
		day:           currentDay(),
	}
}

func currentDay() string {
	return time.Now().UTC().Format("2006-01-02")
}

// CommitSpend records estimated cost from a completed LLM call. It rolls
// the day over if the clock has crossed UTC midnight since the last call.
// Spend only ever increases within a day; it never decreases.
func (b *Budget) CommitSpend(estimatedCostUSD float64) {
	if estimatedCostUSD <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()
	b.spent += estimatedCostUSD
}

// CheckDaily returns ErrBudgetExceeded if today's spend has already reached
// the configured daily limit. A zero limit means unlimited.
func (b *Budget) CheckDaily() error {
	if b.dailyLimitUSD <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()
	if b.spent >= b.dailyLimitUSD {
		return ErrBudgetExceeded
	}
	return nil
}

// CheckToolCalls returns ErrBudgetExceeded if the per-loop tool call count
// would exceed the configured cap. A zero limit means unlimited.
func (b *Budget) CheckToolCalls(countSoFar int) error {
	if b.toolCallLimit <= 0 {
		return nil
	}
	if countSoFar > b.toolCallLimit {
		return ErrBudgetExceeded
	}
	return nil
}

// Snapshot returns the current budget state for diagnostics and the
// control-plane status query.
func (b *Budget) Snapshot() BudgetSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()
	now := time.Now().UTC()
	resetAt := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return BudgetSnapshot{
		DailySpendUSD: b.spent,
		DailyLimitUSD: b.dailyLimitUSD,
		Day:           b.day,
		ToolCallLimit: b.toolCallLimit,
		ResetAt:       resetAt,
	}
}

// rolloverLocked resets the spend counter when the UTC day has changed.
// Callers must hold b.mu.
func (b *Budget) rolloverLocked() {
	day := currentDay()
	if day != b.day {
		b.day = day
		b.spent = 0
	}
}
