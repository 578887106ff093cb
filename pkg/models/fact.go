package models

import "time"

// LessonCategory is the fact category that is always injected into the
// system prompt, independent of search. Facts stored here are cross-session
// self-corrections the agent derived from its own mistakes.
const LessonCategory = "learned_lessons"

// SubAgentResultCategory holds completed sub-agent results so later turns
// can recall what delegated work produced.
const SubAgentResultCategory = "sub_agent_results"

// Fact is a single unit of semantic memory, unique on (Category, Key).
// Upserting an existing pair replaces Value, Confidence, and Source and
// bumps UpdatedAt; the ID and CreatedAt of the original row survive.
type Fact struct {
	ID         string    `json:"id"`
	Category   string    `json:"category"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source,omitempty"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Episode is one entry in the episodic memory log: a brief summary of a
// completed turn, recorded once per turn with at least two messages.
type Episode struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Summary   string    `json:"summary"`
	Outcome   string    `json:"outcome,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
