// Package memory provides the semantic memory tools: storing facts,
// searching them, listing categories, and forgetting.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/loomrun/loom/internal/agent"
	"github.com/loomrun/loom/internal/memory/episodic"
	"github.com/loomrun/loom/internal/memory/semantic"
	"github.com/loomrun/loom/pkg/models"
)

// Embedder computes embeddings for stored facts and search queries.
// Optional; without one, facts are stored and searched by keyword only.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// StoreTool upserts a fact into semantic memory.
type StoreTool struct {
	store    *semantic.Store
	embedder Embedder
}

// NewStoreTool creates the memory_store tool.
func NewStoreTool(store *semantic.Store, embedder Embedder) *StoreTool {
	return &StoreTool{store: store, embedder: embedder}
}

func (t *StoreTool) Name() string { return "memory_store" }

func (t *StoreTool) Description() string {
	return "Store a fact or piece of knowledge in long-term memory. Use category 'learned_lessons' for things discovered through trial-and-error or user corrections; those are automatically loaded in future sessions. Storing an existing (category, key) pair replaces its value."
}

func (t *StoreTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"category": {"type": "string", "description": "Grouping, e.g. user_info, projects, learned_lessons"},
			"key": {"type": "string", "description": "Descriptive key, unique within the category"},
			"value": {"type": "string", "description": "The fact itself"},
			"confidence": {"type": "number", "description": "0..1, default 0.8"}
		},
		"required": ["category", "key", "value"]
	}`)
}

// IsMutating reports that storing changes durable state.
func (t *StoreTool) IsMutating() bool { return true }

// RiskLevel is low: memory only shapes future prompts.
func (t *StoreTool) RiskLevel() int { return 1 }

func (t *StoreTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Category   string  `json:"category"`
		Key        string  `json:"key"`
		Value      string  `json:"value"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: "invalid input: " + err.Error(), IsError: true}, nil
	}
	if input.Category == "" || input.Key == "" || input.Value == "" {
		return &agent.ToolResult{Content: "category, key, and value are required", IsError: true}, nil
	}
	if input.Confidence <= 0 || input.Confidence > 1 {
		input.Confidence = 0.8
	}

	fact := models.Fact{
		Category:   input.Category,
		Key:        input.Key,
		Value:      input.Value,
		Confidence: input.Confidence,
		Source:     "agent",
	}
	if t.embedder != nil {
		// Embedding failures only lose the vector index for this fact.
		if emb, err := t.embedder.Embed(ctx, input.Key+" "+input.Value); err == nil {
			fact.Embedding = emb
		}
	}
	t.store.Upsert(fact)

	return &agent.ToolResult{
		Content: fmt.Sprintf("Stored fact [%s] %s.", input.Category, input.Key),
	}, nil
}

// SearchTool searches semantic memory and, optionally, the episode log.
type SearchTool struct {
	store    *semantic.Store
	episodes *episodic.Store
	embedder Embedder
}

// NewSearchTool creates the memory_search tool. episodes may be nil.
func NewSearchTool(store *semantic.Store, episodes *episodic.Store, embedder Embedder) *SearchTool {
	return &SearchTool{store: store, episodes: episodes, embedder: embedder}
}

func (t *SearchTool) Name() string { return "memory_search" }

func (t *SearchTool) Description() string {
	return "Search long-term memory for facts (and past conversation episodes) matching a query."
}

func (t *SearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string"},
			"include_episodes": {"type": "boolean", "description": "Also search past conversation summaries"}
		},
		"required": ["query"]
	}`)
}

func (t *SearchTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Query           string `json:"query"`
		IncludeEpisodes bool   `json:"include_episodes"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: "invalid input: " + err.Error(), IsError: true}, nil
	}
	if strings.TrimSpace(input.Query) == "" {
		return &agent.ToolResult{Content: "query is required", IsError: true}, nil
	}

	var embedding []float32
	if t.embedder != nil {
		embedding, _ = t.embedder.Embed(ctx, input.Query)
	}
	facts := t.store.Recall(ctx, input.Query, embedding)

	var b strings.Builder
	if len(facts) == 0 {
		b.WriteString("No matching facts.")
	} else {
		b.WriteString("Facts:\n")
		for _, f := range facts {
			fmt.Fprintf(&b, "- [%s] %s: %s (confidence %.2f)\n", f.Category, f.Key, f.Value, f.Confidence)
		}
	}

	if input.IncludeEpisodes && t.episodes != nil {
		if eps := t.episodes.Search(input.Query, 5); len(eps) > 0 {
			b.WriteString("\nPast conversations:\n")
			for _, ep := range eps {
				fmt.Fprintf(&b, "- %s\n", ep.Summary)
			}
		}
	}

	return &agent.ToolResult{Content: strings.TrimRight(b.String(), "\n")}, nil
}

// ListTool lists facts, optionally by category.
type ListTool struct {
	store *semantic.Store
}

// NewListTool creates the memory_list tool.
func NewListTool(store *semantic.Store) *ListTool {
	return &ListTool{store: store}
}

func (t *ListTool) Name() string { return "memory_list" }

func (t *ListTool) Description() string {
	return "List stored facts, optionally filtered to one category."
}

func (t *ListTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"category": {"type": "string"}
		}
	}`)
}

func (t *ListTool) Execute(_ context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Category string `json:"category"`
	}
	_ = json.Unmarshal(params, &input)

	var facts []models.Fact
	if input.Category != "" {
		facts = t.store.Category(input.Category)
	} else {
		facts = t.store.All()
	}
	if len(facts) == 0 {
		return &agent.ToolResult{Content: "No facts stored."}, nil
	}
	var b strings.Builder
	for _, f := range facts {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", f.Category, f.Key, f.Value)
	}
	return &agent.ToolResult{Content: strings.TrimRight(b.String(), "\n")}, nil
}

// ForgetTool deletes a fact or a whole category.
type ForgetTool struct {
	store *semantic.Store
}

// NewForgetTool creates the memory_forget tool.
func NewForgetTool(store *semantic.Store) *ForgetTool {
	return &ForgetTool{store: store}
}

func (t *ForgetTool) Name() string { return "memory_forget" }

func (t *ForgetTool) Description() string {
	return "Delete a fact by category and key, or an entire category when key is omitted."
}

func (t *ForgetTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"category": {"type": "string"},
			"key": {"type": "string"}
		},
		"required": ["category"]
	}`)
}

// IsMutating reports that forgetting changes durable state.
func (t *ForgetTool) IsMutating() bool { return true }

// RiskLevel reflects permanent data loss within memory.
func (t *ForgetTool) RiskLevel() int { return 3 }

func (t *ForgetTool) Execute(_ context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Category string `json:"category"`
		Key      string `json:"key"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: "invalid input: " + err.Error(), IsError: true}, nil
	}
	if input.Category == "" {
		return &agent.ToolResult{Content: "category is required", IsError: true}, nil
	}
	if input.Key == "" {
		n := t.store.DeleteCategory(input.Category)
		return &agent.ToolResult{Content: fmt.Sprintf("Forgot %d facts in %s.", n, input.Category)}, nil
	}
	if !t.store.Delete(input.Category, input.Key) {
		return &agent.ToolResult{Content: "fact not found", IsError: true}, nil
	}
	return &agent.ToolResult{Content: fmt.Sprintf("Forgot [%s] %s.", input.Category, input.Key)}, nil
}
