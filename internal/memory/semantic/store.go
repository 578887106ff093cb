// Package semantic implements the agent's long-term fact memory: a store of
// (category, key) → value records with optional dense embeddings, searched
// by a blend of vector similarity and keyword matching.
package semantic

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loomrun/loom/pkg/models"
)

// PersistFunc receives every upserted fact for asynchronous persistence.
// Implementations must not block; failures are the persistor's problem —
// the in-memory store is authoritative for the life of the process.
type PersistFunc func(fact *models.Fact)

// RecallLimit caps how many facts a blended recall returns. Learned
// lessons are loaded separately and do not count against it.
const RecallLimit = 15

// Store holds all semantic facts in memory, keyed by (category, key).
// It is safe for concurrent use; reads take a shared lock so recall
// queries never block fact upserts from other turns for long.
type Store struct {
	mu      sync.RWMutex
	facts   map[string]*models.Fact // "category\x00key" → fact
	persist PersistFunc
}

// NewStore creates an empty semantic store.
func NewStore() *Store {
	return &Store{facts: make(map[string]*models.Fact)}
}

// SetPersistFunc installs the async persistence hook. Pass nil to run
// purely in memory.
func (s *Store) SetPersistFunc(fn PersistFunc) {
	s.mu.Lock()
	s.persist = fn
	s.mu.Unlock()
}

func factKey(category, key string) string {
	return category + "\x00" + key
}

// Upsert inserts or replaces the fact for (fact.Category, fact.Key).
// On replace, the existing row keeps its ID and CreatedAt; Value,
// Confidence, Source, and Embedding are overwritten and UpdatedAt bumped.
func (s *Store) Upsert(fact models.Fact) *models.Fact {
	now := time.Now().UTC()
	if fact.ID == "" {
		fact.ID = uuid.NewString()
	}
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = now
	}
	fact.UpdatedAt = now

	s.mu.Lock()
	k := factKey(fact.Category, fact.Key)
	if existing, ok := s.facts[k]; ok {
		existing.Value = fact.Value
		existing.Confidence = fact.Confidence
		existing.Source = fact.Source
		if fact.Embedding != nil {
			existing.Embedding = fact.Embedding
		}
		existing.UpdatedAt = now
		fact = *existing
	} else {
		stored := fact
		s.facts[k] = &stored
	}
	persist := s.persist
	s.mu.Unlock()

	if persist != nil {
		stored := fact
		go persist(&stored)
	}
	return &fact
}

// Get returns the fact for (category, key), or nil.
func (s *Store) Get(category, key string) *models.Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f, ok := s.facts[factKey(category, key)]; ok {
		cp := *f
		return &cp
	}
	return nil
}

// Delete removes a single fact. It reports whether the fact existed.
func (s *Store) Delete(category, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := factKey(category, key)
	if _, ok := s.facts[k]; !ok {
		return false
	}
	delete(s.facts, k)
	return true
}

// DeleteCategory removes every fact in the category and returns the count.
func (s *Store) DeleteCategory(category string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, f := range s.facts {
		if f.Category == category {
			delete(s.facts, k)
			n++
		}
	}
	return n
}

// Category returns every fact in a category, most recently updated first.
func (s *Store) Category(category string) []models.Fact {
	s.mu.RLock()
	out := make([]models.Fact, 0, 8)
	for _, f := range s.facts {
		if f.Category == category {
			out = append(out, *f)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// All returns a copy of every stored fact.
func (s *Store) All() []models.Fact {
	s.mu.RLock()
	out := make([]models.Fact, 0, len(s.facts))
	for _, f := range s.facts {
		out = append(out, *f)
	}
	s.mu.RUnlock()
	return out
}

// Count returns the number of stored facts.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.facts)
}

// Load replaces the store contents with previously persisted facts. Used
// once at startup; later upserts win over loaded rows with the same key.
func (s *Store) Load(facts []models.Fact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range facts {
		f := facts[i]
		s.facts[factKey(f.Category, f.Key)] = &f
	}
}

// Search performs a case-insensitive keyword search over category, key,
// and value. A fact matches when any query word is a substring of any of
// the three fields. Results are ordered by match count, then recency.
func (s *Store) Search(query string) []models.Fact {
	words := queryWords(query)
	if len(words) == 0 {
		return nil
	}

	type scored struct {
		fact  models.Fact
		score int
	}

	s.mu.RLock()
	matches := make([]scored, 0, 16)
	for _, f := range s.facts {
		haystack := strings.ToLower(f.Category + " " + f.Key + " " + f.Value)
		score := 0
		for _, w := range words {
			if strings.Contains(haystack, w) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{fact: *f, score: score})
		}
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].fact.UpdatedAt.After(matches[j].fact.UpdatedAt)
	})

	out := make([]models.Fact, len(matches))
	for i, m := range matches {
		out[i] = m.fact
	}
	return out
}

// VectorSearch returns the top-k facts by cosine similarity to the query
// embedding. Facts without embeddings are skipped.
func (s *Store) VectorSearch(embedding []float32, k int) []models.Fact {
	if len(embedding) == 0 || k <= 0 {
		return nil
	}

	type scored struct {
		fact models.Fact
		sim  float64
	}

	s.mu.RLock()
	matches := make([]scored, 0, 16)
	for _, f := range s.facts {
		if len(f.Embedding) != len(embedding) {
			continue
		}
		sim := cosine(embedding, f.Embedding)
		if sim > 0 {
			matches = append(matches, scored{fact: *f, sim: sim})
		}
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].sim > matches[j].sim })
	if len(matches) > k {
		matches = matches[:k]
	}
	out := make([]models.Fact, len(matches))
	for i, m := range matches {
		out[i] = m.fact
	}
	return out
}

// Recall blends three search strategies — vector similarity on the query
// embedding (when available), raw keyword search, and a second keyword
// pass over extracted key terms — deduplicates by (category, key), and
// caps the result at RecallLimit. Learned lessons are excluded; callers
// load them in full via Lessons.
func (s *Store) Recall(ctx context.Context, query string, queryEmbedding []float32) []models.Fact {
	_ = ctx
	seen := make(map[string]bool)
	out := make([]models.Fact, 0, RecallLimit)

	add := func(facts []models.Fact, limit int) {
		for i, f := range facts {
			if limit > 0 && i >= limit {
				break
			}
			if f.Category == models.LessonCategory {
				continue
			}
			k := factKey(f.Category, f.Key)
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, f)
		}
	}

	if len(queryEmbedding) > 0 {
		add(s.VectorSearch(queryEmbedding, 10), 10)
	}
	add(s.Search(query), 10)
	if terms := ExtractKeywords(query); terms != "" && !strings.EqualFold(terms, query) {
		add(s.Search(terms), 5)
	}

	if len(out) > RecallLimit {
		out = out[:RecallLimit]
	}
	return out
}

// Lessons returns every learned lesson, most recently updated first.
func (s *Store) Lessons() []models.Fact {
	return s.Category(models.LessonCategory)
}

func queryWords(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	out := fields[:0]
	for _, w := range fields {
		w = strings.Trim(w, ".,!?;:\"'()[]{}")
		if len(w) >= 2 {
			out = append(out, w)
		}
	}
	return out
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
