// Package episodic implements the agent's episode log: a time-ordered
// record of brief turn summaries per session, searchable by substring.
package episodic

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loomrun/loom/pkg/models"
)

// PersistFunc receives every recorded episode for async persistence.
type PersistFunc func(ep *models.Episode)

// Store holds episodes in memory, newest last per session.
type Store struct {
	mu       sync.RWMutex
	episodes []models.Episode
	persist  PersistFunc
}

// NewStore creates an empty episodic store.
func NewStore() *Store {
	return &Store{}
}

// SetPersistFunc installs the async persistence hook.
func (s *Store) SetPersistFunc(fn PersistFunc) {
	s.mu.Lock()
	s.persist = fn
	s.mu.Unlock()
}

// Record appends an episode and returns it with ID and timestamps filled.
func (s *Store) Record(ep models.Episode) *models.Episode {
	now := time.Now().UTC()
	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = now
	}
	ep.UpdatedAt = now

	s.mu.Lock()
	s.episodes = append(s.episodes, ep)
	persist := s.persist
	s.mu.Unlock()

	if persist != nil {
		stored := ep
		go persist(&stored)
	}
	return &ep
}

// Search returns episodes whose summary contains any query term,
// case-insensitive, newest first.
func (s *Store) Search(query string, limit int) []models.Episode {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil
	}

	s.mu.RLock()
	matches := make([]models.Episode, 0, 8)
	for _, ep := range s.episodes {
		summary := strings.ToLower(ep.Summary)
		for _, t := range terms {
			if strings.Contains(summary, t) {
				matches = append(matches, ep)
				break
			}
		}
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// Recent returns the most recent episodes across all sessions.
func (s *Store) Recent(limit int) []models.Episode {
	s.mu.RLock()
	out := make([]models.Episode, len(s.episodes))
	copy(out, s.episodes)
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ForSession returns the episodes recorded for one session, oldest first.
func (s *Store) ForSession(sessionID string) []models.Episode {
	s.mu.RLock()
	out := make([]models.Episode, 0, 8)
	for _, ep := range s.episodes {
		if ep.SessionID == sessionID {
			out = append(out, ep)
		}
	}
	s.mu.RUnlock()
	return out
}

// Count returns the number of stored episodes.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.episodes)
}

// Load replaces the store contents with previously persisted episodes.
func (s *Store) Load(episodes []models.Episode) {
	s.mu.Lock()
	s.episodes = append([]models.Episode(nil), episodes...)
	s.mu.Unlock()
}

// Summarize builds an episode summary from the turn's user text and final
// assistant text, trimmed to a size that stays useful in a prompt.
func Summarize(userText, assistantText string) string {
	const maxPart = 200
	user := clip(strings.TrimSpace(userText), maxPart)
	asst := clip(strings.TrimSpace(assistantText), maxPart)
	switch {
	case user == "" && asst == "":
		return ""
	case asst == "":
		return "User asked: " + user
	case user == "":
		return "Assistant: " + asst
	default:
		return "User asked: " + user + " — Assistant: " + asst
	}
}

// ExtractTags pulls a short set of content words out of a summary to make
// episodes findable by topic.
var tagStopwords = map[string]bool{
	"user": true, "asked": true, "assistant": true, "the": true, "and": true,
	"for": true, "with": true, "that": true, "this": true, "from": true,
	"what": true, "how": true, "can": true, "you": true, "your": true,
	"please": true, "about": true, "have": true, "will": true, "would": true,
}

// ExtractTags returns up to max distinct lowercase words of four or more
// characters from the text, skipping common filler.
func ExtractTags(text string, max int) []string {
	if max <= 0 {
		max = 5
	}
	seen := make(map[string]bool)
	tags := make([]string, 0, max)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()[]{}—-")
		if len(w) < 4 || tagStopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		tags = append(tags, w)
		if len(tags) >= max {
			break
		}
	}
	return tags
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
