package semantic

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loomrun/loom/pkg/models"
)

func TestUpsertIdempotent(t *testing.T) {
	s := NewStore()

	first := s.Upsert(models.Fact{Category: "user_info", Key: "editor", Value: "vim", Confidence: 0.9})
	time.Sleep(time.Millisecond)
	second := s.Upsert(models.Fact{Category: "user_info", Key: "editor", Value: "neovim", Confidence: 0.95})

	if s.Count() != 1 {
		t.Fatalf("expected exactly one fact, got %d", s.Count())
	}
	got := s.Get("user_info", "editor")
	if got == nil {
		t.Fatal("fact not found after upsert")
	}
	if got.Value != "neovim" {
		t.Errorf("value = %q, want %q", got.Value, "neovim")
	}
	if got.ID != first.ID {
		t.Errorf("upsert replaced the fact ID: %s != %s", got.ID, first.ID)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("UpdatedAt did not advance: %v <= %v", second.UpdatedAt, first.UpdatedAt)
	}
}

func TestSearchKeywordMatch(t *testing.T) {
	s := NewStore()
	s.Upsert(models.Fact{Category: "infra", Key: "db_host", Value: "postgres runs on db.internal:5432"})
	s.Upsert(models.Fact{Category: "infra", Key: "cache_host", Value: "redis on cache.internal"})
	s.Upsert(models.Fact{Category: "user_info", Key: "name", Value: "Sam"})

	results := s.Search("where is postgres running")
	if len(results) == 0 {
		t.Fatal("expected at least one match")
	}
	if results[0].Key != "db_host" {
		t.Errorf("top result = %s, want db_host", results[0].Key)
	}

	if got := s.Search(""); got != nil {
		t.Errorf("empty query should return nil, got %d results", len(got))
	}
}

func TestSearchPartialWordMatch(t *testing.T) {
	s := NewStore()
	s.Upsert(models.Fact{Category: "projects", Key: "deploy_target", Value: "kubernetes cluster in eu-west"})

	if got := s.Search("kube"); len(got) != 1 {
		t.Errorf("partial match failed: got %d results", len(got))
	}
}

func TestVectorSearchOrdering(t *testing.T) {
	s := NewStore()
	s.Upsert(models.Fact{Category: "a", Key: "exact", Value: "v", Embedding: []float32{1, 0, 0}})
	s.Upsert(models.Fact{Category: "a", Key: "close", Value: "v", Embedding: []float32{0.9, 0.1, 0}})
	s.Upsert(models.Fact{Category: "a", Key: "far", Value: "v", Embedding: []float32{0, 0, 1}})
	s.Upsert(models.Fact{Category: "a", Key: "noembed", Value: "v"})

	got := s.VectorSearch([]float32{1, 0, 0}, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Key != "exact" || got[1].Key != "close" {
		t.Errorf("ordering wrong: %s, %s", got[0].Key, got[1].Key)
	}
}

func TestRecallDeduplicatesAndCaps(t *testing.T) {
	s := NewStore()
	for i := 0; i < 30; i++ {
		s.Upsert(models.Fact{
			Category:  "notes",
			Key:       "deploy_note_" + strings.Repeat("x", i+1),
			Value:     "deploy procedure step",
			Embedding: []float32{1, 0},
		})
	}
	s.Upsert(models.Fact{Category: models.LessonCategory, Key: "lesson", Value: "deploy carefully"})

	got := s.Recall(context.Background(), "deploy procedure", []float32{1, 0})
	if len(got) > RecallLimit {
		t.Errorf("recall returned %d facts, cap is %d", len(got), RecallLimit)
	}
	seen := make(map[string]bool)
	for _, f := range got {
		if f.Category == models.LessonCategory {
			t.Error("recall must not return learned lessons")
		}
		k := f.Category + "/" + f.Key
		if seen[k] {
			t.Errorf("duplicate fact in recall: %s", k)
		}
		seen[k] = true
	}
}

func TestLessonsAlwaysAvailable(t *testing.T) {
	s := NewStore()
	s.Upsert(models.Fact{Category: models.LessonCategory, Key: "retry_on_429", Value: "back off before retrying"})
	s.Upsert(models.Fact{Category: "other", Key: "k", Value: "v"})

	lessons := s.Lessons()
	if len(lessons) != 1 || lessons[0].Key != "retry_on_429" {
		t.Fatalf("lessons = %+v", lessons)
	}
}

func TestDeleteCategory(t *testing.T) {
	s := NewStore()
	s.Upsert(models.Fact{Category: "tmp", Key: "a", Value: "1"})
	s.Upsert(models.Fact{Category: "tmp", Key: "b", Value: "2"})
	s.Upsert(models.Fact{Category: "keep", Key: "c", Value: "3"})

	if n := s.DeleteCategory("tmp"); n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}
	if s.Count() != 1 {
		t.Errorf("count = %d, want 1", s.Count())
	}
}

func TestPersistHookFires(t *testing.T) {
	s := NewStore()
	var mu sync.Mutex
	var persisted []string
	done := make(chan struct{}, 1)
	s.SetPersistFunc(func(f *models.Fact) {
		mu.Lock()
		persisted = append(persisted, f.Key)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
	})

	s.Upsert(models.Fact{Category: "c", Key: "k", Value: "v"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("persist hook never fired")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(persisted) != 1 || persisted[0] != "k" {
		t.Errorf("persisted = %v", persisted)
	}
}

func TestConcurrentUpsertAndRecall(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Upsert(models.Fact{Category: "load", Key: "k", Value: "v"})
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Recall(context.Background(), "load test", nil)
			}
		}()
	}
	wg.Wait()
	if s.Count() != 1 {
		t.Errorf("count = %d, want 1 after concurrent upserts of the same key", s.Count())
	}
}

func TestExtractKeywords(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"what is the status of the deploy", "status deploy"},
		{"please help me configure postgres replication", "configure postgres replication"},
		{"is it up", ""},
	}
	for _, c := range cases {
		if got := ExtractKeywords(c.in); got != c.want {
			t.Errorf("ExtractKeywords(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
