package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/lib/pq"

	"github.com/loomrun/loom/pkg/models"
)

// FactStore persists semantic memory facts. Upserts are keyed on
// (category, key); the full store is reloaded at startup.
type FactStore interface {
	UpsertFact(ctx context.Context, fact *models.Fact) error
	DeleteFact(ctx context.Context, category, key string) error
	DeleteCategory(ctx context.Context, category string) (int64, error)
	LoadFacts(ctx context.Context) ([]models.Fact, error)
}

// EpisodeStore persists the episodic memory log.
type EpisodeStore interface {
	RecordEpisode(ctx context.Context, ep *models.Episode) error
	SearchEpisodes(ctx context.Context, query string, limit int) ([]models.Episode, error)
	LoadEpisodes(ctx context.Context, limit int) ([]models.Episode, error)
}

// embeddingToBytes packs a float32 vector little-endian for a BYTEA column.
func embeddingToBytes(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

func embeddingFromBytes(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

type cockroachFactStore struct {
	db *sql.DB
}

// NewCockroachFactStore creates a SQL-backed fact store on an existing DB.
func NewCockroachFactStore(db *sql.DB) FactStore {
	return &cockroachFactStore{db: db}
}

func (s *cockroachFactStore) UpsertFact(ctx context.Context, fact *models.Fact) error {
	if fact == nil || fact.Category == "" || fact.Key == "" {
		return fmt.Errorf("fact category and key are required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO facts (id, category, key, value, confidence, source, embedding, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (category, key) DO UPDATE SET
		   value = excluded.value,
		   confidence = excluded.confidence,
		   source = excluded.source,
		   embedding = excluded.embedding,
		   updated_at = excluded.updated_at`,
		fact.ID,
		fact.Category,
		fact.Key,
		fact.Value,
		fact.Confidence,
		fact.Source,
		embeddingToBytes(fact.Embedding),
		fact.CreatedAt,
		fact.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert fact: %w", err)
	}
	return nil
}

func (s *cockroachFactStore) DeleteFact(ctx context.Context, category, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM facts WHERE category = $1 AND key = $2`, category, key)
	if err != nil {
		return fmt.Errorf("delete fact: %w", err)
	}
	return nil
}

func (s *cockroachFactStore) DeleteCategory(ctx context.Context, category string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM facts WHERE category = $1`, category)
	if err != nil {
		return 0, fmt.Errorf("delete category: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *cockroachFactStore) LoadFacts(ctx context.Context) ([]models.Fact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, key, value, confidence, source, embedding, created_at, updated_at
		 FROM facts ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("load facts: %w", err)
	}
	defer rows.Close()

	var out []models.Fact
	for rows.Next() {
		var f models.Fact
		var source sql.NullString
		var embedding []byte
		if err := rows.Scan(&f.ID, &f.Category, &f.Key, &f.Value, &f.Confidence, &source, &embedding, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		f.Source = source.String
		f.Embedding = embeddingFromBytes(embedding)
		out = append(out, f)
	}
	return out, rows.Err()
}

type cockroachEpisodeStore struct {
	db *sql.DB
}

// NewCockroachEpisodeStore creates a SQL-backed episode store.
func NewCockroachEpisodeStore(db *sql.DB) EpisodeStore {
	return &cockroachEpisodeStore{db: db}
}

func (s *cockroachEpisodeStore) RecordEpisode(ctx context.Context, ep *models.Episode) error {
	if ep == nil || ep.ID == "" {
		return fmt.Errorf("episode id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO episodes (id, session_id, summary, outcome, tags, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		ep.ID, ep.SessionID, ep.Summary, ep.Outcome, pq.Array(ep.Tags), ep.CreatedAt, ep.UpdatedAt)
	if err != nil {
		return fmt.Errorf("record episode: %w", err)
	}
	return nil
}

func (s *cockroachEpisodeStore) SearchEpisodes(ctx context.Context, query string, limit int) ([]models.Episode, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, summary, outcome, tags, created_at, updated_at
		 FROM episodes WHERE summary ILIKE '%' || $1 || '%'
		 ORDER BY created_at DESC LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search episodes: %w", err)
	}
	defer rows.Close()
	return scanEpisodes(rows)
}

func (s *cockroachEpisodeStore) LoadEpisodes(ctx context.Context, limit int) ([]models.Episode, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, summary, outcome, tags, created_at, updated_at
		 FROM episodes ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("load episodes: %w", err)
	}
	defer rows.Close()
	return scanEpisodes(rows)
}

func scanEpisodes(rows *sql.Rows) ([]models.Episode, error) {
	var out []models.Episode
	for rows.Next() {
		var ep models.Episode
		var outcome sql.NullString
		if err := rows.Scan(&ep.ID, &ep.SessionID, &ep.Summary, &outcome, pq.Array(&ep.Tags), &ep.CreatedAt, &ep.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		ep.Outcome = outcome.String
		out = append(out, ep)
	}
	return out, rows.Err()
}

// memoryFactStore and memoryEpisodeStore keep the persistence interface
// satisfied when no database is configured; the in-memory semantic and
// episodic stores already hold the data, so these only have to not lose
// writes within the process lifetime.
type memoryFactStore struct {
	mu    sync.RWMutex
	facts map[string]models.Fact
}

// NewMemoryFactStore creates an in-process FactStore.
func NewMemoryFactStore() FactStore {
	return &memoryFactStore{facts: make(map[string]models.Fact)}
}

func (s *memoryFactStore) UpsertFact(_ context.Context, fact *models.Fact) error {
	if fact == nil || fact.Category == "" || fact.Key == "" {
		return fmt.Errorf("fact category and key are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts[fact.Category+"\x00"+fact.Key] = *fact
	return nil
}

func (s *memoryFactStore) DeleteFact(_ context.Context, category, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.facts, category+"\x00"+key)
	return nil
}

func (s *memoryFactStore) DeleteCategory(_ context.Context, category string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, f := range s.facts {
		if f.Category == category {
			delete(s.facts, k)
			n++
		}
	}
	return n, nil
}

func (s *memoryFactStore) LoadFacts(_ context.Context) ([]models.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Fact, 0, len(s.facts))
	for _, f := range s.facts {
		out = append(out, f)
	}
	return out, nil
}

type memoryEpisodeStore struct {
	mu       sync.RWMutex
	episodes []models.Episode
}

// NewMemoryEpisodeStore creates an in-process EpisodeStore.
func NewMemoryEpisodeStore() EpisodeStore {
	return &memoryEpisodeStore{}
}

func (s *memoryEpisodeStore) RecordEpisode(_ context.Context, ep *models.Episode) error {
	if ep == nil || ep.ID == "" {
		return fmt.Errorf("episode id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.episodes = append(s.episodes, *ep)
	return nil
}

func (s *memoryEpisodeStore) SearchEpisodes(_ context.Context, query string, limit int) ([]models.Episode, error) {
	if limit <= 0 {
		limit = 20
	}
	q := strings.ToLower(query)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Episode
	for i := len(s.episodes) - 1; i >= 0 && len(out) < limit; i-- {
		if strings.Contains(strings.ToLower(s.episodes[i].Summary), q) {
			out = append(out, s.episodes[i])
		}
	}
	return out, nil
}

func (s *memoryEpisodeStore) LoadEpisodes(_ context.Context, limit int) ([]models.Episode, error) {
	if limit <= 0 {
		limit = 500
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if len(s.episodes) > limit {
		start = len(s.episodes) - limit
	}
	out := make([]models.Episode, len(s.episodes)-start)
	copy(out, s.episodes[start:])
	return out, nil
}
