// Package artifacts stores files and media produced by tool executions:
// inline for small payloads, behind a local or S3 store for large ones,
// with TTL-based expiry and redaction of sensitive types.
package artifacts

import (
	"context"
	"io"
	"time"

	"github.com/loomrun/loom/pkg/models"
)

// Store is the blob backend behind a Repository. Put returns an opaque
// reference that Get resolves later.
type Store interface {
	Put(ctx context.Context, artifactID string, data io.Reader, opts PutOptions) (string, error)
	Get(ctx context.Context, artifactID string) (io.ReadCloser, error)
	Delete(ctx context.Context, artifactID string) error
	Exists(ctx context.Context, artifactID string) (bool, error)
	Close() error
}

// PutOptions carries per-object hints to the blob backend.
type PutOptions struct {
	MimeType string
	TTL      time.Duration
	Metadata map[string]string
}

// Repository tracks artifact metadata over a Store and enforces expiry.
type Repository interface {
	StoreArtifact(ctx context.Context, artifact *models.Artifact, data io.Reader) error
	GetArtifact(ctx context.Context, artifactID string) (*models.Artifact, io.ReadCloser, error)
	ListArtifacts(ctx context.Context, filter Filter) ([]*models.Artifact, error)
	DeleteArtifact(ctx context.Context, artifactID string) error
	PruneExpired(ctx context.Context) (int, error)
}

// Metadata is the repository's record of one stored artifact.
type Metadata struct {
	ID         string
	Type       string
	MimeType   string
	Filename   string
	Size       int64
	TTLSeconds int64
	Reference  string
	SessionID  string
	EdgeID     string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Filter narrows ListArtifacts results.
type Filter struct {
	SessionID     string
	EdgeID        string
	Type          string
	CreatedAfter  time.Time
	CreatedBefore time.Time
	Limit         int
}

// defaultTTLs maps artifact types to retention periods. Screenshots and
// screen recordings churn fast; documents keep longer.
var defaultTTLs = map[string]time.Duration{
	"screenshot": 24 * time.Hour,
	"recording":  24 * time.Hour,
	"image":      7 * 24 * time.Hour,
	"document":   30 * 24 * time.Hour,
}

// GetDefaultTTL returns the retention period for an artifact type.
func GetDefaultTTL(artifactType string) time.Duration {
	if ttl, ok := defaultTTLs[artifactType]; ok {
		return ttl
	}
	return 7 * 24 * time.Hour
}
