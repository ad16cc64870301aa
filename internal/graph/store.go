// Package graph implements the knowledge graph: durable entities and
// relationships with confidence and temporal metadata, accumulated from many
// partial sources.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/casefold/matterflow/internal/authority"
	"github.com/casefold/matterflow/internal/model"
)

// DanglingReferenceError is returned when a relationship names an endpoint
// entity that does not exist. Rejected synchronously, never coerced.
type DanglingReferenceError struct {
	Side     string // "from" or "to"
	EntityID string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("graph: dangling %s reference %q", e.Side, e.EntityID)
}

// CachedCitations is a durable research cache entry keyed by query
// fingerprint.
type CachedCitations struct {
	Fingerprint string           `json:"fingerprint"`
	Citations   []model.Citation `json:"citations"`
	Provider    string           `json:"provider,omitempty"`
	CachedAt    time.Time        `json:"cached_at"`
	ExpiresAt   time.Time        `json:"expires_at"`
}

// Expired reports whether the entry is past its TTL at the given instant.
func (c *CachedCitations) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Store defines the persistence interface behind the knowledge graph.
// Implementations: SQLite (default), Postgres, and an in-memory store for
// tests and ephemeral runs. Missing rows are reported as (nil, nil), not
// errors.
type Store interface {
	// Entities
	InsertEntity(ctx context.Context, e *model.Entity) error
	UpdateEntity(ctx context.Context, e *model.Entity) error
	GetEntity(ctx context.Context, id string) (*model.Entity, error)
	GetEntityByKey(ctx context.Context, t model.EntityType, key string) (*model.Entity, error)
	ListEntitiesByType(ctx context.Context, t model.EntityType, jurisdiction string) ([]model.Entity, error)
	ListExpiredEntities(ctx context.Context, now time.Time) ([]model.Entity, error)

	// Relationships
	InsertRelationship(ctx context.Context, r *model.Relationship) error
	ListRelationships(ctx context.Context, entityID string) ([]model.Relationship, error)

	// Research citations cache
	SaveCitations(ctx context.Context, entry *CachedCitations) error
	GetCitations(ctx context.Context, fingerprint string) (*CachedCitations, error)
	DeleteExpiredCitations(ctx context.Context, now time.Time) (int, error)

	// Authority hierarchy snapshots
	SaveAuthorities(ctx context.Context, version int, authorities []authority.Authority) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// EntityKey computes the canonical identity key for an entity name:
// normalized text, so "ACME Corp." and "acme corp" collide on purpose.
func EntityKey(name string) string {
	return model.NormalizeKey(name)
}
