package graph

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/casefold/matterflow/internal/authority"
	"github.com/casefold/matterflow/internal/model"
)

// MemoryStore is an in-memory Store for tests and ephemeral runs. Reads
// return copies, so callers observe a snapshot rather than shared state.
type MemoryStore struct {
	mu          sync.RWMutex
	entities    map[string]model.Entity // by id
	byKey       map[string]string       // type+key -> id
	rels        map[string]model.Relationship
	citations   map[string]CachedCitations
	authVersion int
	authorities []authority.Authority
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities:  make(map[string]model.Entity),
		byKey:     make(map[string]string),
		rels:      make(map[string]model.Relationship),
		citations: make(map[string]CachedCitations),
	}
}

func identityKey(t model.EntityType, key string) string {
	return string(t) + "\x00" + key
}

func (s *MemoryStore) InsertEntity(_ context.Context, e *model.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[e.ID] = copyEntity(*e)
	s.byKey[identityKey(e.Type, EntityKey(e.Name))] = e.ID
	return nil
}

func (s *MemoryStore) UpdateEntity(_ context.Context, e *model.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[e.ID] = copyEntity(*e)
	return nil
}

func (s *MemoryStore) GetEntity(_ context.Context, id string) (*model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, nil
	}
	out := copyEntity(e)
	return &out, nil
}

func (s *MemoryStore) GetEntityByKey(_ context.Context, t model.EntityType, key string) (*model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[identityKey(t, key)]
	if !ok {
		return nil, nil
	}
	e := copyEntity(s.entities[id])
	return &e, nil
}

func (s *MemoryStore) ListEntitiesByType(_ context.Context, t model.EntityType, jurisdiction string) ([]model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Entity
	for _, e := range s.entities {
		if e.Type != t {
			continue
		}
		if jurisdiction != "" && e.Jurisdiction != jurisdiction {
			continue
		}
		out = append(out, copyEntity(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListExpiredEntities(_ context.Context, now time.Time) ([]model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Entity
	for _, e := range s.entities {
		if e.Temporal != nil && e.Temporal.ValidTo != nil && e.Temporal.ValidTo.Before(now) {
			out = append(out, copyEntity(e))
		}
	}
	return out, nil
}

func (s *MemoryStore) InsertRelationship(_ context.Context, r *model.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rels[r.ID] = *r
	return nil
}

func (s *MemoryStore) ListRelationships(_ context.Context, entityID string) ([]model.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Relationship
	for _, r := range s.rels {
		if r.FromEntityID == entityID || r.ToEntityID == entityID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveCitations(_ context.Context, entry *CachedCitations) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.citations[entry.Fingerprint] = *entry
	return nil
}

func (s *MemoryStore) GetCitations(_ context.Context, fingerprint string) (*CachedCitations, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.citations[fingerprint]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *MemoryStore) DeleteExpiredCitations(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for fp, c := range s.citations {
		if c.Expired(now) {
			delete(s.citations, fp)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) SaveAuthorities(_ context.Context, version int, authorities []authority.Authority) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authVersion = version
	s.authorities = append([]authority.Authority(nil), authorities...)
	return nil
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func copyEntity(e model.Entity) model.Entity {
	out := e
	out.Attributes = make(map[string]string, len(e.Attributes))
	for k, v := range e.Attributes {
		out.Attributes[k] = v
	}
	out.History = append([]model.AttributeRevision(nil), e.History...)
	return out
}
