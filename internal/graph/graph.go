package graph

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/casefold/matterflow/internal/confidence"
	"github.com/casefold/matterflow/internal/model"
)

// decayFloor is the confidence below which stale entities are never pushed.
// Stale, not erased: superseded knowledge keeps a residual weight.
const decayFloor = 0.1

// lockStripes sizes the keyed mutex table that serializes writers per entity
// identity.
const lockStripes = 64

// Options tunes ingestion behavior.
type Options struct {
	// FoundationalBoost is added once at ingestion for entities from
	// foundational channels, then clamped. Default 0.2.
	FoundationalBoost float64
}

// DefaultOptions returns the standard ingestion tuning.
func DefaultOptions() Options {
	return Options{FoundationalBoost: 0.2}
}

// Graph is the service layer over a Store. All mutations of a given entity
// identity are serialized through a striped lock; reads go straight to the
// store and may proceed concurrently with writes to other ids.
type Graph struct {
	store Store
	opts  Options
	locks [lockStripes]sync.Mutex
}

// New creates a Graph over the given store.
func New(store Store, opts Options) *Graph {
	if opts.FoundationalBoost <= 0 {
		opts.FoundationalBoost = DefaultOptions().FoundationalBoost
	}
	return &Graph{store: store, opts: opts}
}

func (g *Graph) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &g.locks[h.Sum32()%lockStripes]
}

// UpsertEntity ingests an observation. If an entity with the same canonical
// identity (type + normalized name) exists, attributes merge — the candidate
// wins only where the stored field is empty, conflicting values are retained
// as history — and confidence becomes max(stored, scored): a weaker
// observation never lowers an existing belief. Idempotent under identical
// input.
func (g *Graph) UpsertEntity(ctx context.Context, cand model.EntityCandidate) (*model.Entity, error) {
	if cand.Name == "" {
		return nil, eris.New("graph: candidate missing name")
	}
	if cand.Type == "" {
		return nil, eris.New("graph: candidate missing type")
	}
	if cand.SourceCredibility < 0 || cand.SourceCredibility > 1 {
		return nil, eris.Errorf("graph: source credibility %v out of range", cand.SourceCredibility)
	}
	if cand.Temporal != nil && cand.Temporal.ValidFrom != nil && cand.Temporal.ValidTo != nil &&
		cand.Temporal.ValidTo.Before(*cand.Temporal.ValidFrom) {
		return nil, eris.New("graph: temporal context ends before it starts")
	}

	key := EntityKey(cand.Name)
	identity := string(cand.Type) + "\x00" + key

	mu := g.lockFor(identity)
	mu.Lock()
	defer mu.Unlock()

	score := confidence.Score(confidence.Factors{
		SourceCredibility: cand.SourceCredibility,
		EvidenceCount:     cand.EvidenceCount,
		RecencyYears:      cand.RecencyYears,
		JurisdictionMatch: cand.Jurisdiction != "" &&
			strings.EqualFold(cand.Jurisdiction, cand.MatterJurisdiction),
	})
	if cand.Provenance.Foundational {
		score = confidence.Clamp(score + g.opts.FoundationalBoost)
	}

	now := time.Now().UTC()

	existing, err := g.store.GetEntityByKey(ctx, cand.Type, key)
	if err != nil {
		return nil, eris.Wrap(err, "graph: lookup entity")
	}

	if existing == nil {
		e := &model.Entity{
			ID:           uuid.New().String(),
			Type:         cand.Type,
			Name:         cand.Name,
			Attributes:   cloneAttrs(cand.Attributes),
			Confidence:   score,
			Provenance:   cand.Provenance,
			Temporal:     cand.Temporal,
			Jurisdiction: cand.Jurisdiction,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if e.Attributes == nil {
			e.Attributes = make(map[string]string)
		}
		if err := g.store.InsertEntity(ctx, e); err != nil {
			return nil, eris.Wrap(err, "graph: insert entity")
		}
		zap.L().Debug("graph: entity inserted",
			zap.String("id", e.ID),
			zap.String("type", string(e.Type)),
			zap.Float64("confidence", e.Confidence),
		)
		return e, nil
	}

	// Merge into the stored entity.
	changed := false
	for k, v := range cand.Attributes {
		stored, ok := existing.Attributes[k]
		switch {
		case !ok || stored == "":
			existing.Attributes[k] = v
			changed = true
		case stored == v:
			// Identical observation, nothing to record.
		default:
			existing.History = append(existing.History, model.AttributeRevision{
				Key:        k,
				Value:      v,
				Source:     cand.Provenance.Source,
				RecordedAt: now,
			})
			changed = true
		}
	}

	if score > existing.Confidence {
		existing.Confidence = score
		changed = true
	}
	if existing.Temporal == nil && cand.Temporal != nil {
		existing.Temporal = cand.Temporal
		changed = true
	}

	if changed {
		existing.UpdatedAt = now
		if err := g.store.UpdateEntity(ctx, existing); err != nil {
			return nil, eris.Wrap(err, "graph: update entity")
		}
	}
	return existing, nil
}

// AddRelationship links two existing entities. Fails with
// DanglingReferenceError if either endpoint is absent.
func (g *Graph) AddRelationship(ctx context.Context, from, to string, relType model.RelationshipType, evidenceRefs []string) (*model.Relationship, error) {
	if fromEnt, err := g.store.GetEntity(ctx, from); err != nil {
		return nil, eris.Wrap(err, "graph: lookup from entity")
	} else if fromEnt == nil {
		return nil, &DanglingReferenceError{Side: "from", EntityID: from}
	}
	if toEnt, err := g.store.GetEntity(ctx, to); err != nil {
		return nil, eris.Wrap(err, "graph: lookup to entity")
	} else if toEnt == nil {
		return nil, &DanglingReferenceError{Side: "to", EntityID: to}
	}

	now := time.Now().UTC()
	r := &model.Relationship{
		ID:           uuid.New().String(),
		FromEntityID: from,
		ToEntityID:   to,
		Type:         relType,
		Confidence:   1,
		Validity:     model.TemporalValidity{Start: now},
		EvidenceRefs: evidenceRefs,
		CreatedAt:    now,
	}
	if err := g.store.InsertRelationship(ctx, r); err != nil {
		return nil, eris.Wrap(err, "graph: insert relationship")
	}
	return r, nil
}

// QueryByType returns entities of the given type, optionally filtered by
// jurisdiction. Read-only.
func (g *Graph) QueryByType(ctx context.Context, t model.EntityType, jurisdiction string) ([]model.Entity, error) {
	entities, err := g.store.ListEntitiesByType(ctx, t, jurisdiction)
	if err != nil {
		return nil, eris.Wrap(err, "graph: query by type")
	}
	return entities, nil
}

// Relationships returns the edges touching an entity.
func (g *Graph) Relationships(ctx context.Context, entityID string) ([]model.Relationship, error) {
	rels, err := g.store.ListRelationships(ctx, entityID)
	if err != nil {
		return nil, eris.Wrap(err, "graph: list relationships")
	}
	return rels, nil
}

// DecayConfidence reduces the confidence of entities whose temporal validity
// has lapsed, on the shared recency curve, never below the floor. Returns the
// number of entities adjusted. Run periodically as batch maintenance.
func (g *Graph) DecayConfidence(ctx context.Context, now time.Time) (int, error) {
	expired, err := g.store.ListExpiredEntities(ctx, now)
	if err != nil {
		return 0, eris.Wrap(err, "graph: list expired entities")
	}

	adjusted := 0
	for i := range expired {
		e := &expired[i]
		if e.Temporal == nil || e.Temporal.ValidTo == nil {
			continue
		}
		yearsPast := now.Sub(*e.Temporal.ValidTo).Hours() / (24 * 365.25)
		decayed := e.Confidence * confidence.RecencyDecay(yearsPast)
		if decayed < decayFloor {
			decayed = decayFloor
		}
		if decayed >= e.Confidence {
			continue
		}

		mu := g.lockFor(string(e.Type) + "\x00" + EntityKey(e.Name))
		mu.Lock()
		e.Confidence = decayed
		e.UpdatedAt = now
		err := g.store.UpdateEntity(ctx, e)
		mu.Unlock()
		if err != nil {
			return adjusted, eris.Wrapf(err, "graph: decay entity %s", e.ID)
		}
		adjusted++
	}

	if adjusted > 0 {
		zap.L().Info("graph: confidence decay applied",
			zap.Int("entities", adjusted),
			zap.Time("as_of", now),
		)
	}
	return adjusted, nil
}

// Store exposes the underlying persistence layer for components that share
// it (research citation cache, authority snapshots).
func (g *Graph) Store() Store {
	return g.store
}

func cloneAttrs(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
