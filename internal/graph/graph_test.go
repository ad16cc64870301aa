package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casefold/matterflow/internal/model"
)

func newTestGraph(t *testing.T) *Graph {
	t.Helper()
	return New(NewMemoryStore(), DefaultOptions())
}

func partyCandidate(name string) model.EntityCandidate {
	return model.EntityCandidate{
		Type:              model.EntityTypeParty,
		Name:              name,
		Attributes:        map[string]string{"role": "defendant"},
		Provenance:        model.Provenance{Source: "intake"},
		Jurisdiction:      "CA",
		SourceCredibility: 0.8,
		EvidenceCount:     2,
	}
}

func TestUpsertEntity_Insert(t *testing.T) {
	g := newTestGraph(t)

	e, err := g.UpsertEntity(context.Background(), partyCandidate("Acme Corp"))
	require.NoError(t, err)
	require.NotEmpty(t, e.ID)
	assert.Equal(t, "Acme Corp", e.Name)
	assert.Equal(t, "defendant", e.Attributes["role"])
	assert.Greater(t, e.Confidence, 0.0)
	assert.LessOrEqual(t, e.Confidence, 1.0)
}

func TestUpsertEntity_Validation(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	_, err := g.UpsertEntity(ctx, model.EntityCandidate{Type: model.EntityTypeParty})
	assert.Error(t, err)

	_, err = g.UpsertEntity(ctx, model.EntityCandidate{Name: "Acme"})
	assert.Error(t, err)

	bad := partyCandidate("Acme")
	bad.SourceCredibility = 1.5
	_, err = g.UpsertEntity(ctx, bad)
	assert.Error(t, err)

	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)
	inverted := partyCandidate("Acme")
	inverted.Temporal = &model.TemporalContext{ValidFrom: &from, ValidTo: &to}
	_, err = g.UpsertEntity(ctx, inverted)
	assert.Error(t, err)
}

func TestUpsertEntity_IdenticalObservationIsIdempotent(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	first, err := g.UpsertEntity(ctx, partyCandidate("Acme Corp"))
	require.NoError(t, err)

	second, err := g.UpsertEntity(ctx, partyCandidate("Acme Corp"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.Attributes, second.Attributes)
	assert.Empty(t, second.History)
}

func TestUpsertEntity_NormalizedNameCollides(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	first, err := g.UpsertEntity(ctx, partyCandidate("ACME Corp."))
	require.NoError(t, err)

	second, err := g.UpsertEntity(ctx, partyCandidate("acme   corp"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestUpsertEntity_ConflictingAttributeKeepsHistory(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	_, err := g.UpsertEntity(ctx, partyCandidate("Acme Corp"))
	require.NoError(t, err)

	conflicting := partyCandidate("Acme Corp")
	conflicting.Attributes = map[string]string{"role": "plaintiff"}
	conflicting.Provenance.Source = "deposition"

	merged, err := g.UpsertEntity(ctx, conflicting)
	require.NoError(t, err)

	// Stored value wins; the conflicting observation lands in history.
	assert.Equal(t, "defendant", merged.Attributes["role"])
	require.Len(t, merged.History, 1)
	assert.Equal(t, "role", merged.History[0].Key)
	assert.Equal(t, "plaintiff", merged.History[0].Value)
	assert.Equal(t, "deposition", merged.History[0].Source)
}

func TestUpsertEntity_ConfidenceNeverLowered(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	strong := partyCandidate("Acme Corp")
	strong.SourceCredibility = 0.95
	strong.EvidenceCount = 5
	first, err := g.UpsertEntity(ctx, strong)
	require.NoError(t, err)

	weak := partyCandidate("Acme Corp")
	weak.SourceCredibility = 0.1
	weak.EvidenceCount = 0
	second, err := g.UpsertEntity(ctx, weak)
	require.NoError(t, err)

	assert.Equal(t, first.Confidence, second.Confidence)
}

func TestUpsertEntity_JurisdictionMatchRequiresMatter(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	matched := partyCandidate("Acme Corp")
	matched.MatterJurisdiction = "CA"
	a, err := g.UpsertEntity(ctx, matched)
	require.NoError(t, err)

	// Same jurisdiction on the entity, but the matter is governed elsewhere.
	foreign := partyCandidate("Empire Holdings")
	foreign.MatterJurisdiction = "NY"
	b, err := g.UpsertEntity(ctx, foreign)
	require.NoError(t, err)

	assert.InDelta(t, 0.1, a.Confidence-b.Confidence, 1e-9)
}

func TestUpsertEntity_FoundationalBoost(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	plain := partyCandidate("Beta LLC")
	base, err := g.UpsertEntity(ctx, plain)
	require.NoError(t, err)

	boosted := partyCandidate("Gamma Inc")
	boosted.Provenance.Foundational = true
	b, err := g.UpsertEntity(ctx, boosted)
	require.NoError(t, err)

	assert.InDelta(t, base.Confidence+0.2, b.Confidence, 1e-9)
	assert.LessOrEqual(t, b.Confidence, 1.0)
}

func TestAddRelationship_DanglingReferences(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	e, err := g.UpsertEntity(ctx, partyCandidate("Acme Corp"))
	require.NoError(t, err)

	_, err = g.AddRelationship(ctx, "missing", e.ID, model.RelationshipInvolves, nil)
	var dangling *DanglingReferenceError
	require.ErrorAs(t, err, &dangling)
	assert.Equal(t, "from", dangling.Side)
	assert.Equal(t, "missing", dangling.EntityID)

	_, err = g.AddRelationship(ctx, e.ID, "missing", model.RelationshipInvolves, nil)
	require.ErrorAs(t, err, &dangling)
	assert.Equal(t, "to", dangling.Side)
}

func TestAddRelationship_LinksExistingEntities(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	a, err := g.UpsertEntity(ctx, partyCandidate("Acme Corp"))
	require.NoError(t, err)
	fact := partyCandidate("Contract signed 2024-01-15")
	fact.Type = model.EntityTypeFact
	b, err := g.UpsertEntity(ctx, fact)
	require.NoError(t, err)

	r, err := g.AddRelationship(ctx, b.ID, a.ID, model.RelationshipInvolves, []string{"exhibit-3"})
	require.NoError(t, err)

	rels, err := g.Relationships(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, r.ID, rels[0].ID)
	assert.Equal(t, []string{"exhibit-3"}, rels[0].EvidenceRefs)
}

func TestQueryByType_JurisdictionFilter(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	ca := partyCandidate("Acme Corp")
	_, err := g.UpsertEntity(ctx, ca)
	require.NoError(t, err)

	ny := partyCandidate("Empire Holdings")
	ny.Jurisdiction = "NY"
	_, err = g.UpsertEntity(ctx, ny)
	require.NoError(t, err)

	got, err := g.QueryByType(ctx, model.EntityTypeParty, "CA")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Acme Corp", got[0].Name)

	all, err := g.QueryByType(ctx, model.EntityTypeParty, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDecayConfidence_LapsedEntitiesDecayToFloor(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lapsed := now.AddDate(-20, 0, 0)

	cand := partyCandidate("Old Judgment")
	cand.Type = model.EntityTypeDocument
	cand.Temporal = &model.TemporalContext{ValidTo: &lapsed}
	e, err := g.UpsertEntity(ctx, cand)
	require.NoError(t, err)
	require.Greater(t, e.Confidence, 0.1)

	n, err := g.DecayConfidence(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := g.Store().GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, got.Confidence, 1e-9)
}

func TestDecayConfidence_RepeatedRunsStayBounded(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lapsed := now.AddDate(-3, 0, 0)

	cand := partyCandidate("Stale Fact")
	cand.Type = model.EntityTypeFact
	cand.Temporal = &model.TemporalContext{ValidTo: &lapsed}
	e, err := g.UpsertEntity(ctx, cand)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := g.DecayConfidence(ctx, now)
		require.NoError(t, err)
	}

	got, err := g.Store().GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, got.Confidence, 0.1)
	assert.LessOrEqual(t, got.Confidence, 1.0)
}

func TestDecayConfidence_FutureValidityUntouched(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	now := time.Now().UTC()
	future := now.AddDate(1, 0, 0)

	cand := partyCandidate("Current Lease")
	cand.Type = model.EntityTypeDocument
	cand.Temporal = &model.TemporalContext{ValidTo: &future}
	e, err := g.UpsertEntity(ctx, cand)
	require.NoError(t, err)

	n, err := g.DecayConfidence(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := g.Store().GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Confidence, got.Confidence)
}

func TestCachedCitations_Expired(t *testing.T) {
	now := time.Now().UTC()
	entry := CachedCitations{ExpiresAt: now.Add(time.Hour)}
	if entry.Expired(now) {
		t.Fatal("entry should not be expired before its TTL")
	}
	if !entry.Expired(now.Add(2 * time.Hour)) {
		t.Fatal("entry should be expired after its TTL")
	}
}

func TestDanglingReferenceError_Message(t *testing.T) {
	err := &DanglingReferenceError{Side: "from", EntityID: "abc"}
	assert.Contains(t, err.Error(), "from")
	assert.Contains(t, err.Error(), "abc")
	var target *DanglingReferenceError
	assert.True(t, errors.As(err, &target))
}
