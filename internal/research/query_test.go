package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casefold/matterflow/internal/model"
)

func TestFormulateQuery_Deterministic(t *testing.T) {
	entities := []model.Entity{
		{Type: model.EntityTypeFact, Name: "Defendant breached the agreement", Confidence: 0.9},
		{Type: model.EntityTypeFact, Name: "Plaintiff performed on schedule", Confidence: 0.7},
		{Type: model.EntityTypeParty, Name: "Acme Corp", Confidence: 1.0},
	}

	a := FormulateQuery(entities, []string{"Breach of Contract", "damages"}, "US-CA")
	b := FormulateQuery(entities, []string{"damages", "breach of contract"}, "US-CA")

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Equal(t, a.Text, b.Text)
	assert.Equal(t, []string{"breach of contract", "damages"}, a.LegalIssues)
}

func TestFormulateQuery_ExcludesNonFactEntities(t *testing.T) {
	entities := []model.Entity{
		{Type: model.EntityTypeParty, Name: "Acme Corp", Confidence: 1.0},
		{Type: model.EntityTypeFact, Name: "Contract was signed", Confidence: 0.8},
	}

	q := FormulateQuery(entities, nil, "US-CA")
	assert.Contains(t, q.Text, "contract was signed")
	assert.NotContains(t, q.Text, "acme")
}

func TestFormulateQuery_CapsFactCount(t *testing.T) {
	var entities []model.Entity
	for i := 0; i < 10; i++ {
		entities = append(entities, model.Entity{
			Type:       model.EntityTypeFact,
			Name:       "fact number " + string(rune('a'+i)),
			Confidence: float64(i) / 10,
		})
	}

	q := FormulateQuery(entities, nil, "US-CA")
	// Highest-confidence facts kept, lowest dropped.
	assert.Contains(t, q.Text, "fact number j")
	assert.NotContains(t, q.Text, "fact number a")
}

func TestFingerprint_DistinguishesJurisdiction(t *testing.T) {
	base := model.ResearchQuery{Text: "breach of contract", Jurisdiction: "US-CA"}
	other := model.ResearchQuery{Text: "breach of contract", Jurisdiction: "US-NY"}
	require.NotEqual(t, base.Fingerprint(), other.Fingerprint())
}
