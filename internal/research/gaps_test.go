package research

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/casefold/matterflow/internal/model"
)

func gapFlags(gaps []model.Gap) []model.GapFlag {
	out := make([]model.GapFlag, 0, len(gaps))
	for _, g := range gaps {
		out = append(out, g.Flag)
	}
	return out
}

func TestAnalyzeGaps_MissingJurisdictionCoverage(t *testing.T) {
	now := time.Now()
	recent := now.AddDate(-2, 0, 0)
	q := model.ResearchQuery{Text: "breach of contract", Jurisdiction: "US-CA"}

	citations := []model.Citation{
		{SourceID: "ny", Jurisdiction: "US-NY", AuthorityLevel: model.AuthorityApex, DecidedAt: &recent},
	}

	flags := gapFlags(AnalyzeGaps(q, citations, now))
	assert.Contains(t, flags, model.GapJurisdiction)
	assert.NotContains(t, flags, model.GapRecency)
	assert.NotContains(t, flags, model.GapAuthority)
}

func TestAnalyzeGaps_InsufficientRecency(t *testing.T) {
	now := time.Now()
	old := now.AddDate(-25, 0, 0)
	q := model.ResearchQuery{Text: "breach of contract", Jurisdiction: "US-CA"}

	citations := []model.Citation{
		{SourceID: "old", Jurisdiction: "US-CA", AuthorityLevel: model.AuthorityApex, DecidedAt: &old},
	}

	flags := gapFlags(AnalyzeGaps(q, citations, now))
	assert.Contains(t, flags, model.GapRecency)
	assert.NotContains(t, flags, model.GapJurisdiction)
}

func TestAnalyzeGaps_AuthorityThinness(t *testing.T) {
	now := time.Now()
	recent := now.AddDate(-1, 0, 0)
	q := model.ResearchQuery{Text: "breach of contract", Jurisdiction: "US-CA"}

	citations := []model.Citation{
		{SourceID: "trial", Jurisdiction: "US-CA", AuthorityLevel: model.AuthorityTrial, DecidedAt: &recent},
		{SourceID: "secondary", Jurisdiction: "US-CA", AuthorityLevel: model.AuthoritySecondary, DecidedAt: &recent},
	}

	flags := gapFlags(AnalyzeGaps(q, citations, now))
	assert.Contains(t, flags, model.GapAuthority)
}

func TestAnalyzeGaps_CleanResultSet(t *testing.T) {
	now := time.Now()
	recent := now.AddDate(-3, 0, 0)
	q := model.ResearchQuery{Text: "breach of contract", Jurisdiction: "US-CA"}

	citations := []model.Citation{
		{SourceID: "good", Jurisdiction: "US-CA", AuthorityLevel: model.AuthorityAppellate, DecidedAt: &recent},
	}

	assert.Empty(t, AnalyzeGaps(q, citations, now))
}

func TestAnalyzeGaps_EmptyResults(t *testing.T) {
	q := model.ResearchQuery{Text: "breach of contract", Jurisdiction: "US-CA"}
	flags := gapFlags(AnalyzeGaps(q, nil, time.Now()))
	assert.Contains(t, flags, model.GapJurisdiction)
	assert.Contains(t, flags, model.GapRecency)
	assert.Contains(t, flags, model.GapAuthority)
}
