package authority

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Empty(t *testing.T) {
	_, err := Resolve(nil)
	assert.True(t, eris.Is(err, ErrNoCandidates))
}

func TestResolve_SoleAuthority(t *testing.T) {
	res, err := Resolve([]Authority{{JurisdictionID: "CA", PrecedenceRank: 3}})
	require.NoError(t, err)
	require.NotNil(t, res.Winner)
	assert.Equal(t, "CA", res.Winner.JurisdictionID)
	assert.False(t, res.Unresolved)
}

func TestResolve_PreemptionBeatsRank(t *testing.T) {
	candidates := []Authority{
		{JurisdictionID: "CA", PrecedenceRank: 1, Domain: "consumer_protection"},
		{JurisdictionID: "US", PrecedenceRank: 5, PreemptionScope: []string{"consumer_protection"}},
	}
	res, err := Resolve(candidates)
	require.NoError(t, err)
	require.NotNil(t, res.Winner)
	assert.Equal(t, "US", res.Winner.JurisdictionID)
	assert.Contains(t, res.Reason, "preempts")
}

func TestResolve_LowestRankWins(t *testing.T) {
	candidates := []Authority{
		{JurisdictionID: "county", PrecedenceRank: 4},
		{JurisdictionID: "state", PrecedenceRank: 2},
		{JurisdictionID: "city", PrecedenceRank: 5},
	}
	res, err := Resolve(candidates)
	require.NoError(t, err)
	require.NotNil(t, res.Winner)
	assert.Equal(t, "state", res.Winner.JurisdictionID)
}

func TestResolve_TieIsUnresolved(t *testing.T) {
	candidates := []Authority{
		{JurisdictionID: "NV", PrecedenceRank: 2},
		{JurisdictionID: "AZ", PrecedenceRank: 2},
	}
	res, err := Resolve(candidates)
	require.NoError(t, err)
	assert.True(t, res.Unresolved)
	assert.Nil(t, res.Winner)
	assert.ElementsMatch(t, []string{"NV", "AZ"}, res.Contenders)
}

func TestLoad_Valid(t *testing.T) {
	h, err := Load([]byte(`
version: 3
authorities:
  - jurisdiction_id: US
    precedence_rank: 1
    preemption_scope: [securities]
  - jurisdiction_id: CA
    precedence_rank: 2
    domain: securities
`))
	require.NoError(t, err)
	assert.Equal(t, 3, h.Version)

	a, ok := h.Lookup("CA")
	require.True(t, ok)
	assert.Equal(t, 2, a.PrecedenceRank)
	assert.Len(t, h.Candidates("securities"), 1)
}

func TestLoad_CyclicPreemptionRejected(t *testing.T) {
	_, err := Load([]byte(`
version: 1
authorities:
  - jurisdiction_id: A
    precedence_rank: 1
    domain: alpha
    preemption_scope: [beta]
  - jurisdiction_id: B
    precedence_rank: 2
    domain: beta
    preemption_scope: [alpha]
`))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrPreemptionCycle))
}

func TestLoad_DuplicateJurisdictionRejected(t *testing.T) {
	_, err := Load([]byte(`
authorities:
  - jurisdiction_id: CA
    precedence_rank: 1
  - jurisdiction_id: CA
    precedence_rank: 2
`))
	assert.Error(t, err)
}

func TestLoad_SelfPreemptionIsNotACycle(t *testing.T) {
	// An authority listing its own domain does not preempt itself.
	h, err := Load([]byte(`
authorities:
  - jurisdiction_id: US
    precedence_rank: 1
    domain: tax
    preemption_scope: [tax]
`))
	require.NoError(t, err)
	assert.Len(t, h.Authorities, 1)
}

func TestDefaultHierarchy(t *testing.T) {
	h, err := DefaultHierarchy()
	require.NoError(t, err)
	assert.Equal(t, 1, h.Version)

	fed, ok := h.Lookup("US-FED")
	require.True(t, ok)
	assert.Equal(t, 1, fed.PrecedenceRank)

	// Federal preemption wins the securities domain despite the SEC entry.
	res, err := Resolve(append(h.Candidates("securities"), fed))
	require.NoError(t, err)
	require.NotNil(t, res.Winner)
	assert.Equal(t, "US-FED", res.Winner.JurisdictionID)
}
