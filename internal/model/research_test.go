package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeKey_EquivalentSpellingsCollapse(t *testing.T) {
	assert.Equal(t, NormalizeKey("acme corp"), NormalizeKey("ACME Corp."))
	assert.Equal(t, NormalizeKey("acme corp"), NormalizeKey("Acme,  Corp"))
	assert.Equal(t, "contract signed", NormalizeKey("contract_signed"))
	assert.Equal(t, "o brien v state", NormalizeKey("O'Brien v. State"))
}

func TestNormalizeKey_DigitsSurvive(t *testing.T) {
	assert.Equal(t, "invoice 120 000", NormalizeKey("Invoice: $120,000"))
}

func TestFingerprint_IssueOrderAndCasingInsensitive(t *testing.T) {
	a := ResearchQuery{Text: "Breach of Contract", Jurisdiction: "US-CA", LegalIssues: []string{"damages", "breach"}}
	b := ResearchQuery{Text: "breach of contract", Jurisdiction: "us-ca", LegalIssues: []string{"Breach", "Damages"}}
	c := ResearchQuery{Text: "breach of contract", Jurisdiction: "US-NY", LegalIssues: []string{"breach", "damages"}}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}
