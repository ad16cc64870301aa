package model

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ResearchQuery is a deterministic query against external authority providers.
type ResearchQuery struct {
	Text         string   `json:"text"`
	Jurisdiction string   `json:"jurisdiction"`
	LegalIssues  []string `json:"legal_issues"`
}

// NormalizeKey canonicalizes free text for identity and fingerprint purposes:
// NFKC normalization, case folding, punctuation dropped, whitespace collapsed.
// "ACME Corp." and "acme corp" share a key.
func NormalizeKey(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// Fingerprint returns the canonical cache key for the query: normalized text
// plus jurisdiction plus the sorted issue set. Equivalent queries share a
// fingerprint regardless of issue ordering or casing.
func (q ResearchQuery) Fingerprint() string {
	issues := make([]string, 0, len(q.LegalIssues))
	for _, is := range q.LegalIssues {
		issues = append(issues, NormalizeKey(is))
	}
	sort.Strings(issues)

	h := sha256.New()
	h.Write([]byte(NormalizeKey(q.Text)))
	h.Write([]byte{0})
	h.Write([]byte(NormalizeKey(q.Jurisdiction)))
	for _, is := range issues {
		h.Write([]byte{0})
		h.Write([]byte(is))
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// GapFlag identifies a coverage weakness in a result set.
type GapFlag string

const (
	GapJurisdiction GapFlag = "missing_jurisdiction_coverage"
	GapRecency      GapFlag = "insufficient_recency"
	GapAuthority    GapFlag = "authority_thinness"
)

// Gap pairs a flag with a textual recommendation.
type Gap struct {
	Flag           GapFlag `json:"flag"`
	Recommendation string  `json:"recommendation"`
}

// ResearchResult is the outcome of executing a query through the provider
// chain. Degraded outcomes are flagged, never silently absorbed: Stale marks
// a cached fallback, InsufficientCoverage marks an empty result when every
// provider and the cache came up dry.
type ResearchResult struct {
	Query                ResearchQuery `json:"query"`
	Fingerprint          string        `json:"fingerprint"`
	Citations            []Citation    `json:"citations"`
	SourceProvider       string        `json:"source_provider,omitempty"`
	GapsIdentified       []Gap         `json:"gaps_identified,omitempty"`
	Stale                bool          `json:"stale,omitempty"`
	InsufficientCoverage bool          `json:"insufficient_coverage,omitempty"`
	ExecutedAt           time.Time     `json:"executed_at"`
}
