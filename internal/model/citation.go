package model

import "time"

// AuthorityLevel ranks a citation's source type. 1 is highest (apex courts,
// constitutions) down to 5 (persuasive and secondary material). The level is
// fixed by source type; relevance is query-dependent and recomputed per query.
type AuthorityLevel int

const (
	AuthorityApex       AuthorityLevel = 1
	AuthorityAppellate  AuthorityLevel = 2
	AuthorityTrial      AuthorityLevel = 3
	AuthorityRegulatory AuthorityLevel = 4
	AuthoritySecondary  AuthorityLevel = 5
)

// Citation is a ranked research result.
type Citation struct {
	SourceID       string         `json:"source_id"`
	Title          string         `json:"title"`
	Excerpt        string         `json:"excerpt,omitempty"`
	Jurisdiction   string         `json:"jurisdiction,omitempty"`
	AuthorityLevel AuthorityLevel `json:"authority_level"`
	RelevanceScore float64        `json:"relevance_score"`
	DecidedAt      *time.Time     `json:"decided_at,omitempty"`
	URL            string         `json:"url,omitempty"`
	Provider       string         `json:"provider,omitempty"`
	CachedAt       time.Time      `json:"cached_at,omitempty"`
}

// RawCitation is what an authority provider returns before ranking. Authority
// level and relevance are assigned by the research layer.
type RawCitation struct {
	SourceID     string     `json:"source_id"`
	Title        string     `json:"title"`
	Excerpt      string     `json:"excerpt,omitempty"`
	Jurisdiction string     `json:"jurisdiction,omitempty"`
	SourceType   string     `json:"source_type,omitempty"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`
	URL          string     `json:"url,omitempty"`
}
