package research

import (
	"sort"
	"strings"
	"time"

	"github.com/casefold/matterflow/internal/confidence"
	"github.com/casefold/matterflow/internal/model"
)

// Relevance weighting. Authority level is fixed by source type; relevance is
// query-dependent and recomputed for every query, never cached across them.
const (
	weightTermOverlap  = 0.5
	weightIssueMatch   = 0.2 // per matched issue; the final clamp caps the total
	weightJurisdiction = 0.2
	weightRecency      = 0.1
)

// authorityLevelFor maps a provider source type onto the fixed 1..5 scale.
func authorityLevelFor(sourceType string) model.AuthorityLevel {
	switch sourceType {
	case "constitution", "statute", "opinion_apex":
		return model.AuthorityApex
	case "opinion_appellate":
		return model.AuthorityAppellate
	case "opinion_trial":
		return model.AuthorityTrial
	case "regulation":
		return model.AuthorityRegulatory
	default:
		return model.AuthoritySecondary
	}
}

// Rank scores raw provider hits against the query and orders them: authority
// level ascending, relevance descending within a level.
func Rank(q model.ResearchQuery, raws []model.RawCitation, now time.Time) []model.Citation {
	out := make([]model.Citation, 0, len(raws))
	for _, raw := range raws {
		out = append(out, model.Citation{
			SourceID:       raw.SourceID,
			Title:          raw.Title,
			Excerpt:        raw.Excerpt,
			Jurisdiction:   raw.Jurisdiction,
			AuthorityLevel: authorityLevelFor(raw.SourceType),
			RelevanceScore: relevance(q, raw, now),
			DecidedAt:      raw.DecidedAt,
			URL:            raw.URL,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AuthorityLevel != out[j].AuthorityLevel {
			return out[i].AuthorityLevel < out[j].AuthorityLevel
		}
		return out[i].RelevanceScore > out[j].RelevanceScore
	})
	return out
}

func relevance(q model.ResearchQuery, raw model.RawCitation, now time.Time) float64 {
	text := model.NormalizeKey(raw.Title + " " + raw.Excerpt)

	score := weightTermOverlap * termOverlap(q.Text, text)

	for _, issue := range q.LegalIssues {
		if containsAllTerms(text, issue) {
			score += weightIssueMatch
		}
	}

	if raw.Jurisdiction != "" && raw.Jurisdiction == q.Jurisdiction {
		score += weightJurisdiction
	}

	if raw.DecidedAt != nil {
		age := now.Sub(*raw.DecidedAt).Hours() / (24 * 365.25)
		score += weightRecency * confidence.RecencyDecay(age)
	}

	return confidence.Clamp(score)
}

// termOverlap is the fraction of query terms present in the candidate text.
func termOverlap(query, text string) float64 {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return 0
	}
	textTerms := make(map[string]bool)
	for _, t := range strings.Fields(text) {
		textTerms[t] = true
	}
	matched := 0
	for _, t := range terms {
		if textTerms[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

func containsAllTerms(text, phrase string) bool {
	for _, t := range strings.Fields(phrase) {
		if !strings.Contains(text, t) {
			return false
		}
	}
	return true
}
