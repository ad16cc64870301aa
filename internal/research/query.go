package research

import (
	"sort"
	"strings"

	"github.com/casefold/matterflow/internal/model"
)

// maxQueryFacts bounds how many fact names contribute to the query text.
const maxQueryFacts = 5

// FormulateQuery builds a deterministic research query from graph entities
// and legal issues. No network calls; identical inputs produce an identical
// query, and therefore an identical fingerprint.
func FormulateQuery(entities []model.Entity, issues []string, jurisdiction string) model.ResearchQuery {
	normalized := make([]string, 0, len(issues))
	seen := make(map[string]bool)
	for _, is := range issues {
		key := model.NormalizeKey(is)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		normalized = append(normalized, key)
	}
	sort.Strings(normalized)

	// Highest-confidence facts anchor the query text.
	facts := make([]model.Entity, 0, len(entities))
	for _, e := range entities {
		if e.Type == model.EntityTypeFact || e.Type == model.EntityTypeIssue {
			facts = append(facts, e)
		}
	}
	sort.SliceStable(facts, func(i, j int) bool {
		if facts[i].Confidence != facts[j].Confidence {
			return facts[i].Confidence > facts[j].Confidence
		}
		return facts[i].Name < facts[j].Name
	})
	if len(facts) > maxQueryFacts {
		facts = facts[:maxQueryFacts]
	}

	var parts []string
	parts = append(parts, normalized...)
	for _, f := range facts {
		parts = append(parts, model.NormalizeKey(f.Name))
	}

	return model.ResearchQuery{
		Text:         strings.Join(parts, " "),
		Jurisdiction: jurisdiction,
		LegalIssues:  normalized,
	}
}
