// Package authority resolves precedence and preemption among competing
// jurisdictional sources of law.
package authority

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
)

// Authority is one entry in the jurisdiction hierarchy.
type Authority struct {
	JurisdictionID  string   `json:"jurisdiction_id" yaml:"jurisdiction_id"`
	PrecedenceRank  int      `json:"precedence_rank" yaml:"precedence_rank"`
	Domain          string   `json:"domain,omitempty" yaml:"domain,omitempty"`
	PreemptionScope []string `json:"preemption_scope,omitempty" yaml:"preemption_scope,omitempty"`
}

// Resolution is the outcome of resolving competing authorities. Ties are not
// errors: they are reported unresolved for human review instead of being
// silently broken.
type Resolution struct {
	Winner     *Authority `json:"winner,omitempty"`
	Reason     string     `json:"reason"`
	Unresolved bool       `json:"unresolved"`
	Contenders []string   `json:"contenders,omitempty"`
}

// ErrNoCandidates is returned when Resolve is called with an empty slate.
var ErrNoCandidates = eris.New("authority: no candidates to resolve")

// Resolve picks the controlling authority among candidates. Preemption beats
// rank: if any candidate's domain falls within another's declared preemption
// scope, the preempting authority wins regardless of precedence. Otherwise
// the lowest rank wins; rank ties come back unresolved.
func Resolve(candidates []Authority) (Resolution, error) {
	if len(candidates) == 0 {
		return Resolution{}, ErrNoCandidates
	}
	if len(candidates) == 1 {
		return Resolution{
			Winner: &candidates[0],
			Reason: "sole authority",
		}, nil
	}

	// Preemption pass: an authority whose scope covers another candidate's
	// domain controls it.
	for i := range candidates {
		preemptor := &candidates[i]
		for j := range candidates {
			if i == j {
				continue
			}
			if preempts(*preemptor, candidates[j]) {
				return Resolution{
					Winner: preemptor,
					Reason: fmt.Sprintf("%s preempts %s in domain %q",
						preemptor.JurisdictionID, candidates[j].JurisdictionID, candidates[j].Domain),
				}, nil
			}
		}
	}

	// Rank pass.
	sorted := make([]Authority, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].PrecedenceRank < sorted[b].PrecedenceRank
	})

	if sorted[0].PrecedenceRank == sorted[1].PrecedenceRank {
		var tied []string
		for _, c := range sorted {
			if c.PrecedenceRank == sorted[0].PrecedenceRank {
				tied = append(tied, c.JurisdictionID)
			}
		}
		return Resolution{
			Unresolved: true,
			Reason:     fmt.Sprintf("precedence tie at rank %d requires human review", sorted[0].PrecedenceRank),
			Contenders: tied,
		}, nil
	}

	return Resolution{
		Winner: &sorted[0],
		Reason: fmt.Sprintf("lowest precedence rank %d", sorted[0].PrecedenceRank),
	}, nil
}

func preempts(a, b Authority) bool {
	if b.Domain == "" {
		return false
	}
	for _, scope := range a.PreemptionScope {
		if scope == b.Domain {
			return true
		}
	}
	return false
}
