package research

import (
	"fmt"
	"time"

	"github.com/casefold/matterflow/internal/model"
)

// recencyGapYears is the age beyond which a result set with nothing newer is
// flagged as stale coverage.
const recencyGapYears = 10.0

// AnalyzeGaps inspects a ranked result set for coverage weaknesses. Each flag
// carries a recommendation a researcher can act on directly.
func AnalyzeGaps(q model.ResearchQuery, citations []model.Citation, now time.Time) []model.Gap {
	var gaps []model.Gap

	if q.Jurisdiction != "" {
		covered := false
		for _, c := range citations {
			if c.Jurisdiction == q.Jurisdiction {
				covered = true
				break
			}
		}
		if !covered {
			gaps = append(gaps, model.Gap{
				Flag: model.GapJurisdiction,
				Recommendation: fmt.Sprintf(
					"no authority from %s; search %s courts directly or brief with persuasive out-of-jurisdiction authority",
					q.Jurisdiction, q.Jurisdiction),
			})
		}
	}

	recent := false
	for _, c := range citations {
		if c.DecidedAt == nil {
			continue
		}
		if now.Sub(*c.DecidedAt).Hours()/(24*365.25) < recencyGapYears {
			recent = true
			break
		}
	}
	if !recent {
		gaps = append(gaps, model.Gap{
			Flag:           model.GapRecency,
			Recommendation: "no authority from the last decade; verify the older holdings remain good law",
		})
	}

	strong := false
	for _, c := range citations {
		if c.AuthorityLevel <= model.AuthorityAppellate {
			strong = true
			break
		}
	}
	if !strong {
		gaps = append(gaps, model.Gap{
			Flag:           model.GapAuthority,
			Recommendation: "only trial-level or secondary authority found; expand the search to appellate and apex courts",
		})
	}

	return gaps
}
