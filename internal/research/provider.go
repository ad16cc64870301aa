// Package research executes legal research queries through a prioritized
// provider chain with rate limiting, circuit breaking, and cache fallback.
package research

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/casefold/matterflow/internal/model"
	"github.com/casefold/matterflow/internal/resilience"
	"github.com/casefold/matterflow/pkg/courtlistener"
	"github.com/casefold/matterflow/pkg/govinfo"
)

// ProviderResponse carries raw hits plus the rate headroom the provider
// reported, used to resync the local token bucket.
type ProviderResponse struct {
	Citations     []model.RawCitation
	RateRemaining int
	RateResetAt   time.Time
}

// Provider is one external authority source in the chain.
type Provider interface {
	Name() string
	Search(ctx context.Context, q model.ResearchQuery) (*ProviderResponse, error)
}

// jurisdictionCourts maps matter jurisdictions to CourtListener court filters.
var jurisdictionCourts = map[string]string{
	"US":    "scotus",
	"US-CA": "cal calctapp",
	"US-NY": "ny nyappdiv",
	"US-TX": "tex texapp",
	"US-FL": "fla fladistctapp",
}

// CourtListenerProvider searches case law via the CourtListener API.
type CourtListenerProvider struct {
	client courtlistener.Client
}

// NewCourtListenerProvider wraps a CourtListener client as a chain provider.
func NewCourtListenerProvider(client courtlistener.Client) *CourtListenerProvider {
	return &CourtListenerProvider{client: client}
}

func (p *CourtListenerProvider) Name() string { return "courtlistener" }

func (p *CourtListenerProvider) Search(ctx context.Context, q model.ResearchQuery) (*ProviderResponse, error) {
	resp, err := p.client.Search(ctx, courtlistener.SearchRequest{
		Query:    q.Text,
		Court:    jurisdictionCourts[q.Jurisdiction],
		PageSize: 20,
	})
	if err != nil {
		return nil, classifyProviderError(p.Name(), err)
	}

	out := &ProviderResponse{
		RateRemaining: resp.RateRemaining,
		RateResetAt:   resp.RateResetAt,
	}
	for _, op := range resp.Results {
		raw := model.RawCitation{
			SourceID:     "cl-" + strconv.Itoa(op.ID),
			Title:        op.CaseName,
			Excerpt:      op.Snippet,
			Jurisdiction: courtJurisdiction(op.CourtID),
			SourceType:   courtSourceType(op.CourtID),
			URL:          "https://www.courtlistener.com" + op.AbsoluteURL,
		}
		if t, err := time.Parse("2006-01-02", op.DateFiled); err == nil {
			raw.DecidedAt = &t
		}
		out.Citations = append(out.Citations, raw)
	}
	return out, nil
}

// GovInfoProvider searches statutes and regulations via the govinfo API.
type GovInfoProvider struct {
	client govinfo.Client
}

// NewGovInfoProvider wraps a govinfo client as a chain provider.
func NewGovInfoProvider(client govinfo.Client) *GovInfoProvider {
	return &GovInfoProvider{client: client}
}

func (p *GovInfoProvider) Name() string { return "govinfo" }

func (p *GovInfoProvider) Search(ctx context.Context, q model.ResearchQuery) (*ProviderResponse, error) {
	text := q.Text
	if q.Jurisdiction != "" {
		text += " " + q.Jurisdiction
	}
	resp, err := p.client.Search(ctx, govinfo.SearchRequest{Query: text, PageSize: 20})
	if err != nil {
		return nil, classifyProviderError(p.Name(), err)
	}

	out := &ProviderResponse{
		RateRemaining: resp.RateRemaining,
		RateResetAt:   resp.RateResetAt,
	}
	for _, pkg := range resp.Packages {
		raw := model.RawCitation{
			SourceID:     "gi-" + pkg.PackageID,
			Title:        pkg.Title,
			Jurisdiction: "US",
			SourceType:   collectionSourceType(pkg.Collection),
			URL:          pkg.DownloadURL,
		}
		if t, err := time.Parse("2006-01-02", pkg.DateIssued); err == nil {
			raw.DecidedAt = &t
		}
		out.Citations = append(out.Citations, raw)
	}
	return out, nil
}

// classifyProviderError maps API failures onto the resilience taxonomy so the
// retry and breaker layers treat them correctly.
func classifyProviderError(provider string, err error) error {
	var clErr *courtlistener.StatusError
	if errors.As(err, &clErr) {
		return statusToError(provider, clErr.StatusCode, err)
	}
	var giErr *govinfo.StatusError
	if errors.As(err, &giErr) {
		return statusToError(provider, giErr.StatusCode, err)
	}
	return eris.Wrapf(err, "research: provider %s", provider)
}

func statusToError(provider string, status int, err error) error {
	if status == 429 {
		return &resilience.RateLimitedError{Provider: provider}
	}
	if resilience.IsTransientHTTPStatus(status) {
		return resilience.NewTransientError(err, status)
	}
	return eris.Wrapf(err, "research: provider %s", provider)
}

func courtSourceType(courtID string) string {
	switch {
	case courtID == "scotus", courtID == "cal", courtID == "ny", courtID == "tex", courtID == "fla":
		return "opinion_apex"
	case strings.Contains(courtID, "app") || strings.HasPrefix(courtID, "ca"):
		return "opinion_appellate"
	default:
		return "opinion_trial"
	}
}

func courtJurisdiction(courtID string) string {
	switch {
	case strings.HasPrefix(courtID, "cal"):
		return "US-CA"
	case strings.HasPrefix(courtID, "ny"):
		return "US-NY"
	case strings.HasPrefix(courtID, "tex"):
		return "US-TX"
	case strings.HasPrefix(courtID, "fla"):
		return "US-FL"
	case courtID == "scotus" || strings.HasPrefix(courtID, "ca"):
		return "US"
	default:
		return ""
	}
}

func collectionSourceType(collection string) string {
	switch collection {
	case "USCODE", "STATUTE", "PLAW":
		return "statute"
	case "CFR", "FR":
		return "regulation"
	default:
		return "secondary"
	}
}

