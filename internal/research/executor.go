package research

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/casefold/matterflow/internal/graph"
	"github.com/casefold/matterflow/internal/model"
	"github.com/casefold/matterflow/internal/resilience"
)

// ExecutorConfig tunes the provider chain.
type ExecutorConfig struct {
	// ProviderTimeout bounds each individual provider call. Default 10s.
	ProviderTimeout time.Duration

	// RequestsPerSecond seeds each provider's token bucket. The bucket is
	// resynced from the rate headroom providers report. Default 1.
	RequestsPerSecond float64

	// Burst is the token bucket burst size. Default 2.
	Burst int

	// CacheTTL is how long results stay fresh. Default 24h.
	CacheTTL time.Duration

	// Circuit configures the per-provider breakers.
	Circuit resilience.CircuitConfig
}

// DefaultExecutorConfig returns the standard chain tuning.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		ProviderTimeout:   10 * time.Second,
		RequestsPerSecond: 1,
		Burst:             2,
		CacheTTL:          24 * time.Hour,
		Circuit:           resilience.DefaultCircuitConfig(),
	}
}

// Executor runs queries through an ordered provider chain. Each provider call
// passes through a token bucket, a timeout, and a circuit breaker; failure
// falls through to the next provider. With every provider unavailable the
// best cached result is served marked stale, and with no cache either, an
// empty result marked insufficient. Degradation is never an error.
type Executor struct {
	providers []Provider
	limiters  map[string]*rate.Limiter
	breakers  *resilience.ProviderBreakers
	cache     *Cache
	graph     *graph.Graph
	cfg       ExecutorConfig

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewExecutor creates an Executor over the given graph and ordered providers.
func NewExecutor(g *graph.Graph, providers []Provider, cfg ExecutorConfig) *Executor {
	def := DefaultExecutorConfig()
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = def.ProviderTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}

	limiters := make(map[string]*rate.Limiter, len(providers))
	for _, p := range providers {
		limiters[p.Name()] = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}

	return &Executor{
		providers: providers,
		limiters:  limiters,
		breakers:  resilience.NewProviderBreakers(cfg.Circuit),
		cache:     NewCache(g.Store(), cfg.CacheTTL),
		graph:     g,
		cfg:       cfg,
		nowFunc:   time.Now,
	}
}

// WithNow sets a fixed time source for testing.
func (e *Executor) WithNow(fn func() time.Time) *Executor {
	e.nowFunc = fn
	return e
}

// Execute runs the query through the chain.
func (e *Executor) Execute(ctx context.Context, q model.ResearchQuery) (*model.ResearchResult, error) {
	if q.Text == "" {
		return nil, eris.New("research: empty query")
	}

	now := e.nowFunc()
	fp := q.Fingerprint()

	if entry, err := e.cache.GetFresh(ctx, fp, now); err != nil {
		zap.L().Warn("research: cache read failed", zap.Error(err))
	} else if entry != nil {
		return &model.ResearchResult{
			Query:          q,
			Fingerprint:    fp,
			Citations:      entry.Citations,
			SourceProvider: entry.Provider,
			GapsIdentified: AnalyzeGaps(q, entry.Citations, now),
			ExecutedAt:     now,
		}, nil
	}

	for _, p := range e.providers {
		citations, err := e.callProvider(ctx, p, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "research: execute")
			}
			zap.L().Warn("research: provider failed, falling through",
				zap.String("provider", p.Name()),
				zap.Error(err),
			)
			continue
		}

		now = e.nowFunc()
		if err := e.cache.Put(ctx, fp, p.Name(), citations, now); err != nil {
			zap.L().Warn("research: cache write failed", zap.Error(err))
		}
		e.writeBack(ctx, q, p.Name(), citations)

		return &model.ResearchResult{
			Query:          q,
			Fingerprint:    fp,
			Citations:      citations,
			SourceProvider: p.Name(),
			GapsIdentified: AnalyzeGaps(q, citations, now),
			ExecutedAt:     now,
		}, nil
	}

	// Every provider unavailable: stale cache, then empty.
	stale, err := e.cache.GetStale(ctx, fp)
	if err != nil {
		zap.L().Warn("research: stale cache read failed", zap.Error(err))
	}
	if stale != nil {
		zap.L().Info("research: serving stale cached result",
			zap.String("fingerprint", fp),
			zap.Time("cached_at", stale.CachedAt),
		)
		return &model.ResearchResult{
			Query:          q,
			Fingerprint:    fp,
			Citations:      stale.Citations,
			SourceProvider: stale.Provider,
			GapsIdentified: AnalyzeGaps(q, stale.Citations, now),
			Stale:          true,
			ExecutedAt:     now,
		}, nil
	}

	zap.L().Warn("research: no provider and no cache, returning empty result",
		zap.String("fingerprint", fp),
	)
	return &model.ResearchResult{
		Query:                q,
		Fingerprint:          fp,
		GapsIdentified:       AnalyzeGaps(q, nil, now),
		InsufficientCoverage: true,
		ExecutedAt:           now,
	}, nil
}

func (e *Executor) callProvider(ctx context.Context, p Provider, q model.ResearchQuery) ([]model.Citation, error) {
	name := p.Name()

	br := e.breakers.Get(name)
	if br.State() == resilience.CircuitOpen {
		// Checked before the limiter so an open circuit costs no token.
		return nil, resilience.ErrCircuitOpen
	}

	limiter := e.limiters[name]
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "research: rate limit wait")
		}
	}

	resp, err := resilience.ExecuteVal(ctx, br, func(ctx context.Context) (*ProviderResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
		defer cancel()
		return p.Search(callCtx, q)
	})
	if err != nil {
		return nil, err
	}

	e.resyncLimiter(name, resp)
	return Rank(q, resp.Citations, e.nowFunc()), nil
}

// resyncLimiter adjusts the local token bucket to the headroom the provider
// reported, so a shrinking remote quota slows us down before 429s start.
func (e *Executor) resyncLimiter(name string, resp *ProviderResponse) {
	limiter := e.limiters[name]
	if limiter == nil || resp.RateResetAt.IsZero() {
		return
	}
	now := e.nowFunc()
	window := resp.RateResetAt.Sub(now).Seconds()
	if window <= 0 {
		return
	}

	rps := float64(resp.RateRemaining) / window
	if rps > e.cfg.RequestsPerSecond {
		rps = e.cfg.RequestsPerSecond
	}
	if rps <= 0 {
		rps = float64(1) / window
	}
	limiter.SetLimit(rate.Limit(rps))

	zap.L().Debug("research: limiter resynced",
		zap.String("provider", name),
		zap.Int("remaining", resp.RateRemaining),
		zap.Float64("rps", rps),
	)
}

// writeBack records accepted citations as graph entities so later phases can
// link facts and issues to authority.
func (e *Executor) writeBack(ctx context.Context, q model.ResearchQuery, provider string, citations []model.Citation) {
	for _, c := range citations {
		cand := model.EntityCandidate{
			Type: model.EntityTypeCitation,
			Name: c.Title,
			Attributes: map[string]string{
				"source_id": c.SourceID,
				"url":       c.URL,
			},
			Provenance:         model.Provenance{Source: provider},
			Jurisdiction:       c.Jurisdiction,
			SourceCredibility:  credibilityForLevel(c.AuthorityLevel),
			EvidenceCount:      1,
			MatterJurisdiction: q.Jurisdiction,
		}
		if c.DecidedAt != nil {
			cand.RecencyYears = e.nowFunc().Sub(*c.DecidedAt).Hours() / (24 * 365.25)
		}
		if _, err := e.graph.UpsertEntity(ctx, cand); err != nil {
			zap.L().Warn("research: citation write-back failed",
				zap.String("source_id", c.SourceID),
				zap.Error(err),
			)
		}
	}
}

func credibilityForLevel(level model.AuthorityLevel) float64 {
	c := 1.0 - 0.15*float64(level-1)
	if c < 0.3 {
		c = 0.3
	}
	return c
}
