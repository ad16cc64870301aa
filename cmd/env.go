package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/casefold/matterflow/internal/agent"
	"github.com/casefold/matterflow/internal/authority"
	"github.com/casefold/matterflow/internal/claims"
	"github.com/casefold/matterflow/internal/graph"
	"github.com/casefold/matterflow/internal/model"
	"github.com/casefold/matterflow/internal/registry"
	"github.com/casefold/matterflow/internal/research"
	"github.com/casefold/matterflow/internal/resilience"
	"github.com/casefold/matterflow/internal/workflow"
	anthropicpkg "github.com/casefold/matterflow/pkg/anthropic"
	"github.com/casefold/matterflow/pkg/courtlistener"
	"github.com/casefold/matterflow/pkg/govinfo"
	"github.com/casefold/matterflow/pkg/notion"
)

// appEnv holds the wired components commands operate on.
type appEnv struct {
	Store     graph.Store
	Graph     *graph.Graph
	Engine    *claims.Engine
	Executor  *research.Executor
	Hierarchy *authority.Hierarchy
	Orch      *workflow.Orchestrator
}

func (e *appEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("store close", zap.Error(err))
		}
	}
}

// initStore opens the configured graph store backend and runs migrations.
func initStore(ctx context.Context) (graph.Store, error) {
	var (
		st  graph.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = graph.NewSQLite(cfg.Store.Path)
	case "postgres":
		st, err = graph.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "memory":
		st = graph.NewMemoryStore()
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// newGraph wraps a store with the configured ingestion tuning.
func newGraph(st graph.Store) *graph.Graph {
	return graph.New(st, graph.Options{FoundationalBoost: cfg.Graph.FoundationalBoost})
}

// initCatalog loads the cause template catalogue: Notion when configured,
// otherwise the embedded default.
func initCatalog(ctx context.Context) (*claims.Catalog, error) {
	if cfg.Notion.Token != "" && cfg.Notion.ElementDB != "" {
		notionClient := notion.NewClient(cfg.Notion.Token)
		catalog, err := registry.LoadCauseTemplates(ctx, notionClient, cfg.Notion.ElementDB)
		if err != nil {
			return nil, eris.Wrap(err, "load cause templates")
		}
		zap.L().Info("cause catalogue loaded from notion",
			zap.Int("templates", len(catalog.Templates)),
		)
		return catalog, nil
	}
	return claims.DefaultCatalog()
}

// initHierarchy loads the authority hierarchy and snapshots it to the store
// so past sessions can be interpreted against the version they pinned.
func initHierarchy(ctx context.Context, st graph.Store) (*authority.Hierarchy, error) {
	var (
		h   *authority.Hierarchy
		err error
	)
	if cfg.Authority.HierarchyFile != "" {
		h, err = authority.LoadFile(cfg.Authority.HierarchyFile)
	} else {
		h, err = authority.DefaultHierarchy()
	}
	if err != nil {
		return nil, err
	}
	if err := st.SaveAuthorities(ctx, h.Version, h.Authorities); err != nil {
		return nil, eris.Wrap(err, "snapshot authorities")
	}
	return h, nil
}

// initExecutor builds the research provider chain from the configured
// credentials. A chain with no providers still serves from cache.
func initExecutor(g *graph.Graph) *research.Executor {
	var providers []research.Provider
	if cfg.CourtListener.Token != "" {
		client := courtlistener.NewClient(cfg.CourtListener.Token,
			courtlistener.WithBaseURL(cfg.CourtListener.BaseURL))
		providers = append(providers, research.NewCourtListenerProvider(client))
	}
	if cfg.GovInfo.Key != "" {
		client := govinfo.NewClient(cfg.GovInfo.Key,
			govinfo.WithBaseURL(cfg.GovInfo.BaseURL))
		providers = append(providers, research.NewGovInfoProvider(client))
	}

	execCfg := research.DefaultExecutorConfig()
	execCfg.ProviderTimeout = time.Duration(cfg.Research.ProviderTimeoutSecs) * time.Second
	execCfg.RequestsPerSecond = cfg.Research.RequestsPerSecond
	execCfg.Burst = cfg.Research.Burst
	execCfg.CacheTTL = time.Duration(cfg.Research.CacheTTLHours) * time.Hour
	execCfg.Circuit = resilience.CircuitConfig{
		FailureThreshold: cfg.Research.CircuitFailureThreshold,
		Cooldown:         time.Duration(cfg.Research.CircuitCooldownSecs) * time.Second,
	}

	return research.NewExecutor(g, providers, execCfg)
}

// initEnv wires the full environment for session-driving commands.
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	g := newGraph(st)

	catalog, err := initCatalog(ctx)
	if err != nil {
		st.Close()
		return nil, err
	}
	engine, err := claims.NewEngine(catalog, claims.Options{MinConfidence: cfg.Claims.MinConfidence})
	if err != nil {
		st.Close()
		return nil, err
	}

	hierarchy, err := initHierarchy(ctx, st)
	if err != nil {
		st.Close()
		return nil, err
	}

	executor := initExecutor(g)

	agents := agent.NewRegistry()
	agents.Register(&agent.IntakeAgent{})
	agents.Register(&agent.OutlineAgent{Graph: g, Engine: engine})
	agents.Register(&agent.ResearchAgent{Graph: g, Executor: executor})
	agents.Register(&agent.DraftingAgent{
		Graph:  g,
		Client: anthropicpkg.NewClient(cfg.Anthropic.Key),
		Cfg: agent.DraftingConfig{
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
		},
	})
	agents.Register(&agent.ReviewAgent{})
	agents.Register(&agent.EditingAgent{})

	orch := workflow.New(g, agents, hierarchy.Version, workflow.Config{
		ApprovalPhases:        approvalPhases(cfg.Workflow.ApprovalPhases),
		MaxRetries:            cfg.Workflow.MaxRetries,
		CapabilityConcurrency: cfg.Workflow.CapabilityConcurrency,
		Retry:                 resilience.DefaultRetryConfig(),
	})

	return &appEnv{
		Store:     st,
		Graph:     g,
		Engine:    engine,
		Executor:  executor,
		Hierarchy: hierarchy,
		Orch:      orch,
	}, nil
}

func approvalPhases(names []string) []model.Phase {
	var phases []model.Phase
	for _, n := range names {
		phases = append(phases, model.Phase(n))
	}
	return phases
}
