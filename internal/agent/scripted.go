package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/casefold/matterflow/internal/claims"
	"github.com/casefold/matterflow/internal/graph"
	"github.com/casefold/matterflow/internal/model"
	"github.com/casefold/matterflow/internal/research"
)

// IntakeAgent turns the raw intake narrative into entity candidates. Parties
// arrive on the "parties" context key (comma separated), facts as sentences
// on "facts". Intake is a foundational channel.
type IntakeAgent struct{}

func (a *IntakeAgent) ID() string { return "intake-extractor" }
func (a *IntakeAgent) Capability() model.Capability { return model.CapabilityIntake }

func (a *IntakeAgent) Execute(ctx context.Context, task model.WorkflowTask) (*model.TaskResult, error) {
	if err := ctx.Err(); err != nil {
		return &model.TaskResult{TaskID: task.ID, AgentID: a.ID(), Cancelled: true}, nil
	}

	jurisdiction := task.Context["jurisdiction"]
	result := &model.TaskResult{TaskID: task.ID, AgentID: a.ID()}

	for _, name := range splitList(task.Context["parties"], ",") {
		result.Entities = append(result.Entities, model.EntityCandidate{
			Type:              model.EntityTypeParty,
			Name:              name,
			Provenance:        model.Provenance{Source: a.ID(), Foundational: true},
			Jurisdiction:      jurisdiction,
			SourceCredibility: 0.9,
			EvidenceCount:     1,
		})
	}
	for _, sentence := range splitList(task.Context["facts"], "\n") {
		result.Entities = append(result.Entities, model.EntityCandidate{
			Type:              model.EntityTypeFact,
			Name:              sentence,
			Provenance:        model.Provenance{Source: a.ID(), Foundational: true},
			Jurisdiction:      jurisdiction,
			SourceCredibility: 0.9,
			EvidenceCount:     1,
		})
	}

	if len(result.Entities) == 0 {
		return nil, eris.New("intake agent: no parties or facts in task context")
	}
	return result, nil
}

// OutlineAgent detects causes of action from the graph's facts and produces
// an outline artifact, one section per viable theory.
type OutlineAgent struct {
	Graph  *graph.Graph
	Engine *claims.Engine
}

func (a *OutlineAgent) ID() string { return "outline-builder" }
func (a *OutlineAgent) Capability() model.Capability { return model.CapabilityOutline }

func (a *OutlineAgent) Execute(ctx context.Context, task model.WorkflowTask) (*model.TaskResult, error) {
	jurisdiction := task.Context["jurisdiction"]

	facts, err := a.Graph.QueryByType(ctx, model.EntityTypeFact, jurisdiction)
	if err != nil {
		return nil, eris.Wrap(err, "outline agent: load facts")
	}
	causes, err := a.Engine.DetectCauses(facts, jurisdiction)
	if err != nil {
		return nil, eris.Wrap(err, "outline agent: detect causes")
	}

	var b strings.Builder
	b.WriteString("DOCUMENT OUTLINE\n")
	for i, c := range causes {
		analysis := claims.AnalyzeStrength(c)
		fmt.Fprintf(&b, "%d. %s (%d/%d elements satisfied, confidence %.2f)\n",
			i+1, c.Theory, analysis.SatisfiedCount, analysis.TotalCount, c.Confidence)
		for _, el := range c.Elements {
			marker := " "
			if el.Satisfied {
				marker = "x"
			}
			fmt.Fprintf(&b, "   [%s] %s\n", marker, el.Name)
		}
	}
	if len(causes) == 0 {
		b.WriteString("no viable causes of action detected\n")
	}

	return &model.TaskResult{
		TaskID:   task.ID,
		AgentID:  a.ID(),
		Artifact: b.String(),
		Metadata: map[string]any{"causes_detected": len(causes)},
	}, nil
}

// ResearchAgent formulates a query from graph state and runs it through the
// provider chain.
type ResearchAgent struct {
	Graph    *graph.Graph
	Executor *research.Executor
}

func (a *ResearchAgent) ID() string { return "authority-researcher" }
func (a *ResearchAgent) Capability() model.Capability { return model.CapabilityResearch }

func (a *ResearchAgent) Execute(ctx context.Context, task model.WorkflowTask) (*model.TaskResult, error) {
	jurisdiction := task.Context["jurisdiction"]
	issues := splitList(task.Context["issues"], ",")

	facts, err := a.Graph.QueryByType(ctx, model.EntityTypeFact, jurisdiction)
	if err != nil {
		return nil, eris.Wrap(err, "research agent: load facts")
	}

	q := research.FormulateQuery(facts, issues, jurisdiction)
	res, err := a.Executor.Execute(ctx, q)
	if err != nil {
		return nil, eris.Wrap(err, "research agent: execute query")
	}

	if res.Stale || res.InsufficientCoverage {
		zap.L().Warn("research agent: degraded result",
			zap.String("task_id", task.ID),
			zap.Bool("stale", res.Stale),
			zap.Bool("insufficient_coverage", res.InsufficientCoverage),
		)
	}

	return &model.TaskResult{
		TaskID:   task.ID,
		AgentID:  a.ID(),
		Artifact: res.Fingerprint,
		Metadata: map[string]any{
			"citations":             len(res.Citations),
			"source_provider":       res.SourceProvider,
			"stale":                 res.Stale,
			"insufficient_coverage": res.InsufficientCoverage,
			"gaps":                  len(res.GapsIdentified),
		},
	}, nil
}

// ReviewAgent verifies the draft artifact is present and well-formed. Human
// approval still gates the phase; this catches mechanical problems first.
type ReviewAgent struct{}

func (a *ReviewAgent) ID() string { return "draft-reviewer" }
func (a *ReviewAgent) Capability() model.Capability { return model.CapabilityReview }

func (a *ReviewAgent) Execute(ctx context.Context, task model.WorkflowTask) (*model.TaskResult, error) {
	if err := ctx.Err(); err != nil {
		return &model.TaskResult{TaskID: task.ID, AgentID: a.ID(), Cancelled: true}, nil
	}

	draft := task.Context["draft"]
	issues := []string{}
	if strings.TrimSpace(draft) == "" {
		issues = append(issues, "draft is empty")
	}
	if len(draft) > 0 && len(strings.Fields(draft)) < 20 {
		issues = append(issues, "draft is implausibly short")
	}

	return &model.TaskResult{
		TaskID:  task.ID,
		AgentID: a.ID(),
		Metadata: map[string]any{
			"issues":   issues,
			"approved": len(issues) == 0,
		},
	}, nil
}

// EditingAgent applies mechanical cleanup to the draft artifact.
type EditingAgent struct{}

func (a *EditingAgent) ID() string { return "copy-editor" }
func (a *EditingAgent) Capability() model.Capability { return model.CapabilityEditing }

func (a *EditingAgent) Execute(ctx context.Context, task model.WorkflowTask) (*model.TaskResult, error) {
	if err := ctx.Err(); err != nil {
		return &model.TaskResult{TaskID: task.ID, AgentID: a.ID(), Cancelled: true}, nil
	}

	draft := task.Context["draft"]
	lines := strings.Split(draft, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	cleaned := strings.TrimSpace(strings.Join(lines, "\n")) + "\n"

	return &model.TaskResult{
		TaskID:   task.ID,
		AgentID:  a.ID(),
		Artifact: cleaned,
	}, nil
}

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
