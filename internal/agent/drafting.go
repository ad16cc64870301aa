package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/casefold/matterflow/internal/graph"
	"github.com/casefold/matterflow/internal/model"
	"github.com/casefold/matterflow/pkg/anthropic"
)

const draftingSystemPrompt = `You are a legal drafting assistant. Draft the
requested document section from the outline, facts, and authorities provided.
Cite authorities by their given titles. Do not invent facts or citations.`

// DraftingConfig tunes the drafting agent.
type DraftingConfig struct {
	Model     string
	MaxTokens int64
}

// DraftingAgent produces the document draft with Claude, grounded on the
// outline artifact and the graph's facts and citations.
type DraftingAgent struct {
	Graph  *graph.Graph
	Client anthropic.Client
	Cfg    DraftingConfig
}

func (a *DraftingAgent) ID() string { return "document-drafter" }
func (a *DraftingAgent) Capability() model.Capability { return model.CapabilityDrafting }

func (a *DraftingAgent) Execute(ctx context.Context, task model.WorkflowTask) (*model.TaskResult, error) {
	jurisdiction := task.Context["jurisdiction"]
	outline := task.Context["outline"]
	if strings.TrimSpace(outline) == "" {
		return nil, eris.New("drafting agent: no outline in task context")
	}

	facts, err := a.Graph.QueryByType(ctx, model.EntityTypeFact, jurisdiction)
	if err != nil {
		return nil, eris.Wrap(err, "drafting agent: load facts")
	}
	citations, err := a.Graph.QueryByType(ctx, model.EntityTypeCitation, "")
	if err != nil {
		return nil, eris.Wrap(err, "drafting agent: load citations")
	}

	var b strings.Builder
	b.WriteString("OUTLINE:\n")
	b.WriteString(outline)
	b.WriteString("\nFACTS:\n")
	for _, f := range facts {
		fmt.Fprintf(&b, "- %s (confidence %.2f)\n", f.Name, f.Confidence)
	}
	b.WriteString("\nAUTHORITIES:\n")
	for _, c := range citations {
		fmt.Fprintf(&b, "- %s\n", c.Name)
	}

	modelID := a.Cfg.Model
	maxTokens := a.Cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	resp, err := a.Client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     modelID,
		MaxTokens: maxTokens,
		System: []anthropic.SystemBlock{
			{Text: draftingSystemPrompt, CacheControl: &anthropic.CacheControl{TTL: "5m"}},
		},
		Messages: []anthropic.Message{
			{Role: "user", Content: b.String()},
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return &model.TaskResult{TaskID: task.ID, AgentID: a.ID(), Cancelled: true}, nil
		}
		return nil, eris.Wrap(err, "drafting agent: create message")
	}
	resp.Usage.LogCost(modelID, "drafting")

	var draft strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			draft.WriteString(block.Text)
		}
	}
	if draft.Len() == 0 {
		return nil, eris.New("drafting agent: empty completion")
	}

	zap.L().Info("drafting agent: draft produced",
		zap.String("task_id", task.ID),
		zap.Int("facts", len(facts)),
		zap.Int("authorities", len(citations)),
		zap.Int("draft_bytes", draft.Len()),
	)

	return &model.TaskResult{
		TaskID:   task.ID,
		AgentID:  a.ID(),
		Artifact: draft.String(),
		Metadata: map[string]any{
			"model":         modelID,
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
		},
	}, nil
}
