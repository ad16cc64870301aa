package workflow

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casefold/matterflow/internal/agent"
	"github.com/casefold/matterflow/internal/graph"
	"github.com/casefold/matterflow/internal/model"
)

// stubAgent is a scriptable agent: fail the first N calls, block until
// cancelled, or return a fixed result.
type stubAgent struct {
	id         string
	capability model.Capability
	failures   int
	block      bool
	entities   []model.EntityCandidate
	artifact   string

	calls atomic.Int32
}

func (a *stubAgent) ID() string                   { return a.id }
func (a *stubAgent) Capability() model.Capability { return a.capability }

func (a *stubAgent) Execute(ctx context.Context, task model.WorkflowTask) (*model.TaskResult, error) {
	n := a.calls.Add(1)
	if a.block {
		<-ctx.Done()
		return &model.TaskResult{TaskID: task.ID, AgentID: a.id, Cancelled: true}, nil
	}
	if int(n) <= a.failures {
		return nil, errors.New("stub agent: transient failure")
	}
	return &model.TaskResult{
		TaskID:   task.ID,
		AgentID:  a.id,
		Entities: a.entities,
		Artifact: a.artifact,
	}, nil
}

func newTestOrchestrator(t *testing.T, cfg Config, agents ...agent.Agent) (*Orchestrator, *graph.Graph) {
	t.Helper()
	g := graph.New(graph.NewMemoryStore(), graph.DefaultOptions())
	reg := agent.NewRegistry()
	for _, a := range agents {
		reg.Register(a)
	}
	o := New(g, reg, 1, cfg)
	o.sleepFunc = func(context.Context, time.Duration) error { return nil }
	return o, g
}

func fullStubSet() []agent.Agent {
	return []agent.Agent{
		&stubAgent{id: "stub-intake", capability: model.CapabilityIntake, entities: []model.EntityCandidate{{
			Type:              model.EntityTypeFact,
			Name:              "Parties signed a services agreement",
			Provenance:        model.Provenance{Source: "stub-intake", Foundational: true},
			Jurisdiction:      "US-CA",
			SourceCredibility: 0.9,
			EvidenceCount:     1,
		}}},
		&stubAgent{id: "outline-builder", capability: model.CapabilityOutline, artifact: "1. breach_of_contract"},
		&stubAgent{id: "stub-research", capability: model.CapabilityResearch, artifact: "q-fingerprint"},
		&stubAgent{id: "document-drafter", capability: model.CapabilityDrafting, artifact: "I. INTRODUCTION"},
		&stubAgent{id: "stub-review", capability: model.CapabilityReview},
		&stubAgent{id: "copy-editor", capability: model.CapabilityEditing, artifact: "I. INTRODUCTION\n"},
	}
}

func TestSession_FullLifecycle(t *testing.T) {
	o, g := newTestOrchestrator(t, Config{}, fullStubSet()...)
	ctx := context.Background()

	id, err := o.StartSession(ctx, map[string]string{"jurisdiction": "US-CA"})
	require.NoError(t, err)

	for _, phase := range []model.Phase{
		model.PhaseIntake, model.PhaseOutline, model.PhaseResearch,
		model.PhaseDrafting, model.PhaseReview, model.PhaseEditing,
	} {
		require.NoError(t, o.DispatchPhaseTasks(ctx, id), "dispatch %s", phase)
		if phase == model.PhaseOutline || phase == model.PhaseReview {
			require.NoError(t, o.RequestApproval(id, phase))
			require.NoError(t, o.GrantApproval(id, phase))
		}
		require.NoError(t, o.AdvancePhase(ctx, id, phase), "advance %s", phase)
	}

	s, err := o.Session(id)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseDone, s.CurrentPhase)
	assert.Equal(t, model.SessionArchived, s.State)
	require.Len(t, s.PhaseHistory, 7)
	for _, rec := range s.PhaseHistory[:6] {
		assert.False(t, rec.LeftAt.IsZero(), "phase %s should have a left timestamp", rec.Phase)
		assert.False(t, rec.Errored)
	}

	// Artifacts flow into the shared context for downstream phases.
	assert.Equal(t, "1. breach_of_contract", s.IntakeContext["outline"])
	assert.Equal(t, "I. INTRODUCTION\n", s.IntakeContext["draft"])

	// Intake entities landed in the graph.
	facts, err := g.QueryByType(ctx, model.EntityTypeFact, "US-CA")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.True(t, facts[0].Provenance.Foundational)
}

func TestAdvancePhase_IdempotentAfterLeaving(t *testing.T) {
	o, _ := newTestOrchestrator(t, Config{},
		&stubAgent{id: "stub-intake", capability: model.CapabilityIntake})
	ctx := context.Background()

	id, err := o.StartSession(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, o.DispatchPhaseTasks(ctx, id))
	require.NoError(t, o.AdvancePhase(ctx, id, model.PhaseIntake))

	// Re-delivering the same advancement request is a no-op.
	require.NoError(t, o.AdvancePhase(ctx, id, model.PhaseIntake))

	s, err := o.Session(id)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseOutline, s.CurrentPhase)
	assert.Len(t, s.PhaseHistory, 2)
}

func TestAdvancePhase_FuturePhaseRejected(t *testing.T) {
	o, _ := newTestOrchestrator(t, Config{})
	id, err := o.StartSession(context.Background(), nil)
	require.NoError(t, err)

	err = o.AdvancePhase(context.Background(), id, model.PhaseDrafting)
	var notReady *PhaseNotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Equal(t, model.PhaseDrafting, notReady.Phase)
}

func TestAdvancePhase_RequiresCompletedTasks(t *testing.T) {
	o, _ := newTestOrchestrator(t, Config{})
	id, err := o.StartSession(context.Background(), nil)
	require.NoError(t, err)

	// No tasks dispatched yet.
	err = o.AdvancePhase(context.Background(), id, model.PhaseIntake)
	var notReady *PhaseNotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Contains(t, notReady.Reason, "tasks not complete")
}

func TestAdvancePhase_ApprovalGate(t *testing.T) {
	o, _ := newTestOrchestrator(t, Config{},
		&stubAgent{id: "stub-intake", capability: model.CapabilityIntake},
		&stubAgent{id: "outline-builder", capability: model.CapabilityOutline})
	ctx := context.Background()

	id, err := o.StartSession(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, o.DispatchPhaseTasks(ctx, id))
	require.NoError(t, o.AdvancePhase(ctx, id, model.PhaseIntake))
	require.NoError(t, o.DispatchPhaseTasks(ctx, id))

	err = o.AdvancePhase(ctx, id, model.PhaseOutline)
	var notReady *PhaseNotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Contains(t, notReady.Reason, "approval")

	require.NoError(t, o.GrantApproval(id, model.PhaseOutline))
	assert.NoError(t, o.AdvancePhase(ctx, id, model.PhaseOutline))
}

func TestApproval_NotRequiredPhaseRejected(t *testing.T) {
	o, _ := newTestOrchestrator(t, Config{})
	id, err := o.StartSession(context.Background(), nil)
	require.NoError(t, err)

	assert.Error(t, o.RequestApproval(id, model.PhaseIntake))
	assert.Error(t, o.GrantApproval(id, model.PhaseIntake))
}

func TestTaskRetry_SucceedsAfterTransientFailures(t *testing.T) {
	a := &stubAgent{id: "stub-intake", capability: model.CapabilityIntake, failures: 2}
	o, _ := newTestOrchestrator(t, Config{MaxRetries: 3}, a)
	ctx := context.Background()

	id, err := o.StartSession(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, o.DispatchPhaseTasks(ctx, id))

	s, err := o.Session(id)
	require.NoError(t, err)
	require.Len(t, s.Tasks, 1)
	assert.Equal(t, model.TaskCompleted, s.Tasks[0].Status)
	assert.Equal(t, 2, s.Tasks[0].Attempt)
	assert.Equal(t, int32(3), a.calls.Load())
	assert.Equal(t, model.SessionActive, s.State)
}

func TestTaskRetry_PermanentFailureErrorsPhase(t *testing.T) {
	a := &stubAgent{id: "stub-intake", capability: model.CapabilityIntake, failures: 100}
	o, _ := newTestOrchestrator(t, Config{MaxRetries: 2}, a)
	ctx := context.Background()

	id, err := o.StartSession(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, o.DispatchPhaseTasks(ctx, id))

	s, err := o.Session(id)
	require.NoError(t, err)
	require.Len(t, s.Tasks, 1)
	assert.Equal(t, model.TaskFailed, s.Tasks[0].Status)
	assert.Contains(t, s.Tasks[0].Error, "transient failure")
	assert.Equal(t, int32(2), a.calls.Load())

	// The failure is surfaced on the session, not dropped.
	assert.Equal(t, model.SessionErrored, s.State)
	require.NotEmpty(t, s.PhaseHistory)
	assert.True(t, s.PhaseHistory[len(s.PhaseHistory)-1].Errored)

	// An errored session dispatches nothing further.
	assert.Error(t, o.DispatchPhaseTasks(ctx, id))
}

func TestCancelSession_InFlightTasksObserveCancellation(t *testing.T) {
	a := &stubAgent{id: "stub-intake", capability: model.CapabilityIntake, block: true}
	o, _ := newTestOrchestrator(t, Config{}, a)
	ctx := context.Background()

	id, err := o.StartSession(ctx, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- o.DispatchPhaseTasks(ctx, id) }()

	// Wait for the task to go active before cancelling.
	require.Eventually(t, func() bool {
		s, err := o.Session(id)
		return err == nil && len(s.Tasks) == 1 && s.Tasks[0].Status == model.TaskActive
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, o.CancelSession(id))
	require.NoError(t, <-done)

	s, err := o.Session(id)
	require.NoError(t, err)
	assert.Equal(t, model.SessionAbandoned, s.State)
	assert.Equal(t, model.TaskCancelled, s.Tasks[0].Status)

	// Cancelling again is a no-op, and the record survives.
	require.NoError(t, o.CancelSession(id))
	assert.Len(t, o.Sessions(), 1)
}

func TestSession_ReturnsIsolatedCopy(t *testing.T) {
	o, _ := newTestOrchestrator(t, Config{},
		&stubAgent{id: "stub-intake", capability: model.CapabilityIntake})
	ctx := context.Background()

	id, err := o.StartSession(ctx, map[string]string{"jurisdiction": "US-CA"})
	require.NoError(t, err)
	require.NoError(t, o.DispatchPhaseTasks(ctx, id))

	s, err := o.Session(id)
	require.NoError(t, err)
	s.IntakeContext["jurisdiction"] = "US-NY"
	s.Tasks[0].Status = model.TaskFailed
	s.Approvals[model.PhaseOutline] = true

	fresh, err := o.Session(id)
	require.NoError(t, err)
	assert.Equal(t, "US-CA", fresh.IntakeContext["jurisdiction"])
	assert.Equal(t, model.TaskCompleted, fresh.Tasks[0].Status)
	assert.False(t, fresh.Approvals[model.PhaseOutline])
}

func TestOrchestrator_UnknownSession(t *testing.T) {
	o, _ := newTestOrchestrator(t, Config{})

	var notFound *SessionNotFoundError
	_, err := o.Session("nope")
	require.ErrorAs(t, err, &notFound)
	require.ErrorAs(t, o.DispatchPhaseTasks(context.Background(), "nope"), &notFound)
	require.ErrorAs(t, o.AdvancePhase(context.Background(), "nope", model.PhaseIntake), &notFound)
	require.ErrorAs(t, o.CancelSession("nope"), &notFound)
}

func TestStartSession_PinsAuthorityVersion(t *testing.T) {
	o, _ := newTestOrchestrator(t, Config{})
	id, err := o.StartSession(context.Background(), nil)
	require.NoError(t, err)

	s, err := o.Session(id)
	require.NoError(t, err)
	assert.Equal(t, 1, s.AuthorityVersion)
}
