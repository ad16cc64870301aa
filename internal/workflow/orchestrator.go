// Package workflow coordinates document-production sessions through the
// fixed phase sequence, dispatching capability-tagged agents and gating
// advancement on task completion and human approval.
package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/casefold/matterflow/internal/agent"
	"github.com/casefold/matterflow/internal/graph"
	"github.com/casefold/matterflow/internal/model"
	"github.com/casefold/matterflow/internal/resilience"
)

// phaseCapability maps each working phase to the capability it dispatches.
var phaseCapability = map[model.Phase]model.Capability{
	model.PhaseIntake:   model.CapabilityIntake,
	model.PhaseOutline:  model.CapabilityOutline,
	model.PhaseResearch: model.CapabilityResearch,
	model.PhaseDrafting: model.CapabilityDrafting,
	model.PhaseReview:   model.CapabilityReview,
	model.PhaseEditing:  model.CapabilityEditing,
}

// Config tunes the orchestrator.
type Config struct {
	// ApprovalPhases require an explicit human approval before the session
	// may leave them. Default: outline and review.
	ApprovalPhases []model.Phase

	// MaxRetries bounds attempts per task before it fails the phase.
	// Default 3.
	MaxRetries int

	// CapabilityConcurrency bounds concurrent tasks per capability within a
	// phase. Default 2.
	CapabilityConcurrency int

	// Retry shapes the backoff between task attempts.
	Retry resilience.RetryConfig
}

// DefaultConfig returns the standard orchestrator tuning.
func DefaultConfig() Config {
	return Config{
		ApprovalPhases:        []model.Phase{model.PhaseOutline, model.PhaseReview},
		MaxRetries:            3,
		CapabilityConcurrency: 2,
		Retry:                 resilience.DefaultRetryConfig(),
	}
}

// session pairs the serializable state with the runtime cancellation handle.
type session struct {
	state  model.WorkflowSession
	ctx    context.Context
	cancel context.CancelFunc

	// advanceChecked debounces advancement evaluation: once per phase until
	// the session moves on.
	advanceChecked map[model.Phase]bool

	// approvalRequested tracks outstanding approval requests per phase.
	approvalRequested map[model.Phase]bool
}

// Orchestrator drives sessions through the phase sequence. Sessions live in
// memory for the process lifetime and are archived in place, never deleted;
// all matter knowledge the phases produce is committed to the graph and
// survives independently of the session.
type Orchestrator struct {
	graph            *graph.Graph
	agents           *agent.Registry
	cfg              Config
	authorityVersion int

	mu       sync.Mutex
	sessions map[string]*session

	// sleepFunc allows tests to skip real backoff waits.
	sleepFunc func(context.Context, time.Duration) error
	nowFunc   func() time.Time
}

// New creates an Orchestrator.
func New(g *graph.Graph, agents *agent.Registry, authorityVersion int, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if len(cfg.ApprovalPhases) == 0 {
		cfg.ApprovalPhases = def.ApprovalPhases
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.CapabilityConcurrency <= 0 {
		cfg.CapabilityConcurrency = def.CapabilityConcurrency
	}
	return &Orchestrator{
		graph:            g,
		agents:           agents,
		cfg:              cfg,
		authorityVersion: authorityVersion,
		sessions:         make(map[string]*session),
		sleepFunc:        sleepCtx,
		nowFunc:          time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// StartSession opens a new session in the intake phase. The intake context is
// handed to every task the session dispatches.
func (o *Orchestrator) StartSession(ctx context.Context, intake map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "workflow: start session")
	}

	now := o.nowFunc().UTC()
	id := uuid.New().String()
	sessCtx, cancel := context.WithCancel(context.Background())

	s := &session{
		state: model.WorkflowSession{
			ID:               id,
			State:            model.SessionActive,
			CurrentPhase:     model.PhaseIntake,
			PhaseHistory:     []model.PhaseRecord{{Phase: model.PhaseIntake, EnteredAt: now}},
			Approvals:        make(map[model.Phase]bool),
			IntakeContext:    cloneContext(intake),
			AuthorityVersion: o.authorityVersion,
			CreatedAt:        now,
			UpdatedAt:        now,
		},
		ctx:               sessCtx,
		cancel:            cancel,
		advanceChecked:    make(map[model.Phase]bool),
		approvalRequested: make(map[model.Phase]bool),
	}

	o.mu.Lock()
	o.sessions[id] = s
	o.mu.Unlock()

	zap.L().Info("workflow: session started",
		zap.String("session_id", id),
		zap.Int("authority_version", o.authorityVersion),
	)
	return id, nil
}

// DispatchPhaseTasks creates one task per agent registered for the current
// phase's capability and drives them to a terminal status. Tasks run
// concurrently, bounded per capability. The call returns once every task is
// terminal; a failed task errors the phase but not this call.
func (o *Orchestrator) DispatchPhaseTasks(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	s, ok := o.sessions[sessionID]
	if !ok {
		o.mu.Unlock()
		return &SessionNotFoundError{SessionID: sessionID}
	}
	if s.state.State != model.SessionActive {
		o.mu.Unlock()
		return eris.Errorf("workflow: session %s is %s", sessionID, s.state.State)
	}

	phase := s.state.CurrentPhase
	capability, ok := phaseCapability[phase]
	if !ok {
		o.mu.Unlock()
		return eris.Errorf("workflow: phase %s dispatches no tasks", phase)
	}

	agents := o.agents.ForCapability(capability)
	if len(agents) == 0 {
		o.mu.Unlock()
		return eris.Errorf("workflow: no agent registered for capability %s", capability)
	}

	now := o.nowFunc().UTC()
	taskIDs := make([]string, 0, len(agents))
	for _, a := range agents {
		task := model.WorkflowTask{
			ID:         uuid.New().String(),
			SessionID:  sessionID,
			Phase:      phase,
			AgentID:    a.ID(),
			Capability: capability,
			Status:     model.TaskPending,
			Attempt:    0,
			Context:    cloneContext(s.state.IntakeContext),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		s.state.Tasks = append(s.state.Tasks, task)
		taskIDs = append(taskIDs, task.ID)
	}
	sessCtx := s.ctx
	o.mu.Unlock()

	sem := make(chan struct{}, o.cfg.CapabilityConcurrency)
	g, gCtx := errgroup.WithContext(ctx)
	for i, a := range agents {
		taskID := taskIDs[i]
		ag := a
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			o.runTask(gCtx, sessCtx, sessionID, taskID, ag)
			return nil
		})
	}
	return g.Wait()
}

// runTask drives one task through its attempts to a terminal status.
func (o *Orchestrator) runTask(ctx, sessCtx context.Context, sessionID, taskID string, ag agent.Agent) {
	for {
		task, ok := o.taskSnapshot(sessionID, taskID)
		if !ok || task.Status == model.TaskFailed || task.Status == model.TaskCancelled {
			return
		}

		if task.Attempt > 0 {
			delay := resilience.Backoff(task.Attempt, o.cfg.Retry)
			if err := o.sleepFunc(mergedDone(ctx, sessCtx), delay); err != nil {
				o.ReportTaskResult(taskID, &model.TaskResult{TaskID: taskID, AgentID: ag.ID(), Cancelled: true}, nil)
				return
			}
		}

		o.setTaskStatus(sessionID, taskID, model.TaskActive, "")

		runCtx := mergedDone(ctx, sessCtx)
		result, err := ag.Execute(runCtx, task)
		if runCtx.Err() != nil && result == nil {
			result = &model.TaskResult{TaskID: taskID, AgentID: ag.ID(), Cancelled: true}
			err = nil
		}

		o.ReportTaskResult(taskID, result, err)

		task, ok = o.taskSnapshot(sessionID, taskID)
		if !ok || task.Status != model.TaskPending {
			return
		}
		// Pending again means a retry was scheduled.
	}
}

// ReportTaskResult records a task outcome. Success commits the result's
// entities to the graph and marks the task completed. A cancelled result
// marks it cancelled. An error requeues the task with backoff while attempts
// remain, otherwise the task fails and the phase is errored. Failures are
// always surfaced in session state, never dropped.
func (o *Orchestrator) ReportTaskResult(taskID string, result *model.TaskResult, taskErr error) {
	o.mu.Lock()
	s, task := o.findTask(taskID)
	if task == nil {
		o.mu.Unlock()
		zap.L().Warn("workflow: result for unknown task", zap.String("task_id", taskID))
		return
	}
	now := o.nowFunc().UTC()
	task.UpdatedAt = now
	s.state.UpdatedAt = now

	switch {
	case taskErr == nil && result != nil && result.Cancelled:
		task.Status = model.TaskCancelled
		sessionID := s.state.ID
		o.mu.Unlock()
		zap.L().Info("workflow: task cancelled",
			zap.String("session_id", sessionID),
			zap.String("task_id", taskID),
		)
		return

	case taskErr == nil:
		task.Status = model.TaskCompleted
		phase := task.Phase
		sessionID := s.state.ID
		sessCtx := s.ctx
		o.mu.Unlock()

		if result != nil {
			o.commitEntities(sessCtx, sessionID, result)
		}
		o.evaluateAdvancement(sessionID, phase)
		return

	default:
		task.Attempt++
		task.Error = taskErr.Error()
		if task.Attempt < o.cfg.MaxRetries {
			task.Status = model.TaskPending
			attempt := task.Attempt
			o.mu.Unlock()
			zap.L().Warn("workflow: task failed, requeueing",
				zap.String("task_id", taskID),
				zap.Int("attempt", attempt),
				zap.Error(taskErr),
			)
			return
		}

		task.Status = model.TaskFailed
		s.state.State = model.SessionErrored
		if n := len(s.state.PhaseHistory); n > 0 {
			s.state.PhaseHistory[n-1].Errored = true
		}
		sessionID := s.state.ID
		o.mu.Unlock()
		zap.L().Error("workflow: task failed permanently, phase errored",
			zap.String("session_id", sessionID),
			zap.String("task_id", taskID),
			zap.Error(taskErr),
		)
	}
}

// commitEntities writes a result's entity candidates into the graph. Writes
// that land before a cancellation stay committed.
func (o *Orchestrator) commitEntities(ctx context.Context, sessionID string, result *model.TaskResult) {
	o.mu.Lock()
	matterJurisdiction := ""
	if s, ok := o.sessions[sessionID]; ok {
		matterJurisdiction = s.state.IntakeContext["jurisdiction"]
	}
	o.mu.Unlock()

	for _, cand := range result.Entities {
		if cand.MatterJurisdiction == "" {
			cand.MatterJurisdiction = matterJurisdiction
		}
		if _, err := o.graph.UpsertEntity(ctx, cand); err != nil {
			zap.L().Warn("workflow: entity commit failed",
				zap.String("session_id", sessionID),
				zap.String("entity", cand.Name),
				zap.Error(err),
			)
		}
	}
	if result.Artifact != "" {
		o.mu.Lock()
		if s, ok := o.sessions[sessionID]; ok {
			key := artifactKey(result.AgentID)
			s.state.IntakeContext[key] = result.Artifact
		}
		o.mu.Unlock()
	}
}

// artifactKey routes an agent's artifact to the context key downstream
// phases read it from.
func artifactKey(agentID string) string {
	switch agentID {
	case "outline-builder":
		return "outline"
	case "document-drafter", "copy-editor":
		return "draft"
	default:
		return "artifact:" + agentID
	}
}

// evaluateAdvancement checks phase task-completeness once per completion
// event per resulting state.
func (o *Orchestrator) evaluateAdvancement(sessionID string, phase model.Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[sessionID]
	if !ok || s.state.CurrentPhase != phase || s.advanceChecked[phase] {
		return
	}
	if !phaseTasksComplete(&s.state, phase) {
		return
	}
	s.advanceChecked[phase] = true
	zap.L().Info("workflow: phase task-complete",
		zap.String("session_id", sessionID),
		zap.String("phase", string(phase)),
		zap.Bool("approval_required", o.approvalRequired(phase)),
	)
}

// RequestApproval flags a phase as awaiting human approval.
func (o *Orchestrator) RequestApproval(sessionID string, phase model.Phase) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[sessionID]
	if !ok {
		return &SessionNotFoundError{SessionID: sessionID}
	}
	if !o.approvalRequired(phase) {
		return &PhaseNotReadyError{SessionID: sessionID, Phase: phase, Reason: "phase does not require approval"}
	}
	s.approvalRequested[phase] = true
	return nil
}

// GrantApproval records a human approval for the phase.
func (o *Orchestrator) GrantApproval(sessionID string, phase model.Phase) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[sessionID]
	if !ok {
		return &SessionNotFoundError{SessionID: sessionID}
	}
	if !o.approvalRequired(phase) {
		return &PhaseNotReadyError{SessionID: sessionID, Phase: phase, Reason: "phase does not require approval"}
	}
	s.state.Approvals[phase] = true
	s.state.UpdatedAt = o.nowFunc().UTC()
	zap.L().Info("workflow: approval granted",
		zap.String("session_id", sessionID),
		zap.String("phase", string(phase)),
	)
	return nil
}

// AdvancePhase moves the session out of the given phase once its tasks are
// complete and any required approval is granted. Advancing from a phase the
// session has already left is a no-op, so repeated delivery of the same
// advancement request is harmless.
func (o *Orchestrator) AdvancePhase(ctx context.Context, sessionID string, from model.Phase) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "workflow: advance phase")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[sessionID]
	if !ok {
		return &SessionNotFoundError{SessionID: sessionID}
	}

	if s.state.CurrentPhase != from {
		if phaseIndex(from) < phaseIndex(s.state.CurrentPhase) {
			// Already left that phase.
			return nil
		}
		return &PhaseNotReadyError{
			SessionID: sessionID,
			Phase:     from,
			Reason:    "session has not reached this phase",
		}
	}

	if s.state.State != model.SessionActive {
		return &PhaseNotReadyError{SessionID: sessionID, Phase: from, Reason: "session is " + string(s.state.State)}
	}
	if !phaseTasksComplete(&s.state, from) {
		return &PhaseNotReadyError{SessionID: sessionID, Phase: from, Reason: "phase tasks not complete"}
	}
	if o.approvalRequired(from) && !s.state.Approvals[from] {
		return &PhaseNotReadyError{SessionID: sessionID, Phase: from, Reason: "approval not granted"}
	}

	now := o.nowFunc().UTC()
	next := from.Next()
	if n := len(s.state.PhaseHistory); n > 0 {
		s.state.PhaseHistory[n-1].LeftAt = now
	}
	s.state.PhaseHistory = append(s.state.PhaseHistory, model.PhaseRecord{Phase: next, EnteredAt: now})
	s.state.CurrentPhase = next
	s.state.UpdatedAt = now
	delete(s.advanceChecked, from)

	if next == model.PhaseDone {
		s.state.State = model.SessionArchived
		s.cancel()
	}

	zap.L().Info("workflow: phase advanced",
		zap.String("session_id", sessionID),
		zap.String("from", string(from)),
		zap.String("to", string(next)),
	)
	return nil
}

// CancelSession cancels the session's context. In-flight tasks observe the
// cancellation and report Cancelled; work already committed to the graph
// stays. The session is archived as abandoned, not deleted.
func (o *Orchestrator) CancelSession(sessionID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[sessionID]
	if !ok {
		return &SessionNotFoundError{SessionID: sessionID}
	}
	if s.state.State == model.SessionArchived || s.state.State == model.SessionAbandoned {
		return nil
	}
	s.cancel()
	s.state.State = model.SessionAbandoned
	s.state.UpdatedAt = o.nowFunc().UTC()
	zap.L().Info("workflow: session cancelled", zap.String("session_id", sessionID))
	return nil
}

// Session returns a copy of the session state.
func (o *Orchestrator) Session(sessionID string) (model.WorkflowSession, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[sessionID]
	if !ok {
		return model.WorkflowSession{}, &SessionNotFoundError{SessionID: sessionID}
	}
	return copySession(&s.state), nil
}

// Sessions lists copies of all sessions, archived included.
func (o *Orchestrator) Sessions() []model.WorkflowSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.WorkflowSession, 0, len(o.sessions))
	for _, s := range o.sessions {
		out = append(out, copySession(&s.state))
	}
	return out
}

func (o *Orchestrator) approvalRequired(phase model.Phase) bool {
	for _, p := range o.cfg.ApprovalPhases {
		if p == phase {
			return true
		}
	}
	return false
}

// findTask locates a task by id. Caller holds o.mu.
func (o *Orchestrator) findTask(taskID string) (*session, *model.WorkflowTask) {
	for _, s := range o.sessions {
		for i := range s.state.Tasks {
			if s.state.Tasks[i].ID == taskID {
				return s, &s.state.Tasks[i]
			}
		}
	}
	return nil, nil
}

func (o *Orchestrator) taskSnapshot(sessionID, taskID string) (model.WorkflowTask, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[sessionID]
	if !ok {
		return model.WorkflowTask{}, false
	}
	for i := range s.state.Tasks {
		if s.state.Tasks[i].ID == taskID {
			return s.state.Tasks[i], true
		}
	}
	return model.WorkflowTask{}, false
}

func (o *Orchestrator) setTaskStatus(sessionID, taskID string, status model.TaskStatus, errMsg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[sessionID]
	if !ok {
		return
	}
	for i := range s.state.Tasks {
		if s.state.Tasks[i].ID == taskID {
			s.state.Tasks[i].Status = status
			if errMsg != "" {
				s.state.Tasks[i].Error = errMsg
			}
			s.state.Tasks[i].UpdatedAt = o.nowFunc().UTC()
			return
		}
	}
}

func phaseTasksComplete(state *model.WorkflowSession, phase model.Phase) bool {
	found := false
	for _, t := range state.Tasks {
		if t.Phase != phase {
			continue
		}
		found = true
		if t.Status != model.TaskCompleted {
			return false
		}
	}
	return found
}

func phaseIndex(p model.Phase) int {
	for i, ph := range model.PhaseOrder {
		if ph == p {
			return i
		}
	}
	return len(model.PhaseOrder)
}

func cloneContext(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copySession(s *model.WorkflowSession) model.WorkflowSession {
	out := *s
	out.PhaseHistory = append([]model.PhaseRecord(nil), s.PhaseHistory...)
	out.Tasks = append([]model.WorkflowTask(nil), s.Tasks...)
	out.Approvals = make(map[model.Phase]bool, len(s.Approvals))
	for k, v := range s.Approvals {
		out.Approvals[k] = v
	}
	out.IntakeContext = cloneContext(s.IntakeContext)
	return out
}

// mergedDone returns a context that is done when either input is done.
func mergedDone(a, b context.Context) context.Context {
	if a == b {
		return a
	}
	ctx, cancel := context.WithCancel(a)
	go func() {
		select {
		case <-b.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
