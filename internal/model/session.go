package model

import "time"

// Phase is a stage in the fixed workflow sequence.
type Phase string

const (
	PhaseIntake   Phase = "intake"
	PhaseOutline  Phase = "outline"
	PhaseResearch Phase = "research"
	PhaseDrafting Phase = "drafting"
	PhaseReview   Phase = "review"
	PhaseEditing  Phase = "editing"
	PhaseDone     Phase = "done"
)

// PhaseOrder is the fixed directed sequence sessions move through.
var PhaseOrder = []Phase{
	PhaseIntake,
	PhaseOutline,
	PhaseResearch,
	PhaseDrafting,
	PhaseReview,
	PhaseEditing,
	PhaseDone,
}

// Next returns the phase after p, or PhaseDone if p is terminal or unknown.
func (p Phase) Next() Phase {
	for i, ph := range PhaseOrder {
		if ph == p && i+1 < len(PhaseOrder) {
			return PhaseOrder[i+1]
		}
	}
	return PhaseDone
}

// TaskStatus tracks a dispatched agent task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskActive    TaskStatus = "active"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Capability tags what kind of work an agent performs. The orchestrator
// dispatches by capability, never by concrete agent type.
type Capability string

const (
	CapabilityIntake   Capability = "intake"
	CapabilityOutline  Capability = "outline"
	CapabilityResearch Capability = "research"
	CapabilityDrafting Capability = "drafting"
	CapabilityReview   Capability = "review"
	CapabilityEditing  Capability = "editing"
)

// WorkflowTask is a unit of work dispatched to one agent in one phase.
type WorkflowTask struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"session_id"`
	Phase      Phase             `json:"phase"`
	AgentID    string            `json:"agent_id"`
	Capability Capability        `json:"capability"`
	Status     TaskStatus        `json:"status"`
	Attempt    int               `json:"attempt"`
	Context    map[string]string `json:"context,omitempty"`
	Error      string            `json:"error,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// TaskResult is what an agent returns on success.
type TaskResult struct {
	TaskID    string            `json:"task_id"`
	AgentID   string            `json:"agent_id"`
	Entities  []EntityCandidate `json:"entities,omitempty"`
	Artifact  string            `json:"artifact,omitempty"`
	Metadata  map[string]any    `json:"metadata,omitempty"`
	Cancelled bool              `json:"cancelled,omitempty"`
}

// PhaseRecord is one entry in a session's phase history.
type PhaseRecord struct {
	Phase     Phase     `json:"phase"`
	EnteredAt time.Time `json:"entered_at"`
	LeftAt    time.Time `json:"left_at,omitempty"`
	Errored   bool      `json:"errored,omitempty"`
}

// SessionState tracks the session lifecycle.
type SessionState string

const (
	SessionActive    SessionState = "active"
	SessionErrored   SessionState = "errored"
	SessionArchived  SessionState = "archived"
	SessionAbandoned SessionState = "abandoned"
)

// WorkflowSession is one document-production run. Sessions are archived on
// completion or abandonment, never deleted.
type WorkflowSession struct {
	ID               string            `json:"id"`
	State            SessionState      `json:"state"`
	CurrentPhase     Phase             `json:"current_phase"`
	PhaseHistory     []PhaseRecord     `json:"phase_history"`
	Tasks            []WorkflowTask    `json:"tasks"`
	Approvals        map[Phase]bool    `json:"approvals"`
	IntakeContext    map[string]string `json:"intake_context,omitempty"`
	AuthorityVersion int               `json:"authority_version"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}
