package workflow

import (
	"fmt"

	"github.com/casefold/matterflow/internal/model"
)

// PhaseNotReadyError rejects an advancement whose gate conditions are not
// met. The reason is surfaced to the caller verbatim.
type PhaseNotReadyError struct {
	SessionID string
	Phase     model.Phase
	Reason    string
}

func (e *PhaseNotReadyError) Error() string {
	return fmt.Sprintf("workflow: session %s cannot leave phase %s: %s", e.SessionID, e.Phase, e.Reason)
}

// SessionNotFoundError reports an unknown session id.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("workflow: session %s not found", e.SessionID)
}
