// Package agent defines the agent abstraction the orchestrator dispatches to,
// a capability-indexed registry, and the built-in agent implementations.
package agent

import (
	"context"
	"sync"

	"github.com/casefold/matterflow/internal/model"
)

// Agent executes one workflow task. Implementations must honor context
// cancellation: a cancelled session context aborts the work in flight.
type Agent interface {
	ID() string
	Capability() model.Capability
	Execute(ctx context.Context, task model.WorkflowTask) (*model.TaskResult, error)
}

// Registry indexes agents by capability. The orchestrator dispatches by
// capability, never by concrete agent type.
type Registry struct {
	mu     sync.RWMutex
	agents map[model.Capability][]Agent
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[model.Capability][]Agent)}
}

// Register adds an agent under its capability.
func (r *Registry) Register(a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cap := a.Capability()
	r.agents[cap] = append(r.agents[cap], a)
}

// ForCapability returns the agents registered under the capability.
func (r *Registry) ForCapability(cap model.Capability) []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Agent(nil), r.agents[cap]...)
}

// Len reports the total number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, as := range r.agents {
		n += len(as)
	}
	return n
}
