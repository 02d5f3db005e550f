package workflow

import (
	"fmt"
	"sort"
	"sync"
)

// Registry tracks workflow runs so callers can look up status and results
// after the run returns.
type Registry interface {
	// Put stores or replaces the state for its workflow ID.
	Put(state *State)
	// Get returns the state for a workflow ID.
	Get(workflowID string) (*State, error)
	// Delete removes a finished workflow.
	Delete(workflowID string) error
	// List returns all tracked workflow IDs, oldest first.
	List() []string
}

// InMemoryRegistry is the default Registry, suitable for a single process.
type InMemoryRegistry struct {
	mu        sync.RWMutex
	workflows map[string]*State
}

// NewInMemoryRegistry creates an empty registry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{workflows: make(map[string]*State)}
}

// Put implements Registry.
func (r *InMemoryRegistry) Put(state *State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[state.WorkflowID] = state
}

// Get implements Registry.
func (r *InMemoryRegistry) Get(workflowID string) (*State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.workflows[workflowID]
	if !ok {
		return nil, fmt.Errorf("workflow %s not found", workflowID)
	}
	return state, nil
}

// Delete implements Registry.
func (r *InMemoryRegistry) Delete(workflowID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workflows[workflowID]; !ok {
		return fmt.Errorf("workflow %s not found", workflowID)
	}
	delete(r.workflows, workflowID)
	return nil
}

// List implements Registry.
func (r *InMemoryRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make([]*State, 0, len(r.workflows))
	for _, state := range r.workflows {
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].StartedAt.Before(states[j].StartedAt)
	})

	ids := make([]string, 0, len(states))
	for _, state := range states {
		ids = append(ids, state.WorkflowID)
	}
	return ids
}
