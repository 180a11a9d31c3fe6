package operations

import (
	"fmt"
	"sync"
)

// Registry holds the pipeline steps by ID, remembering registration order
type Registry struct {
	mu    sync.RWMutex
	steps map[string]Step
	order []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{steps: make(map[string]Step)}
}

// Register adds a step; IDs must be unique and non-empty
func (r *Registry) Register(step Step) error {
	if step == nil {
		return fmt.Errorf("cannot register nil step")
	}
	id := step.ID()
	if id == "" {
		return fmt.Errorf("step ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.steps[id]; exists {
		return fmt.Errorf("step with ID %s already registered", id)
	}
	r.steps[id] = step
	r.order = append(r.order, id)
	return nil
}

// Get returns a step by ID. The not-found error lists the registered IDs.
func (r *Registry) Get(id string) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	step, exists := r.steps[id]
	if !exists {
		err := NewNotFoundError(id)
		err.Context = map[string]interface{}{
			"registered": append([]string(nil), r.order...),
		}
		return nil, err
	}
	return step, nil
}

// GetDependencyOrder returns every step after its dependencies. Steps
// without an ordering constraint between them keep registration order.
func (r *Registry) GetDependencyOrder() ([]Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	const (
		visiting = 1
		done     = 2
	)
	mark := make(map[string]int, len(r.steps))
	ordered := make([]Step, 0, len(r.steps))

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		switch mark[id] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("dependency cycle detected: %v", append(path, id))
		}
		mark[id] = visiting
		step := r.steps[id]
		for _, dep := range step.GetDependencies() {
			if _, exists := r.steps[dep]; !exists {
				return fmt.Errorf("step %s depends on non-existent step %s", id, dep)
			}
			if err := visit(dep, append(path, id)); err != nil {
				return err
			}
		}
		mark[id] = done
		ordered = append(ordered, step)
		return nil
	}

	for _, id := range r.order {
		if err := visit(id, nil); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

// FullPipeline returns the non-standalone steps in dependency order
func (r *Registry) FullPipeline() ([]Step, error) {
	ordered, err := r.GetDependencyOrder()
	if err != nil {
		return nil, err
	}
	steps := make([]Step, 0, len(ordered))
	for _, step := range ordered {
		if !step.Standalone() {
			steps = append(steps, step)
		}
	}
	return steps, nil
}

// GetDependents returns the steps that list stageID as a dependency, in
// registration order
func (r *Registry) GetDependents(stageID string) []Step {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var dependents []Step
	for _, id := range r.order {
		step := r.steps[id]
		for _, dep := range step.GetDependencies() {
			if dep == stageID {
				dependents = append(dependents, step)
				break
			}
		}
	}
	return dependents
}
