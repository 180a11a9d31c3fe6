package operations

import (
	"sort"
	"sync"
	"time"
)

// OperationStatusValue is the overall status of a run
type OperationStatusValue string

const (
	OperationStatusPending   OperationStatusValue = "pending"
	OperationStatusRunning   OperationStatusValue = "running"
	OperationStatusCompleted OperationStatusValue = "completed"
	OperationStatusFailed    OperationStatusValue = "failed"
	OperationStatusCancelled OperationStatusValue = "cancelled"
)

// OperationState is the mutable state of one run, shared by its steps
type OperationState struct {
	mu sync.RWMutex

	ID        string               `json:"id"`
	Status    OperationStatusValue `json:"status"`
	StartTime time.Time            `json:"start_time"`
	EndTime   *time.Time           `json:"end_time,omitempty"`

	Steps map[string]*StepState `json:"steps"`

	// Values a step hands to the caller, e.g. the published split paths
	Context map[string]interface{} `json:"context"`

	// Request parameters: input override, output format
	Config map[string]interface{} `json:"config"`

	Manifest *PipelineManifest `json:"-"`

	Error error `json:"-"`
}

// NewOperationState creates a pending run state
func NewOperationState(id string) *OperationState {
	return &OperationState{
		ID:        id,
		Status:    OperationStatusPending,
		StartTime: time.Now(),
		Steps:     make(map[string]*StepState),
		Context:   make(map[string]interface{}),
		Config:    make(map[string]interface{}),
	}
}

// Start marks the run as running
func (p *OperationState) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = OperationStatusRunning
	p.StartTime = time.Now()
}

// Complete marks the run as completed
func (p *OperationState) Complete() {
	p.finish(OperationStatusCompleted, nil)
}

// Fail marks the run as failed
func (p *OperationState) Fail(err error) {
	p.finish(OperationStatusFailed, err)
}

// Cancel marks the run as cancelled, keeping the error that stopped it
func (p *OperationState) Cancel(err error) {
	p.finish(OperationStatusCancelled, err)
}

func (p *OperationState) finish(status OperationStatusValue, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = status
	p.Error = err
}

// GetStage returns the state of a step, nil when it is not part of the run
func (p *OperationState) GetStage(stageID string) *StepState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Steps[stageID]
}

// SetStage adds or replaces the state of a step
func (p *OperationState) SetStage(stageID string, state *StepState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Steps[stageID] = state
}

// SetContext stores a value for the caller of the run
func (p *OperationState) SetContext(key string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Context[key] = value
}

// ContextSnapshot returns a copy of the values set by the steps
func (p *OperationState) ContextSnapshot() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]interface{}, len(p.Context))
	for k, v := range p.Context {
		out[k] = v
	}
	return out
}

// GetString returns a string request parameter, empty when unset
func (p *OperationState) GetString(key string) string {
	val, _ := p.GetConfig(key)
	s, _ := val.(string)
	return s
}

// GetConfig returns a request parameter
func (p *OperationState) GetConfig(key string) (interface{}, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	val, ok := p.Config[key]
	return val, ok
}

// SetConfig sets a request parameter
func (p *OperationState) SetConfig(key string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Config[key] = value
}

// Duration returns the run time so far, or the total once finished
func (p *OperationState) Duration() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.EndTime != nil {
		return p.EndTime.Sub(p.StartTime)
	}
	return time.Since(p.StartTime)
}

// CompletedSteps returns the IDs of completed steps in execution order
func (p *OperationState) CompletedSteps() []string {
	return p.stepsWithStatus(StepStatusCompleted)
}

// FailedSteps returns the IDs of failed steps in execution order
func (p *OperationState) FailedSteps() []string {
	return p.stepsWithStatus(StepStatusFailed)
}

// HasFailures reports whether any step failed
func (p *OperationState) HasFailures() bool {
	return len(p.FailedSteps()) > 0
}

func (p *OperationState) stepsWithStatus(status StepStatus) []string {
	p.mu.RLock()
	type started struct {
		id string
		at time.Time
	}
	var matched []started
	for id, step := range p.Steps {
		if step.GetStatus() != status {
			continue
		}
		s := started{id: id}
		step.mu.RLock()
		if step.StartTime != nil {
			s.at = *step.StartTime
		}
		step.mu.RUnlock()
		matched = append(matched, s)
	}
	p.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].at.Equal(matched[j].at) {
			return matched[i].at.Before(matched[j].at)
		}
		return matched[i].id < matched[j].id
	})
	ids := make([]string, len(matched))
	for i, s := range matched {
		ids[i] = s.id
	}
	return ids
}
