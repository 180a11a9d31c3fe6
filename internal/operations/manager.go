package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/Ul012/FOM.tft-timeseries/internal/config"
	"github.com/Ul012/FOM.tft-timeseries/internal/infrastructure"
)

// Manager orchestrates operation execution
type Manager struct {
	registry *Registry
	config   *Config
	tracer   *OperationTracer
}

// NewManager creates a new operation manager with dependency injection
func NewManager(registry *Registry, config *Config) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if config == nil {
		config = NewConfig()
	}
	return &Manager{
		registry: registry,
		config:   config,
	}
}

// SetTracer enables span and metric recording for every run
func (m *Manager) SetTracer(tracer *OperationTracer) {
	m.tracer = tracer
}

// RegisterStage registers a Step with the operation
func (m *Manager) RegisterStage(step Step) error {
	return m.registry.Register(step)
}

// Execute runs one step, or the full pipeline when req.Step is empty or
// full_pipeline. The response always carries the run manifest, also on failure.
func (m *Manager) Execute(ctx context.Context, req OperationRequest) (*OperationResponse, error) {
	if req.ID == "" {
		req.ID = "operation-" + uuid.NewString()
	}
	ctx = infrastructure.EnsureRunID(ctx)

	mode := req.Step
	if mode == "" {
		mode = config.StepFullPipeline
	}

	state := NewOperationState(req.ID)
	if req.InputPath != "" {
		state.SetConfig(ContextKeyInputPath, req.InputPath)
	}
	for k, v := range req.Parameters {
		state.SetConfig(k, v)
	}

	manifest := NewPipelineManifest(req.ID, mode)
	manifest.RunID = infrastructure.GetRunID(ctx)
	for k, v := range state.Config {
		manifest.Config[k] = v
	}
	state.Manifest = manifest

	m.logOperationStart(ctx, req.ID, mode, req)

	var span trace.Span
	if m.tracer != nil {
		ctx, span = m.tracer.TraceOperationExecution(ctx, req.ID, mode)
	}

	steps, err := m.selectSteps(mode)
	if err != nil {
		m.logOperationError(ctx, req.ID, err)
		state.Fail(err)
		manifest.Fail(err)
		m.finishSpan(ctx, span, req.ID, state, err)
		return m.createResponse(state), err
	}

	for _, step := range steps {
		state.SetStage(step.ID(), NewStepState(step.ID(), step.Name()))
	}

	state.Start()
	manifest.SetStatus(ManifestStatusRunning)

	err = m.executeSequential(ctx, state, steps)
	switch {
	case isCancellation(err):
		state.Cancel(err)
		manifest.Fail(err)
		manifest.SetStatus(ManifestStatusCancelled)
		m.logOperationError(ctx, req.ID, err)
	case err != nil:
		state.Fail(err)
		manifest.Fail(err)
		m.logOperationError(ctx, req.ID, err)
	default:
		state.Complete()
		manifest.SetStatus(ManifestStatusCompleted)
	}
	m.logOperationComplete(ctx, req.ID, state.Duration(), string(state.Status))
	m.finishSpan(ctx, span, req.ID, state, err)

	return m.createResponse(state), err
}

// finishSpan ends the run span when tracing is enabled
func (m *Manager) finishSpan(ctx context.Context, span trace.Span, operationID string, state *OperationState, err error) {
	if m.tracer == nil || span == nil {
		return
	}
	m.tracer.RecordOperationCompletion(ctx, span, operationID, state.Duration(), err)
}

// selectSteps resolves the steps of a run
func (m *Manager) selectSteps(mode string) ([]Step, error) {
	if mode != config.StepFullPipeline {
		step, err := m.registry.Get(mode)
		if err != nil {
			return nil, err
		}
		return []Step{step}, nil
	}
	steps, err := m.registry.FullPipeline()
	if err != nil {
		return nil, NewFatalError("failed to get dependency order", err)
	}
	return steps, nil
}

// executeSequential executes steps one by one; the first failure skips the rest
func (m *Manager) executeSequential(ctx context.Context, state *OperationState, steps []Step) error {
	slog.InfoContext(ctx, "sequential_execution_start",
		slog.String("operation_id", state.ID),
		slog.Int("stage_count", len(steps)))

	var firstErr error
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			slog.WarnContext(ctx, "operation_cancelled",
				slog.String("operation_id", state.ID),
				slog.String("step", step.ID()))
			m.skipRemaining(state, steps[i:], "operation cancelled")
			return NewCancellationError(step.ID())
		}

		stepState := state.GetStage(step.ID())
		if stepState != nil && stepState.GetStatus() == StepStatusSkipped {
			continue
		}

		slog.InfoContext(ctx, "executing_stage",
			slog.String("operation_id", state.ID),
			slog.String("step", step.ID()),
			slog.Int("stage_number", i+1),
			slog.Int("total_stages", len(steps)))

		if err := m.executeStage(ctx, state, step); err != nil {
			m.logStageError(ctx, state.ID, step.ID(), err)
			if firstErr == nil {
				firstErr = err
			}
			if !m.config.ContinueOnError {
				m.skipRemaining(state, steps[i+1:], fmt.Sprintf("step %s failed", step.ID()))
				return err
			}
			m.skipDependentStages(state, step.ID())
		}
	}
	if state.HasFailures() {
		slog.WarnContext(ctx, "stages_failed",
			slog.String("operation_id", state.ID),
			slog.Any("failed", state.FailedSteps()))
	} else {
		slog.InfoContext(ctx, "all_stages_completed",
			slog.String("operation_id", state.ID))
	}
	return firstErr
}

// executeStage executes a single Step
func (m *Manager) executeStage(ctx context.Context, state *OperationState, step Step) (err error) {
	stepState := state.GetStage(step.ID())
	if stepState == nil {
		return NewFatalError(fmt.Sprintf("state of step %s not found", step.ID()), nil)
	}
	manifest := state.Manifest

	m.logStageStart(ctx, state.ID, step.ID())
	stepState.Start()
	manifest.RecordStageStart(step.ID(), step.Name())
	start := time.Now()

	if m.tracer != nil {
		stageCtx, span := m.tracer.TraceStageExecution(ctx, state.ID, step.ID())
		ctx = stageCtx
		defer func() {
			m.tracer.RecordStageCompletion(ctx, span, step.ID(), time.Since(start), err)
		}()
	}

	fail := func(e error) error {
		stepState.Fail(e)
		manifest.RecordStageFailure(step.ID(), e)
		return e
	}

	if depErr := m.checkDependencies(state, step); depErr != nil {
		return fail(depErr)
	}
	if vErr := step.Validate(state); vErr != nil {
		slog.WarnContext(ctx, "validation_failed",
			slog.String("operation_id", state.ID),
			slog.String("step", step.ID()),
			slog.String("error", vErr.Error()))
		return fail(NewValidationError(step.ID(), vErr))
	}

	timeout := m.config.GetStageTimeout(step.ID())
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	retryConfig := m.config.RetryConfig
	attempts := retryConfig.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		execErr := step.Execute(stageCtx, state)
		if execErr == nil {
			break
		}
		if errors.Is(execErr, context.DeadlineExceeded) || errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
			return fail(NewTimeoutError(step.ID(), timeout.String()))
		}
		if !IsRetryable(execErr) || attempt == attempts {
			return fail(WrapError(execErr, step.ID(), "step execution failed"))
		}

		delay := m.calculateRetryDelay(attempt, retryConfig)
		slog.WarnContext(ctx, "stage_retry",
			slog.String("operation_id", state.ID),
			slog.String("step", step.ID()),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", execErr.Error()))
		select {
		case <-time.After(delay):
		case <-stageCtx.Done():
			return fail(NewTimeoutError(step.ID(), timeout.String()))
		}
	}

	outputs := step.ProducedOutputs()
	types := make([]string, 0, len(outputs))
	for _, out := range outputs {
		manifest.RecordOutput(step.ID(), out)
		types = append(types, out.Type)
	}
	manifest.RecordStageCompletion(step.ID(), types, stepState.MetadataSnapshot())
	stepState.Complete()
	m.logStageComplete(ctx, state.ID, step.ID(), time.Since(start))
	return nil
}

// checkDependencies requires every dependency that is part of this run to
// have completed. Dependencies outside the run are checked by the step's
// Validate against the artifacts on disk.
func (m *Manager) checkDependencies(state *OperationState, step Step) error {
	for _, dep := range step.GetDependencies() {
		depState := state.GetStage(dep)
		if depState == nil {
			continue
		}
		if status := depState.GetStatus(); status != StepStatusCompleted {
			return NewDependencyError(step.ID(), dep,
				fmt.Sprintf("dependency %s not completed (status: %s)", dep, status))
		}
	}
	return nil
}

// skipRemaining marks pending steps as skipped
func (m *Manager) skipRemaining(state *OperationState, steps []Step, reason string) {
	for _, step := range steps {
		if s := state.GetStage(step.ID()); s != nil && s.GetStatus() == StepStatusPending {
			s.Skip(reason)
		}
	}
}

// skipDependentStages marks the pending steps downstream of a failed step
// as skipped
func (m *Manager) skipDependentStages(state *OperationState, failedStageID string) {
	for _, dependent := range m.registry.GetDependents(failedStageID) {
		s := state.GetStage(dependent.ID())
		if s == nil || s.GetStatus() != StepStatusPending {
			continue
		}
		s.Skip(fmt.Sprintf("dependency %s failed", failedStageID))
		m.skipDependentStages(state, dependent.ID())
	}
}

// isCancellation reports whether a run stopped because its context was
// cancelled, before or during a step
func isCancellation(err error) bool {
	return GetErrorType(err) == ErrorTypeCancellation || errors.Is(err, context.Canceled)
}

// calculateRetryDelay calculates the delay before next retry
func (m *Manager) calculateRetryDelay(attempt int, config RetryConfig) time.Duration {
	delay := time.Duration(float64(config.InitialDelay) * float64(attempt) * config.Multiplier)
	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	return delay
}

// createResponse creates a operation response from state
func (m *Manager) createResponse(state *OperationState) *OperationResponse {
	resp := &OperationResponse{
		ID:             state.ID,
		Status:         state.Status,
		Duration:       state.Duration(),
		Steps:          state.Steps,
		CompletedSteps: state.CompletedSteps(),
		FailedSteps:    state.FailedSteps(),
		Outputs:        state.ContextSnapshot(),
		Manifest:       state.Manifest,
	}
	if state.Error != nil {
		resp.Error = state.Error.Error()
	}
	return resp
}
