package operations_test

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Ul012/FOM.tft-timeseries/internal/errors"
	"github.com/Ul012/FOM.tft-timeseries/internal/operations"
	"github.com/Ul012/FOM.tft-timeseries/internal/operations/testutil"
)

type callLog struct {
	mu    sync.Mutex
	order []string
}

func (c *callLog) record(id string) func(context.Context, *operations.OperationState) error {
	return func(context.Context, *operations.OperationState) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.order = append(c.order, id)
		return nil
	}
}

func newPipeline(t *testing.T, log *callLog) (*operations.Manager, map[string]*testutil.MockStage) {
	t.Helper()
	stages := map[string]*testutil.MockStage{
		"clean": {IDValue: "clean", ExecuteFunc: log.record("clean"),
			OutputsValue: []operations.DataOutput{{Type: operations.DataTypeCleanedTable, Location: "cleaned.parquet"}}},
		"features": {IDValue: "features", DependenciesValue: []string{"clean"}, ExecuteFunc: log.record("features"),
			OutputsValue: []operations.DataOutput{{Type: operations.DataTypeFeatureTable, Location: "features.parquet"}}},
		"dataset": {IDValue: "dataset", DependenciesValue: []string{"features"}, ExecuteFunc: log.record("dataset")},
		"spec":    {IDValue: "spec", DependenciesValue: []string{"dataset"}, StandaloneValue: true, ExecuteFunc: log.record("spec")},
	}
	r := operations.NewRegistry()
	for _, id := range []string{"clean", "features", "dataset", "spec"} {
		require.NoError(t, r.Register(stages[id]))
	}
	return operations.NewManager(r, nil), stages
}

func TestManager_FullPipeline(t *testing.T) {
	log := &callLog{}
	m, _ := newPipeline(t, log)

	resp, err := m.Execute(context.Background(), operations.OperationRequest{})
	require.NoError(t, err)

	assert.Equal(t, []string{"clean", "features", "dataset"}, log.order, "standalone spec step not run")
	assert.Equal(t, operations.OperationStatusCompleted, resp.Status)
	require.NotNil(t, resp.Manifest)
	assert.Equal(t, "full_pipeline", resp.Manifest.Mode)
	assert.Equal(t, operations.ManifestStatusCompleted, resp.Manifest.Status)
	assert.NotEmpty(t, resp.Manifest.RunID)
	assert.True(t, resp.Manifest.IsStageCompleted("dataset"))
	assert.True(t, resp.Manifest.HasData(operations.DataTypeFeatureTable))

	info, ok := resp.Manifest.GetData(operations.DataTypeCleanedTable)
	require.True(t, ok)
	assert.Equal(t, "clean", info.CreatedBy)
	assert.Equal(t, 100, resp.Manifest.GetProgress())
	assert.Equal(t, []string{"clean", "features", "dataset"}, resp.CompletedSteps)
	assert.Empty(t, resp.FailedSteps)
}

func TestManager_SingleStep(t *testing.T) {
	log := &callLog{}
	m, stages := newPipeline(t, log)

	resp, err := m.Execute(context.Background(), operations.OperationRequest{Step: "spec"})
	require.NoError(t, err)
	assert.Equal(t, []string{"spec"}, log.order)
	assert.Equal(t, 1, stages["spec"].GetValidateCalls())
	assert.Len(t, resp.Steps, 1)
}

func TestManager_UnknownStep(t *testing.T) {
	m, _ := newPipeline(t, &callLog{})

	resp, err := m.Execute(context.Background(), operations.OperationRequest{Step: "train"})
	require.Error(t, err)
	assert.Equal(t, operations.ErrorTypeNotFound, operations.GetErrorType(err))
	assert.Equal(t, operations.OperationStatusFailed, resp.Status)
	assert.Equal(t, operations.ManifestStatusFailed, resp.Manifest.Status)
}

func TestManager_FailureSkipsRemaining(t *testing.T) {
	log := &callLog{}
	m, stages := newPipeline(t, log)
	boom := apperrors.NewDataIntegrityError("val partition is empty")
	stages["features"].ExecuteFunc = func(context.Context, *operations.OperationState) error { return boom }

	resp, err := m.Execute(context.Background(), operations.OperationRequest{})
	require.Error(t, err)

	assert.Equal(t, []string{"clean"}, log.order)
	assert.True(t, errors.Is(err, boom))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeDataIntegrity))
	assert.Equal(t, operations.StepStatusFailed, resp.Steps["features"].Status)
	assert.Equal(t, operations.StepStatusSkipped, resp.Steps["dataset"].Status)
	assert.Equal(t, 0, stages["dataset"].GetExecuteCalls())
	assert.Equal(t, operations.ManifestStatusFailed, resp.Manifest.Status)
	assert.Contains(t, resp.Manifest.Error, "features")
}

func TestManager_ValidationKeepsCause(t *testing.T) {
	log := &callLog{}
	m, stages := newPipeline(t, log)
	stages["features"].ValidateFunc = func(*operations.OperationState) error {
		return apperrors.NewInputMissingError("data/processed/cleaned.parquet", "clean")
	}

	_, err := m.Execute(context.Background(), operations.OperationRequest{Step: "features"})
	require.Error(t, err)
	assert.Equal(t, operations.ErrorTypeValidation, operations.GetErrorType(err))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeInputMissing))
	assert.Contains(t, err.Error(), `run the "clean" step first`)
	assert.Empty(t, log.order)
}

func TestManager_CancelledContext(t *testing.T) {
	log := &callLog{}
	m, _ := newPipeline(t, log)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := m.Execute(ctx, operations.OperationRequest{})
	require.Error(t, err)
	assert.Equal(t, operations.ErrorTypeCancellation, operations.GetErrorType(err))
	assert.Empty(t, log.order)
	assert.Equal(t, operations.StepStatusSkipped, resp.Steps["clean"].Status)
	assert.Equal(t, operations.OperationStatusCancelled, resp.Status)
	assert.Equal(t, operations.ManifestStatusCancelled, resp.Manifest.Status)
}

func TestManager_CancelledDuringStep(t *testing.T) {
	log := &callLog{}
	m, stages := newPipeline(t, log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stages["features"].ExecuteFunc = func(stepCtx context.Context, _ *operations.OperationState) error {
		cancel()
		<-stepCtx.Done()
		return stepCtx.Err()
	}

	resp, err := m.Execute(ctx, operations.OperationRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, operations.OperationStatusCancelled, resp.Status)
	assert.Equal(t, []string{"clean"}, resp.CompletedSteps)
	assert.Equal(t, []string{"features"}, resp.FailedSteps)
	assert.Equal(t, operations.StepStatusSkipped, resp.Steps["dataset"].Status)
}

func TestManager_StageTimeout(t *testing.T) {
	log := &callLog{}
	stalled := &testutil.MockStage{IDValue: "clean", ExecuteFunc: func(ctx context.Context, _ *operations.OperationState) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	cfg := operations.NewConfig()
	cfg.SetStageTimeout("clean", 20*time.Millisecond)

	m := operations.NewManager(nil, cfg)
	require.NoError(t, m.RegisterStage(stalled))
	require.NoError(t, m.RegisterStage(&testutil.MockStage{IDValue: "features", DependenciesValue: []string{"clean"}, ExecuteFunc: log.record("features")}))

	resp, err := m.Execute(context.Background(), operations.OperationRequest{})
	require.Error(t, err)
	assert.Equal(t, operations.ErrorTypeTimeout, operations.GetErrorType(err))
	assert.Contains(t, err.Error(), "20ms")
	assert.Equal(t, operations.OperationStatusFailed, resp.Status)
	assert.Empty(t, log.order)
}

func TestManager_ContinueOnError(t *testing.T) {
	logger, handler := testutil.CreateTestSlogLogger()
	previous := slog.Default()
	slog.SetDefault(logger)
	t.Cleanup(func() { slog.SetDefault(previous) })

	log := &callLog{}
	boom := apperrors.NewDataIntegrityError("no rows left after cleaning")
	cfg := operations.NewConfig()
	cfg.ContinueOnError = true

	m := operations.NewManager(nil, cfg)
	for _, s := range []*testutil.MockStage{
		{IDValue: "clean", ExecuteFunc: log.record("clean")},
		{IDValue: "features", DependenciesValue: []string{"clean"},
			ExecuteFunc: func(context.Context, *operations.OperationState) error { return boom }},
		{IDValue: "dataset", DependenciesValue: []string{"features"}, ExecuteFunc: log.record("dataset")},
		{IDValue: "report", DependenciesValue: []string{"clean"}, ExecuteFunc: log.record("report")},
	} {
		require.NoError(t, m.RegisterStage(s))
	}

	resp, err := m.Execute(context.Background(), operations.OperationRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))

	assert.Equal(t, []string{"clean", "report"}, log.order, "independent step still runs")
	assert.Equal(t, operations.OperationStatusFailed, resp.Status)
	assert.Equal(t, []string{"clean", "report"}, resp.CompletedSteps)
	assert.Equal(t, []string{"features"}, resp.FailedSteps)
	assert.Equal(t, operations.StepStatusSkipped, resp.Steps["dataset"].Status)
	assert.Contains(t, resp.Steps["dataset"].Message, "dependency features failed")

	var messages []string
	for _, rec := range handler.GetRecordsByLevel(slog.LevelError) {
		messages = append(messages, rec.Message)
	}
	assert.Contains(t, messages, "stage_error")
	assert.Contains(t, messages, "operation_error")
	assert.True(t, handler.HasMessage("stages_failed"))
}

func TestManifest_SaveAndLoad(t *testing.T) {
	m, _ := newPipeline(t, &callLog{})
	resp, err := m.Execute(context.Background(), operations.OperationRequest{Parameters: map[string]interface{}{"format": "csv"}})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "manifest.json")
	require.NoError(t, resp.Manifest.SaveToFile(path))

	loaded, err := operations.LoadManifestFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, resp.Manifest.ID, loaded.ID)
	assert.Equal(t, "csv", loaded.Config["format"])
	assert.True(t, loaded.IsStageCompleted("clean"))
	assert.Len(t, loaded.CompletedStages, 3)
}
