package operations

import (
	"time"

	"github.com/Ul012/FOM.tft-timeseries/internal/config"
)

// operation Step identifiers
const (
	StageIDClean    = config.StepClean
	StageIDFeatures = config.StepFeatures
	StageIDDataset  = config.StepDataset
	StageIDSpec     = config.StepSpec
)

// operation Step names
const (
	StageNameClean    = "History Cleaning"
	StageNameFeatures = "Feature Derivation"
	StageNameDataset  = "Dataset Split"
	StageNameSpec     = "Dataset Specification"
)

// Context keys for operation state
const (
	ContextKeyInputPath  = "input_path"
	ContextKeyFormat     = "format"
	ContextKeyRowsIn     = "rows_in"
	ContextKeyRowsOut    = "rows_out"
	ContextKeyImputed    = "imputed"
	ContextKeyWarnings   = "warnings"
	ContextKeySplitRows  = "split_rows"
	ContextKeyFeatures   = "features_added"
	ContextKeySpecPath   = "spec_path"
	ContextKeyPublished  = "published"
	ContextKeyBoundaries = "boundaries"
)

// Data types recorded in the pipeline manifest
const (
	DataTypeRawPanel      = "raw_panel"
	DataTypeCleanedTable  = "cleaned_table"
	DataTypeFeatureTable  = "feature_table"
	DataTypeSplits        = "splits"
	DataTypeDatasetSpec   = "dataset_spec"
	DataTypeSplitManifest = "split_manifest"
	DataTypeSplitSummary  = "split_summary"
)

// Default timeouts
const (
	DefaultStageTimeout    = 30 * time.Minute
	DefaultCleanTimeout    = 15 * time.Minute
	DefaultFeaturesTimeout = 15 * time.Minute
	DefaultDatasetTimeout  = 15 * time.Minute
	DefaultSpecTimeout     = 5 * time.Minute
)

// ExecutionMode defines how steps are executed
type ExecutionMode string

const (
	ExecutionModeSequential ExecutionMode = "sequential"
)

// RetryConfig defines retry behavior for steps
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
}

// NewRetryConfig returns the default retry configuration. The pipeline is
// deterministic, so a failed step is not attempted again.
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  1,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// OperationRequest represents a request to execute a operation
type OperationRequest struct {
	ID string `json:"id"`
	// Step selects a single step; empty or full_pipeline runs clean, features and dataset
	Step string `json:"step,omitempty"`
	// InputPath overrides the raw panel location of the clean step
	InputPath  string                 `json:"input_path,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// OperationResponse represents the response from a operation execution
type OperationResponse struct {
	ID             string                 `json:"id"`
	Status         OperationStatusValue   `json:"status"`
	Duration       time.Duration          `json:"duration"`
	Steps          map[string]*StepState  `json:"steps"`
	CompletedSteps []string               `json:"completed_steps,omitempty"`
	FailedSteps    []string               `json:"failed_steps,omitempty"`
	Outputs        map[string]interface{} `json:"outputs,omitempty"`
	Manifest       *PipelineManifest      `json:"manifest,omitempty"`
	Error          string                 `json:"error,omitempty"`
}
