package operations

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manifest status values
const (
	ManifestStatusPending   = "pending"
	ManifestStatusRunning   = "running"
	ManifestStatusCompleted = "completed"
	ManifestStatusFailed    = "failed"
	ManifestStatusCancelled = "cancelled"
)

// PipelineManifest records one run: the artifacts available to later steps
// and the outcome of every step that ran. It is saved as JSON after each run.
type PipelineManifest struct {
	mu sync.RWMutex `json:"-"`

	// Identity
	ID          string    `json:"id"`
	OperationID string    `json:"operation_id"`
	RunID       string    `json:"run_id,omitempty"`
	StartTime   time.Time `json:"start_time"`

	// Requested step, or full_pipeline
	Mode   string                 `json:"mode"`
	Config map[string]interface{} `json:"config,omitempty"`

	AvailableData   map[string]*DataInfo `json:"available_data"`
	CompletedStages []StageExecution     `json:"completed_stages"`

	Status      string    `json:"status"`
	LastUpdated time.Time `json:"last_updated"`
	Error       string    `json:"error,omitempty"`
}

// DataInfo describes one artifact
type DataInfo struct {
	Type      string                 `json:"type"`
	Location  string                 `json:"location"`
	Rows      int                    `json:"rows,omitempty"`
	Columns   int                    `json:"columns,omitempty"`
	TotalSize int64                  `json:"total_size"`
	CreatedAt time.Time              `json:"created_at"`
	CreatedBy string                 `json:"created_by"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// StageExecution tracks the execution of a single stage
type StageExecution struct {
	StageID    string                 `json:"stage_id"`
	StageName  string                 `json:"stage_name"`
	StartTime  time.Time              `json:"start_time"`
	EndTime    time.Time              `json:"end_time"`
	Duration   string                 `json:"duration"`
	Status     string                 `json:"status"`
	OutputData []string               `json:"output_data"`
	Error      string                 `json:"error,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewPipelineManifest creates a new pipeline manifest
func NewPipelineManifest(operationID, mode string) *PipelineManifest {
	now := time.Now()
	return &PipelineManifest{
		ID:              "manifest-" + uuid.NewString(),
		OperationID:     operationID,
		StartTime:       now,
		Mode:            mode,
		Config:          make(map[string]interface{}),
		AvailableData:   make(map[string]*DataInfo),
		CompletedStages: []StageExecution{},
		Status:          ManifestStatusPending,
		LastUpdated:     now,
	}
}

// SetStatus updates the run status
func (m *PipelineManifest) SetStatus(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Status = status
	m.LastUpdated = time.Now()
}

// Fail marks the run as failed
func (m *PipelineManifest) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Status = ManifestStatusFailed
	if err != nil && m.Error == "" {
		m.Error = err.Error()
	}
	m.LastUpdated = time.Now()
}

// HasData checks if a specific type of data is available
func (m *PipelineManifest) HasData(dataType string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.AvailableData[dataType]
	return exists
}

// GetData returns information about available data
func (m *PipelineManifest) GetData(dataType string) (*DataInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, exists := m.AvailableData[dataType]
	return data, exists
}

// AddData records newly available data
func (m *PipelineManifest) AddData(dataType string, info *DataInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info.Type = dataType
	info.CreatedAt = time.Now()
	m.AvailableData[dataType] = info
	m.LastUpdated = time.Now()
}

// RecordOutput registers an artifact written by a step, taking its size from disk
func (m *PipelineManifest) RecordOutput(stageID string, out DataOutput) {
	info := &DataInfo{Location: out.Location, CreatedBy: stageID}
	if fi, err := os.Stat(out.Location); err == nil {
		info.TotalSize = fi.Size()
	}
	m.AddData(out.Type, info)
}

// RecordStageStart records the start of a stage execution
func (m *PipelineManifest) RecordStageStart(stageID, stageName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, stage := range m.CompletedStages {
		if stage.StageID == stageID {
			m.CompletedStages[i].StartTime = time.Now()
			m.CompletedStages[i].Status = "running"
			m.LastUpdated = time.Now()
			return
		}
	}

	m.CompletedStages = append(m.CompletedStages, StageExecution{
		StageID:   stageID,
		StageName: stageName,
		StartTime: time.Now(),
		Status:    "running",
	})
	m.LastUpdated = time.Now()
}

// RecordStageCompletion records the completion of a stage
func (m *PipelineManifest) RecordStageCompletion(stageID string, outputData []string, metadata map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, stage := range m.CompletedStages {
		if stage.StageID == stageID {
			m.CompletedStages[i].EndTime = time.Now()
			m.CompletedStages[i].Duration = time.Since(stage.StartTime).String()
			m.CompletedStages[i].Status = "completed"
			m.CompletedStages[i].OutputData = outputData
			m.CompletedStages[i].Metadata = metadata
			break
		}
	}
	m.LastUpdated = time.Now()
}

// RecordStageFailure records a stage failure
func (m *PipelineManifest) RecordStageFailure(stageID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, stage := range m.CompletedStages {
		if stage.StageID == stageID {
			m.CompletedStages[i].EndTime = time.Now()
			m.CompletedStages[i].Duration = time.Since(stage.StartTime).String()
			m.CompletedStages[i].Status = "failed"
			m.CompletedStages[i].Error = err.Error()
			break
		}
	}
	m.Status = ManifestStatusFailed
	m.Error = fmt.Sprintf("stage %s failed: %v", stageID, err)
	m.LastUpdated = time.Now()
}

// IsStageCompleted checks if a stage has been completed
func (m *PipelineManifest) IsStageCompleted(stageID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, stage := range m.CompletedStages {
		if stage.StageID == stageID && stage.Status == "completed" {
			return true
		}
	}
	return false
}

// SaveToFile saves the manifest to a JSON file
func (m *PipelineManifest) SaveToFile(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest file: %w", err)
	}
	return nil
}

// LoadManifestFromFile loads a manifest from a JSON file
func LoadManifestFromFile(path string) (*PipelineManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var manifest PipelineManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	if manifest.AvailableData == nil {
		manifest.AvailableData = make(map[string]*DataInfo)
	}
	return &manifest, nil
}

// GetProgress returns the share of recorded stages that completed, in percent
func (m *PipelineManifest) GetProgress() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.CompletedStages) == 0 {
		return 0
	}
	completed := 0
	for _, stage := range m.CompletedStages {
		if stage.Status == "completed" {
			completed++
		}
	}
	return (completed * 100) / len(m.CompletedStages)
}
