package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths contains every artifact location of a pipeline run.
// This is the single source of truth for file paths in the application.
//
//	data/
//	  ├── raw/              (input panel)
//	  ├── processed/        (cleaned and feature tables)
//	  ├── datasets/tft/     (train/val/test, dataset_spec.json, split_manifest.json)
//	  ├── reports/          (split summary workbook)
//	  └── manifest.json     (pipeline manifest)
type Paths struct {
	DataDir      string
	RawDir       string
	ProcessedDir string
	DatasetDir   string
	ReportsDir   string
	LogsDir      string

	RawFile          string
	ManifestFile     string
	SpecFile         string
	SplitManifest    string
	SplitSummaryXLSX string
}

// ResolvePaths derives all paths from the configured data directory
func (c *Config) ResolvePaths() *Paths {
	dataDir := c.Paths.DataDir
	datasetDir := filepath.Join(dataDir, "datasets", "tft")
	reportsDir := filepath.Join(dataDir, "reports")

	paths := &Paths{
		DataDir:      dataDir,
		RawDir:       filepath.Join(dataDir, "raw"),
		ProcessedDir: filepath.Join(dataDir, "processed"),
		DatasetDir:   datasetDir,
		ReportsDir:   reportsDir,
		LogsDir:      filepath.Dir(c.Logging.FilePath),

		RawFile:          c.Paths.RawFile,
		ManifestFile:     c.Paths.ManifestFile,
		SpecFile:         filepath.Join(datasetDir, "dataset_spec.json"),
		SplitManifest:    filepath.Join(datasetDir, "split_manifest.json"),
		SplitSummaryXLSX: filepath.Join(reportsDir, "split_summary.xlsx"),
	}
	if paths.RawFile == "" {
		paths.RawFile = filepath.Join(paths.RawDir, "train.csv")
	}
	if paths.ManifestFile == "" {
		paths.ManifestFile = filepath.Join(dataDir, "manifest.json")
	}
	return paths
}

// Artifact returns the path of a named table in the processed directory
func (p *Paths) Artifact(name, format string) string {
	return filepath.Join(p.ProcessedDir, name+"."+format)
}

// SplitFile returns the path of a published partition table
func (p *Paths) SplitFile(split, format string) string {
	return filepath.Join(p.DatasetDir, split+"."+format)
}

// EnsureDirectories creates all output directories
func (p *Paths) EnsureDirectories() error {
	dirs := []string{
		p.DataDir,
		p.ProcessedDir,
		p.DatasetDir,
		p.ReportsDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// LogPathResolution logs all resolved paths for debugging
func (p *Paths) LogPathResolution() {
	slog.Debug("resolved_paths",
		slog.String("data_dir", p.DataDir),
		slog.String("raw_file", p.RawFile),
		slog.String("processed_dir", p.ProcessedDir),
		slog.String("dataset_dir", p.DatasetDir),
		slog.String("reports_dir", p.ReportsDir),
		slog.String("manifest_file", p.ManifestFile))
}
