package operations

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Ul012/FOM.tft-timeseries/internal/cleaning"
	"github.com/Ul012/FOM.tft-timeseries/internal/config"
	"github.com/Ul012/FOM.tft-timeseries/internal/dataset"
	apperrors "github.com/Ul012/FOM.tft-timeseries/internal/errors"
	"github.com/Ul012/FOM.tft-timeseries/internal/features"
	"github.com/Ul012/FOM.tft-timeseries/internal/infrastructure"
	"github.com/Ul012/FOM.tft-timeseries/internal/panel"
	"github.com/Ul012/FOM.tft-timeseries/internal/split"
	"github.com/Ul012/FOM.tft-timeseries/internal/tables"
	"github.com/Ul012/FOM.tft-timeseries/internal/validation"
	"github.com/Ul012/FOM.tft-timeseries/pkg/contracts/domain"
)

// StageOptions carries the dependencies shared by all pipeline stages
type StageOptions struct {
	Config    *config.Config
	Paths     *config.Paths
	Metrics   *infrastructure.PipelineMetrics
	Validator *validation.ArtifactValidator
	Logger    *slog.Logger
}

func (o *StageOptions) withDefaults() *StageOptions {
	out := *o
	if out.Config == nil {
		out.Config = config.Default()
	}
	if out.Paths == nil {
		out.Paths = out.Config.ResolvePaths()
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	if out.Validator == nil {
		out.Validator = validation.NewArtifactValidator(out.Logger)
	}
	return &out
}

func (o *StageOptions) pipeline() config.PipelineConfig { return o.Config.Pipeline }

func (o *StageOptions) format() string { return o.Config.Pipeline.Format }

func (o *StageOptions) readOptions() tables.ReadOptions {
	return tables.ReadOptions{
		TimeCol:       o.Config.Pipeline.TimeCol,
		StringCols:    o.Config.Pipeline.GroupCols,
		FloatCols:     []string{o.Config.Pipeline.TargetCol},
		CoerceInvalid: o.Config.Pipeline.Features.Cyclical.CoerceInvalid,
	}
}

// inputs converts requirements to artifact checks
func inputs(reqs []DataRequirement) []validation.Input {
	out := make([]validation.Input, 0, len(reqs))
	for _, r := range reqs {
		if r.Optional {
			continue
		}
		out = append(out, validation.Input{Name: r.Type, Path: r.Location, Upstream: r.Upstream})
	}
	return out
}

func (o *StageOptions) recordRows(ctx context.Context, stageID string, rows int) {
	if o.Metrics == nil {
		return
	}
	o.Metrics.RowsProcessed.Add(ctx, int64(rows), metric.WithAttributes(attribute.String("stage", stageID)))
}

func (o *StageOptions) recordWarnings(ctx context.Context, stageID string, warnings []apperrors.Warning) {
	for _, w := range warnings {
		o.Logger.WarnContext(ctx, "data_integrity_warning",
			slog.String("step", stageID),
			slog.Any("warning", w))
	}
	if o.Metrics == nil || len(warnings) == 0 {
		return
	}
	o.Metrics.IntegrityWarnings.Add(ctx, int64(len(warnings)), metric.WithAttributes(attribute.String("stage", stageID)))
}

// CleanStage aligns levels and imputes corrupted history of the raw panel
type CleanStage struct {
	BaseStage
	options *StageOptions
}

// NewCleanStage creates the clean step
func NewCleanStage(options *StageOptions) *CleanStage {
	return &CleanStage{
		BaseStage: NewBaseStage(StageIDClean, StageNameClean, nil),
		options:   options.withDefaults(),
	}
}

func (s *CleanStage) rawPath(state *OperationState) string {
	if state != nil {
		if p := state.GetString(ContextKeyInputPath); p != "" {
			return p
		}
	}
	return s.options.Paths.RawFile
}

// Validate requires the raw panel
func (s *CleanStage) Validate(state *OperationState) error {
	return s.options.Validator.RequireInputs(validation.Input{
		Name:     DataTypeRawPanel,
		Path:     s.rawPath(state),
		Upstream: "data export",
	})
}

// RequiredInputs returns the raw panel
func (s *CleanStage) RequiredInputs() []DataRequirement {
	return []DataRequirement{{Type: DataTypeRawPanel, Location: s.options.Paths.RawFile}}
}

// ProducedOutputs returns the cleaned table
func (s *CleanStage) ProducedOutputs() []DataOutput {
	return []DataOutput{{Type: DataTypeCleanedTable, Location: s.options.Paths.Artifact(config.CleanedTable, s.options.format())}}
}

// CanRun is true without a manifest entry because the raw panel comes from outside the pipeline
func (s *CleanStage) CanRun(manifest *PipelineManifest) bool { return true }

// Execute reads the raw panel, repairs it and writes the cleaned table
func (s *CleanStage) Execute(ctx context.Context, state *OperationState) error {
	stepState := state.GetStage(s.ID())
	rawPath := s.rawPath(state)

	cleaner, err := cleaning.NewCleaner(s.options.pipeline())
	if err != nil {
		return err
	}

	raw, err := tables.Read(ctx, rawPath, s.options.readOptions())
	if err != nil {
		return fmt.Errorf("read raw panel: %w", err)
	}
	s.options.recordRows(ctx, s.ID(), raw.NumRows())

	cleaned, report, err := cleaner.Clean(ctx, raw)
	if err != nil {
		return err
	}

	out := s.ProducedOutputs()[0].Location
	if err := tables.Write(ctx, out, cleaned); err != nil {
		return fmt.Errorf("write cleaned table: %w", err)
	}

	if s.options.Metrics != nil && report.Imputed > 0 {
		s.options.Metrics.RowsImputed.Add(ctx, int64(report.Imputed))
	}
	if stepState != nil {
		stepState.SetMetadata(ContextKeyInputPath, rawPath)
		stepState.SetMetadata(ContextKeyRowsIn, raw.NumRows())
		stepState.SetMetadata(ContextKeyRowsOut, cleaned.NumRows())
		stepState.SetMetadata(ContextKeyImputed, report.Imputed)
		stepState.SetMetadata("remaining_missing", report.Remaining)
		stepState.SetMetadata("events", len(report.Events))
	}

	s.options.Logger.InfoContext(ctx, "history_cleaned",
		slog.String("input", rawPath),
		slog.String("output", out),
		slog.Int("rows", cleaned.NumRows()),
		slog.Int("imputed", report.Imputed),
		slog.Int("remaining_missing", report.Remaining),
		slog.Int("aligned_levels", len(report.Factors)))
	return nil
}

// FeaturesStage derives calendar, cyclical and lag/rolling features
type FeaturesStage struct {
	BaseStage
	options *StageOptions
}

// NewFeaturesStage creates the features step
func NewFeaturesStage(options *StageOptions) *FeaturesStage {
	return &FeaturesStage{
		BaseStage: NewBaseStage(StageIDFeatures, StageNameFeatures, []string{StageIDClean}),
		options:   options.withDefaults(),
	}
}

// Validate requires the cleaned table
func (s *FeaturesStage) Validate(state *OperationState) error {
	return s.options.Validator.RequireInputs(inputs(s.RequiredInputs())...)
}

// RequiredInputs returns the cleaned table
func (s *FeaturesStage) RequiredInputs() []DataRequirement {
	return []DataRequirement{{
		Type:     DataTypeCleanedTable,
		Location: s.options.Paths.Artifact(config.CleanedTable, s.options.format()),
		Upstream: StageIDClean,
	}}
}

// ProducedOutputs returns the feature table
func (s *FeaturesStage) ProducedOutputs() []DataOutput {
	return []DataOutput{{Type: DataTypeFeatureTable, Location: s.options.Paths.Artifact(config.FeaturesTable, s.options.format())}}
}

// CanRun checks the manifest for the cleaned table
func (s *FeaturesStage) CanRun(manifest *PipelineManifest) bool {
	return requirementsMet(s.RequiredInputs(), manifest)
}

// Execute adds the configured feature columns to the cleaned table
func (s *FeaturesStage) Execute(ctx context.Context, state *OperationState) error {
	stepState := state.GetStage(s.ID())

	transformers, err := features.FromConfig(s.options.pipeline())
	if err != nil {
		return err
	}

	in := s.RequiredInputs()[0].Location
	p, err := tables.Read(ctx, in, s.options.readOptions())
	if err != nil {
		return fmt.Errorf("read cleaned table: %w", err)
	}
	before := p.NumCols()

	out, err := features.Apply(ctx, p, transformers...)
	if err != nil {
		return err
	}

	outPath := s.ProducedOutputs()[0].Location
	if err := tables.Write(ctx, outPath, out); err != nil {
		return fmt.Errorf("write feature table: %w", err)
	}
	s.options.recordRows(ctx, s.ID(), out.NumRows())

	if stepState != nil {
		stepState.SetMetadata(ContextKeyRowsOut, out.NumRows())
		stepState.SetMetadata(ContextKeyFeatures, out.NumCols()-before)
	}
	s.options.Logger.InfoContext(ctx, "features_written",
		slog.String("output", outPath),
		slog.Int("rows", out.NumRows()),
		slog.Int("columns", out.NumCols()),
		slog.Int("columns_added", out.NumCols()-before))
	return nil
}

// DatasetStage splits the feature table, scales it and publishes the
// partitions together with the dataset specification and split manifest
type DatasetStage struct {
	BaseStage
	options *StageOptions
}

// NewDatasetStage creates the dataset step
func NewDatasetStage(options *StageOptions) *DatasetStage {
	return &DatasetStage{
		BaseStage: NewBaseStage(StageIDDataset, StageNameDataset, []string{StageIDFeatures}),
		options:   options.withDefaults(),
	}
}

// Validate requires the feature table
func (s *DatasetStage) Validate(state *OperationState) error {
	return s.options.Validator.RequireInputs(inputs(s.RequiredInputs())...)
}

// RequiredInputs returns the feature table
func (s *DatasetStage) RequiredInputs() []DataRequirement {
	return []DataRequirement{{
		Type:     DataTypeFeatureTable,
		Location: s.options.Paths.Artifact(config.FeaturesTable, s.options.format()),
		Upstream: StageIDFeatures,
	}}
}

// ProducedOutputs returns the published partitions and documents
func (s *DatasetStage) ProducedOutputs() []DataOutput {
	p := s.options.Paths
	f := s.options.format()
	return []DataOutput{
		{Type: DataTypeSplits + "_" + config.SplitTrain, Location: p.SplitFile(config.SplitTrain, f)},
		{Type: DataTypeSplits + "_" + config.SplitVal, Location: p.SplitFile(config.SplitVal, f)},
		{Type: DataTypeSplits + "_" + config.SplitTest, Location: p.SplitFile(config.SplitTest, f)},
		{Type: DataTypeDatasetSpec, Location: p.SpecFile},
		{Type: DataTypeSplitManifest, Location: p.SplitManifest},
		{Type: DataTypeSplitSummary, Location: p.SplitSummaryXLSX},
	}
}

// CanRun checks the manifest for the feature table
func (s *DatasetStage) CanRun(manifest *PipelineManifest) bool {
	return requirementsMet(s.RequiredInputs(), manifest)
}

// Execute plans and checks the split, then publishes all artifacts or none
func (s *DatasetStage) Execute(ctx context.Context, state *OperationState) error {
	stepState := state.GetStage(s.ID())
	cfg := s.options.pipeline()
	paths := s.options.Paths

	explicit, ratios, err := split.BoundariesFromConfig(cfg.Split)
	if err != nil {
		return err
	}

	source := s.RequiredInputs()[0].Location
	p, err := tables.Read(ctx, source, s.options.readOptions())
	if err != nil {
		return fmt.Errorf("read feature table: %w", err)
	}

	planner := split.NewPlanner(cfg)
	bounds, err := planner.PlanBoundaries(p, explicit, ratios)
	if err != nil {
		return err
	}
	parts, err := planner.Partition(ctx, p, bounds)
	if err != nil {
		return err
	}
	s.options.recordWarnings(ctx, s.ID(), parts.Warnings)

	scaler := split.NewGroupScaler(cfg.GroupCols, cfg.Split.ScaleCols)
	if err := scaler.ScalePartitions(ctx, parts); err != nil {
		return err
	}

	splitPaths := domain.SplitPaths{
		Train: paths.SplitFile(config.SplitTrain, cfg.Format),
		Val:   paths.SplitFile(config.SplitVal, cfg.Format),
		Test:  paths.SplitFile(config.SplitTest, cfg.Format),
	}
	spec, err := dataset.NewBuilder(cfg).BuildSpec(ctx, parts.Train, splitPaths)
	if err != nil {
		return err
	}
	if err := s.options.Validator.ValidateContract("dataset_spec", spec); err != nil {
		return err
	}

	manifest, err := split.NewManifest(parts, split.ManifestInput{
		Pipeline:   cfg,
		Boundaries: bounds,
		ScaledCols: cfg.Split.ScaleCols,
		OutputDir:  paths.DatasetDir,
		Source:     source,
	})
	if err != nil {
		return err
	}
	if err := s.options.Validator.ValidateContract("split_manifest", manifest); err != nil {
		return err
	}

	if err := s.options.Validator.ValidateOutputDirectory(paths.DatasetDir); err != nil {
		return err
	}
	pub, err := tables.NewPublisher(paths.DatasetDir)
	if err != nil {
		return err
	}
	if err := stagePartitions(ctx, pub, splitPaths, parts); err != nil {
		pub.Abort()
		return err
	}
	if err := pub.WriteJSON(paths.SpecFile, spec); err != nil {
		pub.Abort()
		return err
	}
	if err := pub.WriteJSON(paths.SplitManifest, manifest); err != nil {
		pub.Abort()
		return err
	}
	if err := pub.WriteWith(paths.SplitSummaryXLSX, func(path string) error {
		return split.WriteSummary(path, manifest, parts, cfg.TimeCol)
	}); err != nil {
		pub.Abort()
		return err
	}
	if err := pub.Commit(ctx); err != nil {
		return err
	}

	total := parts.Train.NumRows() + parts.Val.NumRows() + parts.Test.NumRows()
	s.options.recordRows(ctx, s.ID(), total)
	if stepState != nil {
		stepState.SetMetadata(ContextKeySplitRows, map[string]int{
			config.SplitTrain: parts.Train.NumRows(),
			config.SplitVal:   parts.Val.NumRows(),
			config.SplitTest:  parts.Test.NumRows(),
		})
		stepState.SetMetadata(ContextKeyBoundaries, map[string]string{
			"val_start":  manifest.ValStart,
			"test_start": manifest.TestStart,
			"source":     manifest.BoundarySource,
		})
		stepState.SetMetadata(ContextKeyWarnings, len(parts.Warnings))
		stepState.SetMetadata(ContextKeySpecPath, paths.SpecFile)
	}
	state.SetContext(ContextKeyPublished, splitPaths)

	s.options.Logger.InfoContext(ctx, "dataset_published",
		slog.String("dir", paths.DatasetDir),
		slog.String("val_start", manifest.ValStart),
		slog.String("test_start", manifest.TestStart),
		slog.Int("train_rows", manifest.Rows.Train),
		slog.Int("val_rows", manifest.Rows.Val),
		slog.Int("test_rows", manifest.Rows.Test),
		slog.Int("unseen_groups", len(manifest.UnseenGroups)))
	return nil
}

func stagePartitions(ctx context.Context, pub *tables.Publisher, paths domain.SplitPaths, parts *split.Partitions) error {
	for _, w := range []struct {
		path string
		p    *panel.Panel
	}{
		{paths.Train, parts.Train},
		{paths.Val, parts.Val},
		{paths.Test, parts.Test},
	} {
		if err := pub.WriteTable(ctx, w.path, w.p); err != nil {
			return err
		}
	}
	return nil
}

// SpecStage rebuilds the dataset specification from published partitions.
// It is not part of the full pipeline.
type SpecStage struct {
	BaseStage
	options *StageOptions
}

// NewSpecStage creates the standalone spec step
func NewSpecStage(options *StageOptions) *SpecStage {
	base := NewBaseStage(StageIDSpec, StageNameSpec, []string{StageIDDataset})
	base.standalone = true
	return &SpecStage{
		BaseStage: base,
		options:   options.withDefaults(),
	}
}

// Validate requires all three published partitions
func (s *SpecStage) Validate(state *OperationState) error {
	return s.options.Validator.RequireInputs(inputs(s.RequiredInputs())...)
}

// RequiredInputs returns the published partitions
func (s *SpecStage) RequiredInputs() []DataRequirement {
	p := s.options.Paths
	f := s.options.format()
	reqs := make([]DataRequirement, 0, 3)
	for _, name := range []string{config.SplitTrain, config.SplitVal, config.SplitTest} {
		reqs = append(reqs, DataRequirement{
			Type:     DataTypeSplits + "_" + name,
			Location: p.SplitFile(name, f),
			Upstream: StageIDDataset,
		})
	}
	return reqs
}

// ProducedOutputs returns the dataset specification
func (s *SpecStage) ProducedOutputs() []DataOutput {
	return []DataOutput{{Type: DataTypeDatasetSpec, Location: s.options.Paths.SpecFile}}
}

// CanRun checks the manifest for the partitions
func (s *SpecStage) CanRun(manifest *PipelineManifest) bool {
	return requirementsMet(s.RequiredInputs(), manifest)
}

// Execute classifies the train partition and replaces dataset_spec.json
func (s *SpecStage) Execute(ctx context.Context, state *OperationState) error {
	stepState := state.GetStage(s.ID())
	reqs := s.RequiredInputs()

	train, err := tables.Read(ctx, reqs[0].Location, s.options.readOptions())
	if err != nil {
		return fmt.Errorf("read train partition: %w", err)
	}

	spec, err := dataset.NewBuilder(s.options.pipeline()).BuildSpec(ctx, train, domain.SplitPaths{
		Train: reqs[0].Location,
		Val:   reqs[1].Location,
		Test:  reqs[2].Location,
	})
	if err != nil {
		return err
	}
	if err := s.options.Validator.ValidateContract("dataset_spec", spec); err != nil {
		return err
	}

	pub, err := tables.NewPublisher(s.options.Paths.DatasetDir)
	if err != nil {
		return err
	}
	if err := pub.WriteJSON(s.options.Paths.SpecFile, spec); err != nil {
		pub.Abort()
		return err
	}
	if err := pub.Commit(ctx); err != nil {
		return err
	}

	if stepState != nil {
		stepState.SetMetadata(ContextKeySpecPath, s.options.Paths.SpecFile)
		stepState.SetMetadata("known_reals", len(spec.FeatureLists.TimeVaryingKnownReals))
		stepState.SetMetadata("unknown_reals", len(spec.FeatureLists.TimeVaryingUnknownReals))
	}
	s.options.Logger.InfoContext(ctx, "dataset_spec_written",
		slog.String("path", s.options.Paths.SpecFile))
	return nil
}

// NewPipelineStages creates every pipeline step in registration order
func NewPipelineStages(options *StageOptions) []Step {
	return []Step{
		NewCleanStage(options),
		NewFeaturesStage(options),
		NewDatasetStage(options),
		NewSpecStage(options),
	}
}

// Compile-time interface checks
var (
	_ Step = (*CleanStage)(nil)
	_ Step = (*FeaturesStage)(nil)
	_ Step = (*DatasetStage)(nil)
	_ Step = (*SpecStage)(nil)
)
