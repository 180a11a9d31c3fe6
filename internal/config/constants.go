package config

// Application constants
const (
	// Application Info
	AppName    = "tftprep"
	AppVersion = "1.0.0"

	// Pipeline step identifiers, shared by the CLI and the operations package
	StepClean        = "clean"
	StepFeatures     = "features"
	StepDataset      = "dataset"
	StepSpec         = "spec"
	StepFullPipeline = "full_pipeline"

	// Processed table names
	CleanedTable  = "cleaned"
	FeaturesTable = "features"

	// Partition names
	SplitTrain = "train"
	SplitVal   = "val"
	SplitTest  = "test"
)
