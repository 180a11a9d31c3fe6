package domain

// SplitRows holds a per-partition count
type SplitRows struct {
	Train int `json:"train"`
	Val   int `json:"val"`
	Test  int `json:"test"`
}

// SplitManifest documents one published split
type SplitManifest struct {
	TimeCol        string    `json:"time_col" validate:"required"`
	IDCols         []string  `json:"id_cols" validate:"required,min=1"`
	TargetCol      string    `json:"target_col" validate:"required"`
	ValStart       string    `json:"val_start" validate:"required,datetime=2006-01-02"`
	TestStart      string    `json:"test_start" validate:"required,datetime=2006-01-02"`
	BoundarySource string    `json:"boundary_source" validate:"oneof=explicit ratios"`
	Rows           SplitRows `json:"rows"`
	Groups         SplitRows `json:"groups"`
	ExcludedRows   int       `json:"excluded_rows"`
	UnseenGroups   []string  `json:"unseen_groups"`
	ScaledCols     []string  `json:"scaled_cols"`
	OutputDir      string    `json:"output_dir"`
	Source         string    `json:"source"`
	Format         string    `json:"format" validate:"oneof=csv parquet"`
}
