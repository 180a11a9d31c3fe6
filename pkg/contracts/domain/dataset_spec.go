package domain

import (
	"encoding/json"
	"fmt"
)

// DatasetSpecVersion is the schema version written into every spec
const DatasetSpecVersion = "1.0"

// DatasetSpec is the declarative document handed to the sequence-model
// trainer. It is written once per run and read-only afterwards.
type DatasetSpec struct {
	SchemaVersion string          `json:"schema_version" validate:"required"`
	TimeCol       string          `json:"time_col" validate:"required"`
	IDCols        []string        `json:"id_cols" validate:"required,min=1,dive,required"`
	TargetCol     string          `json:"target_col" validate:"required"`
	Paths         SplitPaths      `json:"paths"`
	FeatureLists  FeatureLists    `json:"feature_lists"`
	Lengths       SequenceLengths `json:"lengths"`
	Notes         SpecNotes       `json:"notes"`
}

// SplitPaths binds each partition to its table file
type SplitPaths struct {
	Train string `json:"train" validate:"required"`
	Val   string `json:"val" validate:"required"`
	Test  string `json:"test" validate:"required"`
}

// FeatureLists holds the role-classified column lists
type FeatureLists struct {
	StaticCategoricals           []string `json:"static_categoricals"`
	TimeVaryingKnownReals        []string `json:"time_varying_known_reals"`
	TimeVaryingUnknownReals      []string `json:"time_varying_unknown_reals"`
	TimeVaryingKnownCategoricals []string `json:"time_varying_known_categoricals"`
}

// SequenceLengths are the encoder and prediction window lengths
type SequenceLengths struct {
	MaxEncoderLength    int `json:"max_encoder_length" validate:"gt=0"`
	MaxPredictionLength int `json:"max_prediction_length" validate:"gt=0"`
}

// SpecNotes records the heuristics used to classify columns
type SpecNotes struct {
	CalendarAsKnown   bool              `json:"calendar_as_known"`
	HeuristicPrefixes HeuristicPrefixes `json:"heuristic_prefixes"`
}

// HeuristicPrefixes lists the name rules of the role classifier
type HeuristicPrefixes struct {
	KnownRealPrefixes []string `json:"known_real_prefixes"`
	LagPrefixes       []string `json:"lag_prefixes"`
	HolidayPrefixes   []string `json:"holiday_prefixes"`
	FlagCols          []string `json:"flag_cols"`
}

// DecodeDatasetSpec parses a spec document. Unknown keys are ignored so
// newer writers stay readable.
func DecodeDatasetSpec(data []byte) (*DatasetSpec, error) {
	var spec DatasetSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("decode dataset spec: %w", err)
	}
	return &spec, nil
}
