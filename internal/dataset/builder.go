package dataset

import (
	"context"
	"log/slog"

	"github.com/Ul012/FOM.tft-timeseries/internal/config"
	apperrors "github.com/Ul012/FOM.tft-timeseries/internal/errors"
	"github.com/Ul012/FOM.tft-timeseries/internal/panel"
	"github.com/Ul012/FOM.tft-timeseries/pkg/contracts/domain"
)

// Builder creates the dataset specification from the train partition
type Builder struct {
	TimeCol   string
	IDCols    []string
	TargetCol string
	Roles     RoleConfig
	Lengths   domain.SequenceLengths
}

// NewBuilder creates a builder for the pipeline's panel layout
func NewBuilder(cfg config.PipelineConfig) *Builder {
	return &Builder{
		TimeCol:   cfg.TimeCol,
		IDCols:    cfg.GroupCols,
		TargetCol: cfg.TargetCol,
		Roles:     RoleConfigFromConfig(cfg),
		Lengths: domain.SequenceLengths{
			MaxEncoderLength:    cfg.Dataset.MaxEncoderLength,
			MaxPredictionLength: cfg.Dataset.MaxPredictionLength,
		},
	}
}

// BuildSpec classifies the columns of train and binds the partition paths.
// It fails with a SCHEMA error when an id, time or target column is missing
// and never modifies train.
func (b *Builder) BuildSpec(ctx context.Context, train *panel.Panel, paths domain.SplitPaths) (*domain.DatasetSpec, error) {
	required := append(append([]string{}, b.IDCols...), b.TimeCol, b.TargetCol)
	if missing := train.Missing(required...); len(missing) > 0 {
		return nil, apperrors.NewSchemaError(config.SplitTrain, missing)
	}

	roles := Classify(Describe(train), b.IDCols, b.TargetCol, b.Roles)

	holidayPrefixes := []string{}
	if b.Roles.HolidayPrefix != "" {
		holidayPrefixes = append(holidayPrefixes, b.Roles.HolidayPrefix)
	}
	spec := &domain.DatasetSpec{
		SchemaVersion: domain.DatasetSpecVersion,
		TimeCol:       b.TimeCol,
		IDCols:        append([]string{}, b.IDCols...),
		TargetCol:     b.TargetCol,
		Paths:         paths,
		FeatureLists: domain.FeatureLists{
			StaticCategoricals:           roles.StaticCategoricals,
			TimeVaryingKnownReals:        roles.KnownReals,
			TimeVaryingUnknownReals:      roles.UnknownReals,
			TimeVaryingKnownCategoricals: []string{},
		},
		Lengths: b.Lengths,
		Notes: domain.SpecNotes{
			CalendarAsKnown: b.Roles.TreatCalendarAsKnown,
			HeuristicPrefixes: domain.HeuristicPrefixes{
				KnownRealPrefixes: nonNil(b.Roles.KnownRealPrefixes),
				LagPrefixes:       nonNil(b.Roles.LagPrefixes),
				HolidayPrefixes:   holidayPrefixes,
				FlagCols:          nonNil(b.Roles.FlagCols),
			},
		},
	}

	slog.InfoContext(ctx, "dataset_spec_built",
		slog.Any("static_categoricals", roles.StaticCategoricals),
		slog.Int("known_reals", len(roles.KnownReals)),
		slog.Int("unknown_reals", len(roles.UnknownReals)),
		slog.Int("max_encoder_length", b.Lengths.MaxEncoderLength),
		slog.Int("max_prediction_length", b.Lengths.MaxPredictionLength))
	return spec, nil
}
