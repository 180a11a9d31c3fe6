package split

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/Ul012/FOM.tft-timeseries/internal/config"
	apperrors "github.com/Ul012/FOM.tft-timeseries/internal/errors"
	"github.com/Ul012/FOM.tft-timeseries/internal/panel"
)

// Moments are the train statistics of one column in one group
type Moments struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// GroupScaler standardizes columns per group with statistics fit on train
// only. Std is the sample standard deviation. A group with zero or undefined
// spread in train, or one that train never saw, scales to NaN.
type GroupScaler struct {
	GroupCols []string
	Cols      []string

	stats  map[string]map[string]Moments
	fitted bool
}

// NewGroupScaler creates an unfitted scaler
func NewGroupScaler(groupCols, cols []string) *GroupScaler {
	return &GroupScaler{GroupCols: groupCols, Cols: cols}
}

// Fit collects mean and std per group and column from the train partition
func (s *GroupScaler) Fit(train *panel.Panel) error {
	required := append(append([]string{}, s.GroupCols...), s.Cols...)
	if missing := train.Missing(required...); len(missing) > 0 {
		return apperrors.NewSchemaError(config.SplitTrain, missing)
	}
	groups, err := train.Groups(s.GroupCols)
	if err != nil {
		return err
	}

	s.stats = make(map[string]map[string]Moments, len(s.Cols))
	for _, col := range s.Cols {
		values, ok := train.Floats(col)
		if !ok {
			return apperrors.NewAppValidationError(fmt.Sprintf("column %s cannot be scaled: not numeric", col))
		}
		byGroup := make(map[string]Moments, len(groups))
		obs := make([]float64, 0)
		for _, g := range groups {
			obs = obs[:0]
			for _, row := range g.Rows {
				if v := values[row]; !math.IsNaN(v) {
					obs = append(obs, v)
				}
			}
			m := Moments{Mean: math.NaN(), Std: math.NaN()}
			switch len(obs) {
			case 0:
			case 1:
				m.Mean = obs[0]
			default:
				m.Mean, m.Std = stat.MeanStdDev(obs, nil)
			}
			byGroup[g.Key] = m
		}
		s.stats[col] = byGroup
	}
	s.fitted = true
	return nil
}

// Moments returns the fitted statistics of a column in a group
func (s *GroupScaler) Moments(col, groupKey string) (Moments, bool) {
	m, ok := s.stats[col][groupKey]
	return m, ok
}

// Transform replaces every scaled column with its z-score. The input panel
// is not modified.
func (s *GroupScaler) Transform(ctx context.Context, p *panel.Panel) (*panel.Panel, error) {
	if !s.fitted {
		return nil, apperrors.NewAppValidationError("scaler used before fit")
	}
	required := append(append([]string{}, s.GroupCols...), s.Cols...)
	if missing := p.Missing(required...); len(missing) > 0 {
		return nil, apperrors.NewSchemaError("partition", missing)
	}
	keys, err := p.RowKeys(s.GroupCols)
	if err != nil {
		return nil, err
	}

	out := p.Clone()
	for _, col := range s.Cols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		values, ok := p.Floats(col)
		if !ok {
			return nil, apperrors.NewAppValidationError(fmt.Sprintf("column %s cannot be scaled: not numeric", col))
		}
		byGroup := s.stats[col]
		scaled := make([]float64, len(values))
		undefined := 0
		for i, v := range values {
			m, seen := byGroup[keys[i]]
			if !seen || math.IsNaN(m.Std) || m.Std == 0 {
				scaled[i] = math.NaN()
				undefined++
				continue
			}
			scaled[i] = (v - m.Mean) / m.Std
		}
		if err := out.SetFloats(col, panel.KindFloat, scaled); err != nil {
			return nil, err
		}
		if undefined > 0 {
			slog.DebugContext(ctx, "scaling_undefined",
				slog.String("column", col),
				slog.Int("rows", undefined))
		}
	}
	return out, nil
}

// ScalePartitions fits on train and transforms all three partitions in place
func (s *GroupScaler) ScalePartitions(ctx context.Context, parts *Partitions) error {
	if len(s.Cols) == 0 {
		return nil
	}
	if err := s.Fit(parts.Train); err != nil {
		return fmt.Errorf("fit scaler on train: %w", err)
	}
	for _, target := range []**panel.Panel{&parts.Train, &parts.Val, &parts.Test} {
		scaled, err := s.Transform(ctx, *target)
		if err != nil {
			return err
		}
		*target = scaled
	}
	slog.InfoContext(ctx, "partitions_scaled",
		slog.Any("columns", s.Cols))
	return nil
}
