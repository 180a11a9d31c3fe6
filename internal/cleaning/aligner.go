package cleaning

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	apperrors "github.com/Ul012/FOM.tft-timeseries/internal/errors"
	"github.com/Ul012/FOM.tft-timeseries/internal/panel"
)

// Aligner rescales every year of a level (e.g. a country) to the mean level
// of a reference year, removing year-over-year drift before imputation.
type Aligner struct {
	TargetCol     string
	TimeCol       string
	LevelCols     []string
	ReferenceYear int
}

// Factor is the scale applied to one (level, year)
type Factor struct {
	Level         string  `json:"level"`
	Year          int     `json:"year"`
	Mean          float64 `json:"mean"`
	ReferenceMean float64 `json:"reference_mean"`
	Factor        float64 `json:"factor"`
}

type levelYear struct {
	level string
	year  int
}

// Align multiplies the target by reference mean / year mean of its level.
// The reference year itself, rows with invalid timestamps and any factor that
// is not a finite non-zero number keep a factor of 1.
func (a *Aligner) Align(ctx context.Context, p *panel.Panel) (*panel.Panel, []Factor, error) {
	required := append(append([]string{}, a.LevelCols...), a.TimeCol, a.TargetCol)
	if missing := p.Missing(required...); len(missing) > 0 {
		return nil, nil, apperrors.NewSchemaError("panel", missing)
	}
	times, ok := p.Times(a.TimeCol)
	if !ok {
		return nil, nil, apperrors.NewAppValidationError(fmt.Sprintf("time column %s is not a timestamp column", a.TimeCol))
	}
	target, ok := p.Floats(a.TargetCol)
	if !ok {
		return nil, nil, apperrors.NewAppValidationError(fmt.Sprintf("target column %s is not numeric", a.TargetCol))
	}
	levels, err := p.RowKeys(a.LevelCols)
	if err != nil {
		return nil, nil, err
	}

	values := make(map[levelYear][]float64)
	for i, t := range times {
		if t.IsZero() || math.IsNaN(target[i]) {
			continue
		}
		k := levelYear{levels[i], t.Year()}
		values[k] = append(values[k], target[i])
	}

	means := make(map[levelYear]float64, len(values))
	for k, v := range values {
		means[k] = stat.Mean(v, nil)
	}

	factors := make(map[levelYear]float64, len(means))
	var report []Factor
	for k, mean := range means {
		ref, hasRef := means[levelYear{k.level, a.ReferenceYear}]
		f := 1.0
		if k.year != a.ReferenceYear && hasRef {
			f = ref / mean
		}
		if !hasRef || mean == 0 || ref == 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			f = 1.0
		}
		factors[k] = f
		report = append(report, Factor{Level: panel.KeyLabel(k.level), Year: k.year, Mean: mean, ReferenceMean: ref, Factor: f})
	}
	sort.Slice(report, func(i, j int) bool {
		if report[i].Level != report[j].Level {
			return report[i].Level < report[j].Level
		}
		return report[i].Year < report[j].Year
	})

	scaled := make([]float64, len(target))
	for i, v := range target {
		f := 1.0
		if !times[i].IsZero() {
			if got, ok := factors[levelYear{levels[i], times[i].Year()}]; ok {
				f = got
			}
		}
		scaled[i] = v * f
	}

	out := p.Clone()
	if err := out.SetFloats(a.TargetCol, panel.KindFloat, scaled); err != nil {
		return nil, nil, err
	}

	for _, f := range report {
		slog.DebugContext(ctx, "alignment_factor",
			slog.String("level", f.Level),
			slog.Int("year", f.Year),
			slog.Float64("factor", f.Factor))
	}
	return out, report, nil
}
