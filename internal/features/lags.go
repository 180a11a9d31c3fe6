package features

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/Ul012/FOM.tft-timeseries/internal/config"
	apperrors "github.com/Ul012/FOM.tft-timeseries/internal/errors"
	"github.com/Ul012/FOM.tft-timeseries/internal/panel"
)

// RollingStat names an aggregate over a trailing window
type RollingStat string

const (
	StatMean   RollingStat = "mean"
	StatStd    RollingStat = "std"
	StatMin    RollingStat = "min"
	StatMax    RollingStat = "max"
	StatMedian RollingStat = "median"
	StatSum    RollingStat = "sum"
)

// RollingSpec is one (window, stat) pair
type RollingSpec struct {
	Window int
	Stat   RollingStat
}

// LagGenerator derives lag and rolling features of the target per series.
//
// Lags count observed rows, not calendar days: when a series has missing
// dates, lag 7 is the value seven rows back. Rolling windows cover the W rows
// before the current one and never include it; a window needs one observed
// value (min_periods=1), otherwise the result is NaN. Std is the population
// standard deviation.
type LagGenerator struct {
	TargetCol string
	TimeCol   string
	GroupCols []string
	Lags      []int
	Rolling   []RollingSpec
	Prefix    string
	Workers   int
}

// NewLagGenerator builds the generator from the pipeline configuration.
// Every roll window is combined with every roll stat.
func NewLagGenerator(cfg config.PipelineConfig) (*LagGenerator, error) {
	lc := cfg.Features.Lags
	g := &LagGenerator{
		TargetCol: cfg.TargetCol,
		TimeCol:   cfg.TimeCol,
		GroupCols: cfg.GroupCols,
		Lags:      lc.Lags,
		Prefix:    lc.Prefix,
		Workers:   cfg.Workers,
	}
	for _, w := range lc.RollWindows {
		for _, s := range lc.RollStats {
			g.Rolling = append(g.Rolling, RollingSpec{Window: w, Stat: RollingStat(s)})
		}
	}
	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *LagGenerator) validate() error {
	for _, l := range g.Lags {
		if l <= 0 {
			return apperrors.NewConfigError(fmt.Sprintf("lag must be positive, got %d", l), nil)
		}
	}
	for _, r := range g.Rolling {
		if r.Window <= 0 {
			return apperrors.NewConfigError(fmt.Sprintf("roll window must be positive, got %d", r.Window), nil)
		}
		if _, err := aggregate(r.Stat, []float64{1}); err != nil {
			return apperrors.NewConfigError("invalid roll stat", err)
		}
	}
	return nil
}

// LagColumn is the name of the lag-L column
func (g *LagGenerator) LagColumn(lag int) string {
	return g.Prefix + g.TargetCol + "_" + strconv.Itoa(lag)
}

// RollingColumn is the name of a rolling column
func (g *LagGenerator) RollingColumn(r RollingSpec) string {
	return fmt.Sprintf("%s%s_roll%d_%s", g.Prefix, g.TargetCol, r.Window, r.Stat)
}

// Name identifies the transformer in logs
func (g *LagGenerator) Name() string { return "lags" }

// Fit validates the configuration
func (g *LagGenerator) Fit(p *panel.Panel) error {
	return g.validate()
}

// Transform is Generate
func (g *LagGenerator) Transform(ctx context.Context, p *panel.Panel) (*panel.Panel, error) {
	return g.Generate(ctx, p)
}

// Generate returns the panel sorted by (group columns, time) with the lag and
// rolling columns added. Without a target column the panel is returned unchanged.
func (g *LagGenerator) Generate(ctx context.Context, p *panel.Panel) (*panel.Panel, error) {
	if !p.Has(g.TargetCol) {
		slog.InfoContext(ctx, "lag_features_skipped",
			slog.String("reason", "target column absent"),
			slog.String("target", g.TargetCol))
		return p, nil
	}
	if err := g.validate(); err != nil {
		return nil, err
	}
	required := append(append([]string{}, g.GroupCols...), g.TimeCol)
	if missing := p.Missing(required...); len(missing) > 0 {
		return nil, apperrors.NewSchemaError("panel", missing)
	}

	sorted, err := p.SortBy(required...)
	if err != nil {
		return nil, err
	}
	target, ok := sorted.Floats(g.TargetCol)
	if !ok {
		return nil, apperrors.NewAppValidationError(fmt.Sprintf("target column %s is not numeric", g.TargetCol))
	}
	groups, err := sorted.Groups(g.GroupCols)
	if err != nil {
		return nil, err
	}

	n := sorted.NumRows()
	lagCols := make([][]float64, len(g.Lags))
	for i := range lagCols {
		lagCols[i] = nanSlice(n)
	}
	rollCols := make([][]float64, len(g.Rolling))
	for i := range rollCols {
		rollCols[i] = nanSlice(n)
	}

	// groups own disjoint rows, so workers write the shared slices without locks
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workerCount(g.Workers))
	for _, grp := range groups {
		rows := grp.Rows
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			g.fillGroup(rows, target, lagCols, rollCols)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for i, l := range g.Lags {
		if err := sorted.SetFloats(g.LagColumn(l), panel.KindFloat, lagCols[i]); err != nil {
			return nil, err
		}
	}
	for i, r := range g.Rolling {
		if err := sorted.SetFloats(g.RollingColumn(r), panel.KindFloat, rollCols[i]); err != nil {
			return nil, err
		}
	}

	slog.DebugContext(ctx, "lag_features_generated",
		slog.Int("groups", len(groups)),
		slog.Int("lags", len(g.Lags)),
		slog.Int("rolling", len(g.Rolling)))
	return sorted, nil
}

// fillGroup computes every feature for one series. rows are in time order.
func (g *LagGenerator) fillGroup(rows []int, target []float64, lagCols, rollCols [][]float64) {
	for li, lag := range g.Lags {
		for k := lag; k < len(rows); k++ {
			lagCols[li][rows[k]] = target[rows[k-lag]]
		}
	}

	window := make([]float64, 0, 16)
	for ri, r := range g.Rolling {
		for k := range rows {
			window = window[:0]
			for j := max(0, k-r.Window); j < k; j++ {
				if v := target[rows[j]]; !math.IsNaN(v) {
					window = append(window, v)
				}
			}
			if len(window) == 0 {
				continue
			}
			v, _ := aggregate(r.Stat, window)
			rollCols[ri][rows[k]] = v
		}
	}
}

// aggregate computes stat over a non-empty window. The window may be reordered.
func aggregate(s RollingStat, window []float64) (float64, error) {
	switch s {
	case StatMean:
		return stat.Mean(window, nil), nil
	case StatStd:
		_, std := stat.PopMeanStdDev(window, nil)
		return std, nil
	case StatMin:
		return floats.Min(window), nil
	case StatMax:
		return floats.Max(window), nil
	case StatSum:
		return floats.Sum(window), nil
	case StatMedian:
		sort.Float64s(window)
		m := len(window) / 2
		if len(window)%2 == 1 {
			return window[m], nil
		}
		return (window[m-1] + window[m]) / 2, nil
	default:
		return 0, fmt.Errorf("unknown stat %q", s)
	}
}
