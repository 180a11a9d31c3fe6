// Package split partitions a feature panel into train, validation and test
// windows by time. Boundaries are global: every series is cut at the same
// timestamps, and distributional statistics are only ever fit on train.
package split

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/Ul012/FOM.tft-timeseries/internal/config"
	apperrors "github.com/Ul012/FOM.tft-timeseries/internal/errors"
	"github.com/Ul012/FOM.tft-timeseries/internal/panel"
)

// Boundary sources
const (
	SourceExplicit = "explicit"
	SourceRatios   = "ratios"
)

// Boundaries are the first timestamps of the validation and test windows
type Boundaries struct {
	ValStart  time.Time
	TestStart time.Time
	Source    string
}

// Ratios is the (train, val, test) share of rows
type Ratios struct {
	Train float64
	Val   float64
	Test  float64
}

// Sum returns the total of the three shares
func (r Ratios) Sum() float64 { return r.Train + r.Val + r.Test }

// Partitions holds the three windows of one split
type Partitions struct {
	Train *panel.Panel
	Val   *panel.Panel
	Test  *panel.Panel
	// Excluded counts rows with an invalid timestamp, which belong to no window
	Excluded int
	Warnings []apperrors.Warning
	// UnseenGroups lists groups of val or test that never occur in train
	UnseenGroups []string
}

// Planner computes boundaries and partitions panels
type Planner struct {
	TimeCol   string
	GroupCols []string
	// MinRows is the smallest panel a ratio split accepts
	MinRows int
}

// NewPlanner creates a planner for the pipeline's panel layout
func NewPlanner(cfg config.PipelineConfig) *Planner {
	return &Planner{
		TimeCol:   cfg.TimeCol,
		GroupCols: cfg.GroupCols,
		MinRows:   cfg.Split.MinRows,
	}
}

// BoundariesFromConfig returns explicit boundaries when val_start and
// test_start are configured, otherwise nil and the configured ratios.
func BoundariesFromConfig(cfg config.SplitConfig) (*Boundaries, Ratios, error) {
	var ratios Ratios
	if len(cfg.Ratios) == 3 {
		ratios = Ratios{Train: cfg.Ratios[0], Val: cfg.Ratios[1], Test: cfg.Ratios[2]}
	}
	if cfg.ValStart == "" && cfg.TestStart == "" {
		return nil, ratios, nil
	}
	val, err := time.Parse(config.DateLayout, cfg.ValStart)
	if err != nil {
		return nil, ratios, apperrors.NewConfigError(fmt.Sprintf("invalid val_start %q", cfg.ValStart), err)
	}
	test, err := time.Parse(config.DateLayout, cfg.TestStart)
	if err != nil {
		return nil, ratios, apperrors.NewConfigError(fmt.Sprintf("invalid test_start %q", cfg.TestStart), err)
	}
	return &Boundaries{ValStart: val, TestStart: test, Source: SourceExplicit}, ratios, nil
}

// PlanBoundaries validates explicit boundaries, or derives them from ratios.
//
// With ratios, all valid timestamps of the panel are sorted together and the
// boundaries are the timestamps at positions floor(n*train) and
// floor(n*(train+val)). Positions are clamped so that train and val keep at
// least one position and the test position stays inside the table.
func (pl *Planner) PlanBoundaries(p *panel.Panel, explicit *Boundaries, ratios Ratios) (Boundaries, error) {
	if explicit != nil {
		if !explicit.ValStart.Before(explicit.TestStart) {
			return Boundaries{}, apperrors.NewConfigError(fmt.Sprintf("val_start %s must be before test_start %s",
				explicit.ValStart.Format(time.DateOnly), explicit.TestStart.Format(time.DateOnly)), nil)
		}
		b := *explicit
		b.Source = SourceExplicit
		return b, nil
	}

	if math.Abs(ratios.Sum()-1) > config.RatioTolerance {
		return Boundaries{}, apperrors.NewConfigError(fmt.Sprintf("split ratios must sum to 1, got %g", ratios.Sum()), nil)
	}
	if ratios.Train < 0 || ratios.Val < 0 || ratios.Test < 0 {
		return Boundaries{}, apperrors.NewConfigError("split ratios must not be negative", nil)
	}

	times, ok := p.Times(pl.TimeCol)
	if !ok {
		return Boundaries{}, apperrors.NewSchemaError("panel", []string{pl.TimeCol})
	}
	sorted := make([]time.Time, 0, len(times))
	for _, t := range times {
		if !t.IsZero() {
			sorted = append(sorted, t)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	n := len(sorted)
	minRows := pl.MinRows
	if minRows <= 0 {
		minRows = 10
	}
	if n < minRows {
		return Boundaries{}, apperrors.NewDataIntegrityError(fmt.Sprintf("too few rows for a split: %d valid timestamps, need %d", n, minRows))
	}

	idxVal := max(1, int(math.Floor(float64(n)*ratios.Train)))
	idxTest := max(idxVal+1, int(math.Floor(float64(n)*(ratios.Train+ratios.Val))))
	idxVal = min(idxVal, n-2)
	idxTest = min(idxTest, n-1)

	b := Boundaries{ValStart: sorted[idxVal], TestStart: sorted[idxTest], Source: SourceRatios}
	if !b.ValStart.Before(b.TestStart) {
		return Boundaries{}, apperrors.NewDataIntegrityError(fmt.Sprintf("ratio boundaries collapse: val_start %s is not before test_start %s",
			b.ValStart.Format(time.RFC3339), b.TestStart.Format(time.RFC3339))).
			WithContext("idx_val", idxVal).
			WithContext("idx_test", idxTest)
	}
	return b, nil
}

// Partition cuts the panel at the boundaries: train is time < val_start,
// val is val_start <= time < test_start, test is time >= test_start. It fails
// when a window is empty or train overlaps a later window, and warns about
// groups of val or test that train never saw.
func (pl *Planner) Partition(ctx context.Context, p *panel.Panel, b Boundaries) (*Partitions, error) {
	required := append(append([]string{}, pl.GroupCols...), pl.TimeCol)
	if missing := p.Missing(required...); len(missing) > 0 {
		return nil, apperrors.NewSchemaError("panel", missing)
	}
	times, ok := p.Times(pl.TimeCol)
	if !ok {
		return nil, apperrors.NewAppValidationError(fmt.Sprintf("time column %s is not a timestamp column", pl.TimeCol))
	}

	var trainIdx, valIdx, testIdx []int
	excluded := 0
	for i, t := range times {
		switch {
		case t.IsZero():
			excluded++
		case t.Before(b.ValStart):
			trainIdx = append(trainIdx, i)
		case t.Before(b.TestStart):
			valIdx = append(valIdx, i)
		default:
			testIdx = append(testIdx, i)
		}
	}

	parts := &Partitions{
		Train:    p.Take(trainIdx),
		Val:      p.Take(valIdx),
		Test:     p.Take(testIdx),
		Excluded: excluded,
	}
	if err := pl.checkWindows(parts); err != nil {
		return nil, err
	}
	if err := pl.checkGroups(ctx, parts); err != nil {
		return nil, err
	}

	if excluded > 0 {
		slog.WarnContext(ctx, "invalid_timestamps_excluded",
			slog.Int("rows", excluded))
	}
	slog.InfoContext(ctx, "split_planned",
		slog.String("source", b.Source),
		slog.String("val_start", b.ValStart.Format(time.DateOnly)),
		slog.String("test_start", b.TestStart.Format(time.DateOnly)),
		slog.Int("train_rows", parts.Train.NumRows()),
		slog.Int("val_rows", parts.Val.NumRows()),
		slog.Int("test_rows", parts.Test.NumRows()))
	return parts, nil
}

func (pl *Planner) checkWindows(parts *Partitions) error {
	for _, w := range []struct {
		name string
		p    *panel.Panel
	}{
		{config.SplitTrain, parts.Train},
		{config.SplitVal, parts.Val},
		{config.SplitTest, parts.Test},
	} {
		if w.p.NumRows() == 0 {
			return apperrors.NewDataIntegrityError(fmt.Sprintf("%s partition is empty, check the split boundaries", w.name)).
				WithContext("partition", w.name)
		}
	}

	_, trainMax := timeRange(parts.Train, pl.TimeCol)
	valMin, _ := timeRange(parts.Val, pl.TimeCol)
	testMin, _ := timeRange(parts.Test, pl.TimeCol)
	if !trainMax.Before(valMin) || !trainMax.Before(testMin) {
		return apperrors.NewDataIntegrityError(fmt.Sprintf("train overlaps later partitions: train ends %s, val starts %s, test starts %s",
			trainMax.Format(time.RFC3339), valMin.Format(time.RFC3339), testMin.Format(time.RFC3339)))
	}
	return nil
}

func (pl *Planner) checkGroups(ctx context.Context, parts *Partitions) error {
	trainGroups, err := groupSet(parts.Train, pl.GroupCols)
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	for _, w := range []struct {
		name string
		p    *panel.Panel
	}{
		{config.SplitVal, parts.Val},
		{config.SplitTest, parts.Test},
	} {
		groups, err := w.p.Groups(pl.GroupCols)
		if err != nil {
			return err
		}
		var unseen []string
		for _, g := range groups {
			if trainGroups[g.Key] {
				continue
			}
			unseen = append(unseen, g.Label())
			if !seen[g.Key] {
				seen[g.Key] = true
				parts.UnseenGroups = append(parts.UnseenGroups, g.Label())
			}
		}
		if len(unseen) == 0 {
			continue
		}
		warn := apperrors.NewDataIntegrityWarning(
			fmt.Sprintf("%d groups occur in %s but never in train", len(unseen), w.name),
			map[string]interface{}{"partition": w.name, "groups": unseen},
		)
		parts.Warnings = append(parts.Warnings, warn)
		slog.WarnContext(ctx, "unseen_groups_in_eval", slog.Any("warning", warn))
	}
	return nil
}

// GroupCounts returns the number of distinct groups per partition
func (parts *Partitions) GroupCounts(groupCols []string) (map[string]int, error) {
	out := make(map[string]int, 3)
	for name, p := range map[string]*panel.Panel{
		config.SplitTrain: parts.Train,
		config.SplitVal:   parts.Val,
		config.SplitTest:  parts.Test,
	} {
		set, err := groupSet(p, groupCols)
		if err != nil {
			return nil, err
		}
		out[name] = len(set)
	}
	return out, nil
}

func groupSet(p *panel.Panel, groupCols []string) (map[string]bool, error) {
	keys, err := p.RowKeys(groupCols)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool)
	for _, k := range keys {
		set[k] = true
	}
	return set, nil
}

// timeRange returns the earliest and latest valid timestamp of a panel
func timeRange(p *panel.Panel, col string) (time.Time, time.Time) {
	times, _ := p.Times(col)
	var lo, hi time.Time
	for _, t := range times {
		if t.IsZero() {
			continue
		}
		if lo.IsZero() || t.Before(lo) {
			lo = t
		}
		if hi.IsZero() || t.After(hi) {
			hi = t
		}
	}
	return lo, hi
}
