package cleaning

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	apperrors "github.com/Ul012/FOM.tft-timeseries/internal/errors"
	"github.com/Ul012/FOM.tft-timeseries/internal/panel"
)

// Event is one kind of corrupted history: it selects the rows to discard and
// names the analogue period used to repair them.
type Event interface {
	Describe() string
	Matches(t time.Time) bool
	// Flag is the provenance column set to 1 on matched rows, or "" for none
	Flag() string
	Analogue() (period, repeats int)
}

// OutlierEvent discards a single date across every series
type OutlierEvent struct {
	Date    time.Time
	Period  int
	Repeats int
}

func (e OutlierEvent) Describe() string { return "outlier " + e.Date.Format(time.DateOnly) }
func (e OutlierEvent) Flag() string     { return "" }
func (e OutlierEvent) Analogue() (int, int) {
	return e.Period, e.Repeats
}

// Matches compares calendar dates
func (e OutlierEvent) Matches(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	y1, m1, d1 := t.Date()
	y2, m2, d2 := e.Date.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// RegimeEvent discards the months StartMonth..EndMonth of Year and flags them
type RegimeEvent struct {
	Year       int
	StartMonth time.Month
	EndMonth   time.Month
	FlagCol    string
	Period     int
	Repeats    int
}

func (e RegimeEvent) Describe() string {
	return fmt.Sprintf("regime %d-%02d..%d-%02d", e.Year, e.StartMonth, e.Year, e.EndMonth)
}
func (e RegimeEvent) Flag() string { return e.FlagCol }
func (e RegimeEvent) Analogue() (int, int) {
	return e.Period, e.Repeats
}

func (e RegimeEvent) Matches(t time.Time) bool {
	return !t.IsZero() && t.Year() == e.Year && t.Month() >= e.StartMonth && t.Month() <= e.EndMonth
}

// EventReport summarizes what one event did
type EventReport struct {
	Event     string `json:"event"`
	Marked    int    `json:"marked"`
	Imputed   int    `json:"imputed"`
	Remaining int    `json:"remaining"`
}

// Imputer repairs corrupted history with periodic analogues. For a missing
// target at row t of a series it takes the mean of the observed values at
// t-P, t-2P, ..., t-R*P of the same series. Positions count rows.
type Imputer struct {
	TargetCol string
	TimeCol   string
	GroupCols []string
	Events    []Event
	Workers   int
}

// ImputeResult is the repaired panel plus per-event reports
type ImputeResult struct {
	Panel   *panel.Panel
	Reports []EventReport
	// Remaining counts target values still missing after all events
	Remaining int
}

// Imputed is the total number of repaired values
func (r *ImputeResult) Imputed() int {
	total := 0
	for _, rep := range r.Reports {
		total += rep.Imputed
	}
	return total
}

func (im *Imputer) validate() error {
	for _, e := range im.Events {
		period, repeats := e.Analogue()
		if period < 1 || repeats < 1 {
			return apperrors.NewConfigError(fmt.Sprintf("%s: period and repeats must be >= 1, got %d and %d", e.Describe(), period, repeats), nil)
		}
	}
	return nil
}

// Impute applies the events in order on the panel sorted by (groups, time).
// Each event first discards its rows and sets its flag, then repairs every
// missing target value from a snapshot taken after discarding, so values
// repaired by an event never feed other repairs of the same event. Flags are
// only ever set, never cleared.
func (im *Imputer) Impute(ctx context.Context, p *panel.Panel) (*ImputeResult, error) {
	if err := im.validate(); err != nil {
		return nil, err
	}
	required := append(append([]string{}, im.GroupCols...), im.TimeCol, im.TargetCol)
	if missing := p.Missing(required...); len(missing) > 0 {
		return nil, apperrors.NewSchemaError("panel", missing)
	}

	sorted, err := p.SortBy(append(append([]string{}, im.GroupCols...), im.TimeCol)...)
	if err != nil {
		return nil, err
	}
	times, ok := sorted.Times(im.TimeCol)
	if !ok {
		return nil, apperrors.NewAppValidationError(fmt.Sprintf("time column %s is not a timestamp column", im.TimeCol))
	}
	src, ok := sorted.Floats(im.TargetCol)
	if !ok {
		return nil, apperrors.NewAppValidationError(fmt.Sprintf("target column %s is not numeric", im.TargetCol))
	}
	groups, err := sorted.Groups(im.GroupCols)
	if err != nil {
		return nil, err
	}

	target := append([]float64(nil), src...)
	flags := make(map[string][]float64)
	var flagOrder []string
	result := &ImputeResult{}

	for _, ev := range im.Events {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		flagCol := ev.Flag()
		if flagCol != "" && flags[flagCol] == nil {
			flags[flagCol] = im.initialFlag(sorted, flagCol)
			flagOrder = append(flagOrder, flagCol)
		}

		marked := 0
		for i, t := range times {
			if !ev.Matches(t) {
				continue
			}
			target[i] = math.NaN()
			marked++
			if flagCol != "" {
				flags[flagCol][i] = 1
			}
		}

		period, repeats := ev.Analogue()
		snapshot := append([]float64(nil), target...)
		imputed := make([]int, len(groups))

		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(workers(im.Workers))
		for gi, grp := range groups {
			eg.Go(func() error {
				if err := egCtx.Err(); err != nil {
					return err
				}
				imputed[gi] = repairGroup(grp.Rows, snapshot, target, period, repeats)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}

		report := EventReport{Event: ev.Describe(), Marked: marked, Remaining: countMissing(target)}
		for _, n := range imputed {
			report.Imputed += n
		}
		result.Reports = append(result.Reports, report)

		slog.InfoContext(ctx, "imputation_event_applied",
			slog.String("event", report.Event),
			slog.Int("marked", report.Marked),
			slog.Int("imputed", report.Imputed),
			slog.Int("remaining", report.Remaining))
	}

	out := sorted.Clone()
	if err := out.SetFloats(im.TargetCol, panel.KindFloat, target); err != nil {
		return nil, err
	}
	for _, col := range flagOrder {
		if err := out.SetFloats(col, panel.KindInt, flags[col]); err != nil {
			return nil, err
		}
	}

	result.Panel = out
	result.Remaining = countMissing(target)
	if result.Remaining > 0 {
		slog.WarnContext(ctx, "imputation_incomplete",
			slog.String("target", im.TargetCol),
			slog.Int("remaining", result.Remaining))
	}
	return result, nil
}

// initialFlag starts from an existing flag column so earlier flags survive
func (im *Imputer) initialFlag(p *panel.Panel, col string) []float64 {
	out := make([]float64, p.NumRows())
	if existing, ok := p.Floats(col); ok {
		for i, v := range existing {
			if v == 1 {
				out[i] = 1
			}
		}
	}
	return out
}

// repairGroup fills missing values of one series in place and returns how
// many it filled. rows are in time order.
func repairGroup(rows []int, snapshot, target []float64, period, repeats int) int {
	filled := 0
	analogues := make([]float64, 0, repeats)
	for k, row := range rows {
		if !math.IsNaN(snapshot[row]) {
			continue
		}
		analogues = analogues[:0]
		for j := 1; j <= repeats; j++ {
			pos := k - j*period
			if pos < 0 {
				break
			}
			if v := snapshot[rows[pos]]; !math.IsNaN(v) {
				analogues = append(analogues, v)
			}
		}
		if len(analogues) == 0 {
			continue
		}
		target[row] = stat.Mean(analogues, nil)
		filled++
	}
	return filled
}

func countMissing(values []float64) int {
	n := 0
	for _, v := range values {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}
