// Package cleaning repairs the raw panel before feature derivation: yearly
// level alignment followed by periodic-analogue imputation of outlier dates
// and suppressed-demand regimes.
package cleaning

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/Ul012/FOM.tft-timeseries/internal/config"
	apperrors "github.com/Ul012/FOM.tft-timeseries/internal/errors"
	"github.com/Ul012/FOM.tft-timeseries/internal/panel"
)

// Cleaner runs alignment (optional) and imputation
type Cleaner struct {
	aligner *Aligner
	imputer *Imputer
}

// Report describes one cleaning run
type Report struct {
	Factors   []Factor      `json:"factors,omitempty"`
	Events    []EventReport `json:"events"`
	Imputed   int           `json:"imputed"`
	Remaining int           `json:"remaining"`
}

// NewCleaner builds the cleaner from the pipeline configuration. Outliers are
// applied before regimes, each list in declaration order.
func NewCleaner(cfg config.PipelineConfig) (*Cleaner, error) {
	c := &Cleaner{}
	cc := cfg.Cleaning

	if cc.Alignment.Enabled && len(cc.Alignment.LevelCols) > 0 {
		c.aligner = &Aligner{
			TargetCol:     cfg.TargetCol,
			TimeCol:       cfg.TimeCol,
			LevelCols:     cc.Alignment.LevelCols,
			ReferenceYear: cc.Alignment.ReferenceYear,
		}
	}

	im := &Imputer{
		TargetCol: cfg.TargetCol,
		TimeCol:   cfg.TimeCol,
		GroupCols: cfg.GroupCols,
		Workers:   cfg.Workers,
	}
	for _, o := range cc.Outliers {
		d, err := time.Parse(config.DateLayout, o.Date)
		if err != nil {
			return nil, apperrors.NewConfigError(fmt.Sprintf("invalid outlier date %q", o.Date), err)
		}
		im.Events = append(im.Events, OutlierEvent{Date: d, Period: o.Period, Repeats: o.Repeats})
	}
	for _, r := range cc.Regimes {
		if r.StartMonth > r.EndMonth {
			return nil, apperrors.NewConfigError(fmt.Sprintf("regime %d: start month %d after end month %d", r.Year, r.StartMonth, r.EndMonth), nil)
		}
		im.Events = append(im.Events, RegimeEvent{
			Year:       r.Year,
			StartMonth: time.Month(r.StartMonth),
			EndMonth:   time.Month(r.EndMonth),
			FlagCol:    r.FlagCol,
			Period:     r.Period,
			Repeats:    r.Repeats,
		})
	}
	if err := im.validate(); err != nil {
		return nil, err
	}
	c.imputer = im
	return c, nil
}

// Clean returns the repaired panel sorted by (groups, time)
func (c *Cleaner) Clean(ctx context.Context, p *panel.Panel) (*panel.Panel, *Report, error) {
	report := &Report{}

	if c.aligner != nil {
		aligned, factors, err := c.aligner.Align(ctx, p)
		if err != nil {
			return nil, nil, fmt.Errorf("align levels: %w", err)
		}
		p = aligned
		report.Factors = factors
	}

	res, err := c.imputer.Impute(ctx, p)
	if err != nil {
		return nil, nil, fmt.Errorf("impute history: %w", err)
	}
	report.Events = res.Reports
	report.Imputed = res.Imputed()
	report.Remaining = res.Remaining
	return res.Panel, report, nil
}

func workers(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}
