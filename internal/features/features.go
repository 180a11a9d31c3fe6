// Package features derives model covariates from a cleaned panel: calendar
// and holiday columns, cyclical sin/cos phases and lag/rolling statistics of
// the target. Every transformer only adds columns; no input column is
// modified in place.
package features

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"github.com/Ul012/FOM.tft-timeseries/internal/config"
	"github.com/Ul012/FOM.tft-timeseries/internal/panel"
)

// Transformer adds derived columns to a panel. Fit validates the input and
// learns nothing from it; it exists so transformers can be chained the same way.
type Transformer interface {
	Name() string
	Fit(p *panel.Panel) error
	Transform(ctx context.Context, p *panel.Panel) (*panel.Panel, error)
}

// Apply fits and runs each transformer in order
func Apply(ctx context.Context, p *panel.Panel, transformers ...Transformer) (*panel.Panel, error) {
	for _, t := range transformers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		before := p.NumCols()

		if err := t.Fit(p); err != nil {
			return nil, fmt.Errorf("%s: %w", t.Name(), err)
		}
		out, err := t.Transform(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.Name(), err)
		}
		p = out

		slog.InfoContext(ctx, "features_added",
			slog.String("transformer", t.Name()),
			slog.Int("columns_added", p.NumCols()-before),
			slog.Duration("duration", time.Since(start)))
	}
	return p, nil
}

// FromConfig builds the enabled transformers in pipeline order:
// calendar, cyclical, then lag/rolling.
func FromConfig(cfg config.PipelineConfig) ([]Transformer, error) {
	var out []Transformer
	f := cfg.Features

	if f.Calendar.Enabled {
		cal, err := NewCalendarDeriver(cfg.TimeCol, f.Calendar)
		if err != nil {
			return nil, err
		}
		out = append(out, cal)
	}
	if f.Cyclical.Enabled {
		enc, err := NewCyclicalEncoder(cfg.TimeCol, f.Cyclical)
		if err != nil {
			return nil, err
		}
		out = append(out, enc)
	}
	if f.Lags.Enabled {
		gen, err := NewLagGenerator(cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, gen)
	}
	return out, nil
}

// workerCount resolves the configured worker bound
func workerCount(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

var nan = math.NaN()

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = nan
	}
	return out
}
