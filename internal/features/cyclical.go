package features

import (
	"context"
	"fmt"
	"math"
	"time"
	_ "time/tzdata"

	"github.com/Ul012/FOM.tft-timeseries/internal/config"
	apperrors "github.com/Ul012/FOM.tft-timeseries/internal/errors"
	"github.com/Ul012/FOM.tft-timeseries/internal/panel"
)

// ExtractorKind selects the calendar phase a periodicity is built from
type ExtractorKind string

const (
	DayOfWeek ExtractorKind = "dayofweek"
	Month     ExtractorKind = "month"
	DayOfYear ExtractorKind = "dayofyear"
	ISOWeek   ExtractorKind = "isoweek"
	Hour      ExtractorKind = "hour"
	Minute    ExtractorKind = "minute"
	Quarter   ExtractorKind = "quarter"
)

// phase returns the zero-based phase index of t
func (k ExtractorKind) phase(t time.Time) (int, error) {
	switch k {
	case DayOfWeek:
		// Monday=0 ... Sunday=6
		return (int(t.Weekday()) + 6) % 7, nil
	case Month:
		return int(t.Month()) - 1, nil
	case DayOfYear:
		return t.YearDay() - 1, nil
	case ISOWeek:
		_, week := t.ISOWeek()
		return week - 1, nil
	case Hour:
		return t.Hour(), nil
	case Minute:
		return t.Minute(), nil
	case Quarter:
		return (int(t.Month()) - 1) / 3, nil
	default:
		return 0, fmt.Errorf("unknown extractor %q", k)
	}
}

// Periodicity is one named cyclical feature
type Periodicity struct {
	Name   string
	Kind   ExtractorKind
	Period float64
}

// CyclicalEncoder turns a timestamp column into bounded sin/cos phase pairs.
// It holds no fitted state.
type CyclicalEncoder struct {
	DatetimeCol   string
	Prefix        string
	Periodicities []Periodicity
	Location      *time.Location
	// KeepIndex persists the integer phase column {prefix}_{name}_idx
	KeepIndex bool
}

// NewCyclicalEncoder validates the configuration and resolves the timezone.
// An empty DatetimeCol in cfg falls back to timeCol.
func NewCyclicalEncoder(timeCol string, cfg config.CyclicalConfig) (*CyclicalEncoder, error) {
	col := cfg.DatetimeCol
	if col == "" {
		col = timeCol
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(cfg.Timezone); err != nil {
			return nil, apperrors.NewConfigError(fmt.Sprintf("unknown timezone %q", cfg.Timezone), err)
		}
	}

	enc := &CyclicalEncoder{
		DatetimeCol: col,
		Prefix:      cfg.Prefix,
		Location:    loc,
		KeepIndex:   !cfg.DropIndexCols,
	}
	for _, p := range cfg.Periodicities {
		enc.Periodicities = append(enc.Periodicities, Periodicity{
			Name:   p.Name,
			Kind:   ExtractorKind(p.Kind),
			Period: p.Period,
		})
	}
	if err := enc.validate(); err != nil {
		return nil, err
	}
	return enc, nil
}

func (e *CyclicalEncoder) validate() error {
	for _, p := range e.Periodicities {
		if p.Period <= 1 {
			return apperrors.NewConfigError(fmt.Sprintf("periodicity %s: period must be > 1, got %g", p.Name, p.Period), nil)
		}
		if _, err := p.Kind.phase(time.Time{}); err != nil {
			return apperrors.NewConfigError(fmt.Sprintf("periodicity %s", p.Name), err)
		}
	}
	return nil
}

// Name identifies the transformer in logs
func (e *CyclicalEncoder) Name() string { return "cyclical" }

// Fit only validates: the configuration and the presence of a time column.
func (e *CyclicalEncoder) Fit(p *panel.Panel) error {
	if err := e.validate(); err != nil {
		return err
	}
	if _, ok := p.Times(e.DatetimeCol); !ok {
		return apperrors.NewSchemaError("panel", []string{e.DatetimeCol})
	}
	return nil
}

// Transform is Encode
func (e *CyclicalEncoder) Transform(ctx context.Context, p *panel.Panel) (*panel.Panel, error) {
	return e.Encode(ctx, p)
}

// Encode adds {prefix}_{name}_sin and {prefix}_{name}_cos for every
// periodicity. Timestamps are converted to the encoder's location first.
// Invalid timestamps produce NaN phases.
func (e *CyclicalEncoder) Encode(ctx context.Context, p *panel.Panel) (*panel.Panel, error) {
	if err := e.Fit(p); err != nil {
		return nil, err
	}
	times, _ := p.Times(e.DatetimeCol)
	out := p.Clone()

	local := make([]time.Time, len(times))
	for i, t := range times {
		if !t.IsZero() {
			local[i] = t.In(e.Location)
		}
	}

	for _, per := range e.Periodicities {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx := nanSlice(len(local))
		sin := nanSlice(len(local))
		cos := nanSlice(len(local))
		for i, t := range local {
			if t.IsZero() {
				continue
			}
			ph, _ := per.Kind.phase(t)
			angle := 2 * math.Pi * float64(ph) / per.Period
			idx[i] = float64(ph)
			sin[i] = math.Sin(angle)
			cos[i] = math.Cos(angle)
		}

		base := e.Prefix + "_" + per.Name
		if e.KeepIndex {
			if err := out.SetFloats(base+"_idx", panel.KindInt, idx); err != nil {
				return nil, err
			}
		}
		if err := out.SetFloats(base+"_sin", panel.KindFloat, sin); err != nil {
			return nil, err
		}
		if err := out.SetFloats(base+"_cos", panel.KindFloat, cos); err != nil {
			return nil, err
		}
	}
	return out, nil
}
