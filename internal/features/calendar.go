package features

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/de"

	"github.com/Ul012/FOM.tft-timeseries/internal/config"
	apperrors "github.com/Ul012/FOM.tft-timeseries/internal/errors"
	"github.com/Ul012/FOM.tft-timeseries/internal/panel"
)

// holidayCalendars maps a country code to its nationwide public holidays
var holidayCalendars = map[string][]*cal.Holiday{
	"de": de.Holidays,
}

// CalendarColumns are the plain calendar fields added by the deriver
var CalendarColumns = []string{"year", "month", "day", "dayofweek", "weekofyear", "is_weekend"}

// CalendarDeriver adds calendar fields, a day-based time index and a
// holiday flag. All values are future-known.
type CalendarDeriver struct {
	TimeCol      string
	TimeIndexCol string
	// Country selects the holiday calendar; empty disables the holiday flag
	Country       string
	ExtraHolidays []time.Time

	holidays []*cal.Holiday
}

// NewCalendarDeriver resolves the holiday calendar and extra dates
func NewCalendarDeriver(timeCol string, cfg config.CalendarConfig) (*CalendarDeriver, error) {
	d := &CalendarDeriver{
		TimeCol:      timeCol,
		TimeIndexCol: cfg.TimeIndexCol,
		Country:      strings.ToLower(cfg.HolidayCountry),
	}
	if d.Country != "" {
		hs, ok := holidayCalendars[d.Country]
		if !ok {
			return nil, apperrors.NewConfigError(fmt.Sprintf("no holiday calendar for country %q", cfg.HolidayCountry), nil)
		}
		d.holidays = hs
	}
	for _, s := range cfg.ExtraHolidays {
		t, err := time.Parse(config.DateLayout, s)
		if err != nil {
			return nil, apperrors.NewConfigError(fmt.Sprintf("invalid extra holiday %q", s), err)
		}
		d.ExtraHolidays = append(d.ExtraHolidays, t)
	}
	return d, nil
}

// HolidayColumn is the name of the holiday flag, e.g. is_holiday_de
func (d *CalendarDeriver) HolidayColumn() string {
	country := d.Country
	if country == "" {
		country = "custom"
	}
	return "is_holiday_" + country
}

// Name identifies the transformer in logs
func (d *CalendarDeriver) Name() string { return "calendar" }

// Fit checks for the time column
func (d *CalendarDeriver) Fit(p *panel.Panel) error {
	if _, ok := p.Times(d.TimeCol); !ok {
		return apperrors.NewSchemaError("panel", []string{d.TimeCol})
	}
	return nil
}

// Transform adds the calendar columns. The time index counts whole days from
// the earliest valid date of the panel, so every series shares one scale.
// Invalid timestamps yield NaN in every derived column.
func (d *CalendarDeriver) Transform(ctx context.Context, p *panel.Panel) (*panel.Panel, error) {
	if err := d.Fit(p); err != nil {
		return nil, err
	}
	times, _ := p.Times(d.TimeCol)
	n := len(times)

	cols := make(map[string][]float64, len(CalendarColumns))
	for _, c := range CalendarColumns {
		cols[c] = nanSlice(n)
	}
	timeIdx := nanSlice(n)
	holiday := nanSlice(n)

	var first time.Time
	for _, t := range times {
		if !t.IsZero() && (first.IsZero() || t.Before(first)) {
			first = t
		}
	}
	first = dayOf(first)

	holidayDates := d.holidayDates(times)

	for i, t := range times {
		if t.IsZero() {
			continue
		}
		_, week := t.ISOWeek()
		dow := (int(t.Weekday()) + 6) % 7
		cols["year"][i] = float64(t.Year())
		cols["month"][i] = float64(t.Month())
		cols["day"][i] = float64(t.Day())
		cols["dayofweek"][i] = float64(dow)
		cols["weekofyear"][i] = float64(week)
		cols["is_weekend"][i] = boolFloat(dow >= 5)

		day := dayOf(t)
		timeIdx[i] = float64(day.Sub(first) / (24 * time.Hour))
		holiday[i] = boolFloat(holidayDates[day])
	}

	out := p.Clone()
	for _, c := range CalendarColumns {
		kind := panel.KindInt
		if c == "is_weekend" {
			kind = panel.KindBool
		}
		if err := out.SetFloats(c, kind, cols[c]); err != nil {
			return nil, err
		}
	}
	if d.TimeIndexCol != "" {
		if err := out.SetFloats(d.TimeIndexCol, panel.KindInt, timeIdx); err != nil {
			return nil, err
		}
	}
	if d.Country != "" || len(d.ExtraHolidays) > 0 {
		if err := out.SetFloats(d.HolidayColumn(), panel.KindBool, holiday); err != nil {
			return nil, err
		}
	}
	return out, ctx.Err()
}

// holidayDates collects the holiday dates of every year present in times
func (d *CalendarDeriver) holidayDates(times []time.Time) map[time.Time]bool {
	dates := make(map[time.Time]bool)
	years := make(map[int]bool)
	for _, t := range times {
		if !t.IsZero() {
			years[t.Year()] = true
		}
	}
	for year := range years {
		for _, h := range d.holidays {
			actual, _ := h.Calc(year)
			if !actual.IsZero() {
				dates[dayOf(actual)] = true
			}
		}
	}
	for _, t := range d.ExtraHolidays {
		dates[dayOf(t)] = true
	}
	return dates
}

// dayOf truncates t to its calendar date in UTC
func dayOf(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, day := t.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
