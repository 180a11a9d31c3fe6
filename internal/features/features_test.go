package features

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ul012/FOM.tft-timeseries/internal/config"
	apperrors "github.com/Ul012/FOM.tft-timeseries/internal/errors"
	"github.com/Ul012/FOM.tft-timeseries/internal/panel"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// twoSeries builds an unsorted panel with series A (10, 20, ..., 50) and
// B (1, 2, ..., 5) over 2021-01-04..2021-01-08, rows interleaved in reverse.
func twoSeries(t *testing.T) *panel.Panel {
	t.Helper()
	var stores []string
	var dates []time.Time
	var sold []float64
	for i := 4; i >= 0; i-- {
		stores = append(stores, "A", "B")
		dates = append(dates, day(2021, 1, 4+i), day(2021, 1, 4+i))
		sold = append(sold, float64(10*(i+1)), float64(i+1))
	}
	p, err := panel.FromColumns(
		panel.NewStringColumn("store", stores),
		panel.NewTimeColumn("date", dates),
		panel.NewFloatColumn("num_sold", panel.KindFloat, sold),
	)
	require.NoError(t, err)
	return p
}

func seriesOf(t *testing.T, p *panel.Panel, store, col string) []float64 {
	t.Helper()
	stores, ok := p.Strings("store")
	require.True(t, ok)
	values, ok := p.Floats(col)
	require.True(t, ok, "column %s", col)
	var out []float64
	for i, s := range stores {
		if s == store {
			out = append(out, values[i])
		}
	}
	return out
}

func assertSeries(t *testing.T, want, got []float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		if math.IsNaN(want[i]) {
			assert.True(t, math.IsNaN(got[i]), "index %d: want NaN, got %v", i, got[i])
			continue
		}
		assert.InDelta(t, want[i], got[i], 1e-9, "index %d", i)
	}
}

func newLagGenerator(lags []int, rolling ...RollingSpec) *LagGenerator {
	return &LagGenerator{
		TargetCol: "num_sold",
		TimeCol:   "date",
		GroupCols: []string{"store"},
		Lags:      lags,
		Rolling:   rolling,
		Prefix:    "lag_",
		Workers:   2,
	}
}

func TestLagGenerator_LagsStayInGroup(t *testing.T) {
	gen := newLagGenerator([]int{1, 2})
	out, err := gen.Generate(context.Background(), twoSeries(t))
	require.NoError(t, err)

	nan := math.NaN()
	assertSeries(t, []float64{10, 20, 30, 40, 50}, seriesOf(t, out, "A", "num_sold"))
	assertSeries(t, []float64{nan, 10, 20, 30, 40}, seriesOf(t, out, "A", "lag_num_sold_1"))
	assertSeries(t, []float64{nan, nan, 10, 20, 30}, seriesOf(t, out, "A", "lag_num_sold_2"))
	assertSeries(t, []float64{nan, 1, 2, 3, 4}, seriesOf(t, out, "B", "lag_num_sold_1"))
}

func TestLagGenerator_RowPositionNotCalendar(t *testing.T) {
	// a gap between the 2nd and 3rd observation does not shift the lag
	p, err := panel.FromColumns(
		panel.NewStringColumn("store", []string{"A", "A", "A"}),
		panel.NewTimeColumn("date", []time.Time{day(2021, 1, 1), day(2021, 1, 2), day(2021, 1, 9)}),
		panel.NewFloatColumn("num_sold", panel.KindFloat, []float64{1, 2, 3}),
	)
	require.NoError(t, err)

	out, err := newLagGenerator([]int{1}).Generate(context.Background(), p)
	require.NoError(t, err)
	assertSeries(t, []float64{math.NaN(), 1, 2}, seriesOf(t, out, "A", "lag_num_sold_1"))
}

func TestLagGenerator_RollingStats(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		stat RollingStat
		want []float64
	}{
		{StatMean, []float64{nan, 10, 15, 25, 35}},
		{StatSum, []float64{nan, 10, 30, 50, 70}},
		{StatMin, []float64{nan, 10, 10, 20, 30}},
		{StatMax, []float64{nan, 10, 20, 30, 40}},
		{StatMedian, []float64{nan, 10, 15, 25, 35}},
		{StatStd, []float64{nan, 0, 5, 5, 5}},
	}

	for _, tt := range tests {
		t.Run(string(tt.stat), func(t *testing.T) {
			gen := newLagGenerator(nil, RollingSpec{Window: 2, Stat: tt.stat})
			out, err := gen.Generate(context.Background(), twoSeries(t))
			require.NoError(t, err)
			col := gen.RollingColumn(RollingSpec{Window: 2, Stat: tt.stat})
			assert.Equal(t, "lag_num_sold_roll2_"+string(tt.stat), col)
			assertSeries(t, tt.want, seriesOf(t, out, "A", col))
		})
	}
}

func TestLagGenerator_RollingExcludesCurrentRow(t *testing.T) {
	gen := newLagGenerator([]int{1}, RollingSpec{Window: 3, Stat: StatMean}, RollingSpec{Window: 3, Stat: StatMax})
	base, err := gen.Generate(context.Background(), twoSeries(t))
	require.NoError(t, err)

	// perturb the last value of series A
	p := twoSeries(t)
	sold, _ := p.Floats("num_sold")
	perturbed := append([]float64(nil), sold...)
	perturbed[0] = 1e6 // row 0 is A on 2021-01-08
	require.NoError(t, p.SetFloats("num_sold", panel.KindFloat, perturbed))

	out, err := gen.Generate(context.Background(), p)
	require.NoError(t, err)

	for _, col := range []string{"lag_num_sold_1", "lag_num_sold_roll3_mean", "lag_num_sold_roll3_max"} {
		assertSeries(t, seriesOf(t, base, "A", col), seriesOf(t, out, "A", col))
	}
}

func TestLagGenerator_MissingValuesInWindow(t *testing.T) {
	p, err := panel.FromColumns(
		panel.NewStringColumn("store", []string{"A", "A", "A", "A"}),
		panel.NewTimeColumn("date", []time.Time{day(2021, 1, 1), day(2021, 1, 2), day(2021, 1, 3), day(2021, 1, 4)}),
		panel.NewFloatColumn("num_sold", panel.KindFloat, []float64{math.NaN(), 4, math.NaN(), 8}),
	)
	require.NoError(t, err)

	gen := newLagGenerator(nil, RollingSpec{Window: 2, Stat: StatMean})
	out, err := gen.Generate(context.Background(), p)
	require.NoError(t, err)

	nan := math.NaN()
	assertSeries(t, []float64{nan, nan, 4, 4}, seriesOf(t, out, "A", "lag_num_sold_roll2_mean"))
}

func TestLagGenerator_NoTargetIsNoop(t *testing.T) {
	p := twoSeries(t)
	p.Drop("num_sold")

	out, err := newLagGenerator([]int{1}).Generate(context.Background(), p)
	require.NoError(t, err)
	assert.Same(t, p, out)
}

func TestLagGenerator_Errors(t *testing.T) {
	t.Run("missing group column", func(t *testing.T) {
		gen := newLagGenerator([]int{1})
		gen.GroupCols = []string{"country"}
		_, err := gen.Generate(context.Background(), twoSeries(t))
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeSchema))
	})

	t.Run("non-positive lag", func(t *testing.T) {
		_, err := newLagGenerator([]int{0}).Generate(context.Background(), twoSeries(t))
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
	})

	t.Run("unknown stat", func(t *testing.T) {
		_, err := newLagGenerator(nil, RollingSpec{Window: 2, Stat: "p90"}).Generate(context.Background(), twoSeries(t))
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
	})
}

func TestNewLagGenerator_CrossesWindowsAndStats(t *testing.T) {
	cfg := config.Default().Pipeline
	cfg.Features.Lags.RollWindows = []int{7, 28}
	cfg.Features.Lags.RollStats = []string{"mean", "std"}

	gen, err := NewLagGenerator(cfg)
	require.NoError(t, err)
	assert.Len(t, gen.Rolling, 4)
	assert.Equal(t, "lag_num_sold_7", gen.LagColumn(7))
}

func newEncoder(t *testing.T, periods ...config.PeriodicityConfig) *CyclicalEncoder {
	t.Helper()
	cfg := config.Default().Pipeline.Features.Cyclical
	if len(periods) > 0 {
		cfg.Periodicities = periods
	}
	enc, err := NewCyclicalEncoder("date", cfg)
	require.NoError(t, err)
	return enc
}

func TestCyclicalEncoder_UnitCircle(t *testing.T) {
	var dates []time.Time
	for i := 0; i < 400; i += 13 {
		dates = append(dates, day(2020, 1, 1).AddDate(0, 0, i))
	}
	dates = append(dates, time.Time{})
	p, err := panel.FromColumns(panel.NewTimeColumn("date", dates))
	require.NoError(t, err)

	out, err := newEncoder(t).Encode(context.Background(), p)
	require.NoError(t, err)

	for _, name := range []string{"dow", "month", "doy", "week"} {
		sin, ok := out.Floats("cyc_" + name + "_sin")
		require.True(t, ok)
		cos, _ := out.Floats("cyc_" + name + "_cos")
		last := len(dates) - 1
		for i := 0; i < last; i++ {
			assert.InDelta(t, 1.0, sin[i]*sin[i]+cos[i]*cos[i], 1e-9)
		}
		assert.True(t, math.IsNaN(sin[last]), "invalid timestamp yields NaN")
		assert.True(t, math.IsNaN(cos[last]))
		assert.False(t, out.Has("cyc_"+name+"_idx"), "index columns dropped by default")
	}
}

func TestCyclicalEncoder_PhaseAndTimezone(t *testing.T) {
	// 2021-01-03 23:30 UTC is Monday 2021-01-04 00:30 in Berlin
	ts := time.Date(2021, 1, 3, 23, 30, 0, 0, time.UTC)
	p, err := panel.FromColumns(panel.NewTimeColumn("date", []time.Time{ts}))
	require.NoError(t, err)

	enc := newEncoder(t, config.PeriodicityConfig{Name: "dow", Kind: "dayofweek", Period: 7})
	enc.KeepIndex = true
	out, err := enc.Encode(context.Background(), p)
	require.NoError(t, err)

	idx, _ := out.Floats("cyc_dow_idx")
	assert.Equal(t, []float64{0}, idx)
	sin, _ := out.Floats("cyc_dow_sin")
	cos, _ := out.Floats("cyc_dow_cos")
	assert.InDelta(t, 0, sin[0], 1e-12)
	assert.InDelta(t, 1, cos[0], 1e-12)
}

func TestCyclicalEncoder_Phases(t *testing.T) {
	ts := time.Date(2021, 8, 15, 13, 45, 0, 0, time.UTC)
	tests := []struct {
		kind ExtractorKind
		want int
	}{
		{DayOfWeek, 6},
		{Month, 7},
		{DayOfYear, 226},
		{ISOWeek, 31},
		{Hour, 13},
		{Minute, 45},
		{Quarter, 2},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got, err := tt.kind.phase(ts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCyclicalEncoder_Validation(t *testing.T) {
	cfg := config.Default().Pipeline.Features.Cyclical

	cfg.Periodicities = []config.PeriodicityConfig{{Name: "dow", Kind: "dayofweek", Period: 1}}
	_, err := NewCyclicalEncoder("date", cfg)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))

	cfg.Periodicities = []config.PeriodicityConfig{{Name: "x", Kind: "fortnight", Period: 14}}
	_, err = NewCyclicalEncoder("date", cfg)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))

	enc := newEncoder(t)
	p, err := panel.FromColumns(panel.NewFloatColumn("x", panel.KindFloat, []float64{1}))
	require.NoError(t, err)
	_, err = enc.Encode(context.Background(), p)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeSchema))
}

func TestCalendarDeriver(t *testing.T) {
	dates := []time.Time{
		day(2021, 12, 23), // Thursday
		day(2021, 12, 25), // Saturday, Christmas
		day(2022, 1, 1),   // Saturday, New Year
		{},
		day(2022, 1, 3), // Monday, extra holiday
	}
	p, err := panel.FromColumns(panel.NewTimeColumn("date", dates))
	require.NoError(t, err)

	cfg := config.Default().Pipeline.Features.Calendar
	cfg.ExtraHolidays = []string{"2022-01-03"}
	d, err := NewCalendarDeriver("date", cfg)
	require.NoError(t, err)

	out, err := d.Transform(context.Background(), p)
	require.NoError(t, err)

	nan := math.NaN()
	year, _ := out.Floats("year")
	assertSeries(t, []float64{2021, 2021, 2022, nan, 2022}, year)
	dow, _ := out.Floats("dayofweek")
	assertSeries(t, []float64{3, 5, 5, nan, 0}, dow)
	weekend, _ := out.Floats("is_weekend")
	assertSeries(t, []float64{0, 1, 1, nan, 0}, weekend)
	week, _ := out.Floats("weekofyear")
	assertSeries(t, []float64{51, 51, 52, nan, 1}, week)
	idx, _ := out.Floats("time_idx")
	assertSeries(t, []float64{0, 2, 9, nan, 11}, idx)

	holiday, ok := out.Floats("is_holiday_de")
	require.True(t, ok)
	assertSeries(t, []float64{0, 1, 1, nan, 1}, holiday)

	col, _ := out.Column("is_holiday_de")
	assert.Equal(t, panel.KindBool, col.Kind)
}

func TestCalendarDeriver_UnknownCountry(t *testing.T) {
	_, err := NewCalendarDeriver("date", config.CalendarConfig{TimeIndexCol: "time_idx", HolidayCountry: "xx"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}

func TestApply_DefaultPipeline(t *testing.T) {
	cfg := config.Default().Pipeline
	cfg.GroupCols = []string{"store"}

	transformers, err := FromConfig(cfg)
	require.NoError(t, err)
	require.Len(t, transformers, 3)

	out, err := Apply(context.Background(), twoSeries(t), transformers...)
	require.NoError(t, err)

	for _, col := range []string{"year", "time_idx", "is_holiday_de", "cyc_dow_sin", "cyc_week_cos", "lag_num_sold_14", "lag_num_sold_roll7_mean"} {
		assert.True(t, out.Has(col), "missing %s", col)
	}
	assert.Equal(t, 10, out.NumRows())
}
