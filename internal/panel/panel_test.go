package panel

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func samplePanel(t *testing.T) *Panel {
	t.Helper()
	p, err := FromColumns(
		NewStringColumn("store", []string{"b", "a", "b", "a"}),
		NewTimeColumn("date", []time.Time{day(2), day(2), day(1), day(1)}),
		NewFloatColumn("num_sold", KindFloat, []float64{4, 2, 3, 1}),
	)
	require.NoError(t, err)
	return p
}

func TestFromColumnsRejectsLengthMismatch(t *testing.T) {
	_, err := FromColumns(
		NewStringColumn("store", []string{"a", "b"}),
		NewFloatColumn("num_sold", KindFloat, []float64{1}),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "num_sold")
}

func TestSortByGroupAndTime(t *testing.T) {
	p := samplePanel(t)

	sorted, err := p.SortBy("store", "date")
	require.NoError(t, err)

	stores, _ := sorted.Strings("store")
	values, _ := sorted.Floats("num_sold")
	assert.Equal(t, []string{"a", "a", "b", "b"}, stores)
	assert.Equal(t, []float64{1, 2, 3, 4}, values)

	// original untouched
	orig, _ := p.Floats("num_sold")
	assert.Equal(t, []float64{4, 2, 3, 1}, orig)
}

func TestSortMissingLast(t *testing.T) {
	p, err := FromColumns(
		NewTimeColumn("date", []time.Time{{}, day(3), day(1)}),
		NewFloatColumn("x", KindFloat, []float64{math.NaN(), 2, 1}),
	)
	require.NoError(t, err)

	byTime, err := p.SortOrder("date")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 0}, byTime)

	byValue, err := p.SortOrder("x")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 0}, byValue)
}

func TestGroupsFirstAppearanceOrder(t *testing.T) {
	p := samplePanel(t)

	groups, err := p.Groups([]string{"store"})
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, []string{"b"}, groups[0].Values)
	assert.Equal(t, []int{0, 2}, groups[0].Rows)
	assert.Equal(t, "a", groups[1].Label())
	assert.Equal(t, []int{1, 3}, groups[1].Rows)
}

func TestGroupsWithoutKeys(t *testing.T) {
	p := samplePanel(t)

	groups, err := p.Groups(nil)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Rows, 4)
}

func TestCloneIsolatesColumnList(t *testing.T) {
	p := samplePanel(t)
	clone := p.Clone()

	require.NoError(t, clone.SetFloats("extra", KindInt, []float64{1, 1, 1, 1}))
	clone.Drop("store")

	assert.False(t, p.Has("extra"))
	assert.True(t, p.Has("store"))
	assert.Equal(t, 4, clone.NumRows())
	assert.Equal(t, []string{"date", "num_sold", "extra"}, clone.Names())
}

func TestConcat(t *testing.T) {
	p := samplePanel(t)
	a := p.Take([]int{0, 1})
	b := p.Take([]int{2, 3})

	out, err := Concat(a, b)
	require.NoError(t, err)
	assert.Equal(t, 4, out.NumRows())
	values, _ := out.Floats("num_sold")
	assert.Equal(t, []float64{4, 2, 3, 1}, values)

	other, err := FromColumns(NewStringColumn("store", []string{"x"}))
	require.NoError(t, err)
	_, err = Concat(p, other)
	assert.Error(t, err)
}

func TestColumnFormat(t *testing.T) {
	c := NewFloatColumn("flag", KindBool, []float64{1, math.NaN()})
	assert.Equal(t, "1", c.Format(0))
	assert.Equal(t, "", c.Format(1))

	fc := NewFloatColumn("num_sold", KindFloat, []float64{123, 2.5, 1e21})
	assert.Equal(t, "123.0", fc.Format(0))
	assert.Equal(t, "2.5", fc.Format(1))
	assert.Equal(t, "1e+21", fc.Format(2))

	tc := NewTimeColumn("date", []time.Time{day(5), time.Date(2024, 1, 5, 13, 0, 0, 0, time.UTC)})
	assert.Equal(t, "2024-01-05", tc.Format(0))
	assert.Equal(t, "2024-01-05T13:00:00Z", tc.Format(1))
}
