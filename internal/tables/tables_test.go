package tables

import (
	"bytes"
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Ul012/FOM.tft-timeseries/internal/errors"
	"github.com/Ul012/FOM.tft-timeseries/internal/panel"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func samplePanel(t *testing.T) *panel.Panel {
	t.Helper()
	p, err := panel.FromColumns(
		panel.NewStringColumn("country", []string{"DE", "DE", "FR"}),
		panel.NewTimeColumn("date", []time.Time{date(2021, 1, 1), date(2021, 1, 2), {}}),
		panel.NewFloatColumn("num_sold", panel.KindFloat, []float64{10.5, math.NaN(), 7.25}),
		panel.NewFloatColumn("time_idx", panel.KindInt, []float64{0, 1, 2}),
		panel.NewFloatColumn("is_weekend", panel.KindBool, []float64{0, 1, 0}),
	)
	require.NoError(t, err)
	return p
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"data/train.csv", FormatCSV, false},
		{"data/train.PARQUET", FormatParquet, false},
		{"data/train.pq", FormatParquet, false},
		{"raw/sales.xlsx", FormatXLSX, false},
		{"raw/sales.json", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatFromPath(tt.path)
			if tt.wantErr {
				assert.True(t, apperrors.IsType(err, apperrors.ErrTypeParsing))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeCSV_TypeInference(t *testing.T) {
	input := "\ufeffcountry,store,date,num_sold,price\n" +
		"DE,1,2021-01-01,10,1.5\n" +
		"DE,2,2021-01-02,,2\n" +
		"FR,3,2021-01-03,nan,2.5e0\n"

	p, err := DecodeCSV(context.Background(), strings.NewReader(input), ReadOptions{
		TimeCol:    "date",
		StringCols: []string{"store"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"country", "store", "date", "num_sold", "price"}, p.Names())

	store, _ := p.Column("store")
	assert.Equal(t, panel.KindString, store.Kind)
	assert.Equal(t, []string{"1", "2", "3"}, store.Strings)

	sold, _ := p.Column("num_sold")
	assert.Equal(t, panel.KindInt, sold.Kind)
	assert.Equal(t, 10.0, sold.Floats[0])
	assert.True(t, math.IsNaN(sold.Floats[1]))
	assert.True(t, math.IsNaN(sold.Floats[2]))

	price, _ := p.Column("price")
	assert.Equal(t, panel.KindFloat, price.Kind)

	times, ok := p.Times("date")
	require.True(t, ok)
	assert.Equal(t, date(2021, 1, 3), times[2])
}

func TestDecodeCSV_InvalidTimestamps(t *testing.T) {
	input := "date,num_sold\n2021-01-01,1\nnot-a-date,2\n"

	t.Run("coerced", func(t *testing.T) {
		p, err := DecodeCSV(context.Background(), strings.NewReader(input), ReadOptions{TimeCol: "date", CoerceInvalid: true})
		require.NoError(t, err)
		times, _ := p.Times("date")
		assert.True(t, times[1].IsZero())
	})

	t.Run("strict", func(t *testing.T) {
		_, err := DecodeCSV(context.Background(), strings.NewReader(input), ReadOptions{TimeCol: "date"})
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeParsing))
		assert.Contains(t, err.Error(), "not-a-date")
	})
}

func TestDecodeCSV_Empty(t *testing.T) {
	_, err := DecodeCSV(context.Background(), strings.NewReader(""), ReadOptions{})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeParsing))
}

func TestEncodeCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeCSV(&buf, samplePanel(t)))

	want := "country,date,num_sold,time_idx,is_weekend\n" +
		"DE,2021-01-01,10.5,0,0\n" +
		"DE,2021-01-02,,1,1\n" +
		"FR,,7.25,2,0\n"
	assert.Equal(t, want, buf.String())
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()

	for _, ext := range []string{"csv", "parquet"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "table."+ext)
			require.NoError(t, Write(ctx, path, samplePanel(t)))
			require.True(t, Exists(path))

			got, err := Read(ctx, path, ReadOptions{TimeCol: "date", CoerceInvalid: true})
			require.NoError(t, err)

			assert.Equal(t, 3, got.NumRows())
			assert.Equal(t, []string{"country", "date", "num_sold", "time_idx", "is_weekend"}, got.Names())

			countries, _ := got.Strings("country")
			assert.Equal(t, []string{"DE", "DE", "FR"}, countries)

			times, _ := got.Times("date")
			assert.Equal(t, date(2021, 1, 2), times[1])
			assert.True(t, times[2].IsZero())

			sold, _ := got.Floats("num_sold")
			assert.Equal(t, 10.5, sold[0])
			assert.True(t, math.IsNaN(sold[1]))
			assert.Equal(t, 7.25, sold[2])

			idx, _ := got.Column("time_idx")
			assert.Equal(t, panel.KindInt, idx.Kind)
			assert.Equal(t, []float64{0, 1, 2}, idx.Floats)

			flags, _ := got.Floats("is_weekend")
			assert.Equal(t, []float64{0, 1, 0}, flags)
		})
	}
}

func TestParquetKeepsBooleanKind(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "flags.parquet")
	require.NoError(t, Write(ctx, path, samplePanel(t)))

	got, err := ReadParquet(ctx, path, ReadOptions{})
	require.NoError(t, err)

	col, ok := got.Column("is_weekend")
	require.True(t, ok)
	assert.Equal(t, panel.KindBool, col.Kind)
}

func TestParquetRetypesColumns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "raw.parquet")
	raw, err := panel.FromColumns(
		panel.NewFloatColumn("store", panel.KindInt, []float64{1, 2, 3}),
		panel.NewStringColumn("date", []string{"2021-01-01", "2021-01-02", "garbage"}),
		panel.NewFloatColumn("num_sold", panel.KindInt, []float64{10, 11, 12}),
	)
	require.NoError(t, err)
	require.NoError(t, Write(ctx, path, raw))

	got, err := Read(ctx, path, ReadOptions{
		TimeCol:       "date",
		StringCols:    []string{"store"},
		FloatCols:     []string{"num_sold"},
		CoerceInvalid: true,
	})
	require.NoError(t, err)

	times, ok := got.Times("date")
	require.True(t, ok, "text dates are parsed")
	assert.Equal(t, date(2021, 1, 2), times[1])
	assert.True(t, times[2].IsZero())

	store, _ := got.Column("store")
	assert.Equal(t, panel.KindString, store.Kind)
	assert.Equal(t, []string{"1", "2", "3"}, store.Strings)

	sold, _ := got.Column("num_sold")
	assert.Equal(t, panel.KindFloat, sold.Kind)

	_, err = Read(ctx, path, ReadOptions{TimeCol: "date"})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeParsing))
	assert.Contains(t, err.Error(), "garbage")
}

func TestParquetReadsDateColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dates.parquet")

	mem := memory.NewGoAllocator()
	b := array.NewDate32Builder(mem)
	defer b.Release()
	b.Append(arrow.Date32FromTime(date(2021, 3, 1)))
	b.AppendNull()
	arr := b.NewArray()
	defer arr.Release()

	schema := arrow.NewSchema([]arrow.Field{{Name: "date", Type: arrow.FixedWidthTypes.Date32, Nullable: true}}, nil)
	rec := array.NewRecord(schema, []arrow.Array{arr}, 2)
	defer rec.Release()
	tbl := array.NewTableFromRecords(schema, []arrow.Record{rec})
	defer tbl.Release()

	file, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, pqarrow.WriteTable(tbl, struct{ io.Writer }{file}, 1024, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps()))
	require.NoError(t, file.Close())

	got, err := Read(context.Background(), path, ReadOptions{TimeCol: "date"})
	require.NoError(t, err)
	times, ok := got.Times("date")
	require.True(t, ok)
	assert.Equal(t, date(2021, 3, 1), times[0])
	assert.True(t, times[1].IsZero())
}

func TestDecodeCSV_FloatCols(t *testing.T) {
	input := "store,num_sold\na,10\nb,12\n"
	p, err := DecodeCSV(context.Background(), strings.NewReader(input), ReadOptions{FloatCols: []string{"num_sold"}})
	require.NoError(t, err)
	sold, _ := p.Column("num_sold")
	assert.Equal(t, panel.KindFloat, sold.Kind)
}

func TestCSVKeepsWholeFloats(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "lags.csv")
	p, err := panel.FromColumns(
		panel.NewStringColumn("store", []string{"a", "b", "c"}),
		panel.NewFloatColumn("lag_num_sold_1", panel.KindFloat, []float64{123, math.NaN(), 4}),
	)
	require.NoError(t, err)
	require.NoError(t, Write(ctx, path, p))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "store,lag_num_sold_1\na,123.0\nb,\nc,4.0\n", string(data))

	got, err := Read(ctx, path, ReadOptions{})
	require.NoError(t, err)
	col, _ := got.Column("lag_num_sold_1")
	assert.Equal(t, panel.KindFloat, col.Kind)
}

func TestWriteUnsupportedFormat(t *testing.T) {
	err := Write(context.Background(), filepath.Join(t.TempDir(), "out.xlsx"), samplePanel(t))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStorage))
}

func TestWorkbookRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panel.xlsx")
	err := WriteWorkbook(path, []Sheet{
		{
			Name:   "sales",
			Header: []string{"country", "date", "num_sold"},
			Rows: [][]interface{}{
				{"DE", "2021-01-01", 10},
				{"FR", "2021-01-02", 2.5},
			},
		},
		{
			Name:   "notes",
			Header: []string{"note"},
			Rows:   [][]interface{}{{"second sheet"}},
		},
	})
	require.NoError(t, err)

	p, err := Read(context.Background(), path, ReadOptions{TimeCol: "date"})
	require.NoError(t, err)
	assert.Equal(t, 2, p.NumRows())

	sold, _ := p.Column("num_sold")
	assert.Equal(t, panel.KindFloat, sold.Kind)
	assert.Equal(t, []float64{10, 2.5}, sold.Floats)

	notes, err := ReadXLSX(context.Background(), path, ReadOptions{Sheet: "notes"})
	require.NoError(t, err)
	values, _ := notes.Strings("note")
	assert.Equal(t, []string{"second sheet"}, values)
}

func TestPublisher_Commit(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	trainPath := filepath.Join(dir, "train.csv")
	specPath := filepath.Join(dir, "dataset_spec.json")

	// a previous run's artifact is replaced
	require.NoError(t, os.WriteFile(specPath, []byte(`{"old":true}`), 0644))

	pub, err := NewPublisher(dir)
	require.NoError(t, err)
	require.NoError(t, pub.WriteTable(ctx, trainPath, samplePanel(t)))
	require.NoError(t, pub.WriteJSON(specPath, map[string]string{"time_col": "date"}))

	assert.False(t, Exists(trainPath), "nothing is visible before commit")

	require.NoError(t, pub.Commit(ctx))

	assert.True(t, Exists(trainPath))
	data, err := os.ReadFile(specPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"time_col": "date"`)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".staging-"), "staging dir removed")
		assert.False(t, strings.HasSuffix(e.Name(), ".bak"), "backups removed")
	}

	assert.Error(t, pub.Commit(ctx), "a publisher commits once")
}

func TestPublisher_RollbackOnFailure(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	trainPath := filepath.Join(dir, "train.csv")
	require.NoError(t, os.WriteFile(trainPath, []byte("previous"), 0644))

	// the second target is an existing directory, so its rename fails
	blocked := filepath.Join(dir, "blocked.csv")
	require.NoError(t, os.MkdirAll(filepath.Join(blocked, "child"), 0755))

	pub, err := NewPublisher(dir)
	require.NoError(t, err)
	require.NoError(t, pub.WriteTable(ctx, trainPath, samplePanel(t)))
	require.NoError(t, pub.WriteWith(filepath.Join(blocked, "child"), func(path string) error {
		return os.WriteFile(path, []byte("x"), 0644)
	}))

	err = pub.Commit(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStorage))

	data, err := os.ReadFile(trainPath)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data), "earlier artifact restored")
}

func TestPublisher_Abort(t *testing.T) {
	dir := t.TempDir()
	pub, err := NewPublisher(dir)
	require.NoError(t, err)
	require.NoError(t, pub.WriteJSON(filepath.Join(dir, "spec.json"), map[string]int{"a": 1}))

	pub.Abort()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
