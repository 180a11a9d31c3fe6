package tables

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	apperrors "github.com/Ul012/FOM.tft-timeseries/internal/errors"
	"github.com/Ul012/FOM.tft-timeseries/internal/panel"
)

// parquetChunkSize is the row group size used when writing
const parquetChunkSize = 64 * 1024

var timestampType = &arrow.TimestampType{Unit: arrow.Millisecond, TimeZone: "UTC"}

// WriteParquet writes the panel as a snappy-compressed Parquet file.
// Floats map to float64, ints to int64, flags to boolean, text to string and
// timestamps to UTC milliseconds. Missing values are stored as nulls.
func WriteParquet(path string, p *panel.Panel) error {
	file, err := os.Create(path)
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to create %s", path), err)
	}

	// the parquet writer closes sinks that implement io.Closer
	if err := EncodeParquet(struct{ io.Writer }{file}, p); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to close %s", path), err)
	}
	return nil
}

// EncodeParquet writes the panel as Parquet to w
func EncodeParquet(w io.Writer, p *panel.Panel) error {
	mem := memory.NewGoAllocator()

	cols := p.Columns()
	fields := make([]arrow.Field, len(cols))
	arrays := make([]arrow.Array, len(cols))
	defer func() {
		for _, a := range arrays {
			if a != nil {
				a.Release()
			}
		}
	}()

	for i, c := range cols {
		fields[i], arrays[i] = buildArrowColumn(mem, c)
	}

	schema := arrow.NewSchema(fields, nil)
	rec := array.NewRecord(schema, arrays, int64(p.NumRows()))
	defer rec.Release()

	tbl := array.NewTableFromRecords(schema, []arrow.Record{rec})
	defer tbl.Release()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	if err := pqarrow.WriteTable(tbl, w, parquetChunkSize, props, pqarrow.DefaultWriterProps()); err != nil {
		return apperrors.NewStorageError("failed to write parquet table", err)
	}
	return nil
}

func buildArrowColumn(mem memory.Allocator, c *panel.Column) (arrow.Field, arrow.Array) {
	switch c.Kind {
	case panel.KindFloat:
		b := array.NewFloat64Builder(mem)
		defer b.Release()
		for _, v := range c.Floats {
			if math.IsNaN(v) {
				b.AppendNull()
			} else {
				b.Append(v)
			}
		}
		return arrow.Field{Name: c.Name, Type: arrow.PrimitiveTypes.Float64, Nullable: true}, b.NewArray()
	case panel.KindInt:
		b := array.NewInt64Builder(mem)
		defer b.Release()
		for _, v := range c.Floats {
			if math.IsNaN(v) {
				b.AppendNull()
			} else {
				b.Append(int64(v))
			}
		}
		return arrow.Field{Name: c.Name, Type: arrow.PrimitiveTypes.Int64, Nullable: true}, b.NewArray()
	case panel.KindBool:
		b := array.NewBooleanBuilder(mem)
		defer b.Release()
		for _, v := range c.Floats {
			if math.IsNaN(v) {
				b.AppendNull()
			} else {
				b.Append(v != 0)
			}
		}
		return arrow.Field{Name: c.Name, Type: arrow.FixedWidthTypes.Boolean, Nullable: true}, b.NewArray()
	case panel.KindString:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		for _, v := range c.Strings {
			if v == "" {
				b.AppendNull()
			} else {
				b.Append(v)
			}
		}
		return arrow.Field{Name: c.Name, Type: arrow.BinaryTypes.String, Nullable: true}, b.NewArray()
	default:
		b := array.NewTimestampBuilder(mem, timestampType)
		defer b.Release()
		for _, t := range c.Times {
			if t.IsZero() {
				b.AppendNull()
			} else {
				b.Append(arrow.Timestamp(t.UnixMilli()))
			}
		}
		return arrow.Field{Name: c.Name, Type: timestampType, Nullable: true}, b.NewArray()
	}
}

// ReadParquet reads a Parquet file written by WriteParquet or any other
// writer using float, integer, boolean, string, date or timestamp columns.
// opts retypes the decoded columns the same way text formats are typed.
func ReadParquet(ctx context.Context, path string, opts ReadOptions) (*panel.Panel, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to open %s", path), err)
	}
	defer file.Close()

	mem := memory.NewGoAllocator()
	tbl, err := pqarrow.ReadTable(ctx, file, parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("failed to read parquet %s", path), err)
	}
	defer tbl.Release()

	p := panel.New()
	for i := 0; i < int(tbl.NumCols()); i++ {
		col, err := columnFromArrow(tbl.Column(i))
		if err != nil {
			return nil, err
		}
		var setErr error
		switch col.Kind {
		case panel.KindString:
			setErr = p.SetStrings(col.Name, col.Strings)
		case panel.KindTime:
			setErr = p.SetTimes(col.Name, col.Times)
		default:
			setErr = p.SetFloats(col.Name, col.Kind, col.Floats)
		}
		if setErr != nil {
			return nil, apperrors.NewParsingError("inconsistent parquet column lengths", setErr)
		}
	}
	if err := retype(p, opts); err != nil {
		return nil, err
	}
	return p, nil
}

func columnFromArrow(col *arrow.Column) (*panel.Column, error) {
	out := &panel.Column{Name: col.Name()}
	switch col.DataType().ID() {
	case arrow.FLOAT64, arrow.FLOAT32:
		out.Kind = panel.KindFloat
	case arrow.INT64, arrow.INT32, arrow.INT16, arrow.INT8:
		out.Kind = panel.KindInt
	case arrow.BOOL:
		out.Kind = panel.KindBool
	case arrow.STRING, arrow.LARGE_STRING:
		out.Kind = panel.KindString
	case arrow.TIMESTAMP, arrow.DATE32, arrow.DATE64:
		out.Kind = panel.KindTime
	default:
		return nil, apperrors.NewParsingError(fmt.Sprintf("column %s has unsupported type %s", col.Name(), col.DataType()), nil)
	}

	for _, chunk := range col.Data().Chunks() {
		for i := 0; i < chunk.Len(); i++ {
			null := chunk.IsNull(i)
			switch a := chunk.(type) {
			case *array.Float64:
				out.Floats = append(out.Floats, nullableFloat(null, a.Value(i)))
			case *array.Float32:
				out.Floats = append(out.Floats, nullableFloat(null, float64(a.Value(i))))
			case *array.Int64:
				out.Floats = append(out.Floats, nullableFloat(null, float64(a.Value(i))))
			case *array.Int32:
				out.Floats = append(out.Floats, nullableFloat(null, float64(a.Value(i))))
			case *array.Int16:
				out.Floats = append(out.Floats, nullableFloat(null, float64(a.Value(i))))
			case *array.Int8:
				out.Floats = append(out.Floats, nullableFloat(null, float64(a.Value(i))))
			case *array.Boolean:
				v := 0.0
				if a.Value(i) {
					v = 1
				}
				out.Floats = append(out.Floats, nullableFloat(null, v))
			case *array.String:
				out.Strings = append(out.Strings, nullableString(null, a.Value(i)))
			case *array.LargeString:
				out.Strings = append(out.Strings, nullableString(null, a.Value(i)))
			case *array.Date32:
				out.Times = append(out.Times, nullableTime(null, a.Value(i).ToTime()))
			case *array.Date64:
				out.Times = append(out.Times, nullableTime(null, a.Value(i).ToTime()))
			case *array.Timestamp:
				if null {
					out.Times = append(out.Times, time.Time{})
					continue
				}
				unit := a.DataType().(*arrow.TimestampType).Unit
				out.Times = append(out.Times, a.Value(i).ToTime(unit).UTC())
			}
		}
	}
	return out, nil
}

func nullableFloat(null bool, v float64) float64 {
	if null {
		return math.NaN()
	}
	return v
}

func nullableTime(null bool, t time.Time) time.Time {
	if null {
		return time.Time{}
	}
	return t.UTC()
}

func nullableString(null bool, v string) string {
	if null {
		return ""
	}
	return v
}
