package tables

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Ul012/FOM.tft-timeseries/internal/errors"
	"github.com/Ul012/FOM.tft-timeseries/internal/panel"
)

// Format is an on-disk table encoding
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
	FormatXLSX    Format = "xlsx"
)

// timeLayouts are tried in order when parsing timestamps from text.
// Layouts without a zone are read as UTC.
var timeLayouts = []string{
	time.DateOnly,
	time.RFC3339Nano,
	time.DateTime,
	"2006-01-02T15:04:05",
	"02.01.2006",
}

// ReadOptions controls how text cells become typed columns
type ReadOptions struct {
	// TimeCol is parsed as timestamps
	TimeCol string
	// StringCols are kept as text even when every value looks numeric
	StringCols []string
	// FloatCols stay KindFloat even when every value is a whole number
	FloatCols []string
	// CoerceInvalid turns unparsable timestamps into invalid (zero) values
	// instead of failing the read
	CoerceInvalid bool
	// Sheet selects the XLSX worksheet; empty means the first sheet
	Sheet string
}

// FormatFromPath infers the format from the file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".parquet", ".pq":
		return FormatParquet, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", apperrors.NewParsingError(fmt.Sprintf("unsupported table format for %s", path), nil)
	}
}

// Exists reports whether a table file is present
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Read loads a table, dispatching on the file extension
func Read(ctx context.Context, path string, opts ReadOptions) (*panel.Panel, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	var p *panel.Panel
	switch format {
	case FormatCSV:
		p, err = ReadCSV(ctx, path, opts)
	case FormatParquet:
		p, err = ReadParquet(ctx, path, opts)
	case FormatXLSX:
		p, err = ReadXLSX(ctx, path, opts)
	}
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "table_read",
		slog.String("path", path),
		slog.String("format", string(format)),
		slog.Int("rows", p.NumRows()),
		slog.Int("columns", p.NumCols()))
	return p, nil
}

// Write stores a table, dispatching on the file extension
func Write(ctx context.Context, path string, p *panel.Panel) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.NewStorageError("failed to create directory", err)
	}

	switch format {
	case FormatCSV:
		err = WriteCSV(path, p)
	case FormatParquet:
		err = WriteParquet(path, p)
	default:
		return apperrors.NewStorageError(fmt.Sprintf("writing %s tables is not supported", format), nil)
	}
	if err != nil {
		return err
	}

	slog.DebugContext(ctx, "table_written",
		slog.String("path", path),
		slog.Int("rows", p.NumRows()),
		slog.Int("columns", p.NumCols()))
	return nil
}

// fromRecords types a header and text rows into a panel. Numeric columns are
// those where every non-empty cell parses as a number; integer-only columns
// become KindInt.
func fromRecords(ctx context.Context, header []string, rows [][]string, opts ReadOptions) (*panel.Panel, error) {
	stringCols := nameSet(opts.StringCols)
	floatCols := nameSet(opts.FloatCols)

	p := panel.New()
	for j, name := range header {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name = strings.TrimSpace(name)
		cells := make([]string, len(rows))
		for i, row := range rows {
			if j < len(row) {
				cells[i] = strings.TrimSpace(row[j])
			}
		}

		var err error
		switch {
		case name == opts.TimeCol:
			var times []time.Time
			times, err = parseTimes(name, cells, opts.CoerceInvalid)
			if err == nil {
				err = p.SetTimes(name, times)
			}
		case stringCols[name]:
			err = p.SetStrings(name, cells)
		default:
			if values, kind, ok := parseNumbers(cells); ok {
				if floatCols[name] {
					kind = panel.KindFloat
				}
				err = p.SetFloats(name, kind, values)
			} else {
				err = p.SetStrings(name, cells)
			}
		}
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

func nameSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

// retype applies ReadOptions to a panel decoded from a typed format: a text
// TimeCol is parsed, numeric StringCols are rendered as text and FloatCols
// are widened to KindFloat.
func retype(p *panel.Panel, opts ReadOptions) error {
	if c, ok := p.Column(opts.TimeCol); ok && c.Kind == panel.KindString {
		times, err := parseTimes(c.Name, c.Strings, opts.CoerceInvalid)
		if err != nil {
			return err
		}
		if err := p.SetTimes(c.Name, times); err != nil {
			return err
		}
	}
	for _, name := range opts.StringCols {
		c, ok := p.Column(name)
		if !ok || !c.Kind.IsNumeric() {
			continue
		}
		text := make([]string, c.Len())
		for i := range text {
			text[i] = c.Format(i)
		}
		if err := p.SetStrings(name, text); err != nil {
			return err
		}
	}
	for _, name := range opts.FloatCols {
		c, ok := p.Column(name)
		if !ok || !c.Kind.IsNumeric() || c.Kind == panel.KindFloat {
			continue
		}
		if err := p.SetFloats(name, panel.KindFloat, c.Floats); err != nil {
			return err
		}
	}
	return nil
}

func parseTimes(name string, cells []string, coerce bool) ([]time.Time, error) {
	out := make([]time.Time, len(cells))
	invalid := 0
	for i, cell := range cells {
		t, ok := parseTime(cell)
		if !ok {
			if !coerce {
				return nil, apperrors.NewParsingError(fmt.Sprintf("column %s row %d: invalid timestamp %q", name, i+1, cell), nil)
			}
			invalid++
			continue
		}
		out[i] = t
	}
	if invalid > 0 {
		slog.Warn("invalid_timestamps_coerced",
			slog.String("column", name),
			slog.Int("count", invalid))
	}
	return out, nil
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseNumbers(cells []string) ([]float64, panel.Kind, bool) {
	values := make([]float64, len(cells))
	kind := panel.KindInt
	for i, cell := range cells {
		if cell == "" || strings.EqualFold(cell, "nan") {
			values[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, 0, false
		}
		if v != math.Trunc(v) || strings.ContainsAny(cell, ".eE") {
			kind = panel.KindFloat
		}
		values[i] = v
	}
	return values, kind, true
}
