package tables

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	apperrors "github.com/Ul012/FOM.tft-timeseries/internal/errors"
	"github.com/Ul012/FOM.tft-timeseries/internal/panel"
)

// ReadCSV reads a CSV file with a header row
func ReadCSV(ctx context.Context, path string, opts ReadOptions) (*panel.Panel, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to open %s", path), err)
	}
	defer file.Close()

	return DecodeCSV(ctx, file, opts)
}

// DecodeCSV reads CSV records from r
func DecodeCSV(ctx context.Context, r io.Reader, opts ReadOptions) (*panel.Panel, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, apperrors.NewParsingError("csv has no header row", nil)
	}
	if err != nil {
		return nil, apperrors.NewParsingError("failed to read csv header", err)
	}
	// strip a UTF-8 BOM written by spreadsheet tools
	if len(header) > 0 {
		header[0] = trimBOM(header[0])
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.NewParsingError("failed to read csv record", err)
		}
		rows = append(rows, record)
	}

	return fromRecords(ctx, header, rows, opts)
}

// WriteCSV writes the panel with a header row. Missing values are empty cells.
func WriteCSV(path string, p *panel.Panel) error {
	file, err := os.Create(path)
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to create %s", path), err)
	}

	if err := EncodeCSV(file, p); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to close %s", path), err)
	}
	return nil
}

// EncodeCSV writes the panel as CSV to w
func EncodeCSV(w io.Writer, p *panel.Panel) error {
	writer := csv.NewWriter(w)
	cols := p.Columns()

	if err := writer.Write(p.Names()); err != nil {
		return apperrors.NewStorageError("failed to write csv header", err)
	}

	record := make([]string, len(cols))
	for i := 0; i < p.NumRows(); i++ {
		for j, c := range cols {
			record[j] = c.Format(i)
		}
		if err := writer.Write(record); err != nil {
			return apperrors.NewStorageError("failed to write csv record", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return apperrors.NewStorageError("failed to flush csv", err)
	}
	return nil
}

func trimBOM(s string) string {
	const bom = "\ufeff"
	if len(s) >= len(bom) && s[:len(bom)] == bom {
		return s[len(bom):]
	}
	return s
}
