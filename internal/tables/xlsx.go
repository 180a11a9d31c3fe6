package tables

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	apperrors "github.com/Ul012/FOM.tft-timeseries/internal/errors"
	"github.com/Ul012/FOM.tft-timeseries/internal/panel"
)

// ReadXLSX reads one worksheet of an Excel workbook. The first row is the header.
func ReadXLSX(ctx context.Context, path string, opts ReadOptions) (*panel.Panel, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to open workbook %s", path), err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, apperrors.NewParsingError(fmt.Sprintf("workbook %s has no sheets", path), nil)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("failed to read sheet %q", sheet), err)
	}
	if len(rows) == 0 {
		return nil, apperrors.NewParsingError(fmt.Sprintf("sheet %q is empty", sheet), nil)
	}

	slog.DebugContext(ctx, "xlsx_sheet_loaded",
		slog.String("path", path),
		slog.String("sheet", sheet),
		slog.Int("rows", len(rows)-1))

	return fromRecords(ctx, rows[0], rows[1:], opts)
}

// Sheet is one worksheet of a report workbook
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]interface{}
}

// WriteWorkbook writes report sheets to an Excel file. The first sheet is active.
func WriteWorkbook(path string, sheets []Sheet) error {
	if len(sheets) == 0 {
		return apperrors.NewStorageError("workbook needs at least one sheet", nil)
	}

	f := excelize.NewFile()
	defer f.Close()

	// excelize starts with a default sheet; rename it to the first report sheet
	if err := f.SetSheetName(f.GetSheetList()[0], sheets[0].Name); err != nil {
		return apperrors.NewStorageError("failed to name sheet", err)
	}
	for _, s := range sheets[1:] {
		if _, err := f.NewSheet(s.Name); err != nil {
			return apperrors.NewStorageError(fmt.Sprintf("failed to add sheet %s", s.Name), err)
		}
	}

	for _, s := range sheets {
		header := make([]interface{}, len(s.Header))
		for i, h := range s.Header {
			header[i] = h
		}
		if err := f.SetSheetRow(s.Name, "A1", &header); err != nil {
			return apperrors.NewStorageError(fmt.Sprintf("failed to write header of %s", s.Name), err)
		}
		for i, row := range s.Rows {
			cell, err := excelize.CoordinatesToCellName(1, i+2)
			if err != nil {
				return apperrors.NewStorageError("invalid cell reference", err)
			}
			row := row
			if err := f.SetSheetRow(s.Name, cell, &row); err != nil {
				return apperrors.NewStorageError(fmt.Sprintf("failed to write row %d of %s", i+1, s.Name), err)
			}
		}
	}
	f.SetActiveSheet(0)

	if err := f.SaveAs(path); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to save workbook %s", path), err)
	}
	return nil
}
