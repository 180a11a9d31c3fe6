package split

import (
	"time"

	"github.com/Ul012/FOM.tft-timeseries/internal/config"
	"github.com/Ul012/FOM.tft-timeseries/internal/panel"
	"github.com/Ul012/FOM.tft-timeseries/internal/tables"
	"github.com/Ul012/FOM.tft-timeseries/pkg/contracts/domain"
)

// Summary sheet names
const (
	SheetPartitions = "partitions"
	SheetBoundaries = "boundaries"
	SheetUnseen     = "unseen_groups"
)

// SummarySheets lays out a split for the summary workbook
func SummarySheets(m *domain.SplitManifest, parts *Partitions, timeCol string) []tables.Sheet {
	partRows := make([][]interface{}, 0, 3)
	for _, w := range []struct {
		name   string
		p      *panel.Panel
		rows   int
		groups int
	}{
		{config.SplitTrain, parts.Train, m.Rows.Train, m.Groups.Train},
		{config.SplitVal, parts.Val, m.Rows.Val, m.Groups.Val},
		{config.SplitTest, parts.Test, m.Rows.Test, m.Groups.Test},
	} {
		lo, hi := timeRange(w.p, timeCol)
		partRows = append(partRows, []interface{}{w.name, w.rows, w.groups, lo.Format(time.DateOnly), hi.Format(time.DateOnly)})
	}

	boundaryRows := [][]interface{}{
		{"val_start", m.ValStart},
		{"test_start", m.TestStart},
		{"source", m.BoundarySource},
		{"excluded_rows", m.ExcludedRows},
	}

	unseenRows := make([][]interface{}, 0, len(m.UnseenGroups))
	for _, g := range m.UnseenGroups {
		unseenRows = append(unseenRows, []interface{}{g})
	}

	return []tables.Sheet{
		{Name: SheetPartitions, Header: []string{"split", "rows", "groups", "first", "last"}, Rows: partRows},
		{Name: SheetBoundaries, Header: []string{"key", "value"}, Rows: boundaryRows},
		{Name: SheetUnseen, Header: []string{"group"}, Rows: unseenRows},
	}
}

// WriteSummary writes the split summary workbook
func WriteSummary(path string, m *domain.SplitManifest, parts *Partitions, timeCol string) error {
	return tables.WriteWorkbook(path, SummarySheets(m, parts, timeCol))
}
