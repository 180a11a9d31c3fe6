package panel

import (
	"fmt"
	"strings"
)

// keySeparator joins id values into a group key; it cannot appear in CSV text.
const keySeparator = "\x1f"

// Group is one series of the panel: its id values and the row positions that
// belong to it, in panel order.
type Group struct {
	Key    string
	Values []string
	Rows   []int
}

// Label renders the group values for logs, e.g. "DE/store_a/mugs"
func (g Group) Label() string {
	return strings.Join(g.Values, "/")
}

// KeyLabel renders a row key from RowKeys for logs and reports
func KeyLabel(key string) string {
	return strings.ReplaceAll(key, keySeparator, "/")
}

// RowKeys returns the group key of every row
func (p *Panel) RowKeys(keys []string) ([]string, error) {
	cols := make([]*Column, len(keys))
	for i, k := range keys {
		c, ok := p.Column(k)
		if !ok {
			return nil, fmt.Errorf("group column %s not found", k)
		}
		cols[i] = c
	}
	out := make([]string, p.rows)
	parts := make([]string, len(cols))
	for r := 0; r < p.rows; r++ {
		for i, c := range cols {
			parts[i] = c.Format(r)
		}
		out[r] = strings.Join(parts, keySeparator)
	}
	return out, nil
}

// Groups partitions the rows by the values of keys. Groups are returned in
// order of first appearance and each group's rows keep panel order, so on a
// panel sorted by (keys..., time) every group is a time-ordered series.
// With no keys the whole panel is one group.
func (p *Panel) Groups(keys []string) ([]Group, error) {
	rowKeys, err := p.RowKeys(keys)
	if err != nil {
		return nil, err
	}
	pos := make(map[string]int)
	var groups []Group
	for r, k := range rowKeys {
		i, ok := pos[k]
		if !ok {
			i = len(groups)
			pos[k] = i
			var values []string
			if len(keys) > 0 {
				values = strings.Split(k, keySeparator)
			}
			groups = append(groups, Group{Key: k, Values: values})
		}
		groups[i].Rows = append(groups[i].Rows, r)
	}
	return groups, nil
}
