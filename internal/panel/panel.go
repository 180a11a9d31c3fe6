package panel

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind is the storage class of a column
type Kind int

const (
	KindFloat Kind = iota
	KindInt
	KindBool
	KindString
	KindTime
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindTime:
		return "time"
	default:
		return "unknown"
	}
}

// IsNumeric reports whether values of this kind are stored as float64.
// Booleans count as numeric (0/1).
func (k Kind) IsNumeric() bool {
	return k == KindFloat || k == KindInt || k == KindBool
}

// Column is a named, typed vector. Numeric kinds use NaN for missing values,
// time columns use the zero time for invalid timestamps.
type Column struct {
	Name    string
	Kind    Kind
	Floats  []float64
	Strings []string
	Times   []time.Time
}

// NewFloatColumn creates a numeric column of the given kind
func NewFloatColumn(name string, kind Kind, values []float64) *Column {
	return &Column{Name: name, Kind: kind, Floats: values}
}

// NewStringColumn creates a string column
func NewStringColumn(name string, values []string) *Column {
	return &Column{Name: name, Kind: KindString, Strings: values}
}

// NewTimeColumn creates a time column
func NewTimeColumn(name string, values []time.Time) *Column {
	return &Column{Name: name, Kind: KindTime, Times: values}
}

// Len returns the number of values in the column
func (c *Column) Len() int {
	switch {
	case c.Kind.IsNumeric():
		return len(c.Floats)
	case c.Kind == KindString:
		return len(c.Strings)
	default:
		return len(c.Times)
	}
}

// IsMissing reports whether the value at row i is missing
func (c *Column) IsMissing(i int) bool {
	switch {
	case c.Kind.IsNumeric():
		return math.IsNaN(c.Floats[i])
	case c.Kind == KindString:
		return c.Strings[i] == ""
	default:
		return c.Times[i].IsZero()
	}
}

// Format renders the value at row i as text. Missing values render as "".
func (c *Column) Format(i int) string {
	if c.IsMissing(i) {
		return ""
	}
	switch c.Kind {
	case KindFloat:
		s := strconv.FormatFloat(c.Floats[i], 'g', -1, 64)
		// whole numbers keep a decimal point so text readers type them as floats
		if !strings.ContainsAny(s, ".eEIn") {
			s += ".0"
		}
		return s
	case KindInt, KindBool:
		return strconv.FormatInt(int64(c.Floats[i]), 10)
	case KindString:
		return c.Strings[i]
	default:
		t := c.Times[i]
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format(time.DateOnly)
		}
		return t.Format(time.RFC3339)
	}
}

func (c *Column) take(idx []int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	switch {
	case c.Kind.IsNumeric():
		out.Floats = make([]float64, len(idx))
		for i, j := range idx {
			out.Floats[i] = c.Floats[j]
		}
	case c.Kind == KindString:
		out.Strings = make([]string, len(idx))
		for i, j := range idx {
			out.Strings[i] = c.Strings[j]
		}
	default:
		out.Times = make([]time.Time, len(idx))
		for i, j := range idx {
			out.Times[i] = c.Times[j]
		}
	}
	return out
}

func (c *Column) less(a, b int) int {
	switch {
	case c.Kind.IsNumeric():
		x, y := c.Floats[a], c.Floats[b]
		switch {
		case math.IsNaN(x) && math.IsNaN(y):
			return 0
		case math.IsNaN(x):
			return 1
		case math.IsNaN(y):
			return -1
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case c.Kind == KindString:
		return strings.Compare(c.Strings[a], c.Strings[b])
	default:
		x, y := c.Times[a], c.Times[b]
		switch {
		case x.IsZero() && y.IsZero():
			return 0
		case x.IsZero():
			return 1
		case y.IsZero():
			return -1
		}
		return x.Compare(y)
	}
}

// Panel is an in-memory columnar table. Column slices are never written in
// place once they belong to a panel: setters replace whole columns, so a
// Clone can be extended without affecting the panel it came from.
type Panel struct {
	columns []*Column
	index   map[string]int
	rows    int
}

// New creates an empty panel
func New() *Panel {
	return &Panel{index: make(map[string]int)}
}

// FromColumns builds a panel from equally sized columns
func FromColumns(cols ...*Column) (*Panel, error) {
	p := New()
	for _, c := range cols {
		if err := p.set(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// NumRows returns the number of rows
func (p *Panel) NumRows() int { return p.rows }

// NumCols returns the number of columns
func (p *Panel) NumCols() int { return len(p.columns) }

// Names returns the column names in order
func (p *Panel) Names() []string {
	names := make([]string, len(p.columns))
	for i, c := range p.columns {
		names[i] = c.Name
	}
	return names
}

// Columns returns the columns in order
func (p *Panel) Columns() []*Column {
	out := make([]*Column, len(p.columns))
	copy(out, p.columns)
	return out
}

// Has reports whether the named column exists
func (p *Panel) Has(name string) bool {
	_, ok := p.index[name]
	return ok
}

// Missing returns the names not present in the panel, in argument order
func (p *Panel) Missing(names ...string) []string {
	var missing []string
	for _, n := range names {
		if !p.Has(n) {
			missing = append(missing, n)
		}
	}
	return missing
}

// Column returns the named column
func (p *Panel) Column(name string) (*Column, bool) {
	i, ok := p.index[name]
	if !ok {
		return nil, false
	}
	return p.columns[i], true
}

// Floats returns the values of a numeric column
func (p *Panel) Floats(name string) ([]float64, bool) {
	c, ok := p.Column(name)
	if !ok || !c.Kind.IsNumeric() {
		return nil, false
	}
	return c.Floats, true
}

// Strings returns the values of a string column
func (p *Panel) Strings(name string) ([]string, bool) {
	c, ok := p.Column(name)
	if !ok || c.Kind != KindString {
		return nil, false
	}
	return c.Strings, true
}

// Times returns the values of a time column
func (p *Panel) Times(name string) ([]time.Time, bool) {
	c, ok := p.Column(name)
	if !ok || c.Kind != KindTime {
		return nil, false
	}
	return c.Times, true
}

// SetFloats adds or replaces a numeric column
func (p *Panel) SetFloats(name string, kind Kind, values []float64) error {
	if !kind.IsNumeric() {
		return fmt.Errorf("column %s: kind %s is not numeric", name, kind)
	}
	return p.set(NewFloatColumn(name, kind, values))
}

// SetStrings adds or replaces a string column
func (p *Panel) SetStrings(name string, values []string) error {
	return p.set(NewStringColumn(name, values))
}

// SetTimes adds or replaces a time column
func (p *Panel) SetTimes(name string, values []time.Time) error {
	return p.set(NewTimeColumn(name, values))
}

func (p *Panel) set(c *Column) error {
	if c.Name == "" {
		return fmt.Errorf("column name cannot be empty")
	}
	n := c.Len()
	_, replacing := p.index[c.Name]
	onlyColumn := replacing && len(p.columns) == 1
	if len(p.columns) > 0 && n != p.rows && !onlyColumn {
		return fmt.Errorf("column %s has %d rows, panel has %d", c.Name, n, p.rows)
	}
	if i, ok := p.index[c.Name]; ok {
		p.columns[i] = c
	} else {
		p.index[c.Name] = len(p.columns)
		p.columns = append(p.columns, c)
	}
	p.rows = n
	return nil
}

// Drop removes the named columns. Unknown names are ignored.
func (p *Panel) Drop(names ...string) {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	kept := p.columns[:0:0]
	for _, c := range p.columns {
		if !drop[c.Name] {
			kept = append(kept, c)
		}
	}
	p.columns = kept
	p.reindex()
}

func (p *Panel) reindex() {
	p.index = make(map[string]int, len(p.columns))
	for i, c := range p.columns {
		p.index[c.Name] = i
	}
	if len(p.columns) == 0 {
		p.rows = 0
	}
}

// Clone returns a panel with its own column list. Column data is shared.
func (p *Panel) Clone() *Panel {
	out := &Panel{
		columns: make([]*Column, len(p.columns)),
		rows:    p.rows,
	}
	copy(out.columns, p.columns)
	out.reindex()
	out.rows = p.rows
	return out
}

// Take returns a new panel holding the rows at idx, in idx order
func (p *Panel) Take(idx []int) *Panel {
	out := New()
	for _, c := range p.columns {
		out.columns = append(out.columns, c.take(idx))
	}
	out.reindex()
	out.rows = len(idx)
	return out
}

// SortOrder returns the row permutation that stably sorts the panel by keys.
// Missing values sort last.
func (p *Panel) SortOrder(keys ...string) ([]int, error) {
	cols := make([]*Column, len(keys))
	for i, k := range keys {
		c, ok := p.Column(k)
		if !ok {
			return nil, fmt.Errorf("sort key %s not found", k)
		}
		cols[i] = c
	}
	order := make([]int, p.rows)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		for _, c := range cols {
			if r := c.less(order[a], order[b]); r != 0 {
				return r < 0
			}
		}
		return false
	})
	return order, nil
}

// SortBy returns a copy of the panel sorted by keys
func (p *Panel) SortBy(keys ...string) (*Panel, error) {
	order, err := p.SortOrder(keys...)
	if err != nil {
		return nil, err
	}
	return p.Take(order), nil
}

// Concat stacks panels that share the same column names and kinds
func Concat(parts ...*Panel) (*Panel, error) {
	if len(parts) == 0 {
		return New(), nil
	}
	out := New()
	first := parts[0]
	for _, c := range first.columns {
		merged := &Column{Name: c.Name, Kind: c.Kind}
		for _, part := range parts {
			pc, ok := part.Column(c.Name)
			if !ok || pc.Kind != c.Kind {
				return nil, fmt.Errorf("column %s missing or of different kind in concatenated panel", c.Name)
			}
			merged.Floats = append(merged.Floats, pc.Floats...)
			merged.Strings = append(merged.Strings, pc.Strings...)
			merged.Times = append(merged.Times, pc.Times...)
		}
		out.columns = append(out.columns, merged)
	}
	out.reindex()
	for _, part := range parts {
		out.rows += part.rows
	}
	return out, nil
}
