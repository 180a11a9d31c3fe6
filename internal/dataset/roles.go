// Package dataset classifies the columns of the train partition into model
// roles and builds the dataset specification handed to the trainer.
package dataset

import (
	"strings"

	"github.com/Ul012/FOM.tft-timeseries/internal/config"
	"github.com/Ul012/FOM.tft-timeseries/internal/panel"
)

// Role of a column in the sequence model
type Role string

const (
	RoleStaticCategorical Role = "static_categorical"
	RoleKnownReal         Role = "known_real"
	RoleUnknownReal       Role = "unknown_real"
	// RoleNone marks columns the model does not consume (time, text)
	RoleNone Role = ""
)

// RoleConfig holds the name rules of the classifier
type RoleConfig struct {
	KnownRealPrefixes    []string
	LagPrefixes          []string
	TreatCalendarAsKnown bool
	CalendarCols         []string
	HolidayPrefix        string
	FlagCols             []string
	TimeIndexCol         string
}

// RoleConfigFromConfig takes the classifier rules from the pipeline configuration
func RoleConfigFromConfig(cfg config.PipelineConfig) RoleConfig {
	d := cfg.Dataset
	return RoleConfig{
		KnownRealPrefixes:    d.KnownRealPrefixes,
		LagPrefixes:          d.LagPrefixes,
		TreatCalendarAsKnown: d.TreatCalendarAsKnown,
		CalendarCols:         d.CalendarCols,
		HolidayPrefix:        d.HolidayPrefix,
		FlagCols:             d.FlagCols,
		TimeIndexCol:         cfg.Features.Calendar.TimeIndexCol,
	}
}

// ColumnInfo is the metadata the classifier looks at
type ColumnInfo struct {
	Name    string
	Numeric bool
}

// Describe lists the columns of a panel in table order
func Describe(p *panel.Panel) []ColumnInfo {
	cols := p.Columns()
	out := make([]ColumnInfo, len(cols))
	for i, c := range cols {
		out[i] = ColumnInfo{Name: c.Name, Numeric: c.Kind.IsNumeric()}
	}
	return out
}

// Roles are the classified column lists, each in table order
type Roles struct {
	StaticCategoricals []string
	KnownReals         []string
	UnknownReals       []string
}

// Of returns the role of one column
func (r Roles) Of(col string) Role {
	for _, list := range []struct {
		role Role
		cols []string
	}{
		{RoleStaticCategorical, r.StaticCategoricals},
		{RoleKnownReal, r.KnownReals},
		{RoleUnknownReal, r.UnknownReals},
	} {
		for _, c := range list.cols {
			if c == col {
				return list.role
			}
		}
	}
	return RoleNone
}

// orderedSet keeps first-insertion order and drops duplicates
type orderedSet struct {
	items []string
	seen  map[string]bool
}

func newOrderedSet() *orderedSet { return &orderedSet{seen: make(map[string]bool)} }

func (s *orderedSet) add(name string) {
	if s.seen[name] {
		return
	}
	s.seen[name] = true
	s.items = append(s.items, name)
}

func (s *orderedSet) has(name string) bool { return s.seen[name] }

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Classify assigns roles with the precedence id > known > lag > unknown.
//
//   - static categoricals are the id columns present, in id order
//   - known reals are numeric columns with a known prefix, then (when the
//     calendar counts as known) calendar columns, holiday-prefixed columns
//     and flag columns, then the time index
//   - unknown reals are the target, every other numeric column, and finally
//     the lag-prefixed columns
//
// The target is never known and id columns never appear in the real lists,
// numeric or not.
func Classify(cols []ColumnInfo, idCols []string, targetCol string, rc RoleConfig) Roles {
	present := make(map[string]ColumnInfo, len(cols))
	for _, c := range cols {
		present[c.Name] = c
	}
	ids := newOrderedSet()
	for _, id := range idCols {
		if _, ok := present[id]; ok {
			ids.add(id)
		}
	}
	isID := func(name string) bool {
		for _, id := range idCols {
			if id == name {
				return true
			}
		}
		return false
	}
	numeric := func(name string) bool {
		c, ok := present[name]
		return ok && c.Numeric
	}

	known := newOrderedSet()
	addKnown := func(name string) {
		if isID(name) || name == targetCol {
			return
		}
		known.add(name)
	}
	for _, c := range cols {
		if c.Numeric && hasAnyPrefix(c.Name, rc.KnownRealPrefixes) {
			addKnown(c.Name)
		}
	}
	if rc.TreatCalendarAsKnown {
		for _, name := range rc.CalendarCols {
			if numeric(name) {
				addKnown(name)
			}
		}
		if rc.HolidayPrefix != "" {
			for _, c := range cols {
				if c.Numeric && strings.HasPrefix(c.Name, rc.HolidayPrefix) {
					addKnown(c.Name)
				}
			}
		}
		// flags count even when stored as text 0/1
		for _, name := range rc.FlagCols {
			if _, ok := present[name]; ok {
				addKnown(name)
			}
		}
	}
	if rc.TimeIndexCol != "" && numeric(rc.TimeIndexCol) {
		addKnown(rc.TimeIndexCol)
	}

	lags := newOrderedSet()
	for _, c := range cols {
		if c.Numeric && c.Name != targetCol && !isID(c.Name) && !known.has(c.Name) && hasAnyPrefix(c.Name, rc.LagPrefixes) {
			lags.add(c.Name)
		}
	}

	unknown := newOrderedSet()
	if numeric(targetCol) {
		unknown.add(targetCol)
	}
	for _, c := range cols {
		if !c.Numeric || isID(c.Name) || known.has(c.Name) || lags.has(c.Name) {
			continue
		}
		unknown.add(c.Name)
	}
	for _, name := range lags.items {
		unknown.add(name)
	}

	return Roles{
		StaticCategoricals: nonNil(ids.items),
		KnownReals:         nonNil(known.items),
		UnknownReals:       nonNil(unknown.items),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
