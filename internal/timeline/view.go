package timeline

import "errors"

// ErrUnknownDate is returned when selecting a date the index does not hold.
var ErrUnknownDate = errors.New("date not in index")

// View is the state behind a date-selectable record list: the grouped
// records, their index and the date currently shown. The selection is
// either empty (no records) or a member of the index.
//
// A View is owned by one writer. Append returns a fresh View and leaves the
// receiver untouched, so a View can be shared once it is built.
type View struct {
	groups   Groups
	index    Index
	selected string
}

// NewView groups records and selects the most recent date.
func NewView(records []Record) View {
	g, idx := Group(records)
	return View{groups: g, index: idx, selected: idx.First()}
}

func (v View) Groups() Groups { return v.groups }
func (v View) Index() Index   { return v.index }

// SelectedDate is the currently shown date key, "" when there are no records.
func (v View) SelectedDate() string { return v.selected }

// Selected returns the records of the selected date.
func (v View) Selected() []Record {
	if v.selected == "" {
		return nil
	}
	recs, _ := v.groups.Get(v.selected)
	return recs
}

func (v View) Empty() bool { return len(v.index) == 0 }

// Select switches the shown date.
func (v *View) Select(key string) error {
	if !v.index.Contains(key) {
		return ErrUnknownDate
	}
	v.selected = key
	return nil
}

// SelectOrDefault selects key when it is indexed and falls back to the most
// recent date otherwise. It reports whether key was used.
func (v *View) SelectOrDefault(key string) bool {
	if err := v.Select(key); err != nil {
		v.selected = v.index.First()
		return false
	}
	return true
}

// Append merges r and returns a View showing r's date.
func (v View) Append(r Record) View {
	g, idx := Append(v.groups, v.index, r)
	return View{groups: g, index: idx, selected: r.Key()}
}
