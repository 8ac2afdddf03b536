package series

import (
	"sort"
	"time"
)

// DateLayout is the canonical day-precision date format used across stores,
// archives and loader payloads.
const DateLayout = "2006-01-02"

// Day normalizes a timestamp to day precision: the wall-clock calendar date
// is kept and the timezone is stripped (re-anchored to UTC midnight). Two
// observations of the same calendar day compare equal after Day regardless
// of the source timezone.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Record is a single observation: one calendar date plus one or more named
// numeric values. Values may be sparse; the merge is field-agnostic.
type Record struct {
	Date   time.Time          `json:"date"`
	Values map[string]float64 `json:"values"`
}

// Value returns the named value and whether it is present.
func (r Record) Value(column string) (float64, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// Table is an ordered, date-indexed collection of records for one dataset.
// After Normalize (and after every Merge) dates are unique and sorted
// ascending. Columns tracks value column order for stable serialization.
type Table struct {
	Columns []string
	Records []Record
}

// New creates an empty table with the given value columns.
func New(columns ...string) *Table {
	return &Table{Columns: columns}
}

// Append adds a record and registers any columns it introduces. It does not
// re-establish ordering invariants; call Normalize when done.
func (t *Table) Append(rec Record) {
	for col := range rec.Values {
		t.addColumn(col)
	}
	t.Records = append(t.Records, rec)
}

// Len returns the number of records.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// IsEmpty reports whether the table holds no records.
func (t *Table) IsEmpty() bool {
	return t.Len() == 0
}

// MinDate returns the earliest date in the table. The second return value is
// false for an empty table.
func (t *Table) MinDate() (time.Time, bool) {
	if t.IsEmpty() {
		return time.Time{}, false
	}
	min := t.Records[0].Date
	for _, rec := range t.Records[1:] {
		if rec.Date.Before(min) {
			min = rec.Date
		}
	}
	return min, true
}

// MaxDate returns the latest date in the table. The second return value is
// false for an empty table.
func (t *Table) MaxDate() (time.Time, bool) {
	if t.IsEmpty() {
		return time.Time{}, false
	}
	max := t.Records[0].Date
	for _, rec := range t.Records[1:] {
		if rec.Date.After(max) {
			max = rec.Date
		}
	}
	return max, true
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Records: make([]Record, 0, len(t.Records)),
	}
	for _, rec := range t.Records {
		values := make(map[string]float64, len(rec.Values))
		for k, v := range rec.Values {
			values[k] = v
		}
		out.Records = append(out.Records, Record{Date: rec.Date, Values: values})
	}
	return out
}

// Normalize enforces the table invariants in place: every date is reduced to
// day precision, duplicate dates collapse keeping the last occurrence, and
// records end up sorted ascending by date.
func (t *Table) Normalize() *Table {
	if t == nil || len(t.Records) == 0 {
		return t
	}

	// Last occurrence wins, mirroring a drop-duplicates keep=last merge.
	byDate := make(map[time.Time]Record, len(t.Records))
	order := make([]time.Time, 0, len(t.Records))
	for _, rec := range t.Records {
		day := Day(rec.Date)
		rec.Date = day
		if _, seen := byDate[day]; !seen {
			order = append(order, day)
		}
		byDate[day] = rec
	}

	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

	records := make([]Record, 0, len(order))
	for _, day := range order {
		records = append(records, byDate[day])
	}
	t.Records = records
	return t
}

// Merge combines an existing table with newly fetched records. On a date
// conflict the incoming record wins. The result is a new normalized table;
// neither input is modified. Columns are the union, existing order first.
func Merge(existing, incoming *Table) *Table {
	merged := &Table{}
	if existing != nil {
		merged.Columns = append(merged.Columns, existing.Columns...)
	}
	if incoming != nil {
		for _, col := range incoming.Columns {
			merged.addColumn(col)
		}
	}
	if existing != nil {
		merged.Records = append(merged.Records, existing.Clone().Records...)
	}
	if incoming != nil {
		merged.Records = append(merged.Records, incoming.Clone().Records...)
	}
	return merged.Normalize()
}

func (t *Table) addColumn(column string) {
	for _, c := range t.Columns {
		if c == column {
			return
		}
	}
	t.Columns = append(t.Columns, column)
}
