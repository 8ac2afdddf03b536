package series

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are the accepted input formats, from strictest to loosest.
// Sources disagree on how much of the timestamp they ship; everything is
// reduced to day precision on decode.
var dateLayouts = []string{
	DateLayout,
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// EncodeCSV serializes a table with a leading date column followed by the
// table's value columns. Missing values are written as empty cells.
func EncodeCSV(t *Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := append([]string{"date"}, t.Columns...)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	row := make([]string, len(header))
	for _, rec := range t.Records {
		row[0] = rec.Date.Format(DateLayout)
		for i, col := range t.Columns {
			if v, ok := rec.Values[col]; ok {
				row[i+1] = strconv.FormatFloat(v, 'f', -1, 64)
			} else {
				row[i+1] = ""
			}
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeCSV parses a dataset artifact. The header must contain a "date"
// column; value cells that fail to parse are skipped (partial rows are
// accepted as-is), but an unparseable date makes the whole artifact invalid
// so callers can degrade it to absent rather than serve a torn table.
func DecodeCSV(data []byte) (*Table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) == 0 {
		return New(), nil
	}

	header := rows[0]
	dateIdx := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), "date") {
			dateIdx = i
			break
		}
	}
	if dateIdx < 0 {
		return nil, fmt.Errorf("csv header has no date column")
	}

	table := New()
	for _, name := range header {
		name = strings.TrimSpace(name)
		if !strings.EqualFold(name, "date") && name != "" {
			table.addColumn(name)
		}
	}

	for n, row := range rows[1:] {
		if len(row) <= dateIdx {
			continue
		}
		date, err := ParseDate(row[dateIdx])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", n+2, err)
		}
		values := make(map[string]float64)
		for i, cell := range row {
			if i == dateIdx || i >= len(header) {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				continue
			}
			values[strings.TrimSpace(header[i])] = v
		}
		table.Records = append(table.Records, Record{Date: date, Values: values})
	}

	return table.Normalize(), nil
}

// ParseDate parses a date cell in any of the accepted layouts and normalizes
// it to day precision.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}
