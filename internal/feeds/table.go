package feeds

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Row is one feed row keyed by normalized column name.
type Row map[string]string

// Get returns the first non-empty value among cols.
func (r Row) Get(cols ...string) string {
	for _, c := range cols {
		if v := strings.TrimSpace(r[c]); v != "" {
			return v
		}
	}
	return ""
}

// Table is a parsed semicolon-delimited feed indexed by its id column.
type Table struct {
	Columns []string
	Rows    map[string]Row
	// IDs keeps first-seen order so callers can iterate deterministically.
	IDs []string
}

// EmptyTable is the structurally valid result of a failed load.
func EmptyTable() *Table {
	return &Table{Rows: map[string]Row{}}
}

// Len returns the number of indexed rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Row returns the row for id.
func (t *Table) Row(id string) (Row, bool) {
	if t == nil {
		return nil, false
	}
	r, ok := t.Rows[id]
	return r, ok
}

// HasColumn reports whether the header contained col.
func (t *Table) HasColumn(col string) bool {
	if t == nil {
		return false
	}
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

var (
	nonIdentRegex = regexp.MustCompile(`[^a-z0-9]+`)
	utf8BOM       = []byte{0xEF, 0xBB, 0xBF}
)

// NormalizeHeader turns a raw column name into a lower_snake_case identifier.
// "Include In Checkout" → "include_in_checkout", "ClickBank-Alias" → "clickbank_alias".
func NormalizeHeader(h string) string {
	h = strings.TrimSpace(h)
	h = strings.Trim(h, "\"'")
	h = strings.ToLower(h)
	h = nonIdentRegex.ReplaceAllString(h, "_")
	return strings.Trim(h, "_")
}

// ParseTable reads a semicolon-delimited feed. The first header column
// matching one of idColumns becomes the row key; rows with an empty id are
// skipped and duplicate ids keep the last row.
func ParseTable(r io.Reader, idColumns ...string) (*Table, error) {
	reader := csv.NewReader(stripBOM(r))
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return EmptyTable(), nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = NormalizeHeader(h)
	}

	idIdx := -1
	for _, want := range idColumns {
		for i, c := range cols {
			if c == want {
				idIdx = i
				break
			}
		}
		if idIdx >= 0 {
			break
		}
	}
	if idIdx < 0 {
		return nil, fmt.Errorf("no id column (%s) in header: %v", strings.Join(idColumns, ", "), cols)
	}

	t := &Table{Columns: cols, Rows: make(map[string]Row)}
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if idIdx >= len(rec) {
			continue
		}
		id := strings.TrimSpace(rec[idIdx])
		if id == "" {
			continue
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if c == "" || i >= len(rec) {
				continue
			}
			row[c] = strings.TrimSpace(rec[i])
		}
		if _, seen := t.Rows[id]; !seen {
			t.IDs = append(t.IDs, id)
		}
		t.Rows[id] = row
	}
	return t, nil
}

// ParseBool accepts true/1/yes/y case-insensitively.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y":
		return true
	default:
		return false
	}
}

func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(3)
	}
	return br
}
