// Package report parses the tab-delimited tables produced by the report generator.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEmpty is returned when the text holds no data rows.
var ErrEmpty = errors.New("report contains no table rows")

// ParseError is a malformed table.
type ParseError struct {
	Line  int
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse report table at line %d: %v", e.Line, e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Table is a parsed report.
type Table struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// HeaderIndex returns the index of the header row: the first line that starts with
// "strategic imperative" (quoted or not, any case) and contains a tab. Zero when none matches.
func HeaderIndex(lines []string) int {
	for i, line := range lines {
		l := strings.ToLower(strings.TrimSpace(line))
		if !strings.Contains(line, "\t") {
			continue
		}
		if strings.HasPrefix(l, `"strategic imperative"`) || strings.HasPrefix(l, "strategic imperative") {
			return i
		}
	}
	return 0
}

// Parse reads a report table. Preamble lines before the header row are dropped, fields may be
// double-quoted, and short rows are padded to the header width.
func Parse(text string) (*Table, error) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return nil, ErrEmpty
	}

	lines := strings.Split(text, "\n")
	start := HeaderIndex(lines)
	body := strings.Join(lines[start:], "\n")

	r := csv.NewReader(strings.NewReader(body))
	r.Comma = '\t'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, &ParseError{Line: start + 1, Cause: err}
	}
	table := &Table{Header: trimAll(header)}

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{Line: start + 1, Cause: err}
		}
		if isBlank(record) {
			continue
		}
		if len(record) > len(table.Header) {
			line, _ := r.FieldPos(0)
			return nil, &ParseError{
				Line:  start + line,
				Cause: fmt.Errorf("expected %d fields, saw %d", len(table.Header), len(record)),
			}
		}
		row := make([]string, len(table.Header))
		copy(row, trimAll(record))
		table.Rows = append(table.Rows, row)
	}

	if len(table.Rows) == 0 {
		return nil, ErrEmpty
	}
	return table, nil
}

func trimAll(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.TrimSpace(f)
	}
	return out
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
