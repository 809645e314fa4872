// Package tabular reads uploaded spreadsheets and delimited text into the
// row representation consumed by the validation package.
package tabular

import (
	"io"
	"path/filepath"
	"strings"

	"labdash/internal/validation"
)

// Table is a parsed source: normalized header names and one RawRow per data
// row, in source order. Lines[i] is the 1-based line or worksheet row that
// Rows[i] came from, so skipped blank rows do not shift row references.
type Table struct {
	Columns []string
	Rows    []validation.RawRow
	Lines   []int
}

func (t *Table) add(row validation.RawRow, line int) {
	t.Rows = append(t.Rows, row)
	t.Lines = append(t.Lines, line)
}

// Parser turns raw upload bytes into a Table
type Parser interface {
	Parse(r io.Reader) (*Table, error)
	Format() string
}

var spreadsheetExtensions = map[string]struct{}{
	".xlsx": {},
	".xlsm": {},
	".xltx": {},
	".xltm": {},
}

// ForFilename selects the parser from the upload's file extension. Anything
// that is not a spreadsheet is read as delimited text.
func ForFilename(name string, delimiter rune) Parser {
	if _, ok := spreadsheetExtensions[strings.ToLower(filepath.Ext(name))]; ok {
		return &SpreadsheetParser{}
	}
	return &DelimitedParser{Delimiter: delimiter}
}

func normalizeHeader(header []string) []string {
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = validation.NormalizeKey(strings.TrimPrefix(h, "\ufeff"))
	}
	return columns
}

// buildRow zips a record onto the header. Short records leave trailing
// columns nil; cells past the header are dropped.
func buildRow(columns []string, cells []any) validation.RawRow {
	row := make(validation.RawRow, len(columns))
	for i, col := range columns {
		if col == "" {
			continue
		}
		if _, dup := row[col]; dup {
			continue
		}
		if i < len(cells) {
			row[col] = cells[i]
		} else {
			row[col] = nil
		}
	}
	return row
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
