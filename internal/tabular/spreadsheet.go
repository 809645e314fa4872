package tabular

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"labdash/internal/models"
)

// SpreadsheetParser reads the first worksheet (or Sheet, when set) of an
// Office Open XML workbook. The first non-blank row is the header.
//
// Numeric cells are emitted as float64 so that dates keep their serial value
// and site codes such as 3 can be padded back to "003" downstream.
type SpreadsheetParser struct {
	Sheet string
}

func (p *SpreadsheetParser) Format() string {
	return "spreadsheet"
}

func (p *SpreadsheetParser) Parse(r io.Reader) (*Table, error) {
	file, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &models.SourceError{Format: p.Format(), Err: err}
	}
	defer func() { _ = file.Close() }()

	sheet, err := p.sheetName(file)
	if err != nil {
		return nil, &models.SourceError{Format: p.Format(), Err: err}
	}

	rows, err := file.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &models.SourceError{Format: p.Format(), Err: err}
	}

	headerAt := -1
	for i, cells := range rows {
		if !blank(cells) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, &models.SourceError{Format: p.Format(), Err: errors.New("worksheet is empty")}
	}

	table := &Table{Columns: normalizeHeader(rows[headerAt])}

	for i := headerAt + 1; i < len(rows); i++ {
		if blank(rows[i]) {
			continue
		}

		cells := make([]any, len(rows[i]))
		for col, raw := range rows[i] {
			cells[col], err = typedCell(file, sheet, col+1, i+1, raw)
			if err != nil {
				return nil, &models.SourceError{Format: p.Format(), Err: err}
			}
		}
		table.add(buildRow(table.Columns, cells), i+1)
	}

	return table, nil
}

func (p *SpreadsheetParser) sheetName(file *excelize.File) (string, error) {
	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return "", errors.New("no worksheet found")
	}
	if p.Sheet == "" {
		return sheets[0], nil
	}
	for _, s := range sheets {
		if strings.EqualFold(s, p.Sheet) {
			return s, nil
		}
	}
	return "", fmt.Errorf("worksheet %q not found", p.Sheet)
}

// typedCell returns float64 for numeric cells and trimmed text otherwise
func typedCell(file *excelize.File, sheet string, col, row int, raw string) (any, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, nil
	}

	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return nil, err
	}

	cellType, err := file.GetCellType(sheet, cell)
	if err != nil {
		return nil, err
	}

	switch cellType {
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		if n, err := strconv.ParseFloat(text, 64); err == nil {
			return n, nil
		}
	}
	return text, nil
}
