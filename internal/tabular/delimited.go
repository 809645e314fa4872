package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"labdash/internal/models"
)

// DefaultDelimiter separates fields when the caller does not choose one
const DefaultDelimiter = ','

// DelimitedParser reads CSV/TXT uploads. The first record is the header.
type DelimitedParser struct {
	Delimiter rune
}

func (p *DelimitedParser) Format() string {
	return "delimited"
}

func (p *DelimitedParser) Parse(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.Comma = p.delimiter()
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &models.SourceError{Format: p.Format(), Err: errors.New("source is empty")}
	}
	if err != nil {
		return nil, &models.SourceError{Format: p.Format(), Err: err}
	}

	table := &Table{Columns: normalizeHeader(header)}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &models.SourceError{Format: p.Format(), Err: err}
		}
		if blank(record) {
			continue
		}

		line, _ := reader.FieldPos(0)
		cells := make([]any, len(record))
		for i, c := range record {
			cells[i] = strings.TrimSpace(c)
		}
		table.add(buildRow(table.Columns, cells), line)
	}

	return table, nil
}

func (p *DelimitedParser) delimiter() rune {
	if p.Delimiter == 0 {
		return DefaultDelimiter
	}
	return p.Delimiter
}

// ParseDelimiter reads a user supplied separator. Empty means comma; "\t",
// "tab" and "tabulador" mean a tab character.
func ParseDelimiter(raw string) (rune, error) {
	switch strings.ToLower(raw) {
	case "":
		return DefaultDelimiter, nil
	case `\t`, "tab", "tabulador":
		return '\t', nil
	}

	runes := []rune(raw)
	if len(runes) != 1 || runes[0] == '"' || runes[0] == '\r' || runes[0] == '\n' {
		return 0, fmt.Errorf("invalid separator %q: must be a single character", raw)
	}
	return runes[0], nil
}
