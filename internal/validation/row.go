package validation

import (
	"labdash/internal/models"
)

// HeaderRowOffset converts a zero-based data row index into the row number a
// person sees in a spreadsheet: one for 1-based numbering, one for the header.
const HeaderRowOffset = 2

// DisplayRow returns the human-facing row number of a zero-based data index
func DisplayRow(index int) int {
	return index + HeaderRowOffset
}

// ValidateRow checks one raw row against profile and returns the normalized
// measurement. ID and CreatedAt are left for storage to assign.
//
// All missing required fields are reported together in one
// *models.MissingFieldsError. Otherwise the first failing field is returned
// as *models.FieldError or *models.InvalidCodeError.
func ValidateRow(row RawRow, profile Profile) (*models.Measurement, error) {
	row = NewRawRow(row)

	if missing := profile.missingFields(row); len(missing) > 0 {
		return nil, &models.MissingFieldsError{Fields: missing}
	}

	fields, err := NormalizeFields(row, profile)
	if err != nil {
		return nil, err
	}

	point, err := profile.Point.Canonical(row[profile.Point.Field()])
	if err != nil {
		return nil, err
	}

	return &models.Measurement{
		Category:   profile.Category,
		SubType:    fields.SubType,
		Point:      point,
		Parameter:  fields.Parameter,
		MeasuredOn: fields.Date,
		Value:      fields.Value,
		Note:       fields.Note,
	}, nil
}

// ValidRow is a validated record together with its display row number
type ValidRow struct {
	Row    int
	Record *models.Measurement
}

// Outcome partitions a batch of rows into records and row errors, both in
// source order
type Outcome struct {
	Valid  []ValidRow
	Errors []*models.RowError
}

// ValidateRows applies ValidateRow to every row independently. A bad row
// never stops the fold. Rows are numbered as if they followed a header with
// no gaps; use ValidateRowsAt when the source lines are known.
func ValidateRows(rows []RawRow, profile Profile) Outcome {
	return ValidateRowsAt(rows, nil, profile)
}

// ValidateRowsAt is ValidateRows with lines[i] reported as the row number of
// rows[i]. Rows without a line fall back to DisplayRow.
func ValidateRowsAt(rows []RawRow, lines []int, profile Profile) Outcome {
	out := Outcome{
		Valid:  make([]ValidRow, 0, len(rows)),
		Errors: make([]*models.RowError, 0),
	}

	for i, row := range rows {
		n := DisplayRow(i)
		if i < len(lines) && lines[i] > 0 {
			n = lines[i]
		}

		record, err := ValidateRow(row, profile)
		if err != nil {
			out.Errors = append(out.Errors, &models.RowError{Row: n, Err: err})
			continue
		}
		out.Valid = append(out.Valid, ValidRow{Row: n, Record: record})
	}

	return out
}

// ToRawRow renders a measurement back into the raw row shape accepted by
// ValidateRow. Validating the result yields an equal record.
func ToRawRow(m *models.Measurement, profile Profile) RawRow {
	row := RawRow{
		FieldDate:            m.MeasuredOn.Format(dateLayout),
		FieldValue:           m.Value,
		profile.Point.Field(): m.Point,
	}
	if m.Parameter != nil {
		row[FieldParameter] = *m.Parameter
	}
	if m.SubType != nil {
		row[FieldSubType] = *m.SubType
	}
	if m.Note != nil {
		row[FieldNote] = *m.Note
	}
	return row
}
