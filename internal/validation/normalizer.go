package validation

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"labdash/internal/models"
)

const dateLayout = "2006-01-02"

// dateLayouts are tried in order. Slash and dash forms with the day first
// follow the way the laboratory writes dates.
var dateLayouts = []string{
	dateLayout,
	"2006/01/02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"20060102",
}

// Excel serial day numbers outside this window are not treated as dates
const (
	minExcelSerial = 1
	maxExcelSerial = 2958465 // 9999-12-31
)

// Serials written as text (or sent as JSON numbers) are only accepted within
// 1990-01-01..2099-12-31, so a bare year or a date with its separators
// stripped fails instead of landing in another century.
const (
	minTextSerial = 32874
	maxTextSerial = 73050
)

var (
	decimalPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)
	serialPattern  = regexp.MustCompile(`^\d{5}(\.\d+)?$`)
)

// Fields is the scalar part of a row after normalization
type Fields struct {
	Date      time.Time
	Value     float64
	Parameter *string
	SubType   *string
	Note      *string
}

// NormalizeFields parses the scalar fields of row. It checks fecha first,
// then dato, and returns a *models.FieldError naming the first bad field.
// Site identifiers are left to the profile's PointRule.
func NormalizeFields(row RawRow, profile Profile) (*Fields, error) {
	date, err := NormalizeDate(row[FieldDate])
	if err != nil {
		return nil, err
	}

	value, err := NormalizeValue(row[FieldValue])
	if err != nil {
		return nil, err
	}

	fields := &Fields{
		Date:  date,
		Value: value,
		Note:  optionalText(row, FieldNote, FieldNotes),
	}

	if profile.Schema == SchemaPoint {
		fields.Parameter = upperText(row, FieldParameter)
		fields.SubType = lowerText(row, FieldSubType)
		if fields.SubType == nil {
			subType := DefaultSubType
			fields.SubType = &subType
		}
	}

	return fields, nil
}

// NormalizeDate converts a raw fecha into a calendar date at UTC midnight
func NormalizeDate(raw any) (time.Time, error) {
	if t, ok := raw.(time.Time); ok && !t.IsZero() {
		return truncateDate(t), nil
	}

	if _, isJSON := raw.(json.Number); !isJSON {
		if n, ok := numeric(raw); ok {
			return excelSerialDate(raw, n)
		}
	}

	text, ok := rawText(raw)
	if !ok {
		return time.Time{}, &models.FieldError{Field: FieldDate, Reason: "date is empty"}
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return truncateDate(t), nil
		}
	}

	if serialPattern.MatchString(text) {
		if n, err := strconv.ParseFloat(text, 64); err == nil && n >= minTextSerial && n <= maxTextSerial {
			return excelSerialDate(raw, n)
		}
	}

	return time.Time{}, &models.FieldError{Field: FieldDate, Value: text, Reason: "not a recognized date"}
}

func excelSerialDate(raw any, serial float64) (time.Time, error) {
	text, _ := rawText(raw)
	if serial < minExcelSerial || serial > maxExcelSerial {
		return time.Time{}, &models.FieldError{Field: FieldDate, Value: text, Reason: "serial date out of range"}
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, &models.FieldError{Field: FieldDate, Value: text, Reason: "not a recognized date"}
	}
	return truncateDate(t), nil
}

func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NormalizeValue parses dato. Either '.' or ',' is accepted as the decimal
// separator; anything else left over after the substitution is rejected.
func NormalizeValue(raw any) (float64, error) {
	if n, ok := numeric(raw); ok {
		text, _ := rawText(raw)
		if math.IsInf(n, 0) {
			return 0, &models.FieldError{Field: FieldValue, Value: text, Reason: "value must be finite"}
		}
		return n, nil
	}

	text, ok := rawText(raw)
	if !ok {
		return 0, &models.FieldError{Field: FieldValue, Reason: "value is empty"}
	}

	candidate := strings.ReplaceAll(text, ",", ".")
	if !decimalPattern.MatchString(candidate) {
		return 0, &models.FieldError{Field: FieldValue, Value: text, Reason: "not a number"}
	}

	value, err := strconv.ParseFloat(candidate, 64)
	if err != nil || math.IsInf(value, 0) {
		return 0, &models.FieldError{Field: FieldValue, Value: text, Reason: "value must be a finite number"}
	}
	return value, nil
}

// optionalText returns the first present field among keys, trimmed
func optionalText(row RawRow, keys ...string) *string {
	for _, k := range keys {
		if text, ok := row.Text(k); ok {
			return &text
		}
	}
	return nil
}

func upperText(row RawRow, key string) *string {
	text, ok := row.Text(key)
	if !ok {
		return nil
	}
	text = strings.ToUpper(text)
	return &text
}

func lowerText(row RawRow, key string) *string {
	text, ok := row.Text(key)
	if !ok {
		return nil
	}
	text = strings.ToLower(text)
	return &text
}
