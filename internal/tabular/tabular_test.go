package tabular

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"labdash/internal/models"
	"labdash/internal/validation"
)

func TestDelimitedParser_NormalizesHeader(t *testing.T) {
	src := "\ufeff Fecha , DATO,pu ,Notas\n2025-01-10, 145.2 ,003,\n\n2025-01-11,7,004,late\n"

	table, err := (&DelimitedParser{}).Parse(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, []string{"fecha", "dato", "pu", "notas"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, validation.RawRow{"fecha": "2025-01-10", "dato": "145.2", "pu": "003", "notas": ""}, table.Rows[0])
	assert.Equal(t, "late", table.Rows[1]["notas"])
	assert.Equal(t, []int{2, 4}, table.Lines)
}

func TestDelimitedParser_LinesSurviveSkippedRows(t *testing.T) {
	src := "fecha,dato,pu\n2025-01-10,1,001\n,,\n\n2025-01-11,\"multi\nline\",002\n2025-01-12,3,003\n"

	table, err := (&DelimitedParser{}).Parse(strings.NewReader(src))
	require.NoError(t, err)

	require.Len(t, table.Rows, 3)
	assert.Equal(t, []int{2, 5, 7}, table.Lines)
}

func TestDelimitedParser_CustomDelimiterAndShortRows(t *testing.T) {
	src := "fecha;dato;pu\n2025-01-10;150,5\n"

	table, err := (&DelimitedParser{Delimiter: ';'}).Parse(strings.NewReader(src))
	require.NoError(t, err)

	require.Len(t, table.Rows, 1)
	assert.Equal(t, "150,5", table.Rows[0]["dato"])
	v, ok := table.Rows[0]["pu"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestDelimitedParser_Empty(t *testing.T) {
	_, err := (&DelimitedParser{}).Parse(strings.NewReader(""))
	var srcErr *models.SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, "delimited", srcErr.Format)
}

func TestParseDelimiter(t *testing.T) {
	tests := []struct {
		raw     string
		want    rune
		wantErr bool
	}{
		{raw: "", want: ','},
		{raw: ";", want: ';'},
		{raw: "|", want: '|'},
		{raw: `\t`, want: '\t'},
		{raw: "TAB", want: '\t'},
		{raw: "::", wantErr: true},
		{raw: `"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseDelimiter(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func buildWorkbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestSpreadsheetParser_TypedCells(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		{"Fecha", "Punto", "Parametro", "Dato", "PU"},
		{time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), "P1", "sílice", 12.5, 3},
		{},
		{"2025-01-11", "P2", "dureza", "7,5", "004"},
	})

	table, err := (&SpreadsheetParser{}).Parse(buf)
	require.NoError(t, err)

	assert.Equal(t, []string{"fecha", "punto", "parametro", "dato", "pu"}, table.Columns)
	require.Len(t, table.Rows, 2)

	first := table.Rows[0]
	date, err := validation.NormalizeDate(first["fecha"])
	require.NoError(t, err)
	assert.True(t, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC).Equal(date))
	assert.Equal(t, 12.5, first["dato"])
	assert.Equal(t, 3.0, first["pu"])
	assert.Equal(t, "sílice", first["parametro"])

	second := table.Rows[1]
	assert.Equal(t, "7,5", second["dato"])
	assert.Equal(t, "004", second["pu"])

	assert.Equal(t, []int{2, 4}, table.Lines)
}

func TestSpreadsheetParser_HeaderBelowBlankRows(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		{},
		{},
		{"fecha", "dato", "pu"},
		{"2025-01-10", 1, "001"},
		{},
		{"2025-01-11", 2, "002"},
	})

	table, err := (&SpreadsheetParser{}).Parse(buf)
	require.NoError(t, err)

	assert.Equal(t, []string{"fecha", "dato", "pu"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, []int{4, 6}, table.Lines)
}

func TestSpreadsheetParser_Errors(t *testing.T) {
	_, err := (&SpreadsheetParser{}).Parse(strings.NewReader("not a zip"))
	var srcErr *models.SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, "spreadsheet", srcErr.Format)

	_, err = (&SpreadsheetParser{}).Parse(buildWorkbook(t, nil))
	require.ErrorAs(t, err, &srcErr)

	_, err = (&SpreadsheetParser{Sheet: "missing"}).Parse(buildWorkbook(t, [][]any{{"fecha"}}))
	require.ErrorAs(t, err, &srcErr)
}

func TestForFilename(t *testing.T) {
	assert.IsType(t, &SpreadsheetParser{}, ForFilename("datos.XLSX", ','))
	assert.IsType(t, &SpreadsheetParser{}, ForFilename("datos.xlsm", ','))

	p := ForFilename("datos.txt", ';')
	require.IsType(t, &DelimitedParser{}, p)
	assert.Equal(t, ';', p.(*DelimitedParser).Delimiter)

	assert.IsType(t, &DelimitedParser{}, ForFilename("datos", 0))
}
