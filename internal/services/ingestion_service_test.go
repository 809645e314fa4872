package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"labdash/internal/models"
	"labdash/internal/repository"
	"labdash/internal/validation"
	"labdash/pkg/logging"
	"labdash/pkg/metrics"
)

func testDeps() (*logging.StructuredLogger, *metrics.Collector) {
	logger := logging.NewStructuredLogger("labdash-test", "test", logging.DebugLevel)
	logger.SetOutput(io.Discard)
	return logger, metrics.NewCollectorWithRegistry("test", prometheus.NewRegistry())
}

func newIngestion(repo repository.MeasurementRepository) *IngestionService {
	logger, collector := testDeps()
	return NewIngestionService(repo, logger, collector, 0)
}

func phRow(date, value, code string) validation.RawRow {
	return validation.RawRow{"fecha": date, "dato": value, "pu": code}
}

func TestImportDelimited_EndToEnd(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := newIngestion(repo)

	csv := "fecha,dato,pu\n2025-01-10,145.2,003\n2025-01-11,bad,004\n"
	result, err := svc.ImportDelimited(context.Background(), strings.NewReader(csv), "ph", 0)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, models.CategoryPH, result.Category)
	assert.Equal(t, 2, result.TotalRows)
	assert.Equal(t, 1, result.Attempted)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.ErrorCount)
	require.Len(t, result.Errors, 1)
	assert.True(t, strings.HasPrefix(result.Errors[0], "Row 3: "), result.Errors[0])
	assert.Contains(t, result.Errors[0], "dato")
	assert.Equal(t, "1 records imported (1 errors)", result.Message)
	assert.NotEmpty(t, result.BatchID)

	records := repo.Records()
	require.Len(t, records, 1)
	assert.Equal(t, models.CategoryPH, records[0].Category)
	assert.Equal(t, "003", records[0].Point)
	assert.InDelta(t, 145.2, records[0].Value, 1e-9)
	assert.True(t, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC).Equal(records[0].MeasuredOn))
}

func TestImportRows_PartialSuccess(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := newIngestion(repo)

	rows := []validation.RawRow{
		phRow("2025-01-10", "7.1", "001"),
		phRow("2025-01-11", "7.2", "009"),
		phRow("2025-01-12", "7.3", "002"),
		phRow("", "7.4", "003"),
		phRow("2025-01-14", "7,5", "004"),
	}

	result, err := svc.ImportRows(context.Background(), "ph", rows)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Inserted)
	assert.Equal(t, 2, result.ErrorCount)
	require.Len(t, result.Errors, 2)
	assert.True(t, strings.HasPrefix(result.Errors[0], "Row 3: "))
	assert.True(t, strings.HasPrefix(result.Errors[1], "Row 5: "))
	assert.Contains(t, result.Errors[1], "fecha")
	assert.Equal(t, "3 records imported (2 errors)", result.Message)

	records := repo.Records()
	require.Len(t, records, 3)
	assert.Equal(t, []string{"001", "002", "004"}, []string{records[0].Point, records[1].Point, records[2].Point})
	assert.InDelta(t, 7.5, records[2].Value, 1e-9)
}

func TestImportRows_NoValidRowsReportsEveryError(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := newIngestion(repo)

	rows := make([]validation.RawRow, 12)
	for i := range rows {
		rows[i] = phRow("2025-01-10", "x", "001")
	}

	result, err := svc.ImportRows(context.Background(), "ph", rows)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "no valid rows found", result.Message)
	assert.Equal(t, 0, result.Attempted)
	assert.Equal(t, 12, result.ErrorCount)
	assert.Len(t, result.Errors, 12)
	assert.Equal(t, "Row 2: invalid dato \"x\": not a number", result.Errors[0])
	assert.Empty(t, repo.Records())
}

func TestImportRows_TruncatesReportedErrors(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := newIngestion(repo)

	rows := []validation.RawRow{phRow("2025-01-10", "7.0", "001")}
	for i := 0; i < 12; i++ {
		rows = append(rows, phRow("2025-01-10", "7.0", "000"))
	}

	result, err := svc.ImportRows(context.Background(), "ph", rows)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 12, result.ErrorCount)
	assert.Len(t, result.Errors, DefaultMaxReportedErrors)
	assert.True(t, strings.HasPrefix(result.Errors[0], "Row 3: "))
	assert.True(t, strings.HasPrefix(result.Errors[9], "Row 12: "))
	assert.Equal(t, "1 records imported (12 errors)", result.Message)
}

func TestImportRows_StorageUnreachableBeforeInsert(t *testing.T) {
	repo := repository.NewMemoryRepository()
	repo.Down = true
	svc := newIngestion(repo)

	result, err := svc.ImportRows(context.Background(), "ph", []validation.RawRow{phRow("2025-01-10", "7.0", "001")})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, models.IsStorageUnavailable(err))
}

func TestImportRows_StorageLostMidBatch(t *testing.T) {
	repo := repository.NewMemoryRepository()
	inserts := 0
	repo.BeforeInsert = func(*models.Measurement) error {
		inserts++
		if inserts == 2 {
			return &models.StorageUnavailableError{Op: "insert measurement", Err: errors.New("connection reset")}
		}
		return nil
	}
	svc := newIngestion(repo)

	rows := []validation.RawRow{
		phRow("2025-01-10", "7.0", "001"),
		phRow("2025-01-11", "7.1", "002"),
		phRow("2025-01-12", "7.2", "003"),
		phRow("2025-01-13", "7.3", "004"),
	}

	result, err := svc.ImportRows(context.Background(), "ph", rows)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Attempted)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, []string{
		"Row 3: storage unavailable during insert measurement",
		"storage unavailable: 2 remaining records not inserted",
	}, result.Errors)
	assert.Equal(t, 2, inserts)
	assert.Len(t, repo.Records(), 1)
}

func TestImportRows_RejectedRecordDoesNotStopBatch(t *testing.T) {
	repo := repository.NewMemoryRepository()
	repo.BeforeInsert = func(m *models.Measurement) error {
		if m.Point == "002" {
			return &models.StorageError{Op: "insert measurement", Reason: "numeric field overflow"}
		}
		return nil
	}
	svc := newIngestion(repo)

	rows := []validation.RawRow{
		phRow("2025-01-10", "7.0", "001"),
		phRow("2025-01-11", "99999999", "002"),
		phRow("2025-01-12", "x", "003"),
		phRow("2025-01-13", "7.3", "004"),
	}

	result, err := svc.ImportRows(context.Background(), "ph", rows)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Attempted)
	assert.Equal(t, 2, result.Inserted)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, "Row 3: storage rejected insert measurement: numeric field overflow", result.Errors[0])
	assert.True(t, strings.HasPrefix(result.Errors[1], "Row 4: "))
}

func TestImportSource_OperationLevelFailures(t *testing.T) {
	svc := newIngestion(repository.NewMemoryRepository())
	ctx := context.Background()

	t.Run("unsupported category", func(t *testing.T) {
		result, err := svc.ImportDelimited(ctx, strings.NewReader("fecha,dato,pu\n"), "ozono", 0)
		assert.Nil(t, result)
		var unsupported *models.UnsupportedCategoryError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, "ozono", unsupported.Category)
	})

	t.Run("missing columns", func(t *testing.T) {
		result, err := svc.ImportDelimited(ctx, strings.NewReader("fecha,dato\n2025-01-10,7\n"), "toc", 0)
		assert.Nil(t, result)
		var missing *models.MissingFieldsError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, []string{"pu"}, missing.Fields)
	})

	t.Run("empty source", func(t *testing.T) {
		result, err := svc.ImportDelimited(ctx, strings.NewReader(""), "toc", 0)
		assert.Nil(t, result)
		var source *models.SourceError
		assert.ErrorAs(t, err, &source)
	})
}

func TestImportSpreadsheet_PointSchema(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	cells := [][]interface{}{
		{"Fecha", "Punto", "Parametro", "Dato", "Tipo", "Notas"},
		{45667, "Torre 1", "sio2", 12.5, nil, "ok"},
		{"2025-01-11", "Torre 2", "dureza", "n/a", "vapor", nil},
	}
	for i, row := range cells {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	repo := repository.NewMemoryRepository()
	result, err := newIngestion(repo).ImportSpreadsheet(context.Background(), bytes.NewReader(buf.Bytes()), "fisicoquimica")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Inserted)
	require.Len(t, result.Errors, 1)
	assert.True(t, strings.HasPrefix(result.Errors[0], "Row 3: "))

	records := repo.Records()
	require.Len(t, records, 1)
	m := records[0]
	assert.Equal(t, "Torre 1", m.Point)
	require.NotNil(t, m.Parameter)
	assert.Equal(t, "SIO2", *m.Parameter)
	require.NotNil(t, m.SubType)
	assert.Equal(t, validation.DefaultSubType, *m.SubType)
	require.NotNil(t, m.Note)
	assert.Equal(t, "ok", *m.Note)
	assert.True(t, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC).Equal(m.MeasuredOn))
}

func TestImportSpreadsheet_RowNumbersFollowTheSheet(t *testing.T) {
	tests := []struct {
		name string
		rows [][]interface{}
		want string
	}{
		{
			name: "blank row between data",
			rows: [][]interface{}{
				{"fecha", "dato", "pu"},
				{"2025-01-10", 145.2, "003"},
				nil,
				{"2025-01-11", "bad", "004"},
			},
			want: "Row 4: ",
		},
		{
			name: "blank row above header",
			rows: [][]interface{}{
				nil,
				{"fecha", "dato", "pu"},
				{"2025-01-10", 145.2, "003"},
				{"2025-01-11", "bad", "004"},
			},
			want: "Row 4: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := excelize.NewFile()
			sheet := f.GetSheetName(0)
			for i, row := range tt.rows {
				if row == nil {
					continue
				}
				cell, err := excelize.CoordinatesToCellName(1, i+1)
				require.NoError(t, err)
				require.NoError(t, f.SetSheetRow(sheet, cell, &row))
			}
			buf, err := f.WriteToBuffer()
			require.NoError(t, err)

			result, err := newIngestion(repository.NewMemoryRepository()).ImportSpreadsheet(context.Background(), bytes.NewReader(buf.Bytes()), "ph")
			require.NoError(t, err)

			assert.Equal(t, 1, result.Inserted)
			require.Len(t, result.Errors, 1)
			assert.True(t, strings.HasPrefix(result.Errors[0], tt.want), result.Errors[0])
			assert.Contains(t, result.Errors[0], "dato")
		})
	}
}

func TestImportDelimited_RowNumbersSkipBlankLines(t *testing.T) {
	csv := "fecha,dato,pu\n2025-01-10,145.2,003\n\n,,\n2025-01-11,bad,004\n"

	result, err := newIngestion(repository.NewMemoryRepository()).ImportDelimited(context.Background(), strings.NewReader(csv), "ph", 0)
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.True(t, strings.HasPrefix(result.Errors[0], "Row 5: "), result.Errors[0])
}

func TestErrorStrings(t *testing.T) {
	rowErrs := make([]*models.RowError, 0, 3)
	for i := 2; i < 5; i++ {
		rowErrs = append(rowErrs, &models.RowError{Row: i, Err: fmt.Errorf("bad %d", i)})
	}

	assert.Equal(t, []string{"Row 2: bad 2", "Row 3: bad 3"}, errorStrings(rowErrs, []string{"tail"}, 2))
	assert.Equal(t, []string{"Row 2: bad 2", "Row 3: bad 3", "Row 4: bad 4", "tail"}, errorStrings(rowErrs, []string{"tail"}, 10))
}
