package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"

	"labdash/internal/models"
	"labdash/internal/repository"
	"labdash/internal/tabular"
	"labdash/internal/validation"
	"labdash/pkg/logging"
	"labdash/pkg/metrics"
)

// DefaultMaxReportedErrors bounds the error detail returned to callers
const DefaultMaxReportedErrors = 10

// IngestionService imports uploaded tabular sources
type IngestionService struct {
	repo              repository.MeasurementRepository
	logger            *logging.StructuredLogger
	metrics           *metrics.Collector
	maxReportedErrors int
}

// ImportResult summarizes one batch import
type ImportResult struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	BatchID    string          `json:"batch_id"`
	Category   models.Category `json:"category"`
	TotalRows  int             `json:"total_rows"`
	Attempted  int             `json:"attempted"`
	Inserted   int             `json:"inserted"`
	ErrorCount int             `json:"error_count"`
	Errors     []string        `json:"errors"`
	Duration   time.Duration   `json:"-"`
}

// NewIngestionService creates a new ingestion service. maxReportedErrors <= 0
// selects DefaultMaxReportedErrors.
func NewIngestionService(repo repository.MeasurementRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector, maxReportedErrors int) *IngestionService {
	if maxReportedErrors <= 0 {
		maxReportedErrors = DefaultMaxReportedErrors
	}
	return &IngestionService{
		repo:              repo,
		logger:            logger,
		metrics:           metricsCollector,
		maxReportedErrors: maxReportedErrors,
	}
}

// ImportSpreadsheet imports the first worksheet of an xlsx workbook
func (s *IngestionService) ImportSpreadsheet(ctx context.Context, r io.Reader, category string) (*ImportResult, error) {
	return s.ImportSource(ctx, &tabular.SpreadsheetParser{}, r, category)
}

// ImportDelimited imports delimited text; delimiter 0 means comma
func (s *IngestionService) ImportDelimited(ctx context.Context, r io.Reader, category string, delimiter rune) (*ImportResult, error) {
	return s.ImportSource(ctx, &tabular.DelimitedParser{Delimiter: delimiter}, r, category)
}

// ImportSource is the single entry point shared by every source format.
//
// Operation-level failures are returned as errors with no partial result:
// unsupported category, unreadable source, missing required columns and
// storage unreachable before the first insert. Row-level failures are
// collected into the result.
func (s *IngestionService) ImportSource(ctx context.Context, parser tabular.Parser, r io.Reader, category string) (*ImportResult, error) {
	profile, err := validation.LookupProfile(category)
	if err != nil {
		s.metrics.RecordImportError("unsupported_category")
		return nil, err
	}

	table, err := parser.Parse(r)
	if err != nil {
		s.metrics.RecordImportError("source_error")
		s.logger.Warn(ctx, "[IMPORT_SOURCE_ERROR] Source could not be parsed", logging.Fields{
			"category": profile.Category,
			"format":   parser.Format(),
			"error":    err.Error(),
		})
		return nil, err
	}

	if missing := profile.MissingColumns(table.Columns); len(missing) > 0 {
		s.metrics.RecordImportError("missing_columns")
		return nil, &models.MissingFieldsError{Fields: missing}
	}

	s.metrics.ImportBatchRows.Observe(float64(len(table.Rows)))

	return s.importRows(ctx, profile, table.Rows, table.Lines, parser.Format())
}

// ImportRows validates and stores already parsed rows
func (s *IngestionService) ImportRows(ctx context.Context, category string, rows []validation.RawRow) (*ImportResult, error) {
	profile, err := validation.LookupProfile(category)
	if err != nil {
		s.metrics.RecordImportError("unsupported_category")
		return nil, err
	}
	return s.importRows(ctx, profile, rows, nil, "rows")
}

func (s *IngestionService) importRows(ctx context.Context, profile validation.Profile, rows []validation.RawRow, lines []int, format string) (*ImportResult, error) {
	startTime := time.Now()
	batchID := uuid.NewString()
	ctx = logging.WithBatchID(ctx, batchID)
	category := string(profile.Category)
	log := s.logger.WithFields(logging.Fields{"category": category})

	log.Info(ctx, "[IMPORT_START] Starting batch import", logging.Fields{
		"format": format,
		"rows":   len(rows),
		"stage":  "VALIDATION",
	})

	outcome := validation.ValidateRowsAt(rows, lines, profile)
	rowErrors := outcome.Errors

	s.metrics.RecordImportRows(category, "valid", len(outcome.Valid))
	s.metrics.RecordImportRows(category, "invalid", len(outcome.Errors))
	for _, rowErr := range outcome.Errors {
		s.metrics.RecordImportError(errorType(rowErr.Err))
	}

	result := &ImportResult{
		BatchID:   batchID,
		Category:  profile.Category,
		TotalRows: len(rows),
	}

	if len(outcome.Valid) == 0 {
		result.Message = "no valid rows found"
		result.ErrorCount = len(rowErrors)
		result.Errors = errorStrings(rowErrors, nil, len(rowErrors))
		result.Duration = time.Since(startTime)

		log.Warn(ctx, "[IMPORT_NO_VALID_ROWS] Import produced no valid rows", logging.Fields{
			"error_count": result.ErrorCount,
		})
		return result, nil
	}

	if err := s.repo.HealthCheck(ctx); err != nil {
		s.metrics.RecordImportError("storage_unavailable")
		log.Error(ctx, "[IMPORT_STORAGE_UNAVAILABLE] Storage unreachable before insert", logging.Fields{}, err)
		return nil, err
	}

	// One record at a time, in source order. A failed insert does not
	// undo earlier ones.
	var trailing []string
	for i, valid := range outcome.Valid {
		result.Attempted++

		err := s.repo.Create(ctx, valid.Record)
		if err == nil {
			result.Inserted++
			continue
		}

		s.metrics.RecordImportRows(category, "insert_failed", 1)
		rowErrors = append(rowErrors, &models.RowError{Row: valid.Row, Err: err})

		if models.IsStorageUnavailable(err) {
			s.metrics.RecordImportError("storage_unavailable")
			log.Error(ctx, "[IMPORT_STORAGE_LOST] Storage became unavailable mid-batch", logging.Fields{
				"row":      valid.Row,
				"inserted": result.Inserted,
			}, err)
			if remaining := len(outcome.Valid) - i - 1; remaining > 0 {
				trailing = append(trailing, fmt.Sprintf("storage unavailable: %d remaining records not inserted", remaining))
			}
			break
		}

		s.metrics.RecordImportError("storage_rejected")
		log.Warn(ctx, "[IMPORT_INSERT_FAILED] Record rejected by storage", logging.Fields{
			"row":   valid.Row,
			"error": err.Error(),
		})
	}

	s.metrics.RecordImportRows(category, "inserted", result.Inserted)

	sort.SliceStable(rowErrors, func(i, j int) bool { return rowErrors[i].Row < rowErrors[j].Row })

	result.ErrorCount = len(rowErrors) + len(trailing)
	result.Errors = errorStrings(rowErrors, trailing, s.maxReportedErrors)
	result.Success = result.Inserted > 0
	result.Message = fmt.Sprintf("%d records imported", result.Inserted)
	if result.ErrorCount > 0 {
		result.Message += fmt.Sprintf(" (%d errors)", result.ErrorCount)
	}
	result.Duration = time.Since(startTime)
	s.metrics.ImportDuration.Observe(result.Duration.Seconds())

	log.Info(ctx, "[IMPORT_COMPLETE] Batch import completed", logging.Fields{
		"total_rows":  result.TotalRows,
		"attempted":   result.Attempted,
		"inserted":    result.Inserted,
		"error_count": result.ErrorCount,
		"duration_ms": result.Duration.Milliseconds(),
		"stage":       "COMPLETE",
	})

	return result, nil
}

// errorStrings renders row errors followed by trailing messages, keeping at
// most limit entries
func errorStrings(rowErrors []*models.RowError, trailing []string, limit int) []string {
	out := make([]string, 0, min(limit, len(rowErrors)+len(trailing)))
	for _, e := range rowErrors {
		if len(out) == limit {
			return out
		}
		out = append(out, e.Error())
	}
	for _, msg := range trailing {
		if len(out) == limit {
			return out
		}
		out = append(out, msg)
	}
	return out
}

// errorType labels a row error for the import_errors_total metric
func errorType(err error) string {
	var (
		missing *models.MissingFieldsError
		field   *models.FieldError
		code    *models.InvalidCodeError
	)
	switch {
	case errors.As(err, &missing):
		return "missing_fields"
	case errors.As(err, &field):
		return "field_error"
	case errors.As(err, &code):
		return "invalid_code"
	case models.IsStorageUnavailable(err):
		return "storage_unavailable"
	default:
		return "row_error"
	}
}
