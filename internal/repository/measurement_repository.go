package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"labdash/internal/models"
	"labdash/pkg/database"
	"labdash/pkg/logging"
	"labdash/pkg/metrics"
)

// MeasurementRepository provides data access for measurement records
type MeasurementRepository interface {
	// Create persists one record and fills in its ID and CreatedAt
	Create(ctx context.Context, m *models.Measurement) error
	Get(ctx context.Context, category models.Category, id int64) (*models.Measurement, error)
	List(ctx context.Context, filter MeasurementFilter) ([]*models.Measurement, int, error)
	Statistics(ctx context.Context, filter MeasurementFilter) (*models.CategoryStatistics, error)
	Delete(ctx context.Context, category models.Category, id int64) error
	DeleteAll(ctx context.Context, category models.Category) (int64, error)

	HealthCheck(ctx context.Context) error
}

// MeasurementFilter defines filters for querying measurements. Limit <= 0
// returns every matching row.
type MeasurementFilter struct {
	Category  models.Category
	Point     *string
	Parameter *string
	StartDate *time.Time
	EndDate   *time.Time
	Ascending bool
	Limit     int
	Offset    int
}

const measurementColumns = `id, category, sub_type, point, parameter, measured_on, value, note, created_at`

// measurementRepository implements MeasurementRepository
type measurementRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewMeasurementRepository creates a new measurement repository
func NewMeasurementRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) MeasurementRepository {
	return &measurementRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Create inserts a single measurement
func (r *measurementRepository) Create(ctx context.Context, m *models.Measurement) error {
	query := `
		INSERT INTO measurements (category, sub_type, point, parameter, measured_on, value, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + measurementColumns

	var stored models.Measurement
	err := r.db.InsertReturningContext(ctx, "insert_measurement", &stored, query,
		m.Category,
		m.SubType,
		m.Point,
		m.Parameter,
		m.MeasuredOn,
		m.Value,
		m.Note,
	)
	if err != nil {
		return classifyError("insert measurement", err)
	}

	// DATE columns come back at midnight in the session zone
	stored.MeasuredOn = time.Date(stored.MeasuredOn.Year(), stored.MeasuredOn.Month(), stored.MeasuredOn.Day(), 0, 0, 0, 0, time.UTC)
	*m = stored

	r.metrics.RecordStored(string(m.Category))
	r.logger.Debug(ctx, "[REPO_CREATE_MEASUREMENT] Measurement stored", logging.Fields{
		"id":       m.ID,
		"category": m.Category,
		"point":    m.Point,
	})

	return nil
}

// Get retrieves one measurement of a category
func (r *measurementRepository) Get(ctx context.Context, category models.Category, id int64) (*models.Measurement, error) {
	query := `SELECT ` + measurementColumns + ` FROM measurements WHERE category = $1 AND id = $2`

	var m models.Measurement
	err := r.db.GetContext(ctx, "get_measurement", &m, query, category, id)

	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{
			Resource: "measurement",
			ID:       fmt.Sprintf("%s:%d", category, id),
		}
	}

	if err != nil {
		return nil, classifyError("get measurement", err)
	}

	return &m, nil
}

// whereClause renders the filter as a WHERE clause with positional args
func (f MeasurementFilter) whereClause() (string, []interface{}) {
	clause := " WHERE category = $1"
	args := []interface{}{f.Category}
	argNum := 2

	if f.Point != nil {
		clause += " AND point = $" + strconv.Itoa(argNum)
		args = append(args, *f.Point)
		argNum++
	}

	if f.Parameter != nil {
		clause += " AND parameter = $" + strconv.Itoa(argNum)
		args = append(args, *f.Parameter)
		argNum++
	}

	if f.StartDate != nil {
		clause += " AND measured_on >= $" + strconv.Itoa(argNum)
		args = append(args, *f.StartDate)
		argNum++
	}

	if f.EndDate != nil {
		clause += " AND measured_on <= $" + strconv.Itoa(argNum)
		args = append(args, *f.EndDate)
	}

	return clause, args
}

// List retrieves measurements with filtering and pagination
func (r *measurementRepository) List(ctx context.Context, filter MeasurementFilter) ([]*models.Measurement, int, error) {
	where, args := filter.whereClause()

	var totalCount int
	err := r.db.GetContext(ctx, "count_measurements", &totalCount, "SELECT COUNT(*) FROM measurements"+where, args...)
	if err != nil {
		return nil, 0, classifyError("count measurements", err)
	}

	query := "SELECT " + measurementColumns + " FROM measurements" + where
	if filter.Ascending {
		query += " ORDER BY measured_on ASC, created_at ASC, id ASC"
	} else {
		query += " ORDER BY measured_on DESC, created_at DESC, id DESC"
	}

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, filter.Limit, filter.Offset)
	}

	measurements := make([]*models.Measurement, 0)
	err = r.db.SelectContext(ctx, "list_measurements", &measurements, query, args...)
	if err != nil {
		return nil, 0, classifyError("list measurements", err)
	}

	return measurements, totalCount, nil
}

// Statistics summarizes the values of one category
func (r *measurementRepository) Statistics(ctx context.Context, filter MeasurementFilter) (*models.CategoryStatistics, error) {
	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		r.metrics.StatsQueryDuration.Observe(duration.Seconds())
		r.logger.Debug(ctx, "[REPO_STATS] Statistics calculated", logging.Fields{
			"category":    filter.Category,
			"duration_ms": duration.Milliseconds(),
		})
	}()

	where, args := filter.whereClause()
	query := `
		SELECT
			COUNT(*) AS total,
			AVG(value)::float8 AS average,
			MAX(value)::float8 AS maximum,
			MIN(value)::float8 AS minimum,
			STDDEV(value)::float8 AS standard_deviation
		FROM measurements` + where

	var stats models.CategoryStatistics
	if err := r.db.GetContext(ctx, "measurement_statistics", &stats, query, args...); err != nil {
		return nil, classifyError("calculate statistics", err)
	}
	stats.Category = filter.Category

	return &stats, nil
}

// Delete removes one measurement
func (r *measurementRepository) Delete(ctx context.Context, category models.Category, id int64) error {
	result, err := r.db.ExecContext(ctx, "delete_measurement",
		`DELETE FROM measurements WHERE category = $1 AND id = $2`, category, id)
	if err != nil {
		return classifyError("delete measurement", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return classifyError("delete measurement", err)
	}
	if affected == 0 {
		return &models.NotFoundError{
			Resource: "measurement",
			ID:       fmt.Sprintf("%s:%d", category, id),
		}
	}

	return nil
}

// DeleteAll clears every measurement of a category
func (r *measurementRepository) DeleteAll(ctx context.Context, category models.Category) (int64, error) {
	result, err := r.db.ExecContext(ctx, "delete_category",
		`DELETE FROM measurements WHERE category = $1`, category)
	if err != nil {
		return 0, classifyError("clear category", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, classifyError("clear category", err)
	}

	r.logger.Info(ctx, "[REPO_CLEAR_CATEGORY] Category cleared", logging.Fields{
		"category": category,
		"deleted":  affected,
	})

	return affected, nil
}

// HealthCheck performs a repository health check
func (r *measurementRepository) HealthCheck(ctx context.Context) error {
	if err := r.db.HealthCheck(ctx); err != nil {
		return &models.StorageUnavailableError{Op: "health check", Err: err}
	}
	return nil
}
