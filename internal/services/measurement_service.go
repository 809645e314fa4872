package services

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/lib/pq"

	"labdash/internal/models"
	"labdash/internal/repository"
	"labdash/pkg/logging"
	"labdash/pkg/metrics"
)

// MeasurementService handles reads, deletions and exports of stored records
type MeasurementService struct {
	repo    repository.MeasurementRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	now     func() time.Time
}

// NewMeasurementService creates a new measurement service
func NewMeasurementService(repo repository.MeasurementRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *MeasurementService {
	return &MeasurementService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
		now:     time.Now,
	}
}

// GetMeasurements retrieves measurements with filtering
func (s *MeasurementService) GetMeasurements(ctx context.Context, filter repository.MeasurementFilter) ([]*models.Measurement, int, error) {
	return s.repo.List(ctx, filter)
}

// GetMeasurement retrieves one measurement
func (s *MeasurementService) GetMeasurement(ctx context.Context, category models.Category, id int64) (*models.Measurement, error) {
	return s.repo.Get(ctx, category, id)
}

// GetStatistics summarizes one category
func (s *MeasurementService) GetStatistics(ctx context.Context, filter repository.MeasurementFilter) (*models.CategoryStatistics, error) {
	return s.repo.Statistics(ctx, filter)
}

// GetAllStatistics summarizes every category. A failing category is logged
// and skipped so the dashboard still shows the others.
func (s *MeasurementService) GetAllStatistics(ctx context.Context) ([]*models.CategoryStatistics, error) {
	all := make([]*models.CategoryStatistics, 0, len(models.Categories))

	for _, category := range models.Categories {
		stats, err := s.repo.Statistics(ctx, repository.MeasurementFilter{Category: category})
		if err != nil {
			if models.IsStorageUnavailable(err) {
				return nil, err
			}
			s.logger.Error(ctx, "[STATS_CATEGORY_ERROR] Failed to calculate statistics", logging.Fields{
				"category": category,
			}, err)
			continue
		}
		all = append(all, stats)
	}

	return all, nil
}

// DeleteMeasurement removes one record
func (s *MeasurementService) DeleteMeasurement(ctx context.Context, category models.Category, id int64) error {
	if err := s.repo.Delete(ctx, category, id); err != nil {
		return err
	}

	s.logger.Info(ctx, "[DELETE_MEASUREMENT] Measurement deleted", logging.Fields{
		"category": category,
		"id":       id,
	})
	return nil
}

// ClearCategory removes every record of a category
func (s *MeasurementService) ClearCategory(ctx context.Context, category models.Category) (int64, error) {
	return s.repo.DeleteAll(ctx, category)
}

// HealthCheck reports whether storage is reachable
func (s *MeasurementService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}

// ExportSQL writes one INSERT statement per stored record of category to w,
// oldest first. It returns the number of records written.
func (s *MeasurementService) ExportSQL(ctx context.Context, category models.Category, w io.Writer) (int, error) {
	records, _, err := s.repo.List(ctx, repository.MeasurementFilter{
		Category:  category,
		Ascending: true,
	})
	if err != nil {
		return 0, err
	}

	out := bufio.NewWriter(w)
	fmt.Fprintf(out, "-- Export of measurements, category %s\n", category)
	fmt.Fprintf(out, "-- Generated: %s\n\n", s.now().UTC().Format(time.RFC3339))

	for _, m := range records {
		fmt.Fprintf(out,
			"INSERT INTO measurements (category, sub_type, point, parameter, measured_on, value, note) VALUES (%s, %s, %s, %s, %s, %s, %s);\n",
			pq.QuoteLiteral(string(m.Category)),
			nullableLiteral(m.SubType),
			pq.QuoteLiteral(m.Point),
			nullableLiteral(m.Parameter),
			pq.QuoteLiteral(m.MeasuredOn.Format("2006-01-02")),
			strconv.FormatFloat(m.Value, 'f', -1, 64),
			nullableLiteral(m.Note),
		)
	}

	if err := out.Flush(); err != nil {
		return 0, fmt.Errorf("failed to write export: %w", err)
	}

	s.logger.Info(ctx, "[EXPORT_COMPLETE] Category exported", logging.Fields{
		"category": category,
		"records":  len(records),
	})

	return len(records), nil
}

func nullableLiteral(s *string) string {
	if s == nil {
		return "NULL"
	}
	return pq.QuoteLiteral(*s)
}
