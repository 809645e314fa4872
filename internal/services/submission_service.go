package services

import (
	"context"

	"labdash/internal/models"
	"labdash/internal/repository"
	"labdash/internal/validation"
	"labdash/pkg/logging"
	"labdash/pkg/metrics"
)

// SubmissionService stores single measurements entered through the form
type SubmissionService struct {
	repo    repository.MeasurementRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewSubmissionService creates a new submission service
func NewSubmissionService(repo repository.MeasurementRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *SubmissionService {
	return &SubmissionService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Submit validates one payload and persists it synchronously. A rejected
// payload never reaches storage.
func (s *SubmissionService) Submit(ctx context.Context, category string, payload validation.RawRow) (*models.Measurement, error) {
	profile, err := validation.LookupProfile(category)
	if err != nil {
		s.metrics.RecordSubmission("unknown", "unsupported_category")
		return nil, err
	}
	label := string(profile.Category)

	record, err := validation.ValidateRow(payload, profile)
	if err != nil {
		s.metrics.RecordSubmission(label, "rejected")
		s.logger.Info(ctx, "[SUBMIT_REJECTED] Measurement rejected", logging.Fields{
			"category": label,
			"reason":   err.Error(),
		})
		return nil, err
	}

	if err := s.repo.Create(ctx, record); err != nil {
		s.metrics.RecordSubmission(label, "storage_error")
		s.logger.Error(ctx, "[SUBMIT_STORAGE_ERROR] Measurement could not be stored", logging.Fields{
			"category": label,
		}, err)
		return nil, err
	}

	s.metrics.RecordSubmission(label, "accepted")
	s.logger.Info(ctx, "[SUBMIT_ACCEPTED] Measurement stored", logging.Fields{
		"category": label,
		"id":       record.ID,
		"point":    record.Point,
	})

	return record, nil
}
