package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"labdash/internal/models"
	"labdash/pkg/logging"
)

// sendJSON sends a JSON response
func (h *MeasurementHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendMessage sends a failure envelope with a fixed message
func (h *MeasurementHandler) sendMessage(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.metrics.RecordAPIError(http.StatusText(statusCode), r.URL.Path)
	h.sendJSON(w, Response{Success: false, Message: message}, statusCode)
}

// sendError maps a service error onto a status code and failure envelope.
// Unclassified errors are logged and reported without their detail.
func (h *MeasurementHandler) sendError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode, errorType := classify(err)

	message := err.Error()
	if statusCode == http.StatusInternalServerError {
		h.logger.Error(r.Context(), "[API_ERROR] Request failed", logging.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}, err)
		message = "internal error"
	}

	h.metrics.RecordAPIError(errorType, r.URL.Path)
	h.sendJSON(w, Response{Success: false, Message: message}, statusCode)
}

func classify(err error) (int, string) {
	var (
		unsupported *models.UnsupportedCategoryError
		source      *models.SourceError
		notFound    *models.NotFoundError
		rejected    *models.StorageError
	)

	switch {
	case errors.As(err, &unsupported):
		return http.StatusBadRequest, "unsupported_category"
	case models.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case errors.As(err, &source):
		return http.StatusBadRequest, "source_error"
	case errors.As(err, &notFound):
		return http.StatusNotFound, "not_found"
	case models.IsStorageUnavailable(err):
		return http.StatusServiceUnavailable, "storage_unavailable"
	case errors.As(err, &rejected):
		return http.StatusUnprocessableEntity, "storage_rejected"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
