package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"labdash/internal/config"
	"labdash/internal/models"
	"labdash/internal/repository"
	"labdash/internal/services"
	"labdash/internal/tabular"
	"labdash/internal/validation"
	"labdash/pkg/logging"
	"labdash/pkg/metrics"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
	maxJSONBody     = 1 << 20
)

// MeasurementHandler handles the measurement API endpoints
type MeasurementHandler struct {
	ingestion    *services.IngestionService
	submission   *services.SubmissionService
	measurements *services.MeasurementService
	logger       *logging.StructuredLogger
	metrics      *metrics.Collector
	imports      config.ImportConfig
}

// NewMeasurementHandler creates a new measurement handler
func NewMeasurementHandler(
	ingestion *services.IngestionService,
	submission *services.SubmissionService,
	measurements *services.MeasurementService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
	imports config.ImportConfig,
) *MeasurementHandler {
	return &MeasurementHandler{
		ingestion:    ingestion,
		submission:   submission,
		measurements: measurements,
		logger:       logger,
		metrics:      metricsCollector,
		imports:      imports,
	}
}

// Response is the envelope shared by every JSON response
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// SubmitMeasurement handles POST /api/measurements/{category}
func (h *MeasurementHandler) SubmitMeasurement(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(w, r)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.submit(w, r, mux.Vars(r)["category"], payload)
}

// SubmitLegacy handles POST /api/guardar, where the category travels inside
// the body as "categoria". Only pu-coded categories were ever posted there.
func (h *MeasurementHandler) SubmitLegacy(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(w, r)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	category, _ := payload.Text(validation.FieldCategory)
	delete(payload, validation.FieldCategory)

	if profile, err := validation.LookupProfile(category); err != nil || profile.Schema != validation.SchemaCoded {
		h.sendError(w, r, &models.UnsupportedCategoryError{Category: category})
		return
	}

	h.submit(w, r, category, payload)
}

func (h *MeasurementHandler) submit(w http.ResponseWriter, r *http.Request, category string, payload validation.RawRow) {
	record, err := h.submission.Submit(r.Context(), category, payload)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendJSON(w, Response{
		Success: true,
		Message: "measurement stored",
		Data:    record,
	}, http.StatusCreated)
}

// ImportMeasurements handles POST /api/measurements/{category}/import
func (h *MeasurementHandler) ImportMeasurements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, h.imports.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.imports.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.sendMessage(w, r, fmt.Sprintf("upload exceeds %d bytes", h.imports.MaxUploadBytes), http.StatusRequestEntityTooLarge)
			return
		}
		h.sendMessage(w, r, "expected a multipart/form-data upload", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		file, header, err = r.FormFile("archivo")
	}
	if err != nil {
		h.sendMessage(w, r, "no file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	delimiter := h.imports.DefaultDelimiter
	if raw := r.FormValue("separator"); raw != "" {
		if delimiter, err = tabular.ParseDelimiter(raw); err != nil {
			h.sendMessage(w, r, err.Error(), http.StatusBadRequest)
			return
		}
	}

	parser := tabular.ForFilename(header.Filename, delimiter)
	result, err := h.ingestion.ImportSource(ctx, parser, file, mux.Vars(r)["category"])
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	status := http.StatusOK
	switch {
	case result.Success:
	case result.Attempted == 0:
		status = http.StatusUnprocessableEntity
	default:
		status = http.StatusInternalServerError
	}

	h.sendJSON(w, result, status)
}

// GetMeasurements handles GET /api/measurements/{category}
func (h *MeasurementHandler) GetMeasurements(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	page, limit := pagination(r)
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	records, total, err := h.measurements.GetMeasurements(r.Context(), filter)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendJSON(w, PaginatedResponse{
		Success:    true,
		Message:    fmt.Sprintf("%d measurements", total),
		Data:       records,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, http.StatusOK)
}

// GetMeasurement handles GET /api/measurements/{category}/{id}
func (h *MeasurementHandler) GetMeasurement(w http.ResponseWriter, r *http.Request) {
	category, id, err := categoryAndID(r)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	record, err := h.measurements.GetMeasurement(r.Context(), category, id)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendJSON(w, Response{Success: true, Message: "measurement found", Data: record}, http.StatusOK)
}

// GetStatistics handles GET /api/measurements/{category}/stats
func (h *MeasurementHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	stats, err := h.measurements.GetStatistics(r.Context(), filter)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendJSON(w, Response{Success: true, Message: "statistics calculated", Data: stats}, http.StatusOK)
}

// GetAllStatistics handles GET /api/stats
func (h *MeasurementHandler) GetAllStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.measurements.GetAllStatistics(r.Context())
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendJSON(w, Response{Success: true, Message: "statistics calculated", Data: stats}, http.StatusOK)
}

// DeleteMeasurement handles DELETE /api/measurements/{category}/{id}
func (h *MeasurementHandler) DeleteMeasurement(w http.ResponseWriter, r *http.Request) {
	category, id, err := categoryAndID(r)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	if err := h.measurements.DeleteMeasurement(r.Context(), category, id); err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendJSON(w, Response{Success: true, Message: "measurement deleted"}, http.StatusOK)
}

// ClearCategory handles DELETE /api/measurements/{category}
func (h *MeasurementHandler) ClearCategory(w http.ResponseWriter, r *http.Request) {
	category, err := models.ParseCategory(mux.Vars(r)["category"])
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	deleted, err := h.measurements.ClearCategory(r.Context(), category)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.logger.Info(r.Context(), "[API_CLEAR_CATEGORY] Category cleared", logging.Fields{
		"category": category,
		"deleted":  deleted,
	})
	h.sendJSON(w, Response{
		Success: true,
		Message: fmt.Sprintf("%d measurements deleted", deleted),
		Data:    map[string]int64{"deleted": deleted},
	}, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *MeasurementHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := h.measurements.HealthCheck(ctx); err != nil {
		h.logger.Warn(ctx, "[HEALTH_CHECK] Storage unreachable", logging.Fields{"error": err.Error()})
		status["status"] = "unhealthy"
		status["database"] = "unreachable"
		h.sendJSON(w, Response{Success: false, Message: "storage unavailable", Data: status}, http.StatusServiceUnavailable)
		return
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, Response{Success: true, Message: "healthy", Data: status}, http.StatusOK)
}

// RegisterRoutes registers all measurement API routes
func (h *MeasurementHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/api/guardar", h.SubmitLegacy).Methods("POST")
	router.HandleFunc("/api/stats", h.GetAllStatistics).Methods("GET")

	const base = "/api/measurements/{category}"
	router.HandleFunc(base, h.SubmitMeasurement).Methods("POST")
	router.HandleFunc(base, h.GetMeasurements).Methods("GET")
	router.HandleFunc(base, h.ClearCategory).Methods("DELETE")
	router.HandleFunc(base+"/import", h.ImportMeasurements).Methods("POST")
	router.HandleFunc(base+"/stats", h.GetStatistics).Methods("GET")
	router.HandleFunc(base+"/{id:[0-9]+}", h.GetMeasurement).Methods("GET")
	router.HandleFunc(base+"/{id:[0-9]+}", h.DeleteMeasurement).Methods("DELETE")
}

func (h *MeasurementHandler) parseFilter(r *http.Request) (repository.MeasurementFilter, error) {
	category, err := models.ParseCategory(mux.Vars(r)["category"])
	if err != nil {
		return repository.MeasurementFilter{}, err
	}

	filter := repository.MeasurementFilter{Category: category}
	query := r.URL.Query()

	if point := query.Get("point"); point != "" {
		filter.Point = &point
	}
	if parameter := query.Get("parameter"); parameter != "" {
		filter.Parameter = &parameter
	}

	dates := []struct {
		key  string
		dest **time.Time
	}{
		{"start_date", &filter.StartDate},
		{"end_date", &filter.EndDate},
	}
	for _, d := range dates {
		raw := query.Get(d.key)
		if raw == "" {
			continue
		}
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return filter, &models.FieldError{Field: d.key, Value: raw, Reason: "expected YYYY-MM-DD"}
		}
		*d.dest = &parsed
	}

	return filter, nil
}

func pagination(r *http.Request) (page, limit int) {
	page, limit = 1, defaultPageSize

	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= maxPageSize {
		limit = l
	}

	return page, limit
}

func categoryAndID(r *http.Request) (models.Category, int64, error) {
	vars := mux.Vars(r)

	category, err := models.ParseCategory(vars["category"])
	if err != nil {
		return "", 0, err
	}

	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		return "", 0, &models.FieldError{Field: "id", Value: vars["id"], Reason: "expected an integer"}
	}

	return category, id, nil
}

// decodePayload reads a JSON object, keeping numbers as json.Number so codes
// and values are normalized by the validators rather than by encoding/json.
func decodePayload(w http.ResponseWriter, r *http.Request) (validation.RawRow, error) {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	decoder.UseNumber()

	var body map[string]any
	if err := decoder.Decode(&body); err != nil {
		return nil, &models.SourceError{Format: "json", Err: err}
	}
	if body == nil {
		return nil, &models.SourceError{Format: "json", Err: errors.New("expected a JSON object")}
	}

	return validation.NewRawRow(body), nil
}
