package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/zonewarden/server/internal/auth"
	"github.com/zonewarden/server/internal/config"
	"github.com/zonewarden/server/internal/database"
	"github.com/zonewarden/server/internal/geometry"
	"github.com/zonewarden/server/internal/logging"
	"github.com/zonewarden/server/internal/mapview"
	"github.com/zonewarden/server/internal/overlap"
)

// overlapRequest is the body of an overlap check, shared by the HTTP and
// websocket surfaces. Omitting zones checks against the stored zones.
type overlapRequest struct {
	Geometry  geometry.Payload `json:"geometry" validate:"required"`
	Zones     []geometry.Zone  `json:"zones,omitempty"`
	ExcludeID geometry.ZoneID  `json:"exclude_id,omitempty" validate:"max=128"`
}

func (req overlapRequest) toCheck(source string) overlap.CheckRequest {
	return overlap.CheckRequest{
		Geometry:  req.Geometry,
		Zones:     req.Zones,
		ExcludeID: req.ExcludeID,
		Source:    source,
	}
}

// newValidator returns a validator that treats a geometry payload as present
// whenever the caller sent anything other than null.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		p, ok := field.Interface().(geometry.Payload)
		if !ok || p.IsZero() {
			return nil
		}
		return p.Kind().String()
	}, geometry.Payload{})
	return v
}

// OverlapHandlers serves overlap checks over HTTP.
type OverlapHandlers struct {
	service   *overlap.Service
	validator *validator.Validate
	logger    logging.Logger
	config    *config.Config
}

// NewOverlapHandlers creates a new OverlapHandlers instance.
func NewOverlapHandlers(service *overlap.Service, cfg *config.Config, logger logging.Logger) *OverlapHandlers {
	if logger == nil {
		logger = logging.Noop()
	}
	return &OverlapHandlers{
		service:   service,
		validator: newValidator(),
		logger:    logger,
		config:    cfg,
	}
}

// CheckOverlaps handles POST /api/zones/overlaps
func (h *OverlapHandlers) CheckOverlaps(w http.ResponseWriter, r *http.Request) {
	result, ok := h.check(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, r, http.StatusOK, result)
}

// CheckOverlapsGeoJSON handles POST /api/zones/overlaps/geojson
func (h *OverlapHandlers) CheckOverlapsGeoJSON(w http.ResponseWriter, r *http.Request) {
	result, ok := h.check(w, r)
	if !ok {
		return
	}
	fc := mapview.Build(result.Candidate, result.Conflicts)
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		h.logger.Error(r.Context(), "failed to encode response", logging.Err(err))
	}
}

// CheckStoredZone handles GET /api/zones/{id}/overlaps
func (h *OverlapHandlers) CheckStoredZone(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		h.respondWithError(w, r, http.StatusBadRequest, "Invalid zone ID")
		return
	}
	result, err := h.service.CheckStoredZone(r.Context(), id, overlap.SourceHTTP)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, result)
}

// ListConflicts handles GET /api/zones/conflicts
func (h *OverlapHandlers) ListConflicts(w http.ResponseWriter, r *http.Request) {
	if !h.config.Overlap.AuditEnabled {
		h.respondWithError(w, r, http.StatusNotFound, "Zone audit is disabled")
		return
	}
	result, err := h.service.AuditStored(r.Context())
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}

	fields := []logging.Field{logging.Int("pairs", result.Count), logging.Int("zones", result.Zones)}
	if claims, ok := auth.GetClaims(r); ok {
		fields = append(fields, logging.Any("user_id", claims.UserID), logging.String("username", claims.Username))
	}
	h.logger.Info(r.Context(), "zone audit served", fields...)
	h.writeJSON(w, r, http.StatusOK, result)
}

// Health handles GET /health
func (h *OverlapHandlers) Health(w http.ResponseWriter, r *http.Request) {
	store := "disabled"
	if h.service.HasZoneSource() {
		store = "enabled"
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status":     "ok",
		"service":    "zonewarden-server",
		"zone_store": store,
	})
}

func (h *OverlapHandlers) check(w http.ResponseWriter, r *http.Request) (*overlap.CheckResult, bool) {
	if limit := h.config.Overlap.MaxMessageBytes; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	var req overlapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondWithError(w, r, http.StatusRequestEntityTooLarge, "Request body too large")
			return nil, false
		}
		h.respondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondWithError(w, r, http.StatusBadRequest, validationMessage(err))
		return nil, false
	}

	result, err := h.service.Check(r.Context(), req.toCheck(overlap.SourceHTTP))
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return nil, false
	}
	return result, true
}

func (h *OverlapHandlers) respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := serviceErrorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "overlap request failed", logging.Err(err))
	}
	h.respondWithError(w, r, status, message)
}

// serviceErrorStatus maps service errors to an HTTP status and a message
// safe to show callers.
func serviceErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, overlap.ErrNoZoneSource):
		return http.StatusUnprocessableEntity, "zones must be supplied: no zone store is configured"
	case errors.Is(err, database.ErrZoneNotFound):
		return http.StatusNotFound, "Zone not found"
	case errors.Is(err, overlap.ErrTooManyZones):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, database.ErrZonesTableMissing):
		return http.StatusServiceUnavailable, "Zone store is not initialized"
	default:
		return http.StatusInternalServerError, "Failed to load zones"
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", field))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s is invalid", field))
		}
	}
	return strings.Join(parts, "; ")
}

func (h *OverlapHandlers) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error(r.Context(), "failed to encode response", logging.Err(err))
	}
}

func (h *OverlapHandlers) respondWithError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	h.writeJSON(w, r, statusCode, map[string]string{
		"error": message,
	})
}
