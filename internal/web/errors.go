package web

// errors.go maps pipeline failures to HTTP responses.
//
// Every error is logged with its technical detail and the request ID,
// then returned to the caller as a JSON body with a human-readable
// reason. Status mapping:
//   - bad input (extension, size, archive, id list)  -> 400 / 413
//   - invalid or missing API key                     -> 401 (middleware)
//   - filtered export with no matching features      -> 404
//   - staging gate occupied past its wait budget     -> 503 + Retry-After
//   - conversion failure on import, misconfiguration -> 500

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/geostage/shpgate/internal/core"
	"github.com/geostage/shpgate/internal/gis"
	"github.com/geostage/shpgate/internal/logging"
)

// ErrorResponse is the JSON structure for error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError logs the technical error and writes the mapped response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := mapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
	)

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "10")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// mapError translates a pipeline error into a status code and a
// caller-facing message. Internal failures keep their detail in the
// log, not the response.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrBadInput):
		msg := err.Error()
		if strings.Contains(msg, "byte limit") {
			return http.StatusRequestEntityTooLarge, msg
		}
		return http.StatusBadRequest, msg

	case errors.Is(err, core.ErrNoFeatures):
		return http.StatusNotFound, "no matching features"

	case errors.Is(err, core.ErrIngestBusy):
		return http.StatusServiceUnavailable, core.ErrIngestBusy.Error()

	case errors.Is(err, core.ErrNothingToInsert),
		errors.Is(err, core.ErrMissingRelation):
		return http.StatusInternalServerError, "service is misconfigured, contact the operator"
	}

	var convErr *gis.ConversionError
	if errors.As(err, &convErr) {
		return http.StatusInternalServerError, "shapefile conversion failed"
	}

	// http.MaxBytesReader aborts multipart parsing with this typed error.
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return http.StatusRequestEntityTooLarge, "file is too large"
	}

	return http.StatusInternalServerError, "internal error"
}

// writeJSON writes a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
