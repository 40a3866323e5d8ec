package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/andreasstove999/agroflow-system/internal/harvest"
	"github.com/andreasstove999/agroflow-system/internal/registry"
)

// Error categories carried in the "error" field of every error body.
const (
	categoryValidation   = "validation"
	categoryNotFound     = "not_found"
	categoryConflict     = "conflict"
	categoryUnauthorized = "unauthorized"
	categoryRateLimited  = "rate_limited"
	categoryInternal     = "internal"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, category, message string) {
	writeJSON(w, status, errorBody{Error: category, Message: message})
}

// writeServiceError maps domain errors to their HTTP category. Unknown errors
// are logged and reported as internal without leaking details.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var ve *registry.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, categoryValidation, ve.Error())
	case errors.Is(err, registry.ErrFarmerNotFound), errors.Is(err, registry.ErrHarvestNotFound):
		writeError(w, http.StatusNotFound, categoryNotFound, err.Error())
	case errors.Is(err, harvest.ErrInvalidTransition):
		writeError(w, http.StatusConflict, categoryConflict, err.Error())
	default:
		logger.Error("request failed",
			zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, categoryInternal, "internal server error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
