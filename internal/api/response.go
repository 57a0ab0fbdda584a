package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Veraticus/nourish/internal/common"
	"github.com/Veraticus/nourish/internal/features"
	"github.com/Veraticus/nourish/internal/storage"
)

type apiError struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"message": message})
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiError{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}

func writeDomainError(w http.ResponseWriter, err error) {
	var fe *features.FieldError
	if errors.As(err, &fe) {
		writeJSON(w, http.StatusBadRequest, apiError{
			Status:  "error",
			Code:    "INVALID_INPUT",
			Message: fe.Error(),
			Field:   fe.Field,
		})
		return
	}
	status, code, msg := mapDomainError(err)
	writeError(w, status, code, msg)
}

func mapDomainError(err error) (int, string, string) {
	switch {
	case errors.Is(err, common.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT", err.Error()
	case errors.Is(err, storage.ErrInvalidFilter), errors.Is(err, storage.ErrInvalidDateRange):
		return http.StatusBadRequest, "INVALID_QUERY", err.Error()
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found"
	case errors.Is(err, common.ErrModelUnavailable), errors.Is(err, common.ErrSchemaMismatch):
		return http.StatusServiceUnavailable, "MODEL_UNAVAILABLE", "model unavailable"
	case errors.Is(err, common.ErrStoreClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "service unavailable"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}
