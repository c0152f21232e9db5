package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"notra/internal/trigger"
)

// errorBody is the structured error envelope returned to API clients.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeServiceError maps trigger service errors onto HTTP statuses. Duplicate
// and validation errors carry actionable messages; everything else surfaces
// as a generic failure with server-side logging upstream.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, trigger.ErrDuplicateTrigger):
		writeError(w, http.StatusConflict, "DUPLICATE_TRIGGER",
			"an automation with this configuration already exists")
	case errors.Is(err, trigger.ErrInvalidTrigger):
		writeError(w, http.StatusBadRequest, "INVALID_TRIGGER", err.Error())
	case errors.Is(err, trigger.ErrTriggerNotFound):
		writeError(w, http.StatusNotFound, "TRIGGER_NOT_FOUND", "trigger not found")
	case errors.Is(err, trigger.ErrPreconditionFailed):
		writeError(w, http.StatusConflict, "CONFLICT", "trigger was modified concurrently; retry")
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
