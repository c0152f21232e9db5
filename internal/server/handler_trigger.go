package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"notra/internal/logging"
	"notra/internal/trigger"
)

const maxTriggerBodySize = 1 << 20 // 1 MiB

// TriggerHandler exposes trigger CRUD over the trigger service.
type TriggerHandler struct {
	service *trigger.Service
	logger  logging.Logger
}

// NewTriggerHandler creates a trigger API handler.
func NewTriggerHandler(service *trigger.Service, logger logging.Logger) *TriggerHandler {
	return &TriggerHandler{
		service: service,
		logger:  logging.OrNop(logger),
	}
}

// TriggerRequest is the payload for create and update.
type TriggerRequest struct {
	Name           string                 `json:"name,omitempty"`
	SourceType     string                 `json:"sourceType"`
	SourceConfig   trigger.SourceConfig   `json:"sourceConfig"`
	Targets        trigger.Targets        `json:"targets"`
	OutputType     string                 `json:"outputType"`
	OutputConfig   map[string]any         `json:"outputConfig,omitempty"`
	Enabled        *bool                  `json:"enabled,omitempty"`
	LookbackWindow trigger.LookbackWindow `json:"lookbackWindow,omitempty"`
}

func (r *TriggerRequest) toInput() trigger.Input {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return trigger.Input{
		Name:           r.Name,
		SourceType:     trigger.SourceType(r.SourceType),
		SourceConfig:   r.SourceConfig,
		Targets:        r.Targets,
		OutputType:     trigger.OutputType(r.OutputType),
		OutputConfig:   r.OutputConfig,
		Enabled:        enabled,
		LookbackWindow: r.LookbackWindow,
	}
}

// HandleCreate handles POST /api/triggers.
func (h *TriggerHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	orgID := organizationID(r)
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ORGANIZATION", "X-Organization-Id header is required")
		return
	}

	req, ok := h.decodeTriggerRequest(w, r)
	if !ok {
		return
	}

	created, err := h.service.CreateTrigger(r.Context(), orgID, req.toInput())
	if err != nil {
		h.logFailure(r, "create", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// HandleUpdate handles PUT /api/triggers/{id}.
func (h *TriggerHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	orgID := organizationID(r)
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ORGANIZATION", "X-Organization-Id header is required")
		return
	}
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ID", "trigger id is required")
		return
	}

	req, ok := h.decodeTriggerRequest(w, r)
	if !ok {
		return
	}

	updated, err := h.service.UpdateTrigger(r.Context(), orgID, id, req.toInput())
	if err != nil {
		h.logFailure(r, "update", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// HandleDelete handles DELETE /api/triggers/{id}.
func (h *TriggerHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	orgID := organizationID(r)
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ORGANIZATION", "X-Organization-Id header is required")
		return
	}
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ID", "trigger id is required")
		return
	}

	if err := h.service.DeleteTrigger(r.Context(), orgID, id); err != nil {
		h.logFailure(r, "delete", err)
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TriggerHandler) decodeTriggerRequest(w http.ResponseWriter, r *http.Request) (*TriggerRequest, bool) {
	body := http.MaxBytesReader(w, r.Body, maxTriggerBodySize)
	defer body.Close()

	var req TriggerRequest
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&req); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "EMPTY_BODY", "request body is empty")
		case errors.As(err, &syntaxErr):
			writeError(w, http.StatusBadRequest, "INVALID_JSON",
				fmt.Sprintf("invalid JSON at position %d", syntaxErr.Offset))
		case errors.As(err, &typeErr):
			writeError(w, http.StatusBadRequest, "INVALID_FIELD",
				fmt.Sprintf("invalid value for field %q", typeErr.Field))
		case errors.As(err, &maxBytesErr):
			writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body too large")
		default:
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		return nil, false
	}

	// Ensure there are no extra JSON tokens
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "request body must contain a single JSON object")
		return nil, false
	}
	return &req, true
}

func (h *TriggerHandler) logFailure(r *http.Request, op string, err error) {
	if errors.Is(err, trigger.ErrDuplicateTrigger) || errors.Is(err, trigger.ErrInvalidTrigger) {
		return // client errors, not operator concerns
	}
	h.logger.Error("Trigger %s failed (%s %s): %v", op, r.Method, r.URL.Path, err)
}

// organizationID extracts the tenant scoping header. Session-based auth sits
// in front of this service and is out of scope here.
func organizationID(r *http.Request) string {
	return r.Header.Get("X-Organization-Id")
}
