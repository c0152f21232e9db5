package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"notra/internal/logging"
	"notra/internal/qstash"
	"notra/internal/workflow"
)

const maxCallbackBodySize = 64 << 10 // 64 KiB

// RunPublisher enqueues workflow runs for asynchronous execution.
type RunPublisher interface {
	Publish(ctx context.Context, req workflow.RunRequest) error
}

// WorkflowHandler receives schedule callbacks and manual run requests and
// hands them to the run queue, or executes inline when no queue is
// configured.
type WorkflowHandler struct {
	runner    *workflow.Runner
	publisher RunPublisher
	verifier  *qstash.SignatureVerifier
	logger    logging.Logger
}

// NewWorkflowHandler creates a workflow API handler. publisher and verifier
// may be nil: without a publisher runs execute inline, without a verifier
// callback signatures are not checked (local development only).
func NewWorkflowHandler(runner *workflow.Runner, publisher RunPublisher, verifier *qstash.SignatureVerifier, logger logging.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		runner:    runner,
		publisher: publisher,
		verifier:  verifier,
		logger:    logging.OrNop(logger),
	}
}

type runClaims struct {
	TriggerID string `json:"triggerId"`
	RunID     string `json:"runId,omitempty"`
}

// HandleScheduleCallback handles POST /api/workflows/run, the URL registered
// with the remote scheduler. The body carries the trigger id placed there at
// schedule registration time.
func (h *WorkflowHandler) HandleScheduleCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "could not read request body")
		return
	}

	if h.verifier != nil {
		token := r.Header.Get("Upstash-Signature")
		if token == "" {
			writeError(w, http.StatusUnauthorized, "MISSING_SIGNATURE", "Upstash-Signature header is required")
			return
		}
		if err := h.verifier.Verify(token, body); err != nil {
			h.logger.Warn("Rejected schedule callback with bad signature: %v", err)
			writeError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed")
			return
		}
	}

	var claims runClaims
	if err := json.Unmarshal(body, &claims); err != nil || claims.TriggerID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "body must carry a triggerId")
		return
	}

	// Scheduler redeliveries carry the same message id, so deriving the run
	// id from it lets a retried delivery resume from its checkpoints instead
	// of repeating completed steps.
	runID := claims.RunID
	if runID == "" {
		if msgID := r.Header.Get("Upstash-Message-Id"); msgID != "" {
			runID = "msg-" + msgID
		}
	}

	h.dispatch(w, r, workflow.RunRequest{RunID: runID, TriggerID: claims.TriggerID})
}

// HandleRunNow handles POST /api/workflows/run-now, the manual "run this
// trigger" entry point. It goes through the same dispatch path as schedule
// callbacks but is authenticated upstream rather than by signature.
func (h *WorkflowHandler) HandleRunNow(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxCallbackBodySize)
	defer body.Close()

	var claims runClaims
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&claims); err != nil || claims.TriggerID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "body must carry a triggerId")
		return
	}

	h.dispatch(w, r, workflow.RunRequest{TriggerID: claims.TriggerID})
}

func (h *WorkflowHandler) dispatch(w http.ResponseWriter, r *http.Request, req workflow.RunRequest) {
	if req.RunID == "" {
		req.RunID = workflow.NewRunID()
	}

	if h.publisher != nil {
		if err := h.publisher.Publish(r.Context(), req); err != nil {
			h.logger.Error("Failed to enqueue run %s for trigger %s: %v", req.RunID, req.TriggerID, err)
			writeError(w, http.StatusInternalServerError, "ENQUEUE_FAILED", "could not enqueue workflow run")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"runId":     req.RunID,
			"triggerId": req.TriggerID,
			"status":    "queued",
		})
		return
	}

	result, err := h.runner.Run(r.Context(), req)
	if err != nil {
		h.logger.Error("Run %s for trigger %s failed: %v", req.RunID, req.TriggerID, err)
		writeError(w, http.StatusInternalServerError, "RUN_FAILED", "workflow run failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
