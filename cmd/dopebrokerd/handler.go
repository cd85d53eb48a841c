package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dopectx/core/internal/app"
	"github.com/dopectx/core/internal/broker"
	"github.com/dopectx/core/internal/coreerr"
	"github.com/dopectx/core/internal/domain"
)

type invokeHandler struct {
	app         *app.App
	workspaceID string
	log         *zap.SugaredLogger
}

// invokeRequest is the wire shape of the request envelope. workspace_id
// is accepted but the broker always resolves against this daemon's own
// bound workspace: one dopebrokerd process serves one workspace, so a
// mismatched workspace_id is rejected rather than silently redirected.
type invokeRequest struct {
	Tool          string         `json:"tool"`
	Arguments     map[string]any `json:"arguments"`
	Role          string         `json:"role"`
	WorkspaceID   string         `json:"workspace_id"`
	UserID        string         `json:"user_id"`
	DeadlineMs    int            `json:"deadline_ms"`
	AttentionHint string         `json:"attention_hint,omitempty"`
}

// invokeResponse is the wire shape of the response envelope.
type invokeResponse struct {
	OK          bool            `json:"ok"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Cost        int             `json:"cost"`
	BackendName string          `json:"backend_name,omitempty"`
	LatencyMs   int64           `json:"latency_ms"`
	Error       *invokeError    `json:"error,omitempty"`
}

type invokeError struct {
	Kind      coreerr.Kind `json:"kind"`
	Message   string       `json:"message"`
	Retryable bool         `json:"retryable"`
}

func (h *invokeHandler) invoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, invokeResponse{
			OK:    false,
			Error: &invokeError{Kind: coreerr.KindValidationError, Message: "malformed request body"},
		})
		return
	}

	if req.Tool == "" || req.Role == "" || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, invokeResponse{
			OK:    false,
			Error: &invokeError{Kind: coreerr.KindValidationError, Message: "tool, role, and user_id are required"},
		})
		return
	}
	if req.WorkspaceID != "" && req.WorkspaceID != h.workspaceID {
		writeJSON(w, http.StatusBadRequest, invokeResponse{
			OK: false,
			Error: &invokeError{
				Kind:    coreerr.KindValidationError,
				Message: "workspace_id does not match this broker's bound workspace",
			},
		})
		return
	}

	ctx := r.Context()
	if req.DeadlineMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.DeadlineMs)*time.Millisecond)
		defer cancel()
	}

	start := time.Now()
	result, err := h.app.Broker.Invoke(ctx, broker.InvokeRequest{
		WorkspaceID: h.workspaceID,
		Role:        domain.Role(req.Role),
		ToolName:    req.Tool,
		Args:        req.Arguments,
	})
	elapsed := time.Since(start)

	if err != nil {
		status, body := invokeErrorResponse(err, elapsed)
		writeJSON(w, status, body)
		return
	}

	writeJSON(w, http.StatusOK, invokeResponse{
		OK:          true,
		Payload:     result.Output,
		Cost:        len(result.Output) / 4,
		BackendName: result.BackendName,
		LatencyMs:   elapsed.Milliseconds(),
	})
}

func invokeErrorResponse(err error, elapsed time.Duration) (int, invokeResponse) {
	ce, ok := err.(*coreerr.CoreError)
	if !ok {
		return http.StatusInternalServerError, invokeResponse{
			OK:        false,
			LatencyMs: elapsed.Milliseconds(),
			Error:     &invokeError{Kind: coreerr.KindInternal, Message: err.Error()},
		}
	}

	status := http.StatusInternalServerError
	switch ce.Kind {
	case coreerr.KindValidationError:
		status = http.StatusBadRequest
	case coreerr.KindNoBackend, coreerr.KindUnavailable:
		status = http.StatusServiceUnavailable
	case coreerr.KindBudgetExceeded:
		status = http.StatusTooManyRequests
	case coreerr.KindBreakRequired:
		status = http.StatusLocked
	case coreerr.KindIllegalTransition:
		status = http.StatusConflict
	case coreerr.KindCancelled:
		status = 499
	}

	return status, invokeResponse{
		OK:        false,
		LatencyMs: elapsed.Milliseconds(),
		Error:     &invokeError{Kind: ce.Kind, Message: ce.Presentational, Retryable: ce.Retryable},
	}
}

func (h *invokeHandler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *invokeHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.app.Session.Stats(r.Context(), h.workspaceID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, invokeResponse{
			OK:    false,
			Error: &invokeError{Kind: coreerr.KindInternal, Message: err.Error()},
		})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
