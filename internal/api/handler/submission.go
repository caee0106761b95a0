package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iconidentify/threadgrabba/internal/service"
)

// Submitter accepts post links for processing.
type Submitter interface {
	Submit(ctx context.Context, url, originatorID string) (*service.Ack, error)
}

// SubmissionHandler handles link submissions over HTTP.
type SubmissionHandler struct {
	svc    Submitter
	logger *slog.Logger
}

// NewSubmissionHandler creates a new submission handler.
func NewSubmissionHandler(svc Submitter, logger *slog.Logger) *SubmissionHandler {
	return &SubmissionHandler{svc: svc, logger: logger}
}

// SubmitRequest is the JSON request body for a submission. OriginatorID is
// the chat that should receive notifications; empty means none.
type SubmitRequest struct {
	URL          string `json:"url"`
	OriginatorID string `json:"originator_id,omitempty"`
}

// Submit handles POST /api/v1/submissions
func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	ack, err := h.svc.Submit(r.Context(), req.URL, req.OriginatorID)
	if err != nil {
		h.logger.Error("submission failed", "url", req.URL, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to submit url")
		return
	}

	writeJSON(w, ackStatusCode(ack.Status), ack)
}

func ackStatusCode(s service.AckStatus) int {
	switch s {
	case service.AckQueued:
		return http.StatusAccepted
	case service.AckUnsupported:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusOK
	}
}
