package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/iconidentify/threadgrabba/internal/service"
)

func TestSubmissionHandler_Submit(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		ack        *service.Ack
		err        error
		wantStatus int
	}{
		{
			name:       "queued",
			body:       `{"url":"https://www.threads.net/@alice/post/ABC123","originator_id":"42"}`,
			ack:        &service.Ack{Status: service.AckQueued, JobID: "j1"},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "already processed",
			body:       `{"url":"https://www.threads.net/@alice/post/ABC123"}`,
			ack:        &service.Ack{Status: service.AckAlreadyProcessed, Title: "Notes"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "unsupported",
			body:       `{"url":"https://example.com/x"}`,
			ack:        &service.Ack{Status: service.AckUnsupported},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "invalid body",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing url",
			body:       `{"url":"  "}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "service error",
			body:       `{"url":"https://www.threads.net/@alice/post/ABC123"}`,
			err:        errors.New("db locked"),
			wantStatus: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockSubmitter{ack: tt.ack, err: tt.err}
			h := NewSubmissionHandler(svc, testLogger())

			req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.Submit(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.ack == nil || tt.err != nil {
				return
			}
			var got service.Ack
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Status != tt.ack.Status {
				t.Errorf("ack status = %s, want %s", got.Status, tt.ack.Status)
			}
		})
	}
}

func TestSubmissionHandler_PassesOriginator(t *testing.T) {
	svc := &mockSubmitter{ack: &service.Ack{Status: service.AckQueued}}
	h := NewSubmissionHandler(svc, testLogger())

	body := `{"url":"https://threads.net/t/XYZ","originator_id":"-100"}`
	h.Submit(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

	if svc.url != "https://threads.net/t/XYZ" || svc.org != "-100" {
		t.Errorf("submitted %q from %q", svc.url, svc.org)
	}
}
