package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"cardposter/api/dto"
)

type mockExportService struct {
	createResp *dto.ExportJobResponse
	createErr  error
	statusResp *dto.ExportJobResponse
	statusErr  error

	lastJobID string
}

func (m *mockExportService) CreateExport(_ context.Context, traceID string, req *dto.CreateExportRequest) (*dto.ExportJobResponse, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.createResp, nil
}

func (m *mockExportService) GetExportStatus(_ context.Context, jobID string) (*dto.ExportJobResponse, error) {
	m.lastJobID = jobID
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return m.statusResp, nil
}

func validBody() string {
	return `{
		"config": {"title": "My Collection", "cards_per_row": 3, "quality": "high", "format": "png"},
		"cards": [{"id": "base1-4", "name": "Charizard", "image_url": "https://example.com/base1-4.png"}]
	}`
}

func TestExportHandler_Create(t *testing.T) {
	mock := &mockExportService{
		createResp: &dto.ExportJobResponse{ID: "job-123", Status: "pending"},
	}
	handler := NewExportHandler(mock, zaptest.NewLogger(t))

	req := httptest.NewRequest(http.MethodPost, "/exports", strings.NewReader(validBody()))
	w := httptest.NewRecorder()
	handler.Create(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp dto.ExportJobResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.ID != "job-123" || resp.Status != "pending" {
		t.Errorf("Unexpected response: %+v", resp)
	}
}

func TestExportHandler_CreateInvalidBody(t *testing.T) {
	handler := NewExportHandler(&mockExportService{}, zaptest.NewLogger(t))

	cases := []struct {
		name string
		body string
	}{
		{"malformed JSON", `{"cards": [`},
		{"unknown field", `{"cards": [{"id": "a"}], "config": {}, "extra": true}`},
		{"no cards", `{"config": {"cards_per_row": 3}, "cards": []}`},
		{"missing card id", `{"config": {"cards_per_row": 3}, "cards": [{"name": "x"}]}`},
		{"bad image url", `{"config": {"cards_per_row": 3}, "cards": [{"id": "a", "image_url": "ftp://host/x.png"}]}`},
		{"bad cards per row", `{"config": {"cards_per_row": 9}, "cards": [{"id": "a"}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/exports", strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			handler.Create(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d: %s", w.Code, w.Body.String())
			}
			var resp dto.ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode error response: %v", err)
			}
			if resp.Error == "" {
				t.Error("Error response missing message")
			}
		})
	}
}

func TestExportHandler_CreateServiceFailure(t *testing.T) {
	mock := &mockExportService{createErr: context.DeadlineExceeded}
	handler := NewExportHandler(mock, zaptest.NewLogger(t))

	req := httptest.NewRequest(http.MethodPost, "/exports", strings.NewReader(validBody()))
	w := httptest.NewRecorder()
	handler.Create(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

func TestExportHandler_Status(t *testing.T) {
	mock := &mockExportService{
		statusResp: &dto.ExportJobResponse{ID: "job-123", Status: "processing"},
	}
	handler := NewExportHandler(mock, zaptest.NewLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/exports/job-123", nil)
	w := httptest.NewRecorder()
	handler.Status(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if mock.lastJobID != "job-123" {
		t.Errorf("Expected service call for job-123, got %q", mock.lastJobID)
	}

	var resp dto.ExportJobResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "processing" {
		t.Errorf("Expected processing status, got %q", resp.Status)
	}
}

func TestExportHandler_StatusNotFound(t *testing.T) {
	mock := &mockExportService{statusErr: dto.ErrJobNotFound}
	handler := NewExportHandler(mock, zaptest.NewLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/exports/unknown", nil)
	w := httptest.NewRecorder()
	handler.Status(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestExportHandler_StatusBadID(t *testing.T) {
	handler := NewExportHandler(&mockExportService{}, zaptest.NewLogger(t))

	for _, path := range []string{"/exports/", "/exports/a/b"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		handler.Status(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", path, w.Code)
		}
	}
}
