package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dompet/internal/core"
)

func TestHTMXResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Status(http.StatusOK).
		Body([]byte("test")).
		Write(w)

	if w.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "test" {
		t.Errorf("Body = %q, want %q", w.Body.String(), "test")
	}
	if w.Header().Get("HX-Trigger") != "" {
		t.Error("HX-Trigger should not be set without triggers")
	}
}

func TestHTMXResponseBuilder_Triggers(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		TriggerTransactionsRefresh(core.Expense, 3).
		TriggerFormReset().
		TriggerModalClose().
		TriggerSuccessNotification("Tersimpan").
		Write(w)

	var got map[string]json.RawMessage
	if err := json.Unmarshal([]byte(w.Header().Get("HX-Trigger")), &got); err != nil {
		t.Fatalf("HX-Trigger is not JSON: %v", err)
	}
	for _, name := range []string{"transactions:refresh", "form:reset", "modal:close", "show-notification"} {
		if _, ok := got[name]; !ok {
			t.Errorf("HX-Trigger missing %q", name)
		}
	}

	var refresh struct {
		Type string `json:"type"`
		Page int    `json:"page"`
	}
	if err := json.Unmarshal(got["transactions:refresh"], &refresh); err != nil {
		t.Fatal(err)
	}
	if refresh.Type != "expense" || refresh.Page != 3 {
		t.Errorf("refresh = %+v, want expense page 3", refresh)
	}
	if !strings.Contains(string(got["show-notification"]), `"type":"success"`) {
		t.Errorf("notification = %s", got["show-notification"])
	}
}

func TestHTMXResponseBuilder_CustomHeader(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Header("X-Custom", "value").
		Status(http.StatusCreated).
		Write(w)

	if w.Header().Get("X-Custom") != "value" {
		t.Errorf("Custom header not set")
	}
	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		builder    *HTMXResponseBuilder
		wantStatus int
		wantBody   string
	}{
		{
			name:       "bad request",
			builder:    BadRequestError("Input tidak valid"),
			wantStatus: http.StatusBadRequest,
			wantBody:   `<div class="error" role="alert">Input tidak valid</div>`,
		},
		{
			name:       "not found",
			builder:    NotFoundError("Transaksi tidak ditemukan"),
			wantStatus: http.StatusNotFound,
			wantBody:   `<div class="error" role="alert">Transaksi tidak ditemukan</div>`,
		},
		{
			name:       "bad gateway",
			builder:    ErrorResponse(http.StatusBadGateway, "Server keuangan tidak merespons"),
			wantStatus: http.StatusBadGateway,
			wantBody:   `<div class="error" role="alert">Server keuangan tidak merespons</div>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)

			if w.Code != tt.wantStatus {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantStatus)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("Body = %q, want %q", w.Body.String(), tt.wantBody)
			}
			if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

func TestErrorResponse_EscapesHTML(t *testing.T) {
	w := httptest.NewRecorder()

	BadRequestError("<script>alert('xss')</script>").Write(w)

	body := w.Body.String()
	if strings.Contains(body, "<script>") {
		t.Error("Error response did not escape HTML")
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Error("Error response did not properly escape HTML entities")
	}
}
