package http

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"dompet/internal/api"
	"dompet/internal/assistant"
	"dompet/internal/core"
	"dompet/internal/ports"
	"dompet/internal/remote"
	"dompet/internal/timeline"
)

var templateFuncs = template.FuncMap{
	"rupiah":      func(m core.Money) string { return m.String() },
	"markdown":    assistant.Render,
	"typeLabel":   typeLabel,
	"amountField": func(field, value string) amountView { return amountView{Field: field, Value: value} },
}

func typeLabel(t core.TransactionType) string {
	switch t {
	case core.Income:
		return "Pemasukan"
	case core.Expense:
		return "Pengeluaran"
	default:
		return "Semua"
	}
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(result)
}

// errorStatus maps a backend or validation error to an HTTP status code.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ports.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrDescriptionTooLong),
		errors.Is(err, core.ErrInvalidType),
		errors.Is(err, ErrInvalidDate),
		errors.Is(err, timeline.ErrUnknownDate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, api.ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, remote.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// userMessage is the text shown in the UI for err.
func userMessage(err error) string {
	switch {
	case errors.Is(err, ports.ErrNotFound):
		return "Transaksi tidak ditemukan."
	case errors.Is(err, core.ErrInvalidAmount):
		return "Jumlah harus berupa angka lebih dari 0."
	case errors.Is(err, core.ErrEmptyDescription):
		return "Deskripsi wajib diisi."
	case errors.Is(err, core.ErrDescriptionTooLong):
		return "Deskripsi terlalu panjang."
	case errors.Is(err, core.ErrInvalidType):
		return "Jenis transaksi tidak valid."
	case errors.Is(err, ErrInvalidDate):
		return "Tanggal tidak valid."
	case errors.Is(err, remote.ErrUpstream):
		return "Server keuangan tidak merespons dengan benar."
	case errors.Is(err, context.DeadlineExceeded):
		return "Permintaan terlalu lama, coba lagi."
	default:
		return "Terjadi kesalahan, coba lagi."
	}
}

func isAPI(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/")
}

// writeAPIJSON wraps data in a success envelope.
func writeAPIJSON(w http.ResponseWriter, status int, data any) {
	env, err := api.Success(data)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "encode response")
		return
	}
	writeEnvelope(w, status, env)
}

// writeAPIError sends a fail envelope for client errors and an error
// envelope otherwise.
func writeAPIError(w http.ResponseWriter, status int, message string) {
	kind := api.StatusErr
	if status < http.StatusInternalServerError {
		kind = api.StatusFail
	}
	writeEnvelope(w, status, api.Failure(kind, message))
}

func writeEnvelope(w http.ResponseWriter, status int, env api.Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// clockTime shows the time of day of a record timestamp in loc, or "" when
// the timestamp does not parse.
func clockTime(timestamp string, loc *time.Location) string {
	t, err := api.ParseTime(timestamp)
	if err != nil {
		return ""
	}
	return t.In(loc).Format("15:04:05")
}
