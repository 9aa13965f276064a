package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"dompet/internal/api"
	"dompet/internal/core"
	"dompet/internal/log"
	"dompet/internal/timeline"
)

// writeAPIFailure logs err and answers with a fail or error envelope.
// Server-side details stay in the log.
func (s *Server) writeAPIFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := errorStatus(err)
	s.logFailure(r, op, status, err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	writeAPIError(w, status, msg)
}

// decodeTransaction reads an api.Transaction body.
func decodeTransaction(w http.ResponseWriter, r *http.Request) (core.Transaction, error) {
	var wire api.Transaction
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&wire); err != nil {
		return core.Transaction{}, fmt.Errorf("%w: %v", api.ErrMalformed, err)
	}
	wire.Description = sanitizeInput(wire.Description)
	return wire.ToCore()
}

func (s *Server) handleAPIListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.backendContext(r.Context())
	defer cancel()

	page, err := s.listTransactions(ctx, ParseListParams(r.URL.Query()))
	if err != nil {
		s.writeAPIFailure(w, r, log.OpList, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, api.TransactionPage{
		Transactions: api.FromTransactions(page.Items),
		CurrentPage:  page.Page,
		TotalPages:   page.TotalPages,
	})
}

func (s *Server) handleAPIGetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.backendContext(r.Context())
	defer cancel()

	t, err := s.store.GetTransaction(ctx, r.PathValue("id"))
	if err != nil {
		s.writeAPIFailure(w, r, log.OpRead, err)
		return
	}
	wire := api.FromTransaction(t)
	writeAPIJSON(w, http.StatusOK, api.TransactionData{Transaction: &wire})
}

func (s *Server) handleAPICreateTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := decodeTransaction(w, r)
	if err == nil {
		if t.Date.IsZero() {
			t.Date = s.now()
		}
		err = t.Validate()
	}
	if err != nil {
		s.writeAPIFailure(w, r, log.OpCreate, err)
		return
	}

	ctx, cancel := s.backendContext(r.Context())
	defer cancel()

	created, err := s.store.Create(ctx, t)
	s.metrics.TransactionWrite(log.OpCreate, err)
	if err != nil {
		s.writeAPIFailure(w, r, log.OpCreate, err)
		return
	}
	s.invalidateTransactions()
	s.slog.LogTransactionSaved(ctx, log.OpCreate, created.ID, created.Type.String(), created.Amount.Amount)

	wire := api.FromTransaction(created)
	writeAPIJSON(w, http.StatusCreated, api.TransactionData{Transaction: &wire})
}

func (s *Server) handleAPIUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := decodeTransaction(w, r)
	if err == nil {
		err = t.Validate()
	}
	if err != nil {
		s.writeAPIFailure(w, r, log.OpUpdate, err)
		return
	}
	t.ID = r.PathValue("id")

	ctx, cancel := s.backendContext(r.Context())
	defer cancel()

	updated, err := s.store.Update(ctx, t)
	s.metrics.TransactionWrite(log.OpUpdate, err)
	if err != nil {
		s.writeAPIFailure(w, r, log.OpUpdate, err)
		return
	}
	s.invalidateTransactions()
	s.slog.LogTransactionSaved(ctx, log.OpUpdate, updated.ID, updated.Type.String(), updated.Amount.Amount)

	wire := api.FromTransaction(updated)
	writeAPIJSON(w, http.StatusOK, api.TransactionData{Transaction: &wire})
}

func (s *Server) handleAPIDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	ctx, cancel := s.backendContext(r.Context())
	defer cancel()

	err := s.store.Delete(ctx, id)
	s.metrics.TransactionWrite(log.OpDelete, err)
	if err != nil {
		s.writeAPIFailure(w, r, log.OpDelete, err)
		return
	}
	s.invalidateTransactions()
	s.slog.LogTransactionSaved(ctx, log.OpDelete, id, "", 0)

	writeAPIJSON(w, http.StatusOK, struct {
		ID string `json:"id"`
	}{id})
}

// handleAPIListAIResponses returns the flat list together with its grouping
// by date and the newest-first date index.
func (s *Server) handleAPIListAIResponses(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.backendContext(r.Context())
	defer cancel()

	list, err := s.listAIResponses(ctx)
	if err != nil {
		s.writeAPIFailure(w, r, log.OpList, err)
		return
	}
	view := timeline.NewView(core.AIResponseRecords(list))
	writeAPIJSON(w, http.StatusOK, api.AIResponseTimeline{
		AIResponseList: api.AIResponseList{AIResponses: api.FromAIResponses(list)},
		Groups:         view.Groups(),
		Dates:          view.Index(),
	})
}

func (s *Server) handleAPICreateAIResponse(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.backendContext(r.Context())
	defer cancel()

	created, err := s.store.CreateAIResponse(ctx)
	s.metrics.AIResponseCreated("api", err)
	if err != nil {
		s.writeAPIFailure(w, r, log.OpGenerate, err)
		return
	}
	s.rememberAIResponse(created)

	wire := api.FromAIResponse(created)
	writeAPIJSON(w, http.StatusCreated, api.AIResponseCreated{AIResponse: created.Message, Record: &wire})
}
