package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"dompet/internal/core"
	"dompet/internal/log"
	"dompet/internal/timeline"
)

// render executes a named template into a buffer first so a template error
// never leaves a half-written page behind.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	body, err := s.renderBytes(name, data)
	if err != nil {
		s.slog.LogError(r.Context(), "Template render failed", err, log.ComponentTemplate, log.OpRender,
			log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent(), r.Referer()))
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (s *Server) renderBytes(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func (s *Server) backendContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, backendTimeout)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "index_page", struct{ Year int }{s.now().In(s.location).Year()})
}

type summaryView struct {
	core.Summary
	Top []core.Transaction
}

type dashboardView struct {
	Summary   summaryView
	Income    listView
	Expense   listView
	Assistant assistantView
	Today     string
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.backendContext(r.Context())
	defer cancel()

	var (
		totals    ledger
		responses []core.AIResponse
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		totals, err = s.loadLedger(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		responses, err = s.listAIResponses(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.writeUIError(w, r, log.OpRead, err)
		return
	}

	view := timeline.NewView(core.AIResponseRecords(responses))
	s.render(w, r, http.StatusOK, "dashboard_page", dashboardView{
		Summary:   totals.summary(),
		Income:    s.listView(totals.income),
		Expense:   s.listView(totals.expense),
		Assistant: s.assistantView(view, false),
		Today:     s.now().In(s.location).Format("2006-01-02"),
	})
}

// handleSummary re-renders the totals after a write.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.backendContext(r.Context())
	defer cancel()

	totals, err := s.loadLedger(ctx)
	if err != nil {
		s.writeUIError(w, r, log.OpRead, err)
		return
	}
	s.render(w, r, http.StatusOK, "summary", totals.summary())
}

// ledger holds the newest page of each type for the listing panels and
// every transaction for the totals.
type ledger struct {
	income, expense core.TransactionPage
	items           []core.Transaction
}

func (l ledger) summary() summaryView {
	return summaryView{Summary: core.Summarize(l.items), Top: core.TopExpenses(l.items, 3)}
}

// loadLedger walks every page of incomes and of expenses concurrently.
func (s *Server) loadLedger(ctx context.Context) (ledger, error) {
	var (
		l                 ledger
		incomes, expenses []core.Transaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		l.income, incomes, err = s.allOfType(gctx, core.Income)
		return err
	})
	g.Go(func() error {
		var err error
		l.expense, expenses, err = s.allOfType(gctx, core.Expense)
		return err
	})
	if err := g.Wait(); err != nil {
		return ledger{}, err
	}
	l.items = slices.Concat(incomes, expenses)
	return l, nil
}

// allOfType returns the first page of typ and the items of every page.
func (s *Server) allOfType(ctx context.Context, typ core.TransactionType) (core.TransactionPage, []core.Transaction, error) {
	var (
		first core.TransactionPage
		items []core.Transaction
	)
	for page := 1; ; page++ {
		p, err := s.listTransactions(ctx, ListParams{Type: typ, Page: page})
		if err != nil {
			return core.TransactionPage{}, nil, err
		}
		if page == 1 {
			first = p
		}
		items = append(items, p.Items...)
		if len(p.Items) == 0 || page >= p.TotalPages {
			return first, items, nil
		}
	}
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.started).Round(time.Second).String(),
	})
}

// handleReady checks the backend and reports cache and rate limiter state.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if err := s.store.Ping(ctx); err != nil {
		checks["backend"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["backend"] = "ok"
	}

	checks["cache"] = map[string]any{
		"transaction_pages": s.pageCache.Size(),
		"ai_timeline":       s.aiCache.Size(),
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeUIError logs err and answers with an error fragment plus a
// notification event.
func (s *Server) writeUIError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := errorStatus(err)
	s.logFailure(r, op, status, err)
	msg := userMessage(err)
	ErrorResponse(status, msg).TriggerErrorNotification(msg).Write(w)
}

func (s *Server) logFailure(r *http.Request, op string, status int, err error) {
	ctx := r.Context()
	if status >= http.StatusInternalServerError {
		s.slog.LogError(ctx, "Request failed", err, log.ComponentHTTP, op,
			log.NewFields().WithHTTPResponse(status, 0, false))
		return
	}
	log.FromContext(ctx).WarnContext(ctx, "Request rejected",
		log.FieldOperation, op,
		log.FieldStatusCode, status,
		log.FieldError, err.Error())
}
