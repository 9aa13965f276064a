package http

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"dompet/internal/core"
	"dompet/internal/log"
	"dompet/internal/timeline"
)

type rowView struct {
	ID          string
	Type        core.TransactionType
	Amount      core.Money
	Description string
	Date        string
}

// dayView is one calendar date of a listing page.
type dayView struct {
	Key   string
	Label string
	Rows  []rowView
}

type listView struct {
	Type       core.TransactionType
	Page       int
	TotalPages int
	Days       []dayView
	// Self reloads this exact page on transactions:refresh.
	Self     string
	PrevURL  string
	NextURL  string
	FirstURL string
}

func listURL(typ core.TransactionType, page int) string {
	q := url.Values{}
	if typ != "" {
		q.Set("type", string(typ))
	}
	q.Set("page", strconv.Itoa(page))
	return "/ui/transactions?" + q.Encode()
}

func (s *Server) listView(p core.TransactionPage) listView {
	v := listView{
		Type:       p.Type,
		Page:       p.Page,
		TotalPages: p.TotalPages,
		Self:       listURL(p.Type, p.Page),
	}
	if p.Page > 1 {
		v.PrevURL = listURL(p.Type, p.Page-1)
		v.FirstURL = listURL(p.Type, 1)
	}
	if p.Page < p.TotalPages {
		v.NextURL = listURL(p.Type, p.Page+1)
	}
	rows := make(map[string]rowView, len(p.Items))
	for _, t := range p.Items {
		rows[t.ID] = rowView{
			ID:          t.ID,
			Type:        t.Type,
			Amount:      t.Amount,
			Description: t.Description,
			Date:        t.Date.In(s.location).Format("15:04"),
		}
	}
	groups, index := timeline.Group(core.TransactionRecords(p.Items, s.location))
	for _, key := range index {
		day := dayView{Key: key, Label: dayLabel(key)}
		bucket, _ := groups.Get(key)
		for _, r := range bucket {
			day.Rows = append(day.Rows, rows[r.ID])
		}
		v.Days = append(v.Days, day)
	}
	return v
}

// dayLabel formats a YYYY-MM-DD key for a section header.
func dayLabel(key string) string {
	d, err := time.Parse(time.DateOnly, key)
	if err != nil {
		return key
	}
	return d.Format("02 Jan 2006")
}

func pageCacheKey(p ListParams) string {
	return fmt.Sprintf("%s|%d", p.Type, p.Page)
}

// listTransactions serves a page from the cache or the backend.
func (s *Server) listTransactions(ctx context.Context, p ListParams) (core.TransactionPage, error) {
	key := pageCacheKey(p)
	if page, ok := s.pageCache.Get(key); ok {
		return page, nil
	}
	page, err := s.store.ListTransactions(ctx, p.Type, p.Page)
	if err != nil {
		return core.TransactionPage{}, err
	}
	s.pageCache.Set(key, page)
	return page, nil
}

func (s *Server) handleTransactionList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.backendContext(r.Context())
	defer cancel()

	page, err := s.listTransactions(ctx, ParseListParams(r.URL.Query()))
	if err != nil {
		s.writeUIError(w, r, log.OpList, err)
		return
	}
	s.render(w, r, http.StatusOK, "transaction_list", s.listView(page))
}

type editView struct {
	Transaction core.Transaction
	Amount      amountView
	Date        string
	Page        int
}

// handleEditTransaction renders the edit form from the stored transaction,
// so reopening the dialog always starts from saved values.
func (s *Server) handleEditTransaction(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.backendContext(r.Context())
	defer cancel()

	t, err := s.store.GetTransaction(ctx, r.PathValue("id"))
	if err != nil {
		s.writeUIError(w, r, log.OpRead, err)
		return
	}
	s.render(w, r, http.StatusOK, "transaction_edit", editView{
		Transaction: t,
		Amount:      amountView{Field: "edit-amount", Value: core.FormatRupiah(t.Amount.Amount)},
		Date:        t.Date.In(s.location).Format("2006-01-02"),
		Page:        ParseListParams(r.URL.Query()).Page,
	})
}

type amountView struct {
	Field string
	Value string
}

// handleFormatAmount regroups the amount field while the user types. field
// is the id of the input being replaced.
func (s *Server) handleFormatAmount(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	field := q.Get("field")
	if field == "" {
		field = "amount"
	}
	s.render(w, r, http.StatusOK, "amount_input", amountView{Field: field, Value: core.FormatInput(q.Get("amount"))})
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	form, ok := s.parseForm(w, r, log.OpCreate)
	if !ok {
		return
	}

	ctx, cancel := s.backendContext(r.Context())
	defer cancel()

	created, err := s.store.Create(ctx, form.Transaction)
	s.metrics.TransactionWrite(log.OpCreate, err)
	if err != nil {
		s.writeUIError(w, r, log.OpCreate, err)
		return
	}
	s.invalidateTransactions()
	s.slog.LogTransactionSaved(ctx, log.OpCreate, created.ID, created.Type.String(), created.Amount.Amount)

	NewHTMXResponse().
		Status(http.StatusCreated).
		TriggerTransactionsRefresh(created.Type, 1).
		TriggerSummaryRefresh().
		TriggerFormReset().
		TriggerSuccessNotification(fmt.Sprintf("%s %s tersimpan", typeLabel(created.Type), created.Amount)).
		Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	form, ok := s.parseForm(w, r, log.OpUpdate)
	if !ok {
		return
	}
	form.Transaction.ID = r.PathValue("id")

	ctx, cancel := s.backendContext(r.Context())
	defer cancel()

	updated, err := s.store.Update(ctx, form.Transaction)
	s.metrics.TransactionWrite(log.OpUpdate, err)
	if err != nil {
		s.writeUIError(w, r, log.OpUpdate, err)
		return
	}
	s.invalidateTransactions()
	s.slog.LogTransactionSaved(ctx, log.OpUpdate, updated.ID, updated.Type.String(), updated.Amount.Amount)

	NewHTMXResponse().
		TriggerTransactionsRefresh(updated.Type, form.Page).
		TriggerSummaryRefresh().
		TriggerModalClose().
		TriggerSuccessNotification("Transaksi diperbarui").
		Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	params := ParseListParams(r.URL.Query())

	ctx, cancel := s.backendContext(r.Context())
	defer cancel()

	err := s.store.Delete(ctx, id)
	s.metrics.TransactionWrite(log.OpDelete, err)
	if err != nil {
		s.writeUIError(w, r, log.OpDelete, err)
		return
	}
	s.invalidateTransactions()
	s.slog.LogTransactionSaved(ctx, log.OpDelete, id, params.Type.String(), 0)

	NewHTMXResponse().
		TriggerTransactionsRefresh(params.Type, params.Page).
		TriggerSummaryRefresh().
		TriggerSuccessNotification("Transaksi dihapus").
		Write(w)
}

func (s *Server) parseForm(w http.ResponseWriter, r *http.Request, op string) (TransactionForm, bool) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		s.logFailure(r, op, http.StatusBadRequest, err)
		BadRequestError("Format permintaan tidak valid.").
			TriggerErrorNotification("Format permintaan tidak valid.").
			Write(w)
		return TransactionForm{}, false
	}
	form, err := ParseTransactionForm(p, s.location, s.now())
	if err != nil {
		s.writeUIError(w, r, op, err)
		return TransactionForm{}, false
	}
	return form, true
}
