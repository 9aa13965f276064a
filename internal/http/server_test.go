package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"dompet/internal/adapters"
	"dompet/internal/assistant"
	"dompet/internal/core"
	"dompet/internal/log"
	"dompet/internal/memory"
	"dompet/internal/metrics"
)

var testNow = time.Date(2024, 3, 10, 5, 0, 0, 0, time.UTC)

func seedTransactions() []core.Transaction {
	return []core.Transaction{
		{ID: "tx-1", Type: core.Income, Amount: core.Money{Amount: 1_500_000}, Description: "Gaji", Date: testNow.Add(-48 * time.Hour)},
		{ID: "tx-2", Type: core.Expense, Amount: core.Money{Amount: 45_000}, Description: "Makan siang", Date: testNow.Add(-time.Hour)},
	}
}

func newTestServer(t *testing.T, store Store) *Server {
	t.Helper()
	if store == nil {
		mem := memory.New(seedTransactions()...).WithClock(func() time.Time { return testNow })
		svc := assistant.NewService(mem, mem, assistant.StaticGenerator{},
			assistant.WithClock(func() time.Time { return testNow }))
		store = adapters.NewLocal(mem, svc, nil)
	}
	srv, err := NewServer(store, Options{
		Logger:  log.New(log.Config{Output: io.Discard}),
		Metrics: metrics.New(),
		Now:     func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if strings.HasPrefix(body, "{") {
		req.Header.Set("Content-Type", "application/json")
	} else if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func triggers(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	raw := rec.Header().Get("HX-Trigger")
	if raw == "" {
		t.Fatalf("HX-Trigger not set (status %d, body %q)", rec.Code, rec.Body.String())
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("HX-Trigger is not JSON: %v", err)
	}
	return out
}

func TestIndexAndHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("index status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `href="/dashboard"`) {
		t.Errorf("index body missing dashboard link")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("security headers not applied")
	}
	if !strings.HasPrefix(rec.Header().Get("X-Request-ID"), "req_") {
		t.Errorf("request id header = %q", rec.Header().Get("X-Request-ID"))
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := do(t, srv, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rec.Code)
		}
	}

	if rec := do(t, srv, http.MethodGet, "/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status=%d", rec.Code)
	}
}

func TestStaticAssets(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/static/app.css", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if rec.Header().Get("Cache-Control") != "public, max-age=3600" {
		t.Errorf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
	}
}

func TestDashboard(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/dashboard", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard status=%d body=%s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	for _, want := range []string{
		"Gaji", "Makan siang",
		"Rp 1.500.000", // income total
		"Rp 1.455.000", // balance
		`id="transactions-income"`, `id="transactions-expense"`,
		`id="assistant"`, "Belum ada insight",
		`value="2024-03-10"`, // create form date defaults to today
	} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
}

// newPagedServer seeds 15 incomes of Rp 1.000 an hour apart and one expense,
// so incomes span two listing pages and two calendar days.
func newPagedServer(t *testing.T) *Server {
	t.Helper()
	var items []core.Transaction
	for i := range 15 {
		items = append(items, core.Transaction{
			ID:          fmt.Sprintf("in-%02d", i),
			Type:        core.Income,
			Amount:      core.Money{Amount: 1_000},
			Description: "Cashback",
			Date:        testNow.Add(-time.Duration(i) * time.Hour),
		})
	}
	items = append(items, core.Transaction{
		ID: "ex-1", Type: core.Expense, Amount: core.Money{Amount: 4_000}, Description: "Parkir", Date: testNow.Add(-30 * time.Minute),
	})
	mem := memory.New(items...)
	return newTestServer(t, adapters.NewLocal(mem, assistant.NewService(mem, mem, assistant.StaticGenerator{}), nil))
}

func TestSummaryCountsEveryPage(t *testing.T) {
	srv := newPagedServer(t)

	for _, path := range []string{"/dashboard", "/ui/summary"} {
		rec := do(t, srv, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rec.Code)
		}
		body := rec.Body.String()
		for _, want := range []string{
			`<dd class="income">Rp 15.000</dd>`,
			`<dd class="expense">Rp 4.000</dd>`,
			`<dd class="balance">Rp 11.000</dd>`,
		} {
			if !strings.Contains(body, want) {
				t.Errorf("%s missing %q", path, want)
			}
		}
	}

	rec := do(t, srv, http.MethodGet, "/dashboard", "")
	if !strings.Contains(rec.Body.String(), "Halaman 1 dari 2") {
		t.Errorf("income panel should still show one page at a time")
	}
}

func TestTransactionListGroupsByDate(t *testing.T) {
	srv := newPagedServer(t)

	rec := do(t, srv, http.MethodGet, "/ui/transactions?type=income&page=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	body := rec.Body.String()
	newer := strings.Index(body, `data-date="2024-03-10"`)
	older := strings.Index(body, `data-date="2024-03-09"`)
	if newer < 0 || older < 0 {
		t.Fatalf("expected a section per day: %s", body)
	}
	if newer > older {
		t.Errorf("newest day should come first")
	}
	for _, want := range []string{"10 Mar 2024", "09 Mar 2024", "<td>05:00</td>", "<td>20:00</td>"} {
		if !strings.Contains(body, want) {
			t.Errorf("list missing %q", want)
		}
	}
	if got := strings.Count(body, `class="day"`); got != 2 {
		t.Errorf("day sections = %d, want 2", got)
	}
	if got := strings.Count(body, `<tr id="tx-in-`); got != 10 {
		t.Errorf("rows = %d, want 10", got)
	}
}

func TestTransactionListPartial(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/ui/transactions?type=expense&page=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Makan siang") || strings.Contains(body, "Gaji") {
		t.Errorf("expense list should only hold expenses: %s", body)
	}
	if !strings.Contains(body, `hx-trigger="transactions:refresh from:body"`) {
		t.Errorf("list does not listen for refresh events")
	}
	if !strings.Contains(body, "Halaman 1 dari 1") {
		t.Errorf("pager missing")
	}
}

func TestCreateTransaction(t *testing.T) {
	srv := newTestServer(t, nil)

	// Warm the cache so the create has something to invalidate.
	if rec := do(t, srv, http.MethodGet, "/ui/transactions?type=expense", ""); rec.Code != http.StatusOK {
		t.Fatalf("list status=%d", rec.Code)
	}

	rec := do(t, srv, http.MethodPost, "/transactions", "type=expense&amount=abc&description=Pulsa")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid amount: expected 422, got %d", rec.Code)
	}
	if _, ok := triggers(t, rec)["show-notification"]; !ok {
		t.Errorf("validation error should notify")
	}

	rec = do(t, srv, http.MethodPost, "/transactions", "type=expense&amount=Rp+25.000&description=Pulsa&date=2024-03-09")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	tr := triggers(t, rec)
	for _, name := range []string{"transactions:refresh", "summary:refresh", "form:reset", "show-notification"} {
		if _, ok := tr[name]; !ok {
			t.Errorf("missing trigger %q", name)
		}
	}
	if !strings.Contains(string(tr["transactions:refresh"]), `"type":"expense"`) {
		t.Errorf("refresh payload = %s", tr["transactions:refresh"])
	}

	rec = do(t, srv, http.MethodGet, "/ui/transactions?type=expense", "")
	if !strings.Contains(rec.Body.String(), "Pulsa") || !strings.Contains(rec.Body.String(), "Rp 25.000") {
		t.Errorf("new transaction not listed after create: %s", rec.Body.String())
	}
}

func TestEditAndUpdateTransaction(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/ui/transactions/tx-1/edit?page=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("edit status=%d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`value="1.500.000"`, `value="Gaji"`, `name="page" value="2"`, `value="income" selected`} {
		if !strings.Contains(body, want) {
			t.Errorf("edit form missing %q", want)
		}
	}

	rec = do(t, srv, http.MethodPut, "/transactions/tx-1", "type=income&amount=2.000.000&description=Gaji+Maret&page=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rec.Code, rec.Body.String())
	}
	tr := triggers(t, rec)
	var refresh struct {
		Type string `json:"type"`
		Page int    `json:"page"`
	}
	if err := json.Unmarshal(tr["transactions:refresh"], &refresh); err != nil {
		t.Fatal(err)
	}
	if refresh.Type != "income" || refresh.Page != 2 {
		t.Errorf("refresh = %+v, want income page 2", refresh)
	}
	if _, ok := tr["modal:close"]; !ok {
		t.Errorf("update should close the dialog")
	}

	// Reopening starts from the saved values.
	rec = do(t, srv, http.MethodGet, "/ui/transactions/tx-1/edit", "")
	if !strings.Contains(rec.Body.String(), `value="2.000.000"`) {
		t.Errorf("edit form not reset to stored amount: %s", rec.Body.String())
	}

	// HTML forms cannot send PUT; POST reaches the same handler.
	rec = do(t, srv, http.MethodPost, "/transactions/missing", "type=income&amount=1&description=x")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: expected 404, got %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/ui/transactions/missing/edit", ""); rec.Code != http.StatusNotFound {
		t.Errorf("edit unknown id: expected 404, got %d", rec.Code)
	}
}

func TestDeleteTransaction(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodDelete, "/transactions/tx-2?type=expense&page=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status=%d", rec.Code)
	}
	if _, ok := triggers(t, rec)["transactions:refresh"]; !ok {
		t.Errorf("delete should refresh lists")
	}

	rec = do(t, srv, http.MethodDelete, "/transactions/tx-2", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", rec.Code)
	}
}

func TestFormatAmount(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		query string
		want  string
	}{
		{"amount=1500000&field=edit-amount", `id="edit-amount"`},
		{"amount=1500000", `value="1.500.000"`},
		{"amount=Rp+20.000x", `value="20.000"`},
		{"amount=99999999999999999", `value="1.000.000.000.000"`},
		{"amount=abc", `value=""`},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, "/ui/format-amount?"+tt.query, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status=%d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body %q missing %q", rec.Body.String(), tt.want)
			}
		})
	}
}

func TestAssistantPanel(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/ui/assistant", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Belum ada insight") {
		t.Fatalf("empty panel: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodPost, "/ui/assistant", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("create status=%d body=%s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, `<option value="2024-03-10" selected>`) {
		t.Errorf("new response date not selected: %s", body)
	}
	if !strings.Contains(body, `class="reveal"`) {
		t.Errorf("new response should be revealed sentence by sentence")
	}
	stored, err := srv.store.ListAIResponses(context.Background())
	if err != nil || len(stored) != 1 {
		t.Fatalf("stored responses = %v, %v", stored, err)
	}
	if whole := string(assistant.Render(stored[0].Message)); !strings.Contains(body, whole) {
		t.Errorf("reveal should end with the whole message rendered once:\nwant %s\nin %s", whole, body)
	}
	if !strings.Contains(body, "<time>05:00:00</time>") {
		t.Errorf("time of day missing")
	}
	if _, ok := triggers(t, rec)["show-notification"]; !ok {
		t.Errorf("create should notify")
	}

	// A plain load renders stored messages whole, and an unknown date falls
	// back to the most recent one.
	rec = do(t, srv, http.MethodGet, "/ui/assistant?date=1999-01-01", "")
	body = rec.Body.String()
	if rec.Code != http.StatusOK || !strings.Contains(body, `<option value="2024-03-10" selected>`) {
		t.Errorf("unknown date should select latest: %s", body)
	}
	if strings.Contains(body, `class="reveal"`) {
		t.Errorf("stored messages should not animate")
	}
	if !strings.Contains(body, "Bulan ini saldo kamu") {
		t.Errorf("stored message not rendered")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	do(t, srv, http.MethodGet, "/ui/transactions?type=income", "")
	do(t, srv, http.MethodPost, "/transactions", "type=income&amount=1000&description=Jual")

	rec := do(t, srv, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`dompet_http_requests_total{code="200",method="GET",route="GET /ui/transactions"} 1`,
		`dompet_transaction_writes_total{op="create",result="ok"} 1`,
		`dompet_cache_misses_total{cache="transaction_pages"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

// failingStore answers every call with err.
type failingStore struct {
	Store
	err error
}

func (f failingStore) ListTransactions(context.Context, core.TransactionType, int) (core.TransactionPage, error) {
	return core.TransactionPage{}, f.err
}

func (f failingStore) ListAIResponses(context.Context) ([]core.AIResponse, error) {
	return nil, f.err
}

func (f failingStore) Ping(context.Context) error { return f.err }

func TestBackendErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"upstream", upstreamErr(), http.StatusBadGateway},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, failingStore{err: tt.err})
			for _, path := range []string{"/ui/transactions", "/ui/assistant", "/dashboard"} {
				if rec := do(t, srv, http.MethodGet, path, ""); rec.Code != tt.want {
					t.Errorf("%s status=%d, want %d", path, rec.Code, tt.want)
				}
			}
			if rec := do(t, srv, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
				t.Errorf("readyz status=%d", rec.Code)
			}
		})
	}
}

func TestConcurrentAIResponsesAllReachCache(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()

	if _, err := srv.listAIResponses(ctx); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			srv.rememberAIResponse(core.AIResponse{
				ID:      fmt.Sprintf("r-%d", i),
				Message: "Hemat",
				Date:    testNow,
			})
		}()
	}
	wg.Wait()

	list, err := srv.listAIResponses(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != n {
		t.Fatalf("cached %d responses, want %d", len(list), n)
	}
	seen := make(map[string]bool, n)
	for _, a := range list {
		seen[a.ID] = true
	}
	if len(seen) != n {
		t.Errorf("duplicate or lost responses: %d distinct", len(seen))
	}
}

// laggingListStore returns the AI responses stored when the call started,
// but only after release is closed.
type laggingListStore struct {
	Store
	started chan struct{}
	release chan struct{}
}

func (l laggingListStore) ListAIResponses(ctx context.Context) ([]core.AIResponse, error) {
	list, err := l.Store.ListAIResponses(ctx)
	select {
	case l.started <- struct{}{}:
	default:
	}
	<-l.release
	return list, err
}

func TestStaleListIsNotCachedAfterCreate(t *testing.T) {
	mem := memory.New()
	local := adapters.NewLocal(mem, assistant.NewService(mem, mem, assistant.StaticGenerator{},
		assistant.WithClock(func() time.Time { return testNow })), nil)
	store := laggingListStore{Store: local, started: make(chan struct{}, 1), release: make(chan struct{})}
	srv := newTestServer(t, store)
	ctx := context.Background()

	done := make(chan []core.AIResponse)
	go func() {
		list, err := srv.listAIResponses(ctx)
		if err != nil {
			t.Errorf("list: %v", err)
		}
		done <- list
	}()
	<-store.started

	created, err := local.CreateAIResponse(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	srv.rememberAIResponse(created)
	close(store.release)

	if stale := <-done; len(stale) != 0 {
		t.Fatalf("expected the in-flight list to predate the create, got %d", len(stale))
	}
	if _, ok := srv.aiCache.Get(aiTimelineKey); ok {
		t.Fatalf("stale list was cached")
	}
	list, err := srv.listAIResponses(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Message != created.Message {
		t.Errorf("reload misses the new response: %+v", list)
	}
}
