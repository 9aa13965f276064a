// Package remote is the backend that forwards every operation to an
// upstream finance API speaking the {status, data} envelope.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"dompet/internal/api"
	"dompet/internal/core"
	"dompet/internal/log"
	"dompet/internal/ports"
)

// ErrUpstream is returned when the upstream answers with a non-success
// envelope or an unexpected status code.
var ErrUpstream = errors.New("upstream error")

const maxBodyBytes = 1 << 20

type Client struct {
	base  *url.URL
	token string
	http  *http.Client
	now    func() time.Time
	logger *log.Logger
	group  singleflight.Group
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger.WithComponent(log.ComponentBackend) }
}

// WithClock sets the time source used to stamp created AI responses.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base: u,
		http:   &http.Client{Timeout: 15 * time.Second},
		now:    time.Now,
		logger: log.New(log.DefaultConfig()).WithComponent(log.ComponentBackend),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Create implements ports.TransactionWriter.
func (c *Client) Create(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	var data api.TransactionData
	if err := c.send(ctx, http.MethodPost, "/transactions", api.FromTransaction(t), &data); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	if data.Transaction == nil {
		return t, nil
	}
	return data.Transaction.ToCore()
}

// Update implements ports.TransactionUpdater. Only amount, description and
// type are sent.
func (c *Client) Update(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	body := api.Transaction{
		Amount:          t.Amount.Amount,
		Description:     t.Description,
		TransactionType: string(t.Type),
	}
	var data api.TransactionData
	if err := c.send(ctx, http.MethodPut, "/transactions/"+url.PathEscape(t.ID), body, &data); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %s: %w", t.ID, err)
	}
	if data.Transaction == nil {
		return t, nil
	}
	return data.Transaction.ToCore()
}

func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.send(ctx, http.MethodDelete, "/transactions/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return nil
}

func (c *Client) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	var data api.TransactionData
	if err := c.get(ctx, "/transactions/"+url.PathEscape(id), &data); err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	if data.Transaction == nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, ports.ErrNotFound)
	}
	return data.Transaction.ToCore()
}

func (c *Client) ListTransactions(ctx context.Context, typ core.TransactionType, page int) (core.TransactionPage, error) {
	page = ports.NormalizePage(page)
	q := url.Values{}
	if typ != "" {
		q.Set("type", string(typ))
	}
	q.Set("page", strconv.Itoa(page))

	var data api.TransactionPage
	if err := c.get(ctx, "/transactions?"+q.Encode(), &data); err != nil {
		return core.TransactionPage{}, fmt.Errorf("list transactions: %w", err)
	}
	out := core.TransactionPage{
		Type:       typ,
		Page:       page,
		TotalPages: max(data.TotalPages, 1),
	}
	if data.CurrentPage > 0 {
		out.Page = data.CurrentPage
	}
	for _, w := range data.Transactions {
		t, err := w.ToCore()
		if err != nil {
			return core.TransactionPage{}, fmt.Errorf("list transactions: %w", err)
		}
		out.Items = append(out.Items, t)
	}
	return out, nil
}

func (c *Client) ListAIResponses(ctx context.Context) ([]core.AIResponse, error) {
	var data api.AIResponseList
	if err := c.get(ctx, "/ai-responses", &data); err != nil {
		return nil, fmt.Errorf("list ai responses: %w", err)
	}
	out := make([]core.AIResponse, 0, len(data.AIResponses))
	for _, w := range data.AIResponses {
		out = append(out, w.ToCore())
	}
	return out, nil
}

// CreateAIResponse asks the upstream for a new response. The upstream only
// returns the text, so the response is stamped with the local clock.
func (c *Client) CreateAIResponse(ctx context.Context) (core.AIResponse, error) {
	var data api.AIResponseCreated
	if err := c.send(ctx, http.MethodPost, "/ai-responses", struct{}{}, &data); err != nil {
		return core.AIResponse{}, fmt.Errorf("create ai response: %w", err)
	}
	if data.Record != nil {
		return data.Record.ToCore(), nil
	}
	a := core.AIResponse{Message: data.AIResponse, Date: c.now().UTC()}
	if err := a.Validate(); err != nil {
		return core.AIResponse{}, fmt.Errorf("create ai response: %w: %v", ErrUpstream, err)
	}
	return a, nil
}

// Ping checks that the upstream answers at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodHead, "/", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ping upstream: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("ping upstream: %w: status %d", ErrUpstream, resp.StatusCode)
	}
	return nil
}

// get collapses concurrent identical requests into one upstream call. The
// shared call outlives the caller that started it; each caller still stops
// waiting when its own context ends.
func (c *Client) get(ctx context.Context, path string, out any) error {
	ch := c.group.DoChan(path, func() (any, error) {
		return c.do(context.WithoutCancel(ctx), http.MethodGet, path, nil)
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.logger.DebugContext(ctx, "Shared upstream response", log.FieldPath, path)
		}
		if res.Err != nil {
			return res.Err
		}
		return decode(res.Val.([]byte), out)
	}
}

func (c *Client) send(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	body, err := c.do(ctx, method, path, payload)
	if err != nil {
		return err
	}
	return decode(body, out)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.DebugContext(ctx, "Upstream call",
		log.FieldMethod, method,
		log.FieldPath, path,
		log.FieldStatusCode, resp.StatusCode,
		log.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode == http.StatusNotFound {
		return nil, ports.ErrNotFound
	}
	if resp.StatusCode >= 400 {
		// Prefer the envelope message when the upstream sent one.
		if derr := api.Decode(body, nil); derr != nil {
			return nil, fmt.Errorf("%w: status %d: %v", ErrUpstream, resp.StatusCode, derr)
		}
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	return body, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func decode(body []byte, out any) error {
	if out == nil && len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := api.Decode(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return nil
}
