// Package http serves the dompet UI and JSON API.
//
// This file parses request bodies and query strings into domain values.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dompet/internal/core"
	"dompet/internal/ports"
)

const maxRequestBody = 64 << 10

// ErrInvalidDate is returned for a form date that is not YYYY-MM-DD.
var ErrInvalidDate = errors.New("invalid date")

// RequestBodyParser reads JSON or form-encoded bodies, the two shapes HTMX
// sends depending on the json-enc extension.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the body of r once, up to maxRequestBody bytes.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a sanitized value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ListParams selects one page of the transaction list. An empty Type lists
// both incomes and expenses.
type ListParams struct {
	Type core.TransactionType
	Page int
}

// ParseListParams reads type and page from a query string. Unknown types
// fall back to all, bad pages to 1.
func ParseListParams(q url.Values) ListParams {
	var params ListParams
	if typ, err := core.ParseTransactionType(q.Get("type")); err == nil {
		params.Type = typ
	}
	page, _ := strconv.Atoi(strings.TrimSpace(q.Get("page")))
	params.Page = ports.NormalizePage(page)
	return params
}

// TransactionForm is a parsed create or edit form.
type TransactionForm struct {
	Transaction core.Transaction
	// Page is the list page the form was opened from.
	Page int
}

// ParseTransactionForm reads a transaction from the create/edit form.
// The amount accepts grouped input such as "1.500.000". A missing date
// means now; a given date is read in loc at the current time of day so the
// new entry sorts after older entries of that day.
func ParseTransactionForm(p *RequestBodyParser, loc *time.Location, now time.Time) (TransactionForm, error) {
	var form TransactionForm

	typeField := p.Get("transactionType")
	if typeField == "" {
		typeField = p.Get("type")
	}
	typ, err := core.ParseTransactionType(typeField)
	if err != nil {
		return form, err
	}

	amount, err := core.ParseRupiah(p.Get("amount"))
	if err != nil {
		return form, err
	}

	date := now.In(loc)
	if raw := p.Get("date"); raw != "" {
		d, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			return form, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
		}
		date = time.Date(d.Year(), d.Month(), d.Day(),
			date.Hour(), date.Minute(), date.Second(), 0, loc)
	}

	page, _ := strconv.Atoi(p.Get("page"))
	form.Page = ports.NormalizePage(page)
	form.Transaction = core.Transaction{
		Type:        typ,
		Amount:      core.Money{Amount: amount},
		Description: p.Get("description"),
		Date:        date,
	}
	return form, form.Transaction.Validate()
}
