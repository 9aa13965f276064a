// Package api is the JSON contract shared by the finance API: every body is
// a {status, data} envelope and only status "success" carries usable data.
// dompet speaks it as a client (remote backend) and as a server (/api).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"dompet/internal/core"
	"dompet/internal/timeline"
)

const (
	StatusSuccess = "success"
	StatusFail    = "fail"
	StatusErr     = "error"
)

// ErrMalformed is returned for bodies that are not an envelope.
var ErrMalformed = errors.New("malformed envelope")

type Envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// StatusError is a well-formed envelope whose status is not "success".
type StatusError struct {
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %q", e.Status)
	}
	return fmt.Sprintf("status %q: %s", e.Status, e.Message)
}

// Decode parses an envelope and unmarshals its data into v. v may be nil
// when only the status matters.
func Decode(body []byte, v any) error {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Status == "" {
		return fmt.Errorf("%w: missing status", ErrMalformed)
	}
	if env.Status != StatusSuccess {
		return &StatusError{Status: env.Status, Message: env.Message}
	}
	if v == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: data: %v", ErrMalformed, err)
	}
	return nil
}

// Success wraps data in a success envelope.
func Success(data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Status: StatusSuccess, Data: raw}, nil
}

// Failure builds a fail (client error) or error (server error) envelope.
func Failure(status, message string) Envelope {
	return Envelope{Status: status, Message: message}
}

type Transaction struct {
	ID              string `json:"id,omitempty"`
	Amount          int64  `json:"amount"`
	Description     string `json:"description"`
	TransactionType string `json:"transactionType"`
	Date            string `json:"date,omitempty"`
}

type TransactionData struct {
	Transaction *Transaction `json:"transaction,omitempty"`
}

type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	CurrentPage  int           `json:"currentPage"`
	TotalPages   int           `json:"totalPages"`
}

type AIResponse struct {
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
	Date    string `json:"date"`
}

type AIResponseList struct {
	AIResponses []AIResponse `json:"aiResponses"`
}

// AIResponseTimeline is the server listing: the flat list plus the grouped
// view and its date index.
type AIResponseTimeline struct {
	AIResponseList
	Groups timeline.Groups `json:"groups"`
	Dates  timeline.Index  `json:"dates"`
}

// AIResponseCreated is the create reply. Upstreams only send the text;
// dompet also returns the stored record.
type AIResponseCreated struct {
	AIResponse string      `json:"aiResponse"`
	Record     *AIResponse `json:"record,omitempty"`
}

func FromTransaction(t core.Transaction) Transaction {
	out := Transaction{
		ID:              t.ID,
		Amount:          t.Amount.Amount,
		Description:     t.Description,
		TransactionType: string(t.Type),
	}
	if !t.Date.IsZero() {
		out.Date = t.Date.UTC().Format(time.RFC3339)
	}
	return out
}

func FromTransactions(in []core.Transaction) []Transaction {
	out := make([]Transaction, len(in))
	for i, t := range in {
		out[i] = FromTransaction(t)
	}
	return out
}

// ToCore converts the wire form. The type is parsed loosely; a missing date
// stays zero.
func (t Transaction) ToCore() (core.Transaction, error) {
	typ, err := core.ParseTransactionType(t.TransactionType)
	if err != nil {
		return core.Transaction{}, err
	}
	out := core.Transaction{
		ID:          t.ID,
		Type:        typ,
		Amount:      core.Money{Amount: t.Amount},
		Description: t.Description,
	}
	if t.Date != "" {
		d, err := ParseTime(t.Date)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("transaction date %q: %w", t.Date, err)
		}
		out.Date = d
	}
	return out, nil
}

func FromAIResponse(a core.AIResponse) AIResponse {
	return AIResponse{ID: a.ID, Message: a.Message, Date: a.Record().Timestamp}
}

func FromAIResponses(in []core.AIResponse) []AIResponse {
	out := make([]AIResponse, len(in))
	for i, a := range in {
		out[i] = FromAIResponse(a)
	}
	return out
}

// ToCore keeps the date string verbatim for grouping. Date is left zero
// when the string is not a timestamp ParseTime understands.
func (a AIResponse) ToCore() core.AIResponse {
	out := core.AIResponse{ID: a.ID, Message: a.Message, Timestamp: a.Date}
	if d, err := ParseTime(a.Date); err == nil {
		out.Date = d
	}
	return out
}

// timeLayouts are the ISO-8601 forms accepted from clients and upstreams.
// Forms without an offset are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	time.DateOnly,
}

// ParseTime parses an ISO-8601 timestamp, with or without an offset, or a
// bare date.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
