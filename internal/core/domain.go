package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"dompet/internal/timeline"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

// MaxDescriptionLength bounds free-text descriptions.
const MaxDescriptionLength = 200

type (
	TransactionType string

	// Money is an amount in whole Rupiah.
	Money struct {
		Amount int64
	}

	Transaction struct {
		ID          string
		Type        TransactionType
		Amount      Money
		Description string
		Date        time.Time
	}

	// AIResponse is one assistant message produced by the insight generator.
	AIResponse struct {
		ID      string
		Message string
		Date    time.Time
		// Timestamp is the date exactly as an upstream sent it, if any.
		Timestamp string
	}

	// TransactionPage is one page of a type-filtered transaction listing.
	TransactionPage struct {
		Type       TransactionType
		Page       int
		TotalPages int
		Items      []Transaction
	}
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrEmptyDescription    = errors.New("empty description")
	ErrDescriptionTooLong  = fmt.Errorf("description too long (max %d characters)", MaxDescriptionLength)
	ErrInvalidType         = errors.New("invalid transaction type")
	ErrEmptyMessage        = errors.New("empty ai response message")
	ErrMissingResponseDate = errors.New("ai response date cannot be zero")
)

// ParseTransactionType accepts "income" or "expense" in any case.
func ParseTransactionType(s string) (TransactionType, error) {
	switch TransactionType(strings.ToLower(strings.TrimSpace(s))) {
	case Income:
		return Income, nil
	case Expense:
		return Expense, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (t TransactionType) String() string {
	return string(t)
}

func (m Money) Validate() error {
	if m.Amount <= 0 || m.Amount > MaxAmount {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}

// Signed returns the amount with expenses negated.
func (t Transaction) Signed() int64 {
	if t.Type == Expense {
		return -t.Amount.Amount
	}
	return t.Amount.Amount
}

// Record maps the transaction onto a timeline record keyed by its calendar
// date in loc.
func (t Transaction) Record(loc *time.Location) timeline.Record {
	return timeline.Record{
		ID:        t.ID,
		Content:   t.Description,
		Timestamp: t.Date.In(loc).Format(time.RFC3339),
	}
}

func (a AIResponse) Validate() error {
	if strings.TrimSpace(a.Message) == "" {
		return ErrEmptyMessage
	}
	if a.Date.IsZero() {
		return ErrMissingResponseDate
	}
	return nil
}

// Record maps the response onto a timeline record. An upstream timestamp is
// kept verbatim so its date key is the one the upstream meant; otherwise the
// RFC 3339 UTC form of Date is used.
func (a AIResponse) Record() timeline.Record {
	ts := a.Timestamp
	if ts == "" {
		ts = a.Date.UTC().Format(time.RFC3339)
	}
	return timeline.Record{
		ID:        a.ID,
		Content:   a.Message,
		Timestamp: ts,
	}
}

// AIResponseRecords converts responses preserving order.
func AIResponseRecords(in []AIResponse) []timeline.Record {
	out := make([]timeline.Record, len(in))
	for i, a := range in {
		out[i] = a.Record()
	}
	return out
}

// TransactionRecords converts transactions preserving order.
func TransactionRecords(in []Transaction, loc *time.Location) []timeline.Record {
	out := make([]timeline.Record, len(in))
	for i, t := range in {
		out[i] = t.Record(loc)
	}
	return out
}
