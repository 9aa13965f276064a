package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseTransactionType(t *testing.T) {
	for _, in := range []string{"income", "INCOME", " expense "} {
		if _, err := ParseTransactionType(in); err != nil {
			t.Fatalf("%q expected ok, got %v", in, err)
		}
	}
	_, err := ParseTransactionType("transfer")
	if !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		Type:        Expense,
		Amount:      Money{Amount: 25000},
		Description: "Makan siang",
		Date:        time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []struct {
		tx   Transaction
		want error
	}{
		{Transaction{Type: "gift", Amount: Money{Amount: 1}, Description: "a"}, ErrInvalidType},
		{Transaction{Type: Income, Amount: Money{Amount: 0}, Description: "a"}, ErrInvalidAmount},
		{Transaction{Type: Income, Amount: Money{Amount: MaxAmount + 1}, Description: "a"}, ErrInvalidAmount},
		{Transaction{Type: Income, Amount: Money{Amount: 1}, Description: "  "}, ErrEmptyDescription},
		{Transaction{Type: Income, Amount: Money{Amount: 1}, Description: strings.Repeat("x", MaxDescriptionLength+1)}, ErrDescriptionTooLong},
	}
	for i, tc := range bads {
		if err := tc.tx.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("case %d expected %v, got %v", i, tc.want, err)
		}
	}
}

func TestAIResponseRecord(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)
	a := AIResponse{ID: "r1", Message: "Hemat ya", Date: time.Date(2024, 1, 2, 6, 30, 0, 0, loc)}
	rec := a.Record()
	// 06:30 WIB is 23:30 UTC on the previous day.
	if rec.Timestamp != "2024-01-01T23:30:00Z" {
		t.Fatalf("unexpected timestamp %q", rec.Timestamp)
	}
	if rec.Content != "Hemat ya" || rec.ID != "r1" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if err := (AIResponse{Message: "x"}).Validate(); !errors.Is(err, ErrMissingResponseDate) {
		t.Fatalf("expected ErrMissingResponseDate, got %v", err)
	}
}

func TestSummarizeAndTopExpenses(t *testing.T) {
	items := []Transaction{
		{ID: "1", Type: Income, Amount: Money{Amount: 5000000}},
		{ID: "2", Type: Expense, Amount: Money{Amount: 20000}},
		{ID: "3", Type: Expense, Amount: Money{Amount: 750000}},
		{ID: "4", Type: Expense, Amount: Money{Amount: 20000}},
	}
	s := Summarize(items)
	if s.Income.Amount != 5000000 || s.Expense.Amount != 790000 || s.Balance.Amount != 4210000 || s.Count != 4 {
		t.Fatalf("unexpected summary %+v", s)
	}

	top := TopExpenses(items, 2)
	if len(top) != 2 || top[0].ID != "3" || top[1].ID != "2" {
		t.Fatalf("unexpected top expenses %+v", top)
	}
	if got := TopExpenses(nil, 3); len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
}

func TestAIResponseRecordKeepsUpstreamTimestamp(t *testing.T) {
	a := AIResponse{
		Message:   "x",
		Date:      time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC),
		Timestamp: "2024-01-02T03:00:00+07:00",
	}
	if got := a.Record().Key(); got != "2024-01-02" {
		t.Fatalf("expected upstream date key, got %q", got)
	}
}

func TestTransactionRecordsUseLocalDate(t *testing.T) {
	wib := time.FixedZone("WIB", 7*3600)
	items := []Transaction{
		{ID: "a", Description: "Kopi", Date: time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)},
		{ID: "b", Description: "Parkir", Date: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)},
	}
	recs := TransactionRecords(items, wib)
	if len(recs) != 2 || recs[0].ID != "a" || recs[1].Content != "Parkir" {
		t.Fatalf("unexpected records %+v", recs)
	}
	// 20:00 UTC is 03:00 the next day in WIB.
	if got := recs[0].Key(); got != "2024-01-02" {
		t.Fatalf("expected local date key, got %q", got)
	}
	if got := recs[1].Key(); got != "2024-01-01" {
		t.Fatalf("expected local date key, got %q", got)
	}
}
