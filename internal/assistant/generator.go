// Package assistant produces the daily AI financial responses: it builds a
// prompt from recent transactions, asks a Generator for text and stores the
// result. It also renders stored markdown for the dashboard panel.
package assistant

import (
	"context"
	"fmt"
	"strings"

	"dompet/internal/core"
)

// Prompt carries both the chat messages sent to a language model and the
// figures they were built from, so offline generators can use the figures.
type Prompt struct {
	System string
	User   string

	Today       core.Summary
	Month       core.Summary
	TopExpenses []core.Transaction
}

// Generator turns a prompt into response text.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// StaticGenerator writes a fixed-template summary. It is used when no model
// is configured and as the fallback when the model call fails.
type StaticGenerator struct{}

func (StaticGenerator) Generate(_ context.Context, p Prompt) (string, error) {
	var b strings.Builder
	if p.Today.Count == 0 {
		b.WriteString("Belum ada transaksi hari ini. ")
	} else {
		fmt.Fprintf(&b, "Hari ini pemasukan %s dan pengeluaran %s. ", p.Today.Income, p.Today.Expense)
	}
	fmt.Fprintf(&b, "Bulan ini saldo kamu %s dari %d transaksi.", p.Month.Balance, p.Month.Count)

	switch {
	case p.Month.Count == 0:
	case p.Month.Balance.Amount < 0:
		b.WriteString(" Pengeluaran melebihi pemasukan, coba tahan belanja yang tidak perlu!")
	default:
		b.WriteString(" Keuangan masih sehat, pertahankan!")
	}

	if len(p.TopExpenses) > 0 {
		b.WriteString("\n\n**Pengeluaran terbesar:**\n")
		for _, t := range p.TopExpenses {
			fmt.Fprintf(&b, "\n- %s: %s", t.Description, t.Amount)
		}
	}
	return b.String(), nil
}
