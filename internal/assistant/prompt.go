package assistant

import (
	"fmt"
	"strings"
	"time"

	"dompet/internal/core"
)

const systemPrompt = `Kamu adalah asisten keuangan pribadi. Berikan ringkasan singkat dan saran praktis ` +
	`dalam Bahasa Indonesia berdasarkan data transaksi pengguna. Gunakan markdown sederhana, ` +
	`maksimal lima kalimat, dan tulis nominal dalam Rupiah.`

// TopExpenseCount is how many of the month's largest expenses the prompt lists.
const TopExpenseCount = 3

// BuildPrompt summarizes items for the day and the month containing now.
// Day and month boundaries follow now's location.
func BuildPrompt(items []core.Transaction, now time.Time) Prompt {
	loc := now.Location()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	monthStart := MonthStart(now)

	var today, month []core.Transaction
	for _, t := range items {
		d := t.Date.In(loc)
		if d.Before(monthStart) || d.After(now) {
			continue
		}
		month = append(month, t)
		if !d.Before(dayStart) {
			today = append(today, t)
		}
	}

	p := Prompt{
		System:      systemPrompt,
		Today:       core.Summarize(today),
		Month:       core.Summarize(month),
		TopExpenses: core.TopExpenses(month, TopExpenseCount),
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Tanggal: %s\n", now.Format(time.DateOnly))
	fmt.Fprintf(&b, "Hari ini: pemasukan %s, pengeluaran %s, %d transaksi.\n",
		p.Today.Income, p.Today.Expense, p.Today.Count)
	fmt.Fprintf(&b, "Bulan ini: pemasukan %s, pengeluaran %s, saldo %s, %d transaksi.\n",
		p.Month.Income, p.Month.Expense, p.Month.Balance, p.Month.Count)
	if len(p.TopExpenses) > 0 {
		b.WriteString("Pengeluaran terbesar bulan ini:\n")
		for _, t := range p.TopExpenses {
			fmt.Fprintf(&b, "- %s (%s): %s\n", t.Description, t.Date.In(loc).Format(time.DateOnly), t.Amount)
		}
	}
	b.WriteString("Berikan analisis dan saran untuk hari ini.")
	p.User = b.String()
	return p
}

// MonthStart is midnight on the first day of t's month, in t's location.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
