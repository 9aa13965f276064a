// Package core holds the finance domain: transactions, AI responses and
// Rupiah amounts.
//
// Amounts are whole Rupiah. User input is accepted in the loose form the
// edit dialog produces ("1.500.000", "Rp 20.000"): every non-digit is
// dropped and the result is clamped to MaxAmount.
package core

import (
	"errors"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MaxAmount is the largest accepted amount (one trillion Rupiah).
const MaxAmount int64 = 1_000_000_000_000

// ParseRupiah extracts the digits of s and returns them as an amount.
//
// Examples:
//
//	ParseRupiah("1.500.000")       -> 1500000, nil
//	ParseRupiah("Rp 20.000")       -> 20000, nil
//	ParseRupiah("9999999999999999") -> MaxAmount, nil (clamped)
//	ParseRupiah("abc")             -> 0, ErrInvalidAmount
func ParseRupiah(s string) (int64, error) {
	digits := strings.Map(func(r rune) rune {
		if isASCIIDigit(r) {
			return r
		}
		return -1
	}, s)
	if digits == "" {
		return 0, ErrInvalidAmount
	}
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && numErr.Err == strconv.ErrRange {
			return MaxAmount, nil
		}
		return 0, ErrInvalidAmount
	}
	if v > MaxAmount {
		v = MaxAmount
	}
	if v <= 0 {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// FormatRupiah renders n with Indonesian digit grouping, e.g. 1500000 -> "1.500.000".
func FormatRupiah(n int64) string {
	p := message.NewPrinter(language.Indonesian)
	return p.Sprintf("%d", n)
}

// FormatInput normalizes a raw amount field the way the edit form does while
// typing: digits only, clamped, regrouped. Empty or digit-free input yields "".
func FormatInput(raw string) string {
	if strings.IndexFunc(raw, isASCIIDigit) < 0 {
		return ""
	}
	v, err := ParseRupiah(raw)
	if err != nil {
		return "0"
	}
	return FormatRupiah(v)
}

func (m Money) String() string {
	if m.Amount < 0 {
		return "-Rp " + FormatRupiah(-m.Amount)
	}
	return "Rp " + FormatRupiah(m.Amount)
}

func isASCIIDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
