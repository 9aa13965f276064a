// Package ports declares the outbound interfaces the HTTP layer and the
// services depend on. Backends (memory, sqlite, remote) implement them.
package ports

import (
	"context"
	"errors"

	"dompet/internal/core"
)

// ErrNotFound is returned when a transaction id does not exist.
var ErrNotFound = errors.New("not found")

// PageSize is the number of transactions per listing page.
const PageSize = 10

type (
	// TransactionWriter stores a new transaction and returns it with its id.
	TransactionWriter interface {
		Create(ctx context.Context, t core.Transaction) (core.Transaction, error)
	}

	// TransactionUpdater replaces amount, description and type of an
	// existing transaction.
	TransactionUpdater interface {
		Update(ctx context.Context, t core.Transaction) (core.Transaction, error)
	}

	TransactionDeleter interface {
		Delete(ctx context.Context, id string) error
	}

	// TransactionLister returns one page (1-based) of transactions of a type,
	// newest first.
	TransactionLister interface {
		ListTransactions(ctx context.Context, typ core.TransactionType, page int) (core.TransactionPage, error)
	}

	TransactionGetter interface {
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	}

	// AIResponseLister returns every stored AI response in creation order.
	AIResponseLister interface {
		ListAIResponses(ctx context.Context) ([]core.AIResponse, error)
	}

	// AIResponseCreator produces and stores a new AI response.
	AIResponseCreator interface {
		CreateAIResponse(ctx context.Context) (core.AIResponse, error)
	}

	// Transactions groups every transaction port.
	Transactions interface {
		TransactionWriter
		TransactionUpdater
		TransactionDeleter
		TransactionLister
		TransactionGetter
	}
)

// TotalPages returns the number of pages needed for n items, at least 1.
func TotalPages(n int) int {
	if n <= 0 {
		return 1
	}
	return (n + PageSize - 1) / PageSize
}

// NormalizePage clamps page to 1 when it is not positive.
func NormalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}
