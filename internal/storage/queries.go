package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Transaction is a row of the transactions table.
type Transaction struct {
	ID          int64
	Type        string
	Amount      int64
	Description string
	OccurredAt  string
	CreatedAt   string
	UpdatedAt   string
	DeletedAt   sql.NullString
	Version     int64
	SyncStatus  string
}

type AIResponse struct {
	ID        int64
	Message   string
	CreatedAt string
}

const transactionColumns = `id, type, amount, description, occurred_at, created_at, updated_at, deleted_at, version, sync_status`

func scanTransaction(row interface{ Scan(...any) error }) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.Type, &t.Amount, &t.Description, &t.OccurredAt,
		&t.CreatedAt, &t.UpdatedAt, &t.DeletedAt, &t.Version, &t.SyncStatus)
	return t, err
}

type CreateTransactionParams struct {
	Type        string
	Amount      int64
	Description string
	OccurredAt  string
	Now         string
}

const createTransaction = `INSERT INTO transactions (type, amount, description, occurred_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING ` + transactionColumns

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, createTransaction,
		arg.Type, arg.Amount, arg.Description, arg.OccurredAt, arg.Now, arg.Now)
	return scanTransaction(row)
}

type UpdateTransactionParams struct {
	ID          int64
	Type        string
	Amount      int64
	Description string
	Now         string
}

// Every update bumps the version and queues the row for export again.
const updateTransaction = `UPDATE transactions
SET type = ?, amount = ?, description = ?, updated_at = ?, version = version + 1, sync_status = 'pending'
WHERE id = ? AND deleted_at IS NULL
RETURNING ` + transactionColumns

func (q *Queries) UpdateTransaction(ctx context.Context, arg UpdateTransactionParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, updateTransaction,
		arg.Type, arg.Amount, arg.Description, arg.Now, arg.ID)
	return scanTransaction(row)
}

const softDeleteTransaction = `UPDATE transactions
SET deleted_at = ?, updated_at = ?, version = version + 1, sync_status = 'pending'
WHERE id = ? AND deleted_at IS NULL
RETURNING ` + transactionColumns

func (q *Queries) SoftDeleteTransaction(ctx context.Context, id int64, now string) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, softDeleteTransaction, now, now, id)
	return scanTransaction(row)
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

// GetTransaction returns the row even when it is soft-deleted.
func (q *Queries) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, getTransaction, id)
	return scanTransaction(row)
}

const countTransactions = `SELECT COUNT(*) FROM transactions
WHERE deleted_at IS NULL AND (? = '' OR type = ?)`

func (q *Queries) CountTransactions(ctx context.Context, typ string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countTransactions, typ, typ).Scan(&n)
	return n, err
}

type ListTransactionsParams struct {
	Type   string
	Limit  int64
	Offset int64
}

const listTransactions = `SELECT ` + transactionColumns + ` FROM transactions
WHERE deleted_at IS NULL AND (? = '' OR type = ?)
ORDER BY occurred_at DESC, id DESC
LIMIT ? OFFSET ?`

func (q *Queries) ListTransactions(ctx context.Context, arg ListTransactionsParams) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactions, arg.Type, arg.Type, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

const listTransactionsSince = `SELECT ` + transactionColumns + ` FROM transactions
WHERE deleted_at IS NULL AND occurred_at >= ?
ORDER BY occurred_at, id`

func (q *Queries) ListTransactionsSince(ctx context.Context, since string) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactionsSince, since)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

const listPendingSync = `SELECT id, version FROM transactions
WHERE sync_status = 'pending'
ORDER BY updated_at, id
LIMIT ?`

type PendingSyncRow struct {
	ID      int64
	Version int64
}

func (q *Queries) ListPendingSync(ctx context.Context, limit int64) ([]PendingSyncRow, error) {
	rows, err := q.db.QueryContext(ctx, listPendingSync, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PendingSyncRow
	for rows.Next() {
		var r PendingSyncRow
		if err := rows.Scan(&r.ID, &r.Version); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// A newer write may land while the worker exports; only the exported
// version is marked.
const markSynced = `UPDATE transactions SET sync_status = 'synced' WHERE id = ? AND version = ?`

func (q *Queries) MarkSynced(ctx context.Context, id, version int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, markSynced, id, version)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const markSyncError = `UPDATE transactions SET sync_status = 'error' WHERE id = ?`

func (q *Queries) MarkSyncError(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, markSyncError, id)
	return err
}

const createAIResponse = `INSERT INTO ai_responses (message, created_at) VALUES (?, ?)
RETURNING id, message, created_at`

func (q *Queries) CreateAIResponse(ctx context.Context, message, createdAt string) (AIResponse, error) {
	var a AIResponse
	err := q.db.QueryRowContext(ctx, createAIResponse, message, createdAt).
		Scan(&a.ID, &a.Message, &a.CreatedAt)
	return a, err
}

const listAIResponses = `SELECT id, message, created_at FROM ai_responses ORDER BY created_at, id`

func (q *Queries) ListAIResponses(ctx context.Context) ([]AIResponse, error) {
	rows, err := q.db.QueryContext(ctx, listAIResponses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AIResponse
	for rows.Next() {
		var a AIResponse
		if err := rows.Scan(&a.ID, &a.Message, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func collectTransactions(rows *sql.Rows) ([]Transaction, error) {
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const retrySyncErrors = `UPDATE transactions SET sync_status = 'pending' WHERE sync_status = 'error'`

func (q *Queries) RetrySyncErrors(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, retrySyncErrors)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const countSyncStatus = `SELECT sync_status, COUNT(*) FROM transactions GROUP BY sync_status`

type SyncStatusCount struct {
	Status string
	Count  int64
}

func (q *Queries) CountSyncStatus(ctx context.Context) ([]SyncStatusCount, error) {
	rows, err := q.db.QueryContext(ctx, countSyncStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SyncStatusCount
	for rows.Next() {
		var c SyncStatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
