package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"dompet/internal/core"
	"dompet/internal/ports"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

// WithClock replaces the time source used for created/updated stamps.
func (r *SQLiteRepository) WithClock(now func() time.Time) *SQLiteRepository {
	r.now = now
	return r
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// SyncRecord is the export view of a row: the transaction, the version it
// was read at and whether it has been deleted.
type SyncRecord struct {
	Transaction core.Transaction
	Version     int64
	Deleted     bool
}

// Create implements ports.TransactionWriter.
func (r *SQLiteRepository) Create(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	_, rec, err := r.CreateVersioned(ctx, t)
	return rec, err
}

// CreateVersioned stores t and also returns its row version.
func (r *SQLiteRepository) CreateVersioned(ctx context.Context, t core.Transaction) (int64, core.Transaction, error) {
	now := r.now()
	if t.Date.IsZero() {
		t.Date = now
	}
	if err := t.Validate(); err != nil {
		return 0, core.Transaction{}, err
	}
	row, err := r.queries.CreateTransaction(ctx, CreateTransactionParams{
		Type:        string(t.Type),
		Amount:      t.Amount.Amount,
		Description: t.Description,
		OccurredAt:  formatTime(t.Date),
		Now:         formatTime(now),
	})
	if err != nil {
		return 0, core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", row.ID,
		"type", row.Type,
		"amount", row.Amount)

	out, err := toCore(row)
	return row.Version, out, err
}

// Update implements ports.TransactionUpdater.
func (r *SQLiteRepository) Update(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	_, rec, err := r.UpdateVersioned(ctx, t)
	return rec, err
}

func (r *SQLiteRepository) UpdateVersioned(ctx context.Context, t core.Transaction) (int64, core.Transaction, error) {
	id, err := parseID(t.ID)
	if err != nil {
		return 0, core.Transaction{}, err
	}
	probe := t
	if probe.Date.IsZero() {
		probe.Date = r.now()
	}
	if err := probe.Validate(); err != nil {
		return 0, core.Transaction{}, err
	}
	row, err := r.queries.UpdateTransaction(ctx, UpdateTransactionParams{
		ID:          id,
		Type:        string(t.Type),
		Amount:      t.Amount.Amount,
		Description: t.Description,
		Now:         formatTime(r.now()),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.Transaction{}, fmt.Errorf("transaction %s: %w", t.ID, ports.ErrNotFound)
	}
	if err != nil {
		return 0, core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction updated", "id", row.ID, "version", row.Version)

	out, err := toCore(row)
	return row.Version, out, err
}

// Delete implements ports.TransactionDeleter. Rows are soft-deleted so the
// export worker can still read them.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.DeleteVersioned(ctx, id)
	return err
}

func (r *SQLiteRepository) DeleteVersioned(ctx context.Context, id string) (int64, error) {
	n, err := parseID(id)
	if err != nil {
		return 0, err
	}
	row, err := r.queries.SoftDeleteTransaction(ctx, n, formatTime(r.now()))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("transaction %s: %w", id, ports.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("delete transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transaction soft deleted", "id", row.ID, "version", row.Version)
	return row.Version, nil
}

// GetTransaction implements ports.TransactionGetter. Deleted rows are not found.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	rec, err := r.GetForSync(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if rec.Deleted {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, ports.ErrNotFound)
	}
	return rec.Transaction, nil
}

// GetForSync returns the row whether or not it has been deleted.
func (r *SQLiteRepository) GetForSync(ctx context.Context, id string) (SyncRecord, error) {
	n, err := parseID(id)
	if err != nil {
		return SyncRecord{}, err
	}
	row, err := r.queries.GetTransaction(ctx, n)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncRecord{}, fmt.Errorf("transaction %s: %w", id, ports.ErrNotFound)
	}
	if err != nil {
		return SyncRecord{}, fmt.Errorf("get transaction: %w", err)
	}
	t, err := toCore(row)
	if err != nil {
		return SyncRecord{}, err
	}
	return SyncRecord{Transaction: t, Version: row.Version, Deleted: row.DeletedAt.Valid}, nil
}

// ListTransactions implements ports.TransactionLister.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, typ core.TransactionType, page int) (core.TransactionPage, error) {
	page = ports.NormalizePage(page)
	total, err := r.queries.CountTransactions(ctx, string(typ))
	if err != nil {
		return core.TransactionPage{}, fmt.Errorf("count transactions: %w", err)
	}
	rows, err := r.queries.ListTransactions(ctx, ListTransactionsParams{
		Type:   string(typ),
		Limit:  ports.PageSize,
		Offset: int64((page - 1) * ports.PageSize),
	})
	if err != nil {
		return core.TransactionPage{}, fmt.Errorf("list transactions: %w", err)
	}
	items, err := toCoreSlice(rows)
	if err != nil {
		return core.TransactionPage{}, err
	}
	return core.TransactionPage{
		Type:       typ,
		Page:       page,
		TotalPages: ports.TotalPages(int(total)),
		Items:      items,
	}, nil
}

// RecentTransactions returns live transactions dated at or after since,
// oldest first.
func (r *SQLiteRepository) RecentTransactions(ctx context.Context, since time.Time) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactionsSince(ctx, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("list recent transactions: %w", err)
	}
	return toCoreSlice(rows)
}

// PendingSync is a row waiting to be exported.
type PendingSync struct {
	ID      string
	Version int64
}

// GetPendingSync returns up to limit rows not yet exported, oldest change first.
func (r *SQLiteRepository) GetPendingSync(ctx context.Context, limit int) ([]PendingSync, error) {
	rows, err := r.queries.ListPendingSync(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending sync: %w", err)
	}
	out := make([]PendingSync, len(rows))
	for i, row := range rows {
		out[i] = PendingSync{ID: strconv.FormatInt(row.ID, 10), Version: row.Version}
	}
	return out, nil
}

// MarkSynced marks id as exported when version is still current. It reports
// whether the row was updated.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, version int64) (bool, error) {
	n, err := parseID(id)
	if err != nil {
		return false, err
	}
	affected, err := r.queries.MarkSynced(ctx, n, version)
	if err != nil {
		return false, fmt.Errorf("mark transaction synced: %w", err)
	}
	if affected == 0 {
		slog.InfoContext(ctx, "Transaction changed during export, leaving pending", "id", id, "version", version)
		return false, nil
	}
	slog.InfoContext(ctx, "Transaction marked as synced", "id", id, "version", version)
	return true, nil
}

func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	n, err := parseID(id)
	if err != nil {
		return err
	}
	if err := r.queries.MarkSyncError(ctx, n); err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", "id", id)
	return nil
}

// ListAIResponses implements ports.AIResponseLister.
func (r *SQLiteRepository) ListAIResponses(ctx context.Context) ([]core.AIResponse, error) {
	rows, err := r.queries.ListAIResponses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ai responses: %w", err)
	}
	out := make([]core.AIResponse, 0, len(rows))
	for _, row := range rows {
		a, err := aiToCore(row)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// SaveAIResponse stores a generated response.
func (r *SQLiteRepository) SaveAIResponse(ctx context.Context, a core.AIResponse) (core.AIResponse, error) {
	if a.Date.IsZero() {
		a.Date = r.now()
	}
	if err := a.Validate(); err != nil {
		return core.AIResponse{}, err
	}
	row, err := r.queries.CreateAIResponse(ctx, a.Message, formatTime(a.Date))
	if err != nil {
		return core.AIResponse{}, fmt.Errorf("create ai response: %w", err)
	}
	slog.InfoContext(ctx, "AI response saved", "id", row.ID)
	return aiToCore(row)
}

func parseID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("transaction %q: %w", id, ports.ErrNotFound)
	}
	return n, nil
}

func toCore(row Transaction) (core.Transaction, error) {
	occurred, err := parseTime(row.OccurredAt)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		ID:          strconv.FormatInt(row.ID, 10),
		Type:        core.TransactionType(row.Type),
		Amount:      core.Money{Amount: row.Amount},
		Description: row.Description,
		Date:        occurred,
	}, nil
}

func toCoreSlice(rows []Transaction) ([]core.Transaction, error) {
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := toCore(row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func aiToCore(row AIResponse) (core.AIResponse, error) {
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return core.AIResponse{}, err
	}
	return core.AIResponse{
		ID:      strconv.FormatInt(row.ID, 10),
		Message: row.Message,
		Date:    created,
	}, nil
}

// RetrySyncErrors puts every failed row back in the pending state.
func (r *SQLiteRepository) RetrySyncErrors(ctx context.Context) (int64, error) {
	n, err := r.queries.RetrySyncErrors(ctx)
	if err != nil {
		return 0, fmt.Errorf("retry sync errors: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Failed transactions queued for export again", "count", n)
	}
	return n, nil
}

// SyncStats counts rows per sync status.
type SyncStats struct {
	Pending int64
	Synced  int64
	Error   int64
}

func (r *SQLiteRepository) SyncStats(ctx context.Context) (SyncStats, error) {
	rows, err := r.queries.CountSyncStatus(ctx)
	if err != nil {
		return SyncStats{}, fmt.Errorf("count sync status: %w", err)
	}
	var s SyncStats
	for _, row := range rows {
		switch row.Status {
		case "pending":
			s.Pending = row.Count
		case "synced":
			s.Synced = row.Count
		case "error":
			s.Error = row.Count
		}
	}
	return s, nil
}
