// Package sheets defines the export port the sync worker writes to.
package sheets

import (
	"context"
	"log/slog"

	"dompet/internal/core"
)

// Op mirrors the change being exported.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// Row is one exported change. Exports are append-only: an edit or a delete
// adds a new row carrying the newer version.
type Row struct {
	Transaction core.Transaction
	Version     int64
	Op          Op
}

type Exporter interface {
	Export(ctx context.Context, row Row) error
}

// LogExporter writes rows to the log. It is used when no spreadsheet is
// configured.
type LogExporter struct {
	Logger *slog.Logger
}

func (e LogExporter) Export(ctx context.Context, row Row) error {
	l := e.Logger
	if l == nil {
		l = slog.Default()
	}
	l.InfoContext(ctx, "Exported transaction",
		"transaction_id", row.Transaction.ID,
		"version", row.Version,
		"op", string(row.Op),
		"transaction_type", string(row.Transaction.Type),
		"amount", row.Transaction.Amount.Amount)
	return nil
}
