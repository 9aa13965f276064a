// Package google exports transactions to a Google Sheets spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"dompet/internal/sheets"
)

// Header is written above the first exported row of a new sheet.
var Header = []any{"ID", "Date", "Type", "Amount", "Description", "Version", "Op", "Exported At"}

type Config struct {
	SpreadsheetID string
	// SheetName is the base name; the transaction year is prefixed, so
	// "Transaksi" becomes "2024 Transaksi".
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
	Location        *time.Location
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	loc           *time.Location
	now           func() time.Time
}

var _ sheets.Exporter = (*Client)(nil)

// New creates a Sheets client. When opts is empty the service account
// credentials from cfg are used.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	base := strings.TrimSpace(cfg.SheetName)
	if base == "" {
		base = "Transaksi"
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	if len(opts) == 0 {
		creds, err := credentials(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     base,
		loc:           loc,
		now:           time.Now,
	}, nil
}

func credentials(ctx context.Context, cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		return []byte(cfg.CredentialsJSON), nil
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", cfg.CredentialsFile)
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

// Export appends one row describing the change.
func (c *Client) Export(ctx context.Context, row sheets.Row) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	t := row.Transaction
	date := t.Date.In(c.loc)
	sheet := yearPrefixedName(c.sheetBase, date.Year())

	values := []any{
		t.ID,
		date.Format("2006-01-02"),
		string(t.Type),
		t.Amount.Amount,
		t.Description,
		row.Version,
		string(row.Op),
		c.now().In(c.loc).Format(time.RFC3339),
	}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, sheetRange(sheet), &gsheet.ValueRange{Values: [][]any{values}}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	ref := ""
	if resp.Updates != nil {
		ref = resp.Updates.UpdatedRange
	}
	slog.DebugContext(ctx, "Row appended", "sheet", sheet, "sheets_ref", ref, "id", t.ID)
	return nil
}

// EnsureHeader writes Header to the first row of the year's sheet when it
// is empty.
func (c *Client) EnsureHeader(ctx context.Context, year int) error {
	sheet := yearPrefixedName(c.sheetBase, year)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, fmt.Sprintf("'%s'!A1:H1", sheet)).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", sheet, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, fmt.Sprintf("'%s'!A1:H1", sheet), &gsheet.ValueRange{Values: [][]any{Header}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write header of %s: %w", sheet, err)
	}
	return nil
}

func sheetRange(sheet string) string {
	return fmt.Sprintf("'%s'!A:H", sheet)
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
