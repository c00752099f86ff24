// Package sheets mirrors transactions into a Google Sheets spreadsheet. One
// row per transaction, keyed by the transaction id in column A.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"budget/internal/core"
	"budget/internal/ledger"
)

// Header is written to row 1 of an empty sheet.
var Header = []any{"ID", "Owner", "Date", "Type", "Amount", "Category", "Description"}

const lastColumn = "G"

var _ ledger.TransactionExporter = (*Client)(nil)

type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON []byte
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
}

// New creates a Sheets client authenticated with a service account. Extra
// client options are appended after the credentials.
func New(ctx context.Context, opts Options, extra ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(opts.SheetName) == "" {
		opts.SheetName = "Transactions"
	}

	clientOpts := []goption.ClientOption{goption.WithScopes(gsheet.SpreadsheetsScope)}
	if len(opts.CredentialsJSON) > 0 {
		creds, err := google.CredentialsFromJSON(ctx, opts.CredentialsJSON, gsheet.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("parse service account credentials: %w", err)
		}
		clientOpts = append(clientOpts, goption.WithCredentials(creds))
	}
	clientOpts = append(clientOpts, extra...)

	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created", "sheet", opts.SheetName)
	return &Client{svc: svc, spreadsheetID: opts.SpreadsheetID, sheet: opts.SheetName}, nil
}

// Export appends t to the sheet and returns the row range. Exporting an id
// that is already present returns the existing row instead of a duplicate.
func (c *Client) Export(ctx context.Context, t core.Transaction) (string, error) {
	ids, err := c.readIDs(ctx)
	if err != nil {
		return "", err
	}

	if row := findRow(ids, t.ID); row > 0 {
		slog.DebugContext(ctx, "Transaction already exported", "transaction_id", t.ID, "row", row)
		return c.rowRange(row), nil
	}

	next := len(ids) + 1
	if len(ids) == 0 {
		if err := c.update(ctx, 1, Header); err != nil {
			return "", fmt.Errorf("write header: %w", err)
		}
		next = 2
	}

	if err := c.update(ctx, next, Row(t)); err != nil {
		return "", fmt.Errorf("append transaction %s: %w", t.ID, err)
	}
	return c.rowRange(next), nil
}

// Remove clears the row holding id. A missing row is not an error.
func (c *Client) Remove(ctx context.Context, id string) error {
	ids, err := c.readIDs(ctx)
	if err != nil {
		return err
	}
	row := findRow(ids, id)
	if row == 0 {
		slog.DebugContext(ctx, "Transaction not present in sheet", "transaction_id", id)
		return nil
	}

	rng := c.rowRange(row)
	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	return nil
}

func (c *Client) readIDs(ctx context.Context) ([]string, error) {
	rng := fmt.Sprintf("%s!A:A", c.sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return firstColumn(resp.Values), nil
}

func (c *Client) update(ctx context.Context, row int, values []any) error {
	vr := &gsheet.ValueRange{Values: [][]any{values}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, c.rowRange(row), vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return err
}

func (c *Client) rowRange(row int) string {
	return fmt.Sprintf("%s!A%d:%s%d", c.sheet, row, lastColumn, row)
}

// Row lays out a transaction in sheet column order.
func Row(t core.Transaction) []any {
	return []any{
		t.ID,
		t.OwnerID,
		t.OccurredAt.UTC().Format("2006-01-02"),
		string(t.Kind),
		t.Amount.Float(),
		t.Category,
		t.Description,
	}
}

func firstColumn(values [][]any) []string {
	out := make([]string, len(values))
	for i, row := range values {
		if len(row) > 0 {
			out[i] = strings.TrimSpace(fmt.Sprint(row[0]))
		}
	}
	return out
}

// findRow returns the 1-based row of id, or 0.
func findRow(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i + 1
		}
	}
	return 0
}
