package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"faturas/internal/core"
	applog "faturas/internal/log"
	ports "faturas/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const DefaultSheetBase = "Faturas"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Month sheets are named "<sheetBase> YYYY-MM".
	sheetBase string
	logger    *applog.Logger
}

// Ensure interface conformance
var _ ports.ReportWriter = (*Client)(nil)

// New creates a Sheets client. Without opts, service account credentials
// are read from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, spreadsheetID, sheetBase string, logger *applog.Logger, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if strings.TrimSpace(sheetBase) == "" {
		sheetBase = DefaultSheetBase
	}
	logger = logger.WithComponent(applog.ComponentSheets)

	if len(opts) == 0 {
		creds, err := serviceAccountOptions(ctx, logger)
		if err != nil {
			return nil, err
		}
		opts = creds
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     strings.TrimSpace(sheetBase),
		logger:        logger,
	}, nil
}

// serviceAccountOptions loads Service Account credentials from the environment.
func serviceAccountOptions(ctx context.Context, logger *applog.Logger) ([]goption.ClientOption, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))

	// Also check the standard Google Cloud environment variable
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		logger.DebugContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		logger.DebugContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	return []goption.ClientOption{
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}, nil
}

func (c *Client) sheetName(m core.Month) string {
	return fmt.Sprintf("%s %s", c.sheetBase, m)
}

// quoted returns the sheet name in A1 notation.
func quoted(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// WriteMonthReport overwrites the month's sheet with r, creating the sheet
// on first export.
func (c *Client) WriteMonthReport(ctx context.Context, r ports.MonthReport) (string, error) {
	if err := r.Month.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	name := c.sheetName(r.Month)
	if err := c.ensureSheet(ctx, name); err != nil {
		return "", err
	}

	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, quoted(name), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear sheet %s: %w", name, err)
	}

	vr := &gsheet.ValueRange{Values: ports.Rows(r)}
	resp, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, quoted(name)+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to update sheet %s: %w", name, err)
	}

	ref := resp.UpdatedRange
	if ref == "" {
		ref = quoted(name) + "!A1"
	}
	c.logger.InfoContext(ctx, "Month report exported",
		applog.FieldMonth, r.Month.String(),
		applog.FieldSheetsRef, ref,
		"invoices", len(r.Invoices))
	return ref, nil
}

func (c *Client) ensureSheet(ctx context.Context, name string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet %s: %w", c.spreadsheetID, err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == name {
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: name}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", name, err)
	}
	c.logger.InfoContext(ctx, "Created month sheet", "sheet", name)
	return nil
}
