//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"faturas/internal/core"
	applog "faturas/internal/log"
	ports "faturas/internal/sheets"
)

// Integration tests require real Google Sheets credentials
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_WriteMonthReport(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	spreadsheetID := os.Getenv("GOOGLE_SPREADSHEET_ID")
	if spreadsheetID == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := New(ctx, spreadsheetID, "Faturas Test", applog.Discard())
	if err != nil {
		t.Skipf("credentials not usable: %v", err)
	}

	month := core.MonthOf(time.Now())
	views := core.BuildViews([]core.Invoice{{
		ID:             "it-1",
		Description:    "Integration test",
		Category:       core.CategoryOther,
		TotalAmount:    core.Cents(1234),
		DueDate:        core.NewDate(month.Year, int(month.Month), 1),
		ReferenceMonth: month,
	}}, nil, time.Now())

	ref, err := client.WriteMonthReport(ctx, ports.BuildMonthReport(views, month))
	if err != nil {
		t.Fatalf("WriteMonthReport: %v", err)
	}
	t.Logf("wrote %s", ref)
}
