package inventory

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samplyze/samplyze/internal/platform/db"
	"github.com/samplyze/samplyze/internal/shared"
)

func testSvc(t *testing.T) *Service {
	t.Helper()
	handle, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "laboratory.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { handle.Close() })
	if err := db.EnsureSchema(context.Background(), handle); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	clock, err := shared.NewClock("Asia/Kolkata")
	if err != nil {
		t.Fatalf("new clock: %v", err)
	}
	return NewService(NewRepository(handle), clock)
}

func TestCreateRejectsBadInput(t *testing.T) {
	svc := testSvc(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, ItemInput{Name: "Gloves"}); !errors.Is(err, ErrMissingSKU) {
		t.Fatalf("expected ErrMissingSKU, got %v", err)
	}
	if _, err := svc.Create(ctx, ItemInput{SKU: "GLV-1", Name: "Gloves", Quantity: -2}); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestCreateRejectsDuplicateSKU(t *testing.T) {
	svc := testSvc(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, ItemInput{SKU: "GLV-1", Name: "Gloves"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, ItemInput{SKU: "GLV-1", Name: "More Gloves"}); !errors.Is(err, shared.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestImportCSVUpsertsBySKU(t *testing.T) {
	svc := testSvc(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, ItemInput{SKU: "GLV-1", Name: "Gloves", Quantity: 5}); err != nil {
		t.Fatalf("seed item: %v", err)
	}

	input := strings.Join([]string{
		"SKU,Name,Category,Quantity,Unit,Location",
		"GLV-1,Nitrile Gloves,Consumables,20,box,Store A",
		"PIP-9,Pipette Tips,Consumables,100,rack,Store B",
		",Missing SKU,,1,,",
	}, "\n")

	stats, err := svc.ImportCSV(ctx, strings.NewReader(input))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if stats.Created != 1 || stats.Updated != 1 || stats.Skipped != 1 {
		t.Fatalf("expected 1/1/1, got %d/%d/%d (%v)", stats.Created, stats.Updated, stats.Skipped, stats.Errors)
	}

	items, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	for _, item := range items {
		if item.SKU == "GLV-1" && (item.Name != "Nitrile Gloves" || item.Quantity != 20) {
			t.Fatalf("GLV-1 not updated: %+v", item)
		}
	}
}

func TestImportCSVRequiresSKUColumn(t *testing.T) {
	svc := testSvc(t)
	if _, err := svc.ImportCSV(context.Background(), strings.NewReader("Name,Quantity\nGloves,5\n")); err == nil {
		t.Fatal("expected error for missing SKU column")
	}
}

func TestExportCSVRoundTrip(t *testing.T) {
	svc := testSvc(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, ItemInput{SKU: "GLV-1", Name: "Gloves", Quantity: 5, Unit: "box"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	var buf bytes.Buffer
	if err := svc.ExportCSV(ctx, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus 1 row, got %d lines", len(lines))
	}
	if lines[0] != "SKU,Name,Category,Quantity,Unit,Location" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "GLV-1,Gloves,") {
		t.Fatalf("unexpected row %q", lines[1])
	}
}
