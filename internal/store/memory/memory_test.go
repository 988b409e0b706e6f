package memory

import (
	"context"
	"errors"
	"testing"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
)

func seedStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	ctx := context.Background()
	for _, p := range []domain.Product{
		{ID: "prod-a", Name: "A", PriceCents: 1000, Stock: 10, MinStock: 2},
		{ID: "prod-b", Name: "B", PriceCents: 2000, Stock: 5, MinStock: 1},
	} {
		if _, err := s.CreateProduct(ctx, p); err != nil {
			t.Fatalf("seed product %s: %v", p.ID, err)
		}
	}
	return s
}

func TestCreateSaleFaultMidCommitLeavesStateUntouched(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	shift, err := s.CreateShift(ctx, domain.CashShift{OperatorID: "carla", OpeningCents: 0})
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}

	// Fail while persisting the second line: the first line's stock
	// decrement must not survive.
	s.failSaleForProduct = "prod-b"
	_, err = s.CreateSale(ctx, domain.Sale{
		ShiftID:       shift.ID,
		OperatorID:    "carla",
		ReceivedCents: 5000,
		Items: []domain.SaleItem{
			{ProductID: "prod-a", Qty: 3, UnitPriceCents: 1000},
			{ProductID: "prod-b", Qty: 1, UnitPriceCents: 2000},
		},
	})
	if !errors.Is(err, store.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}

	a, err := s.GetProduct(ctx, "prod-a")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if a.Stock != 10 {
		t.Fatalf("expected prod-a stock untouched at 10, got %d", a.Stock)
	}
	sales, err := s.ListSales(ctx, 10)
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("expected no sales after fault, got %d", len(sales))
	}
	movements, err := s.ListMovements(ctx, "", 10)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	for _, m := range movements {
		if m.Reason == domain.ReasonSale {
			t.Fatalf("expected no sale movements after fault, got %+v", m)
		}
	}

	// The same sale commits cleanly once the fault clears.
	s.failSaleForProduct = ""
	sale, err := s.CreateSale(ctx, domain.Sale{
		ShiftID:       shift.ID,
		OperatorID:    "carla",
		ReceivedCents: 5000,
		Items: []domain.SaleItem{
			{ProductID: "prod-a", Qty: 3, UnitPriceCents: 1000},
			{ProductID: "prod-b", Qty: 1, UnitPriceCents: 2000},
		},
	})
	if err != nil {
		t.Fatalf("retry sale failed: %v", err)
	}
	if sale.TotalCents != 5000 {
		t.Fatalf("expected total 5000, got %d", sale.TotalCents)
	}
}

func TestCreateProductWritesOpeningLedgerEntry(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	movements, err := s.ListMovements(ctx, "prod-a", 10)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements) != 1 {
		t.Fatalf("expected one opening movement, got %d", len(movements))
	}
	m := movements[0]
	if m.Direction != domain.MovementIn || m.Qty != 10 || m.Reason != domain.ReasonInitial {
		t.Fatalf("unexpected opening movement %+v", m)
	}

	// No stock, no entry.
	if _, err := s.CreateProduct(ctx, domain.Product{ID: "prod-empty", Name: "Empty", PriceCents: 100}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	movements, err = s.ListMovements(ctx, "prod-empty", 10)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements) != 0 {
		t.Fatalf("expected no movement for zero opening stock, got %d", len(movements))
	}
}

func TestCreateSaleRejectsNonPositiveUnitPrice(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	shift, err := s.CreateShift(ctx, domain.CashShift{OperatorID: "carla"})
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}

	_, err = s.CreateSale(ctx, domain.Sale{
		ShiftID:       shift.ID,
		ReceivedCents: 1000,
		Items:         []domain.SaleItem{{ProductID: "prod-a", Qty: 1, UnitPriceCents: 0}},
	})
	if !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for zero unit price, got %v", err)
	}
}

func TestReceiveStockIncrementsAndRecords(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	resp, err := s.ReceiveStock(ctx, "prod-b", 7, "admin", "restock")
	if err != nil {
		t.Fatalf("receive stock: %v", err)
	}
	if resp.NewStock != 12 {
		t.Fatalf("expected stock 12 after receive, got %d", resp.NewStock)
	}

	if _, err := s.ReceiveStock(ctx, "prod-b", 0, "admin", "restock"); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for zero qty, got %v", err)
	}
	if _, err := s.ReceiveStock(ctx, "prod-missing", 1, "admin", "restock"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddMovementPureAppend(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	if _, err := s.AddMovement(ctx, domain.InventoryMovement{ProductID: "prod-missing", Direction: domain.MovementIn, Qty: 1}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown product, got %v", err)
	}
	if _, err := s.AddMovement(ctx, domain.InventoryMovement{ProductID: "prod-a", Direction: "sideways", Qty: 1}); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for bad direction, got %v", err)
	}
	if _, err := s.AddMovement(ctx, domain.InventoryMovement{ProductID: "prod-a", Direction: domain.MovementOut, Qty: 0}); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for zero qty, got %v", err)
	}

	created, err := s.AddMovement(ctx, domain.InventoryMovement{
		ProductID: "prod-a", Direction: domain.MovementOut, Qty: 2, Reason: domain.ReasonAdjustment,
	})
	if err != nil {
		t.Fatalf("add movement: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated movement id")
	}

	// AddMovement is bookkeeping only; stock stays with its owner paths.
	product, err := s.GetProduct(ctx, "prod-a")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 10 {
		t.Fatalf("expected stock unchanged at 10, got %d", product.Stock)
	}
}

func TestCreateSaleOnClosedShiftConflicts(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	shift, err := s.CreateShift(ctx, domain.CashShift{OperatorID: "carla"})
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}
	if _, err := s.CloseShift(ctx, shift.ID, 0, "", shift.OpenedAt); err != nil {
		t.Fatalf("close shift: %v", err)
	}

	_, err = s.CreateSale(ctx, domain.Sale{
		ShiftID:       shift.ID,
		ReceivedCents: 1000,
		Items:         []domain.SaleItem{{ProductID: "prod-a", Qty: 1, UnitPriceCents: 1000}},
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on closed shift, got %v", err)
	}
}

func TestDeleteProductReferencedBySaleConflicts(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	shift, err := s.CreateShift(ctx, domain.CashShift{OperatorID: "carla"})
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}
	if _, err := s.CreateSale(ctx, domain.Sale{
		ShiftID:       shift.ID,
		ReceivedCents: 1000,
		Items:         []domain.SaleItem{{ProductID: "prod-a", Qty: 1, UnitPriceCents: 1000}},
	}); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if err := s.DeleteProduct(ctx, "prod-a"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict deleting sold product, got %v", err)
	}
	if err := s.DeleteProduct(ctx, "prod-b"); err != nil {
		t.Fatalf("expected unsold product to delete, got %v", err)
	}
}

func TestGlobalActiveShiftPicksLatestOpen(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	if _, err := s.GetGlobalActiveShift(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound with no open shifts, got %v", err)
	}

	first, err := s.CreateShift(ctx, domain.CashShift{OperatorID: "carla"})
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}
	second, err := s.CreateShift(ctx, domain.CashShift{OperatorID: "nadia", OpenedAt: first.OpenedAt.Add(1)})
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}

	active, err := s.GetGlobalActiveShift(ctx)
	if err != nil {
		t.Fatalf("global active shift: %v", err)
	}
	if active.ID != second.ID {
		t.Fatalf("expected latest shift %s, got %s", second.ID, active.ID)
	}
}

func TestInventorySummaryCounts(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	if _, err := s.AdjustStock(ctx, "prod-b", 1, "admin", domain.ReasonAdjustment); err != nil {
		t.Fatalf("adjust stock: %v", err)
	}

	summary, err := s.InventorySummary(ctx)
	if err != nil {
		t.Fatalf("inventory summary: %v", err)
	}
	if summary.TotalProducts != 2 {
		t.Fatalf("expected 2 products, got %d", summary.TotalProducts)
	}
	if summary.TotalUnits != 11 {
		t.Fatalf("expected 11 units, got %d", summary.TotalUnits)
	}
	if summary.LowStockCount != 1 {
		t.Fatalf("expected 1 low-stock product, got %d", summary.LowStockCount)
	}
	if summary.TotalValueCents != 12000 {
		t.Fatalf("expected value 12000, got %d", summary.TotalValueCents)
	}
}
