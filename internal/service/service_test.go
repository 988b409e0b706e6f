package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tiendapos/backend/internal/cache"
	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.New()
	svc := New(repo, cache.NoopLowStockCache{}, 5*time.Second)

	for _, p := range []domain.Product{
		{ID: "prod-water", Name: "Agua 600ml", PriceCents: 1200, Stock: 40, MinStock: 10},
		{ID: "prod-bread", Name: "Pan Blanco", PriceCents: 3500, Stock: 12, MinStock: 5},
		{ID: "prod-soap", Name: "Jabón", PriceCents: 1500, Stock: 1, MinStock: 2},
	} {
		if _, err := repo.CreateProduct(context.Background(), p); err != nil {
			t.Fatalf("seed product %s: %v", p.ID, err)
		}
	}
	return svc, repo
}

func cashierCtx(name string) context.Context {
	return WithActor(context.Background(), domain.Actor{Username: name, Role: domain.RoleCashier})
}

func openTestShift(t *testing.T, svc *Service, ctx context.Context, openingCents int64) string {
	t.Helper()
	resp, err := svc.OpenShift(ctx, domain.ShiftOpenRequest{OpeningCents: openingCents})
	if err != nil {
		t.Fatalf("open shift failed: %v", err)
	}
	return resp.ShiftID
}

func TestCommitSaleComputesTotalAndChange(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx("carla")
	openTestShift(t, svc, ctx, 10000)

	resp, err := svc.CommitSale(ctx, domain.SaleRequest{
		ReceivedCents: 10000,
		Items: []domain.SaleItemRequest{
			{ProductID: "prod-water", UnitPriceCents: 1200, Qty: 3},
			{ProductID: "prod-bread", UnitPriceCents: 3500, Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}
	if resp.TotalCents != 7100 {
		t.Fatalf("expected total 7100, got %d", resp.TotalCents)
	}
	if resp.ChangeCents != 2900 {
		t.Fatalf("expected change 2900, got %d", resp.ChangeCents)
	}
}

func TestCommitSaleRejectsShortPayment(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx("carla")
	openTestShift(t, svc, ctx, 0)

	_, err := svc.CommitSale(ctx, domain.SaleRequest{
		ReceivedCents: 1000,
		Items: []domain.SaleItemRequest{
			{ProductID: "prod-water", UnitPriceCents: 1200, Qty: 1},
		},
	})
	if !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for short payment, got %v", err)
	}
}

func TestCommitSaleRequiresOpenShift(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx("nadia")

	_, err := svc.CommitSale(ctx, domain.SaleRequest{
		ReceivedCents: 2000,
		Items: []domain.SaleItemRequest{
			{ProductID: "prod-water", UnitPriceCents: 1200, Qty: 1},
		},
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict without an open shift, got %v", err)
	}
}

func TestCommitSaleDecrementsStockAndWritesLedger(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := cashierCtx("carla")
	openTestShift(t, svc, ctx, 0)

	// Two lines for the same product must aggregate into one movement.
	_, err := svc.CommitSale(ctx, domain.SaleRequest{
		ReceivedCents: 20000,
		Items: []domain.SaleItemRequest{
			{ProductID: "prod-water", UnitPriceCents: 1200, Qty: 2},
			{ProductID: "prod-bread", UnitPriceCents: 3500, Qty: 1},
			{ProductID: "prod-water", UnitPriceCents: 1200, Qty: 3},
		},
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}

	water, err := repo.GetProduct(ctx, "prod-water")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if water.Stock != 35 {
		t.Fatalf("expected water stock 35, got %d", water.Stock)
	}

	movements, err := repo.ListMovements(ctx, "prod-water", 10)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	saleMovements := movementsWithReason(movements, domain.ReasonSale)
	if len(saleMovements) != 1 {
		t.Fatalf("expected exactly one sale movement for prod-water, got %d", len(saleMovements))
	}
	m := saleMovements[0]
	if m.Direction != domain.MovementOut || m.Qty != 5 {
		t.Fatalf("unexpected movement %+v", m)
	}
}

func movementsWithReason(movements []domain.InventoryMovement, reason string) []domain.InventoryMovement {
	matched := make([]domain.InventoryMovement, 0, len(movements))
	for _, m := range movements {
		if m.Reason == reason {
			matched = append(matched, m)
		}
	}
	return matched
}

func TestCommitSaleInsufficientStockRejectsWholeSale(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := cashierCtx("carla")
	openTestShift(t, svc, ctx, 0)

	_, err := svc.CommitSale(ctx, domain.SaleRequest{
		ReceivedCents: 50000,
		Items: []domain.SaleItemRequest{
			{ProductID: "prod-water", UnitPriceCents: 1200, Qty: 1},
			{ProductID: "prod-soap", UnitPriceCents: 1500, Qty: 2},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// The in-stock line must not have been applied either.
	water, _ := repo.GetProduct(ctx, "prod-water")
	if water.Stock != 40 {
		t.Fatalf("expected water stock untouched at 40, got %d", water.Stock)
	}
	movements, _ := repo.ListMovements(ctx, "", 10)
	if sold := movementsWithReason(movements, domain.ReasonSale); len(sold) != 0 {
		t.Fatalf("expected no sale movements after rejected sale, got %d", len(sold))
	}
}

func TestOpenShiftSecondOpenConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx("carla")
	openTestShift(t, svc, ctx, 5000)

	_, err := svc.OpenShift(ctx, domain.ShiftOpenRequest{OpeningCents: 1000})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on second open, got %v", err)
	}
}

func TestOpenShiftConcurrentOpensAllowOnlyOne(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx("carla")

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.OpenShift(ctx, domain.ShiftOpenRequest{OpeningCents: 100})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one open to succeed, got %d", succeeded)
	}
}

func TestOpenShiftRejectsNegativeOpening(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.OpenShift(cashierCtx("carla"), domain.ShiftOpenRequest{OpeningCents: -1})
	if !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for negative opening, got %v", err)
	}
}

func TestOpenShiftDefaultsOpeningToZero(t *testing.T) {
	svc, _ := newTestService(t)
	resp, err := svc.OpenShift(cashierCtx("carla"), domain.ShiftOpenRequest{})
	if err != nil {
		t.Fatalf("open shift failed: %v", err)
	}
	if resp.OpeningCents != 0 {
		t.Fatalf("expected zero opening, got %d", resp.OpeningCents)
	}
}

func TestCloseShiftReconciliation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx("carla")
	shiftID := openTestShift(t, svc, ctx, 100)

	_, err := svc.CommitSale(ctx, domain.SaleRequest{
		ReceivedCents: 70,
		Items: []domain.SaleItemRequest{
			{ProductID: "prod-water", UnitPriceCents: 35, Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}

	summary, err := svc.CloseShift(ctx, domain.ShiftCloseRequest{ShiftID: shiftID, ClosingCents: 165})
	if err != nil {
		t.Fatalf("close shift failed: %v", err)
	}
	if summary.ExpectedCents != 170 {
		t.Fatalf("expected drawer 170, got %d", summary.ExpectedCents)
	}
	if summary.DifferenceCents != -5 {
		t.Fatalf("expected difference -5, got %d", summary.DifferenceCents)
	}
	if summary.TotalSalesCents != 70 {
		t.Fatalf("expected sales total 70, got %d", summary.TotalSalesCents)
	}
}

func TestCloseShiftTwiceConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx("carla")
	shiftID := openTestShift(t, svc, ctx, 1000)

	if _, err := svc.CloseShift(ctx, domain.ShiftCloseRequest{ShiftID: shiftID, ClosingCents: 1000}); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	_, err := svc.CloseShift(ctx, domain.ShiftCloseRequest{ShiftID: shiftID, ClosingCents: 1000})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on second close, got %v", err)
	}
}

func TestCloseShiftUnknownIDNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.CloseShift(cashierCtx("carla"), domain.ShiftCloseRequest{ShiftID: "shift-missing", ClosingCents: 0})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentSalesOfLastUnit(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := cashierCtx("carla")
	openTestShift(t, svc, ctx, 0)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CommitSale(ctx, domain.SaleRequest{
				ReceivedCents: 1500,
				Items: []domain.SaleItemRequest{
					{ProductID: "prod-soap", UnitPriceCents: 1500, Qty: 1},
				},
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrInsufficientStock):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one sale of the last unit, got %d", succeeded)
	}
	soap, _ := repo.GetProduct(ctx, "prod-soap")
	if soap.Stock != 0 {
		t.Fatalf("expected soap stock 0, got %d", soap.Stock)
	}
}

func TestAdjustStockRecordsLedgerDelta(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})

	resp, err := svc.AdjustStock(ctx, domain.StockAdjustRequest{ProductID: "prod-bread", NewStock: 0})
	if err != nil {
		t.Fatalf("adjust stock failed: %v", err)
	}
	if resp.NewStock != 0 {
		t.Fatalf("expected new stock 0, got %d", resp.NewStock)
	}

	movements, _ := repo.ListMovements(ctx, "prod-bread", 10)
	adjusted := movementsWithReason(movements, domain.ReasonAdjustment)
	if len(adjusted) != 1 {
		t.Fatalf("expected one adjustment movement, got %d", len(adjusted))
	}
	if adjusted[0].Direction != domain.MovementOut || adjusted[0].Qty != 12 {
		t.Fatalf("expected out movement of 12, got %+v", adjusted[0])
	}
}

func TestConcurrentReceivesDoNotLoseUpdates(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})

	const deliveries = 50
	var wg sync.WaitGroup
	errs := make([]error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ReceiveStock(ctx, "prod-bread", 1, "restock")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Fatalf("receive failed: %v", err)
		}
	}

	bread, err := repo.GetProduct(ctx, "prod-bread")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if bread.Stock != 12+deliveries {
		t.Fatalf("expected stock %d after %d receives, got %d", 12+deliveries, deliveries, bread.Stock)
	}

	movements, err := repo.ListMovements(ctx, "prod-bread", deliveries+10)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if restocked := movementsWithReason(movements, "restock"); len(restocked) != deliveries {
		t.Fatalf("expected %d restock movements, got %d", deliveries, len(restocked))
	}
}

func TestReceiveStockValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})

	if _, err := svc.ReceiveStock(ctx, "prod-bread", 0, ""); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for zero qty, got %v", err)
	}
	if _, err := svc.ReceiveStock(ctx, "prod-missing", 1, ""); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown product, got %v", err)
	}
}

func TestLowStockOrderedMostDepletedFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})

	// Bring bread to its minimum so both it and soap qualify.
	if _, err := svc.AdjustStock(ctx, domain.StockAdjustRequest{ProductID: "prod-bread", NewStock: 5}); err != nil {
		t.Fatalf("adjust stock failed: %v", err)
	}

	products, err := svc.LowStock(ctx)
	if err != nil {
		t.Fatalf("low stock failed: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 low-stock products, got %d", len(products))
	}
	if products[0].ID != "prod-soap" || products[1].ID != "prod-bread" {
		t.Fatalf("expected soap before bread, got %s then %s", products[0].ID, products[1].ID)
	}
}

type countingCache struct {
	mu          sync.Mutex
	products    []domain.Product
	fresh       bool
	hits        int
	sets        int
	invalidates int
}

func (c *countingCache) Get(context.Context) ([]domain.Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fresh {
		return nil, false
	}
	c.hits++
	return c.products, true
}

func (c *countingCache) Set(_ context.Context, products []domain.Product, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products = products
	c.fresh = true
	c.sets++
}

func (c *countingCache) Invalidate(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fresh = false
	c.invalidates++
}

func (c *countingCache) Close() error { return nil }

func TestLowStockCacheReadThroughAndInvalidation(t *testing.T) {
	repo := memory.New()
	lowStockCache := &countingCache{}
	svc := New(repo, lowStockCache, time.Minute)
	ctx := WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})

	if _, err := repo.CreateProduct(ctx, domain.Product{ID: "prod-a", Name: "A", PriceCents: 100, Stock: 1, MinStock: 5}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	if _, err := svc.LowStock(ctx); err != nil {
		t.Fatalf("first low stock failed: %v", err)
	}
	if _, err := svc.LowStock(ctx); err != nil {
		t.Fatalf("second low stock failed: %v", err)
	}
	if lowStockCache.sets != 1 || lowStockCache.hits != 1 {
		t.Fatalf("expected one set and one hit, got sets=%d hits=%d", lowStockCache.sets, lowStockCache.hits)
	}

	if _, err := svc.AdjustStock(ctx, domain.StockAdjustRequest{ProductID: "prod-a", NewStock: 10}); err != nil {
		t.Fatalf("adjust stock failed: %v", err)
	}
	if lowStockCache.invalidates == 0 {
		t.Fatalf("expected cache invalidation after stock adjust")
	}

	products, err := svc.LowStock(ctx)
	if err != nil {
		t.Fatalf("third low stock failed: %v", err)
	}
	if len(products) != 0 {
		t.Fatalf("expected no low-stock products after restock, got %d", len(products))
	}
}

func TestUpdateProductRejectsStockChanges(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})

	newStock := 99
	_, err := svc.UpdateProduct(ctx, "prod-water", domain.ProductUpdateRequest{Stock: &newStock})
	if !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for stock change through update, got %v", err)
	}
}

func TestShiftSalesListsOnlyThatShift(t *testing.T) {
	svc, _ := newTestService(t)
	carla := cashierCtx("carla")
	nadia := cashierCtx("nadia")
	carlaShift := openTestShift(t, svc, carla, 0)
	openTestShift(t, svc, nadia, 0)

	if _, err := svc.CommitSale(carla, domain.SaleRequest{
		ReceivedCents: 1200,
		Items:         []domain.SaleItemRequest{{ProductID: "prod-water", UnitPriceCents: 1200, Qty: 1}},
	}); err != nil {
		t.Fatalf("carla sale failed: %v", err)
	}
	if _, err := svc.CommitSale(nadia, domain.SaleRequest{
		ReceivedCents: 3500,
		Items:         []domain.SaleItemRequest{{ProductID: "prod-bread", UnitPriceCents: 3500, Qty: 1}},
	}); err != nil {
		t.Fatalf("nadia sale failed: %v", err)
	}

	sales, err := svc.ShiftSales(carla, carlaShift)
	if err != nil {
		t.Fatalf("shift sales failed: %v", err)
	}
	if len(sales) != 1 {
		t.Fatalf("expected 1 sale on carla's shift, got %d", len(sales))
	}
	if sales[0].TotalCents != 1200 {
		t.Fatalf("expected total 1200, got %d", sales[0].TotalCents)
	}
}

func TestHasOpenShift(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx("carla")

	open, err := svc.HasOpenShift(ctx, "carla")
	if err != nil {
		t.Fatalf("has open shift failed: %v", err)
	}
	if open {
		t.Fatalf("expected no open shift yet")
	}

	openTestShift(t, svc, ctx, 0)
	open, err = svc.HasOpenShift(ctx, "carla")
	if err != nil {
		t.Fatalf("has open shift failed: %v", err)
	}
	if !open {
		t.Fatalf("expected an open shift")
	}
}
