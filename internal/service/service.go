package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tiendapos/backend/internal/cache"
	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
)

type contextKey string

const actorKey contextKey = "actor"

// WithActor attaches the authenticated actor to the context. The HTTP layer
// sets it after token verification; service methods read it for operator
// defaulting and attribution.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(domain.Actor)
	return actor, ok
}

// Service holds the business rules over a Repository: drawer shift
// lifecycle, atomic sale commit, catalog and inventory operations.
type Service struct {
	repo        store.Repository
	lowStock    cache.LowStockCache
	lowStockTTL time.Duration
}

func New(repo store.Repository, lowStock cache.LowStockCache, lowStockTTL time.Duration) *Service {
	if lowStock == nil {
		lowStock = cache.NoopLowStockCache{}
	}
	return &Service{repo: repo, lowStock: lowStock, lowStockTTL: lowStockTTL}
}

func (s *Service) operatorOrActor(ctx context.Context, operatorID string) string {
	if operatorID != "" {
		return operatorID
	}
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Username
	}
	return ""
}

// OpenShift opens a drawer shift for the operator. An operator can hold at
// most one open shift; a second open reports ErrConflict. A missing opening
// amount defaults to zero, a negative one is rejected.
func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (*domain.ShiftOpenResponse, error) {
	operatorID := s.operatorOrActor(ctx, req.OperatorID)
	if strings.TrimSpace(operatorID) == "" {
		return nil, fmt.Errorf("%w: operator is required", store.ErrInvalid)
	}
	if req.OpeningCents < 0 {
		return nil, fmt.Errorf("%w: opening amount cannot be negative", store.ErrInvalid)
	}

	shift, err := s.repo.CreateShift(ctx, domain.CashShift{
		OperatorID:   operatorID,
		OpeningCents: req.OpeningCents,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[service] shift %s opened by %s with %d cents", shift.ID, operatorID, shift.OpeningCents)
	return &domain.ShiftOpenResponse{
		ShiftID:      shift.ID,
		OperatorID:   shift.OperatorID,
		OpeningCents: shift.OpeningCents,
	}, nil
}

// CloseShift reconciles and closes a shift. Expected cash is the opening
// amount plus all sale totals recorded against the shift; the difference is
// the counted drawer minus expected, negative when cash is missing.
func (s *Service) CloseShift(ctx context.Context, req domain.ShiftCloseRequest) (*domain.ShiftCloseResponse, error) {
	shiftID := req.ShiftID
	if shiftID == "" {
		actor, ok := ActorFromContext(ctx)
		if !ok {
			return nil, fmt.Errorf("%w: shift id is required", store.ErrInvalid)
		}
		active, err := s.repo.GetActiveShiftByOperator(ctx, actor.Username)
		if err != nil {
			return nil, err
		}
		shiftID = active.ID
	}
	if req.ClosingCents < 0 {
		return nil, fmt.Errorf("%w: closing amount cannot be negative", store.ErrInvalid)
	}

	summary, err := s.repo.CloseShift(ctx, shiftID, req.ClosingCents, req.Notes, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	log.Printf("[service] shift %s closed: expected %d, counted %d, difference %d",
		summary.ShiftID, summary.ExpectedCents, summary.ClosingCents, summary.DifferenceCents)
	return summary, nil
}

func (s *Service) ActiveShiftFor(ctx context.Context, operatorID string) (*domain.CashShift, error) {
	operatorID = s.operatorOrActor(ctx, operatorID)
	if operatorID == "" {
		return nil, fmt.Errorf("%w: operator is required", store.ErrInvalid)
	}
	return s.repo.GetActiveShiftByOperator(ctx, operatorID)
}

func (s *Service) GlobalActiveShift(ctx context.Context) (*domain.CashShift, error) {
	return s.repo.GetGlobalActiveShift(ctx)
}

func (s *Service) HasOpenShift(ctx context.Context, operatorID string) (bool, error) {
	_, err := s.ActiveShiftFor(ctx, operatorID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (s *Service) Shift(ctx context.Context, id string) (*domain.CashShift, error) {
	return s.repo.GetShift(ctx, id)
}

func (s *Service) ListShifts(ctx context.Context, limit int) ([]domain.CashShift, error) {
	return s.repo.ListShifts(ctx, limit)
}

func (s *Service) ShiftSales(ctx context.Context, shiftID string) ([]domain.Sale, error) {
	if _, err := s.repo.GetShift(ctx, shiftID); err != nil {
		return nil, err
	}
	return s.repo.ListSalesByShift(ctx, shiftID)
}

// CommitSale validates the cart against the caller's open shift and commits
// it atomically: sale row, line items, stock decrements and ledger movements
// land together or not at all. The unit price in each line is the price
// snapshot the terminal saw; it is persisted as sent.
func (s *Service) CommitSale(ctx context.Context, req domain.SaleRequest) (*domain.SaleResponse, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: sale has no items", store.ErrInvalid)
	}
	operatorID := s.operatorOrActor(ctx, req.OperatorID)
	if operatorID == "" {
		return nil, fmt.Errorf("%w: operator is required", store.ErrInvalid)
	}

	shiftID := req.ShiftID
	if shiftID == "" {
		active, err := s.repo.GetActiveShiftByOperator(ctx, operatorID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: operator %s has no open shift", store.ErrConflict, operatorID)
			}
			return nil, err
		}
		shiftID = active.ID
	}

	total := int64(0)
	items := make([]domain.SaleItem, 0, len(req.Items))
	for _, item := range req.Items {
		if item.ProductID == "" {
			return nil, fmt.Errorf("%w: item is missing a product", store.ErrInvalid)
		}
		if item.Qty < 1 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", store.ErrInvalid, item.ProductID)
		}
		if item.UnitPriceCents <= 0 {
			return nil, fmt.Errorf("%w: unit price for %s must be positive", store.ErrInvalid, item.ProductID)
		}
		items = append(items, domain.SaleItem{
			ProductID:      item.ProductID,
			Qty:            item.Qty,
			UnitPriceCents: item.UnitPriceCents,
		})
		total += item.UnitPriceCents * int64(item.Qty)
	}
	if req.ReceivedCents < total {
		return nil, fmt.Errorf("%w: received %d is less than total %d", store.ErrInvalid, req.ReceivedCents, total)
	}

	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = "cash"
	}

	sale, err := s.repo.CreateSale(ctx, domain.Sale{
		ShiftID:       shiftID,
		OperatorID:    operatorID,
		PaymentMethod: paymentMethod,
		ReceivedCents: req.ReceivedCents,
		Items:         items,
	})
	if err != nil {
		return nil, err
	}
	s.lowStock.Invalidate(ctx)
	log.Printf("[service] sale %s committed on shift %s: total %d, change %d",
		sale.ID, sale.ShiftID, sale.TotalCents, sale.ChangeCents)
	return &domain.SaleResponse{
		SaleID:      sale.ID,
		TotalCents:  sale.TotalCents,
		ChangeCents: sale.ChangeCents,
	}, nil
}

func (s *Service) Sale(ctx context.Context, id string) (*domain.Sale, error) {
	return s.repo.GetSale(ctx, id)
}

func (s *Service) RecentSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx, limit)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	product, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Stock:       req.Stock,
		MinStock:    req.MinStock,
	})
	if err != nil {
		return nil, err
	}
	s.lowStock.Invalidate(ctx)
	return product, nil
}

func (s *Service) Product(ctx context.Context, id string) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) SearchProducts(ctx context.Context, keyword string) ([]domain.Product, error) {
	return s.repo.SearchProducts(ctx, keyword)
}

// UpdateProduct applies a partial update; absent fields keep their value.
// Stock changes must go through AdjustStock so the ledger stays complete.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	current, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		current.Name = *req.Name
	}
	if req.Description != nil {
		current.Description = *req.Description
	}
	if req.PriceCents != nil {
		current.PriceCents = *req.PriceCents
	}
	if req.MinStock != nil {
		current.MinStock = *req.MinStock
	}
	if req.Stock != nil && *req.Stock != current.Stock {
		return nil, fmt.Errorf("%w: stock changes go through the adjust endpoint", store.ErrInvalid)
	}

	updated, err := s.repo.UpdateProduct(ctx, *current)
	if err != nil {
		return nil, err
	}
	s.lowStock.Invalidate(ctx)
	return updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.lowStock.Invalidate(ctx)
	return nil
}

// AdjustStock sets the absolute stock level after a physical count. The
// delta is recorded in the ledger with direction derived from its sign.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) (*domain.StockAdjustResponse, error) {
	if req.ProductID == "" {
		return nil, fmt.Errorf("%w: product is required", store.ErrInvalid)
	}
	if req.NewStock < 0 {
		return nil, fmt.Errorf("%w: stock cannot be negative", store.ErrInvalid)
	}
	reason := req.Reason
	if reason == "" {
		reason = domain.ReasonAdjustment
	}

	resp, err := s.repo.AdjustStock(ctx, req.ProductID, req.NewStock, s.operatorOrActor(ctx, req.OperatorID), reason)
	if err != nil {
		return nil, err
	}
	s.lowStock.Invalidate(ctx)
	return resp, nil
}

// ReceiveStock records an inbound delivery: stock goes up by qty and the
// ledger gains one entry. The increment happens inside the store so two
// deliveries for the same product cannot overwrite each other.
func (s *Service) ReceiveStock(ctx context.Context, productID string, qty int, reason string) (*domain.StockAdjustResponse, error) {
	if productID == "" {
		return nil, fmt.Errorf("%w: product is required", store.ErrInvalid)
	}
	if qty < 1 {
		return nil, fmt.Errorf("%w: quantity must be positive", store.ErrInvalid)
	}
	if reason == "" {
		reason = "restock"
	}
	resp, err := s.repo.ReceiveStock(ctx, productID, qty, s.operatorOrActor(ctx, ""), reason)
	if err != nil {
		return nil, err
	}
	s.lowStock.Invalidate(ctx)
	return resp, nil
}

func (s *Service) Movements(ctx context.Context, productID string, limit int) ([]domain.InventoryMovement, error) {
	return s.repo.ListMovements(ctx, productID, limit)
}

// LowStock lists products at or below their minimum, most depleted first.
// The result is served from cache when fresh.
func (s *Service) LowStock(ctx context.Context) ([]domain.Product, error) {
	if products, ok := s.lowStock.Get(ctx); ok {
		return products, nil
	}
	products, err := s.repo.LowStockProducts(ctx)
	if err != nil {
		return nil, err
	}
	s.lowStock.Set(ctx, products, s.lowStockTTL)
	return products, nil
}

func (s *Service) InventorySummary(ctx context.Context) (domain.InventorySummary, error) {
	return s.repo.InventorySummary(ctx)
}

func (s *Service) TodaySales(ctx context.Context, shiftID string) (int64, error) {
	return s.repo.SumSalesForDay(ctx, time.Now().UTC(), shiftID)
}

func (s *Service) TopProductsToday(ctx context.Context, limit int) ([]domain.TopProductRow, error) {
	return s.repo.TopProductsForDay(ctx, time.Now().UTC(), limit)
}

func (s *Service) SalesByDateRange(ctx context.Context, from, to time.Time) ([]domain.DailySalesRow, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end before start", store.ErrInvalid)
	}
	return s.repo.SalesByDateRange(ctx, from, to)
}

