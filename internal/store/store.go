package store

import (
	"context"
	"errors"
	"time"

	"tiendapos/backend/internal/domain"
)

var (
	// ErrInvalid marks malformed or out-of-range input. No side effects occur.
	ErrInvalid = errors.New("invalid input")
	// ErrNotFound marks a referenced product, sale or shift that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a precondition violation against current state
	// (operator already has an open shift, shift already closed, ...).
	ErrConflict = errors.New("conflict")
	// ErrInsufficientStock rejects a sale whose requested quantity exceeds
	// current stock. Stock never goes negative.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrPersistence wraps a storage fault surfaced from a rolled-back
	// multi-step commit. Callers can rely on prior state being unchanged.
	ErrPersistence = errors.New("persistence failure")
)

type Repository interface {
	// Catalog.
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	SearchProducts(ctx context.Context, keyword string) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	// Sale commit: sale row, line items, stock decrements and one ledger
	// movement per distinct product, as a single atomic unit.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, limit int) ([]domain.Sale, error)
	ListSalesByShift(ctx context.Context, shiftID string) ([]domain.Sale, error)
	SumSalesByShift(ctx context.Context, shiftID string) (int64, error)
	SumSalesForDay(ctx context.Context, day time.Time, shiftID string) (int64, error)
	TopProductsForDay(ctx context.Context, day time.Time, limit int) ([]domain.TopProductRow, error)
	SalesByDateRange(ctx context.Context, from time.Time, to time.Time) ([]domain.DailySalesRow, error)

	// Drawer shifts. CreateShift is a compare-and-create: it fails with
	// ErrConflict when the operator already has an open shift.
	CreateShift(ctx context.Context, shift domain.CashShift) (*domain.CashShift, error)
	CloseShift(ctx context.Context, shiftID string, closingCents int64, notes string, closedAt time.Time) (*domain.ShiftCloseResponse, error)
	GetShift(ctx context.Context, id string) (*domain.CashShift, error)
	GetActiveShiftByOperator(ctx context.Context, operatorID string) (*domain.CashShift, error)
	GetGlobalActiveShift(ctx context.Context) (*domain.CashShift, error)
	ListShifts(ctx context.Context, limit int) ([]domain.CashShift, error)

	// Inventory ledger and stock.
	AddMovement(ctx context.Context, movement domain.InventoryMovement) (*domain.InventoryMovement, error)
	ListMovements(ctx context.Context, productID string, limit int) ([]domain.InventoryMovement, error)
	AdjustStock(ctx context.Context, productID string, newStock int, operatorID string, reason string) (*domain.StockAdjustResponse, error)
	// ReceiveStock applies an inbound delivery as a relative increment:
	// stock += qty and one `in` ledger entry, atomically, so concurrent
	// receives never lose updates.
	ReceiveStock(ctx context.Context, productID string, qty int, operatorID string, reason string) (*domain.StockAdjustResponse, error)
	LowStockProducts(ctx context.Context) ([]domain.Product, error)
	InventorySummary(ctx context.Context) (domain.InventorySummary, error)

	// Auth accounts.
	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUser(ctx context.Context, user domain.UserAccount) error
}
