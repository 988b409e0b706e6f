package domain

import "time"

// Money is carried as int64 cents everywhere so conservation checks
// (sale total vs line items, drawer difference) stay exact.

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	PriceCents  int64     `json:"price_cents"`
	Stock       int       `json:"stock"`
	MinStock    int       `json:"min_stock"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	Stock       int    `json:"stock"`
	MinStock    int    `json:"min_stock"`
}

type ProductUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	PriceCents  *int64  `json:"price_cents,omitempty"`
	Stock       *int    `json:"stock,omitempty"`
	MinStock    *int    `json:"min_stock,omitempty"`
}

// SaleItem is a frozen snapshot of one line at the moment of sale.
// Later catalog price changes never touch historical subtotals.
type SaleItem struct {
	SaleID         string `json:"sale_id"`
	ProductID      string `json:"product_id"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

type Sale struct {
	ID            string     `json:"id"`
	ShiftID       string     `json:"shift_id"`
	OperatorID    string     `json:"operator_id"`
	TotalCents    int64      `json:"total_cents"`
	PaymentMethod string     `json:"payment_method"`
	ReceivedCents int64      `json:"received_cents"`
	ChangeCents   int64      `json:"change_cents"`
	CreatedAt     time.Time  `json:"created_at"`
	Items         []SaleItem `json:"items,omitempty"`
}

type SaleItemRequest struct {
	ProductID      string `json:"product_id"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Qty            int    `json:"qty"`
}

type SaleRequest struct {
	ShiftID       string            `json:"shift_id"`
	OperatorID    string            `json:"operator_id"`
	PaymentMethod string            `json:"payment_method"`
	ReceivedCents int64             `json:"received_cents"`
	Items         []SaleItemRequest `json:"items"`
}

type SaleResponse struct {
	SaleID      string `json:"sale_id"`
	TotalCents  int64  `json:"total_cents"`
	ChangeCents int64  `json:"change_cents"`
}

type CashShift struct {
	ID              string     `json:"id"`
	OperatorID      string     `json:"operator_id"`
	OpeningCents    int64      `json:"opening_cents"`
	ClosingCents    int64      `json:"closing_cents,omitempty"`
	ExpectedCents   int64      `json:"expected_cents,omitempty"`
	DifferenceCents int64      `json:"difference_cents,omitempty"`
	Status          string     `json:"status"`
	Notes           string     `json:"notes,omitempty"`
	OpenedAt        time.Time  `json:"opened_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
}

type ShiftOpenRequest struct {
	OperatorID   string `json:"operator_id"`
	OpeningCents int64  `json:"opening_cents"`
}

type ShiftOpenResponse struct {
	ShiftID      string `json:"shift_id"`
	OperatorID   string `json:"operator_id"`
	OpeningCents int64  `json:"opening_cents"`
}

type ShiftCloseRequest struct {
	ShiftID      string `json:"shift_id"`
	ClosingCents int64  `json:"closing_cents"`
	Notes        string `json:"notes"`
}

// ShiftCloseResponse is the reconciliation summary:
// expected = opening + total sales, difference = closing - expected.
type ShiftCloseResponse struct {
	ShiftID         string `json:"shift_id"`
	ClosingCents    int64  `json:"closing_cents"`
	ExpectedCents   int64  `json:"expected_cents"`
	DifferenceCents int64  `json:"difference_cents"`
	TotalSalesCents int64  `json:"total_sales_cents"`
}

// InventoryMovement is one append-only ledger entry. Every stock change,
// whether from a sale or a manual adjustment, produces exactly one entry.
type InventoryMovement struct {
	ID         string    `json:"id"`
	ProductID  string    `json:"product_id"`
	Direction  string    `json:"direction"`
	Qty        int       `json:"qty"`
	Reason     string    `json:"reason"`
	OperatorID string    `json:"operator_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type StockAdjustRequest struct {
	ProductID  string `json:"product_id"`
	NewStock   int    `json:"new_stock"`
	OperatorID string `json:"operator_id"`
	Reason     string `json:"reason"`
}

type StockAdjustResponse struct {
	ProductID string `json:"product_id"`
	NewStock  int    `json:"new_stock"`
}

type InventorySummary struct {
	TotalProducts   int   `json:"total_products"`
	TotalUnits      int   `json:"total_units"`
	LowStockCount   int   `json:"low_stock_count"`
	TotalValueCents int64 `json:"total_value_cents"`
}

type DailySalesRow struct {
	Date       string `json:"date"`
	SaleCount  int64  `json:"sale_count"`
	TotalCents int64  `json:"total_cents"`
}

type TopProductRow struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	TotalQty   int64  `json:"total_qty"`
	TotalCents int64  `json:"total_cents"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UserUpdateRequest struct {
	Password *string `json:"password,omitempty"`
	Active   *bool   `json:"active,omitempty"`
}

type UserView struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is the internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	ShiftStatusOpen   = "open"
	ShiftStatusClosed = "closed"
)

const (
	MovementIn  = "in"
	MovementOut = "out"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

const (
	ReasonSale       = "sale"
	ReasonAdjustment = "adjustment"
	ReasonInitial    = "initial"
)
