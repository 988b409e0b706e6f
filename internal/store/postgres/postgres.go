package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/xid"
)

// Store implements store.Repository on PostgreSQL through database/sql with
// the pgx stdlib driver.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			price_cents BIGINT NOT NULL CHECK (price_cents >= 0),
			stock INTEGER NOT NULL CHECK (stock >= 0),
			min_stock INTEGER NOT NULL DEFAULT 0 CHECK (min_stock >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS cash_shifts (
			id TEXT PRIMARY KEY,
			operator_id TEXT NOT NULL,
			opening_cents BIGINT NOT NULL CHECK (opening_cents >= 0),
			closing_cents BIGINT NOT NULL DEFAULT 0,
			expected_cents BIGINT NOT NULL DEFAULT 0,
			difference_cents BIGINT NOT NULL DEFAULT 0,
			status TEXT NOT NULL CHECK (status IN ('open', 'closed')),
			notes TEXT NOT NULL DEFAULT '',
			opened_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			closed_at TIMESTAMPTZ
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS cash_shifts_one_open_per_operator
			ON cash_shifts (operator_id) WHERE status = 'open'`,
		`CREATE TABLE IF NOT EXISTS sales (
			id TEXT PRIMARY KEY,
			shift_id TEXT NOT NULL REFERENCES cash_shifts(id),
			operator_id TEXT NOT NULL,
			total_cents BIGINT NOT NULL CHECK (total_cents >= 0),
			payment_method TEXT NOT NULL DEFAULT 'cash',
			received_cents BIGINT NOT NULL,
			change_cents BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS sales_by_shift ON sales (shift_id)`,
		`CREATE INDEX IF NOT EXISTS sales_by_created ON sales (created_at)`,
		`CREATE TABLE IF NOT EXISTS sale_items (
			sale_id TEXT NOT NULL REFERENCES sales(id),
			product_id TEXT NOT NULL REFERENCES products(id),
			qty INTEGER NOT NULL CHECK (qty > 0),
			unit_price_cents BIGINT NOT NULL CHECK (unit_price_cents > 0),
			subtotal_cents BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS sale_items_by_sale ON sale_items (sale_id)`,
		`CREATE TABLE IF NOT EXISTS inventory_movements (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL REFERENCES products(id),
			direction TEXT NOT NULL CHECK (direction IN ('in', 'out')),
			qty INTEGER NOT NULL CHECK (qty > 0),
			reason TEXT NOT NULL DEFAULT '',
			operator_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS inventory_movements_by_product
			ON inventory_movements (product_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL CHECK (role IN ('admin', 'cashier')),
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.Name == "" || product.PriceCents < 0 || product.Stock < 0 || product.MinStock < 0 {
		return nil, store.ErrInvalid
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin product tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO products (id, name, description, price_cents, stock, min_stock, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		product.ID, product.Name, product.Description, product.PriceCents,
		product.Stock, product.MinStock, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, fmt.Errorf("insert product: %w", err)
	}

	// Opening stock lands in the ledger within the same transaction, so a
	// product can never exist with units the ledger does not explain.
	if product.Stock > 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO inventory_movements (id, product_id, direction, qty, reason, operator_id, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			xid.New("mov"), product.ID, domain.MovementIn, product.Stock,
			domain.ReasonInitial, "", product.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: insert opening movement: %v", store.ErrPersistence, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit product: %v", store.ErrPersistence, err)
	}
	return &product, nil
}

const productColumns = `id, name, description, price_cents, stock, min_stock, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Stock, &p.MinStock, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	product, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &product, nil
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 16)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY name`)
}

func (s *Store) SearchProducts(ctx context.Context, keyword string) ([]domain.Product, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return s.ListProducts(ctx)
	}
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE name ILIKE $1 ORDER BY name`,
		"%"+keyword+"%")
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.ID == "" || product.Name == "" || product.PriceCents < 0 || product.Stock < 0 || product.MinStock < 0 {
		return nil, store.ErrInvalid
	}

	row := s.db.QueryRowContext(ctx,
		`UPDATE products
		 SET name = $2, description = $3, price_cents = $4, stock = $5, min_stock = $6, updated_at = now()
		 WHERE id = $1
		 RETURNING `+productColumns,
		product.ID, product.Name, product.Description, product.PriceCents, product.Stock, product.MinStock)
	updated, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("delete product: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreateSale persists the sale header, its line items, the stock decrements
// and one outbound ledger movement per distinct product inside a single
// serializable transaction. Product rows are locked with FOR UPDATE so
// concurrent sales of the last unit serialize instead of both succeeding.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 || sale.ShiftID == "" {
		return nil, store.ErrInvalid
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	qtyByProduct := make(map[string]int, len(sale.Items))
	order := make([]string, 0, len(sale.Items))
	for _, item := range sale.Items {
		if item.Qty < 1 || item.UnitPriceCents <= 0 {
			return nil, store.ErrInvalid
		}
		if _, seen := qtyByProduct[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		qtyByProduct[item.ProductID] += item.Qty
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin sale tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var shiftStatus string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM cash_shifts WHERE id = $1 FOR UPDATE`, sale.ShiftID).Scan(&shiftStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock shift: %w", err)
	}
	if shiftStatus != domain.ShiftStatusOpen {
		return nil, store.ErrConflict
	}

	// Lock in a stable order to avoid deadlocks between concurrent sales.
	for _, productID := range order {
		var stock int
		err = tx.QueryRowContext(ctx,
			`SELECT stock FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&stock)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("lock product %s: %w", productID, err)
		}
		if stock < qtyByProduct[productID] {
			return nil, store.ErrInsufficientStock
		}
	}

	total := int64(0)
	for i := range sale.Items {
		sale.Items[i].SaleID = sale.ID
		sale.Items[i].SubtotalCents = sale.Items[i].UnitPriceCents * int64(sale.Items[i].Qty)
		total += sale.Items[i].SubtotalCents
	}
	sale.TotalCents = total
	sale.ChangeCents = sale.ReceivedCents - total

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sales (id, shift_id, operator_id, total_cents, payment_method, received_cents, change_cents, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sale.ID, sale.ShiftID, sale.OperatorID, sale.TotalCents,
		sale.PaymentMethod, sale.ReceivedCents, sale.ChangeCents, sale.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: insert sale: %v", store.ErrPersistence, err)
	}

	for _, item := range sale.Items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO sale_items (sale_id, product_id, qty, unit_price_cents, subtotal_cents)
			 VALUES ($1, $2, $3, $4, $5)`,
			item.SaleID, item.ProductID, item.Qty, item.UnitPriceCents, item.SubtotalCents)
		if err != nil {
			return nil, fmt.Errorf("%w: insert sale item %s: %v", store.ErrPersistence, item.ProductID, err)
		}
	}

	for _, productID := range order {
		_, err = tx.ExecContext(ctx,
			`UPDATE products SET stock = stock - $2, updated_at = $3 WHERE id = $1`,
			productID, qtyByProduct[productID], sale.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: decrement stock %s: %v", store.ErrPersistence, productID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO inventory_movements (id, product_id, direction, qty, reason, operator_id, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			xid.New("mov"), productID, domain.MovementOut, qtyByProduct[productID],
			domain.ReasonSale, sale.OperatorID, sale.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: insert movement %s: %v", store.ErrPersistence, productID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit sale: %v", store.ErrPersistence, err)
	}
	return &sale, nil
}

const saleColumns = `id, shift_id, operator_id, total_cents, payment_method, received_cents, change_cents, created_at`

func scanSale(row interface{ Scan(...any) error }) (domain.Sale, error) {
	var sale domain.Sale
	err := row.Scan(&sale.ID, &sale.ShiftID, &sale.OperatorID, &sale.TotalCents,
		&sale.PaymentMethod, &sale.ReceivedCents, &sale.ChangeCents, &sale.CreatedAt)
	return sale, err
}

func (s *Store) loadSaleItems(ctx context.Context, sales []domain.Sale) error {
	for i := range sales {
		rows, err := s.db.QueryContext(ctx,
			`SELECT sale_id, product_id, qty, unit_price_cents, subtotal_cents
			 FROM sale_items WHERE sale_id = $1`, sales[i].ID)
		if err != nil {
			return fmt.Errorf("query sale items: %w", err)
		}
		for rows.Next() {
			var item domain.SaleItem
			if err := rows.Scan(&item.SaleID, &item.ProductID, &item.Qty, &item.UnitPriceCents, &item.SubtotalCents); err != nil {
				rows.Close()
				return fmt.Errorf("scan sale item: %w", err)
			}
			sales[i].Items = append(sales[i].Items, item)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}
	return nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	sale, err := scanSale(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sale: %w", err)
	}
	sales := []domain.Sale{sale}
	if err := s.loadSaleItems(ctx, sales); err != nil {
		return nil, err
	}
	return &sales[0], nil
}

func (s *Store) querySales(ctx context.Context, query string, args ...any) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 16)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadSaleItems(ctx, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}
	return s.querySales(ctx,
		`SELECT `+saleColumns+` FROM sales ORDER BY created_at DESC LIMIT $1`, limit)
}

func (s *Store) ListSalesByShift(ctx context.Context, shiftID string) ([]domain.Sale, error) {
	return s.querySales(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE shift_id = $1 ORDER BY created_at DESC`, shiftID)
}

func (s *Store) SumSalesByShift(ctx context.Context, shiftID string) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_cents), 0) FROM sales WHERE shift_id = $1`, shiftID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum sales by shift: %w", err)
	}
	return total, nil
}

func (s *Store) SumSalesForDay(ctx context.Context, day time.Time, shiftID string) (int64, error) {
	date := day.UTC().Format("2006-01-02")
	query := `SELECT COALESCE(SUM(total_cents), 0) FROM sales WHERE (created_at AT TIME ZONE 'UTC')::date = $1`
	args := []any{date}
	if shiftID != "" {
		query += ` AND shift_id = $2`
		args = append(args, shiftID)
	}
	var total int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum sales for day: %w", err)
	}
	return total, nil
}

func (s *Store) TopProductsForDay(ctx context.Context, day time.Time, limit int) ([]domain.TopProductRow, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT si.product_id, COALESCE(p.name, si.product_id), SUM(si.qty), SUM(si.subtotal_cents)
		 FROM sale_items si
		 JOIN sales s ON s.id = si.sale_id
		 LEFT JOIN products p ON p.id = si.product_id
		 WHERE (s.created_at AT TIME ZONE 'UTC')::date = $1
		 GROUP BY si.product_id, p.name
		 ORDER BY SUM(si.qty) DESC, si.product_id
		 LIMIT $2`,
		day.UTC().Format("2006-01-02"), limit)
	if err != nil {
		return nil, fmt.Errorf("query top products: %w", err)
	}
	defer rows.Close()

	result := make([]domain.TopProductRow, 0, limit)
	for rows.Next() {
		var row domain.TopProductRow
		if err := rows.Scan(&row.ProductID, &row.Name, &row.TotalQty, &row.TotalCents); err != nil {
			return nil, fmt.Errorf("scan top product: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (s *Store) SalesByDateRange(ctx context.Context, from time.Time, to time.Time) ([]domain.DailySalesRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT (created_at AT TIME ZONE 'UTC')::date::text, COUNT(*), COALESCE(SUM(total_cents), 0)
		 FROM sales
		 WHERE (created_at AT TIME ZONE 'UTC')::date BETWEEN $1 AND $2
		 GROUP BY 1
		 ORDER BY 1 DESC`,
		from.UTC().Format("2006-01-02"), to.UTC().Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("query sales by range: %w", err)
	}
	defer rows.Close()

	result := make([]domain.DailySalesRow, 0, 8)
	for rows.Next() {
		var row domain.DailySalesRow
		if err := rows.Scan(&row.Date, &row.SaleCount, &row.TotalCents); err != nil {
			return nil, fmt.Errorf("scan daily sales: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// CreateShift relies on the partial unique index over open shifts: the insert
// itself is the compare-and-create, so two racing opens cannot both land.
func (s *Store) CreateShift(ctx context.Context, shift domain.CashShift) (*domain.CashShift, error) {
	if strings.TrimSpace(shift.OperatorID) == "" || shift.OpeningCents < 0 {
		return nil, store.ErrInvalid
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.OpenedAt.IsZero() {
		shift.OpenedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen
	shift.ClosedAt = nil

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cash_shifts (id, operator_id, opening_cents, status, notes, opened_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		shift.ID, shift.OperatorID, shift.OpeningCents, shift.Status, shift.Notes, shift.OpenedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, fmt.Errorf("insert shift: %w", err)
	}
	return &shift, nil
}

// CloseShift computes the expected drawer total from the shift's opening
// amount plus its recorded sales, then closes the row. The UPDATE is guarded
// by status = 'open' so a second close reports ErrConflict.
func (s *Store) CloseShift(ctx context.Context, shiftID string, closingCents int64, notes string, closedAt time.Time) (*domain.ShiftCloseResponse, error) {
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin close tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var opening int64
	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT opening_cents, status FROM cash_shifts WHERE id = $1 FOR UPDATE`, shiftID).
		Scan(&opening, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock shift: %w", err)
	}
	if status != domain.ShiftStatusOpen {
		return nil, store.ErrConflict
	}

	var totalSales int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_cents), 0) FROM sales WHERE shift_id = $1`, shiftID).Scan(&totalSales)
	if err != nil {
		return nil, fmt.Errorf("sum shift sales: %w", err)
	}

	expected := opening + totalSales
	difference := closingCents - expected

	_, err = tx.ExecContext(ctx,
		`UPDATE cash_shifts
		 SET status = 'closed', closing_cents = $2, expected_cents = $3,
		     difference_cents = $4, notes = $5, closed_at = $6
		 WHERE id = $1 AND status = 'open'`,
		shiftID, closingCents, expected, difference, notes, closedAt)
	if err != nil {
		return nil, fmt.Errorf("close shift: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit close: %w", err)
	}

	return &domain.ShiftCloseResponse{
		ShiftID:         shiftID,
		ClosingCents:    closingCents,
		ExpectedCents:   expected,
		DifferenceCents: difference,
		TotalSalesCents: totalSales,
	}, nil
}

const shiftColumns = `id, operator_id, opening_cents, closing_cents, expected_cents, difference_cents, status, notes, opened_at, closed_at`

func scanShift(row interface{ Scan(...any) error }) (domain.CashShift, error) {
	var shift domain.CashShift
	var closedAt sql.NullTime
	err := row.Scan(&shift.ID, &shift.OperatorID, &shift.OpeningCents, &shift.ClosingCents,
		&shift.ExpectedCents, &shift.DifferenceCents, &shift.Status, &shift.Notes,
		&shift.OpenedAt, &closedAt)
	if closedAt.Valid {
		t := closedAt.Time
		shift.ClosedAt = &t
	}
	return shift, err
}

func (s *Store) GetShift(ctx context.Context, id string) (*domain.CashShift, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+shiftColumns+` FROM cash_shifts WHERE id = $1`, id)
	shift, err := scanShift(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get shift: %w", err)
	}
	return &shift, nil
}

func (s *Store) GetActiveShiftByOperator(ctx context.Context, operatorID string) (*domain.CashShift, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+shiftColumns+` FROM cash_shifts WHERE operator_id = $1 AND status = 'open'`, operatorID)
	shift, err := scanShift(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active shift: %w", err)
	}
	return &shift, nil
}

func (s *Store) GetGlobalActiveShift(ctx context.Context) (*domain.CashShift, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+shiftColumns+` FROM cash_shifts WHERE status = 'open' ORDER BY opened_at DESC LIMIT 1`)
	shift, err := scanShift(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get global active shift: %w", err)
	}
	return &shift, nil
}

func (s *Store) ListShifts(ctx context.Context, limit int) ([]domain.CashShift, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+shiftColumns+` FROM cash_shifts ORDER BY opened_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query shifts: %w", err)
	}
	defer rows.Close()

	shifts := make([]domain.CashShift, 0, limit)
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shift: %w", err)
		}
		shifts = append(shifts, shift)
	}
	return shifts, rows.Err()
}

func (s *Store) AddMovement(ctx context.Context, movement domain.InventoryMovement) (*domain.InventoryMovement, error) {
	if movement.Qty < 1 {
		return nil, store.ErrInvalid
	}
	if movement.Direction != domain.MovementIn && movement.Direction != domain.MovementOut {
		return nil, store.ErrInvalid
	}
	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inventory_movements (id, product_id, direction, qty, reason, operator_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		movement.ID, movement.ProductID, movement.Direction, movement.Qty,
		movement.Reason, movement.OperatorID, movement.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("insert movement: %w", err)
	}
	return &movement, nil
}

func (s *Store) ListMovements(ctx context.Context, productID string, limit int) ([]domain.InventoryMovement, error) {
	if limit < 1 {
		limit = 100
	}
	query := `SELECT id, product_id, direction, qty, reason, operator_id, created_at
	          FROM inventory_movements`
	args := []any{}
	if productID != "" {
		query += ` WHERE product_id = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, productID, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	movements := make([]domain.InventoryMovement, 0, limit)
	for rows.Next() {
		var m domain.InventoryMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Direction, &m.Qty, &m.Reason, &m.OperatorID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// AdjustStock sets the absolute stock level and records the delta as a ledger
// movement, both inside one transaction.
func (s *Store) AdjustStock(ctx context.Context, productID string, newStock int, operatorID string, reason string) (*domain.StockAdjustResponse, error) {
	if newStock < 0 {
		return nil, store.ErrInvalid
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin adjust tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int
	err = tx.QueryRowContext(ctx,
		`SELECT stock FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock product: %w", err)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`UPDATE products SET stock = $2, updated_at = $3 WHERE id = $1`,
		productID, newStock, now)
	if err != nil {
		return nil, fmt.Errorf("%w: adjust stock: %v", store.ErrPersistence, err)
	}

	if delta := newStock - current; delta != 0 {
		direction := domain.MovementIn
		if delta < 0 {
			direction = domain.MovementOut
			delta = -delta
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO inventory_movements (id, product_id, direction, qty, reason, operator_id, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			xid.New("mov"), productID, direction, delta, reason, operatorID, now)
		if err != nil {
			return nil, fmt.Errorf("%w: record adjustment: %v", store.ErrPersistence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit adjust: %v", store.ErrPersistence, err)
	}
	return &domain.StockAdjustResponse{ProductID: productID, NewStock: newStock}, nil
}

// ReceiveStock increments stock relative to the locked row, so concurrent
// receives serialize on the product instead of overwriting each other.
func (s *Store) ReceiveStock(ctx context.Context, productID string, qty int, operatorID string, reason string) (*domain.StockAdjustResponse, error) {
	if qty < 1 {
		return nil, store.ErrInvalid
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin receive tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int
	err = tx.QueryRowContext(ctx,
		`SELECT stock FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock product: %w", err)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`UPDATE products SET stock = stock + $2, updated_at = $3 WHERE id = $1`,
		productID, qty, now)
	if err != nil {
		return nil, fmt.Errorf("%w: receive stock: %v", store.ErrPersistence, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO inventory_movements (id, product_id, direction, qty, reason, operator_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		xid.New("mov"), productID, domain.MovementIn, qty, reason, operatorID, now)
	if err != nil {
		return nil, fmt.Errorf("%w: record receipt: %v", store.ErrPersistence, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit receive: %v", store.ErrPersistence, err)
	}
	return &domain.StockAdjustResponse{ProductID: productID, NewStock: current + qty}, nil
}

func (s *Store) LowStockProducts(ctx context.Context) ([]domain.Product, error) {
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE stock <= min_stock ORDER BY stock, name`)
}

func (s *Store) InventorySummary(ctx context.Context) (domain.InventorySummary, error) {
	var summary domain.InventorySummary
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(stock), 0),
		        COALESCE(SUM(stock::bigint * price_cents), 0),
		        COUNT(*) FILTER (WHERE stock <= min_stock)
		 FROM products`).
		Scan(&summary.TotalProducts, &summary.TotalUnits, &summary.TotalValueCents, &summary.LowStockCount)
	if err != nil {
		return domain.InventorySummary{}, fmt.Errorf("inventory summary: %w", err)
	}
	return summary, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalid
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, role, active, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx,
		`SELECT username, password_hash, role, active, created_at FROM users WHERE username = $1`, username).
		Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT username, password_hash, role, active, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, user domain.UserAccount) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users
		 SET password_hash = CASE WHEN $2 = '' THEN password_hash ELSE $2 END,
		     role = CASE WHEN $3 = '' THEN role ELSE $3 END,
		     active = $4
		 WHERE username = $1`,
		user.Username, user.Password, user.Role, user.Active)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
