package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/xid"
)

// Store is a mutex-guarded in-memory Repository used by tests and as the
// no-database dev mode. Multi-step commits are staged on copies and swapped
// in only on success, so a mid-commit fault leaves prior state untouched.
type Store struct {
	mu                  sync.RWMutex
	products            map[string]domain.Product
	salesByID           map[string]domain.Sale
	saleOrder           []string
	shiftsByID          map[string]domain.CashShift
	shiftOrder          []string
	openShiftByOperator map[string]string
	movements           []domain.InventoryMovement
	usersByUsername     map[string]domain.UserAccount

	// failSaleForProduct simulates a storage fault while persisting the line
	// for the given product id. Set only from tests in this package.
	failSaleForProduct string
}

func New() *Store {
	return &Store{
		products:            make(map[string]domain.Product),
		salesByID:           make(map[string]domain.Sale),
		shiftsByID:          make(map[string]domain.CashShift),
		openShiftByOperator: make(map[string]string),
		usersByUsername:     make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store preloaded with a small catalog and dev users.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	seed := []domain.Product{
		{ID: "prod-agua-600", Name: "Agua Mineral 600ml", Description: "botella", PriceCents: 1200, Stock: 48, MinStock: 10},
		{ID: "prod-refresco-cola", Name: "Refresco Cola 600ml", Description: "botella", PriceCents: 1900, Stock: 36, MinStock: 8},
		{ID: "prod-pan-blanco", Name: "Pan Blanco", Description: "paquete 680g", PriceCents: 3950, Stock: 15, MinStock: 5},
		{ID: "prod-leche-1l", Name: "Leche Entera 1L", Description: "", PriceCents: 2650, Stock: 24, MinStock: 6},
		{ID: "prod-arroz-1kg", Name: "Arroz 1kg", Description: "", PriceCents: 3200, Stock: 30, MinStock: 5},
		{ID: "prod-jabon", Name: "Jabón de Tocador", Description: "barra 90g", PriceCents: 1500, Stock: 12, MinStock: 5},
		{ID: "prod-galletas", Name: "Galletas Surtidas", Description: "", PriceCents: 2100, Stock: 20, MinStock: 5},
		{ID: "prod-cafe-250", Name: "Café Molido 250g", Description: "", PriceCents: 7800, Stock: 9, MinStock: 4},
	}
	for _, p := range seed {
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}

	for username, user := range seedUsers() {
		s.usersByUsername[username] = user
	}
	return s
}

// seedUsers builds the initial accounts for dev/demo mode. Credentials come
// from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; hardcoded dev defaults
// are used with a warning when unset.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.Name == "" || product.PriceCents < 0 || product.Stock < 0 || product.MinStock < 0 {
		return nil, store.ErrInvalid
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	s.products[product.ID] = product
	if product.Stock > 0 {
		// Opening stock gets its ledger entry in the same critical section
		// as the insert, so the ledger explains every unit on hand.
		s.movements = append(s.movements, domain.InventoryMovement{
			ID:        xid.New("mov"),
			ProductID: product.ID,
			Direction: domain.MovementIn,
			Qty:       product.Stock,
			Reason:    domain.ReasonInitial,
			CreatedAt: product.CreatedAt,
		})
	}
	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := product
	return &found, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (s *Store) SearchProducts(_ context.Context, keyword string) ([]domain.Product, error) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	s.mu.RLock()
	defer s.mu.RUnlock()
	products := make([]domain.Product, 0, 8)
	for _, p := range s.products {
		if keyword == "" || strings.Contains(strings.ToLower(p.Name), keyword) {
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.ID == "" || product.Name == "" || product.PriceCents < 0 || product.Stock < 0 || product.MinStock < 0 {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	// Products referenced by historical sales stay on the books.
	for _, sale := range s.salesByID {
		for _, item := range sale.Items {
			if item.ProductID == id {
				return store.ErrConflict
			}
		}
	}
	delete(s.products, id)
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 || sale.ShiftID == "" {
		return nil, store.ErrInvalid
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shiftsByID[sale.ShiftID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrConflict
	}

	// Requested quantity per distinct product.
	qtyByProduct := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		if item.Qty < 1 || item.UnitPriceCents <= 0 {
			return nil, store.ErrInvalid
		}
		qtyByProduct[item.ProductID] += item.Qty
	}

	// Stage product mutations; nothing is visible until the swap below.
	staged := make(map[string]domain.Product, len(qtyByProduct))
	for productID, qty := range qtyByProduct {
		product, exists := s.products[productID]
		if !exists {
			return nil, store.ErrNotFound
		}
		if product.Stock < qty {
			return nil, store.ErrInsufficientStock
		}
		product.Stock -= qty
		product.UpdatedAt = sale.CreatedAt
		staged[productID] = product
	}

	total := int64(0)
	items := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		if s.failSaleForProduct != "" && s.failSaleForProduct == item.ProductID {
			return nil, fmt.Errorf("%w: simulated fault on %s", store.ErrPersistence, item.ProductID)
		}
		subtotal := item.UnitPriceCents * int64(item.Qty)
		items = append(items, domain.SaleItem{
			SaleID:         sale.ID,
			ProductID:      item.ProductID,
			Qty:            item.Qty,
			UnitPriceCents: item.UnitPriceCents,
			SubtotalCents:  subtotal,
		})
		total += subtotal
	}
	sale.TotalCents = total
	sale.ChangeCents = sale.ReceivedCents - total
	sale.Items = items

	// Commit point: apply staged state, append ledger entries.
	for productID, product := range staged {
		s.products[productID] = product
	}
	s.salesByID[sale.ID] = sale
	s.saleOrder = append(s.saleOrder, sale.ID)

	productIDs := make([]string, 0, len(qtyByProduct))
	for productID := range qtyByProduct {
		productIDs = append(productIDs, productID)
	}
	sort.Strings(productIDs)
	for _, productID := range productIDs {
		s.movements = append(s.movements, domain.InventoryMovement{
			ID:         xid.New("mov"),
			ProductID:  productID,
			Direction:  domain.MovementOut,
			Qty:        qtyByProduct[productID],
			Reason:     domain.ReasonSale,
			OperatorID: sale.OperatorID,
			CreatedAt:  sale.CreatedAt,
		})
	}

	created := sale
	return &created, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := sale
	return &found, nil
}

func (s *Store) ListSales(_ context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sales := make([]domain.Sale, 0, limit)
	for i := len(s.saleOrder) - 1; i >= 0 && len(sales) < limit; i-- {
		sales = append(sales, s.salesByID[s.saleOrder[i]])
	}
	return sales, nil
}

func (s *Store) ListSalesByShift(_ context.Context, shiftID string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sales := make([]domain.Sale, 0, 16)
	for i := len(s.saleOrder) - 1; i >= 0; i-- {
		sale := s.salesByID[s.saleOrder[i]]
		if sale.ShiftID == shiftID {
			sales = append(sales, sale)
		}
	}
	return sales, nil
}

func (s *Store) SumSalesByShift(_ context.Context, shiftID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sumSalesByShiftLocked(shiftID), nil
}

func (s *Store) sumSalesByShiftLocked(shiftID string) int64 {
	total := int64(0)
	for _, sale := range s.salesByID {
		if sale.ShiftID == shiftID {
			total += sale.TotalCents
		}
	}
	return total
}

func (s *Store) SumSalesForDay(_ context.Context, day time.Time, shiftID string) (int64, error) {
	date := day.UTC().Format("2006-01-02")
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := int64(0)
	for _, sale := range s.salesByID {
		if sale.CreatedAt.UTC().Format("2006-01-02") != date {
			continue
		}
		if shiftID != "" && sale.ShiftID != shiftID {
			continue
		}
		total += sale.TotalCents
	}
	return total, nil
}

func (s *Store) TopProductsForDay(_ context.Context, day time.Time, limit int) ([]domain.TopProductRow, error) {
	if limit < 1 {
		limit = 10
	}
	date := day.UTC().Format("2006-01-02")

	s.mu.RLock()
	defer s.mu.RUnlock()
	byProduct := make(map[string]*domain.TopProductRow)
	for _, sale := range s.salesByID {
		if sale.CreatedAt.UTC().Format("2006-01-02") != date {
			continue
		}
		for _, item := range sale.Items {
			row := byProduct[item.ProductID]
			if row == nil {
				name := item.ProductID
				if product, ok := s.products[item.ProductID]; ok {
					name = product.Name
				}
				row = &domain.TopProductRow{ProductID: item.ProductID, Name: name}
				byProduct[item.ProductID] = row
			}
			row.TotalQty += int64(item.Qty)
			row.TotalCents += item.SubtotalCents
		}
	}

	rows := make([]domain.TopProductRow, 0, len(byProduct))
	for _, row := range byProduct {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalQty == rows[j].TotalQty {
			return rows[i].ProductID < rows[j].ProductID
		}
		return rows[i].TotalQty > rows[j].TotalQty
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *Store) SalesByDateRange(_ context.Context, from time.Time, to time.Time) ([]domain.DailySalesRow, error) {
	fromDate := from.UTC().Format("2006-01-02")
	toDate := to.UTC().Format("2006-01-02")

	s.mu.RLock()
	defer s.mu.RUnlock()
	byDate := make(map[string]*domain.DailySalesRow)
	for _, sale := range s.salesByID {
		date := sale.CreatedAt.UTC().Format("2006-01-02")
		if date < fromDate || date > toDate {
			continue
		}
		row := byDate[date]
		if row == nil {
			row = &domain.DailySalesRow{Date: date}
			byDate[date] = row
		}
		row.SaleCount++
		row.TotalCents += sale.TotalCents
	}

	rows := make([]domain.DailySalesRow, 0, len(byDate))
	for _, row := range byDate {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date > rows[j].Date })
	return rows, nil
}

func (s *Store) CreateShift(_ context.Context, shift domain.CashShift) (*domain.CashShift, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	// Check and insert under one lock: the compare-and-create the open-shift
	// invariant requires.
	if _, open := s.openShiftByOperator[shift.OperatorID]; open {
		return nil, store.ErrConflict
	}
	s.shiftsByID[shift.ID] = shift
	s.shiftOrder = append(s.shiftOrder, shift.ID)
	s.openShiftByOperator[shift.OperatorID] = shift.ID
	created := shift
	return &created, nil
}

func (s *Store) CloseShift(_ context.Context, shiftID string, closingCents int64, notes string, closedAt time.Time) (*domain.ShiftCloseResponse, error) {
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	shift, ok := s.shiftsByID[shiftID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrConflict
	}

	totalSales := s.sumSalesByShiftLocked(shiftID)
	expected := shift.OpeningCents + totalSales

	shift.Status = domain.ShiftStatusClosed
	shift.ClosingCents = closingCents
	shift.ExpectedCents = expected
	shift.DifferenceCents = closingCents - expected
	shift.Notes = notes
	shift.ClosedAt = &closedAt
	s.shiftsByID[shiftID] = shift
	delete(s.openShiftByOperator, shift.OperatorID)

	return &domain.ShiftCloseResponse{
		ShiftID:         shiftID,
		ClosingCents:    closingCents,
		ExpectedCents:   expected,
		DifferenceCents: closingCents - expected,
		TotalSalesCents: totalSales,
	}, nil
}

func (s *Store) GetShift(_ context.Context, id string) (*domain.CashShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	shift, ok := s.shiftsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := shift
	return &found, nil
}

func (s *Store) GetActiveShiftByOperator(_ context.Context, operatorID string) (*domain.CashShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	shiftID, ok := s.openShiftByOperator[operatorID]
	if !ok {
		return nil, store.ErrNotFound
	}
	shift := s.shiftsByID[shiftID]
	return &shift, nil
}

func (s *Store) GetGlobalActiveShift(_ context.Context) (*domain.CashShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.CashShift
	for _, shiftID := range s.openShiftByOperator {
		shift := s.shiftsByID[shiftID]
		if latest == nil || shift.OpenedAt.After(latest.OpenedAt) {
			copied := shift
			latest = &copied
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

func (s *Store) ListShifts(_ context.Context, limit int) ([]domain.CashShift, error) {
	if limit < 1 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	shifts := make([]domain.CashShift, 0, limit)
	for i := len(s.shiftOrder) - 1; i >= 0 && len(shifts) < limit; i-- {
		shifts = append(shifts, s.shiftsByID[s.shiftOrder[i]])
	}
	return shifts, nil
}

func (s *Store) AddMovement(_ context.Context, movement domain.InventoryMovement) (*domain.InventoryMovement, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[movement.ProductID]; !ok {
		return nil, store.ErrNotFound
	}
	s.movements = append(s.movements, movement)
	created := movement
	return &created, nil
}

func (s *Store) ListMovements(_ context.Context, productID string, limit int) ([]domain.InventoryMovement, error) {
	if limit < 1 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	movements := make([]domain.InventoryMovement, 0, limit)
	for i := len(s.movements) - 1; i >= 0 && len(movements) < limit; i-- {
		if productID != "" && s.movements[i].ProductID != productID {
			continue
		}
		movements = append(movements, s.movements[i])
	}
	return movements, nil
}

func (s *Store) AdjustStock(_ context.Context, productID string, newStock int, operatorID string, reason string) (*domain.StockAdjustResponse, error) {
	if newStock < 0 {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}

	delta := newStock - product.Stock
	product.Stock = newStock
	product.UpdatedAt = time.Now().UTC()
	s.products[productID] = product

	if delta != 0 {
		direction := domain.MovementIn
		if delta < 0 {
			direction = domain.MovementOut
			delta = -delta
		}
		s.movements = append(s.movements, domain.InventoryMovement{
			ID:         xid.New("mov"),
			ProductID:  productID,
			Direction:  direction,
			Qty:        delta,
			Reason:     reason,
			OperatorID: operatorID,
			CreatedAt:  product.UpdatedAt,
		})
	}

	return &domain.StockAdjustResponse{ProductID: productID, NewStock: newStock}, nil
}

// ReceiveStock increments stock and appends the ledger entry under one lock
// hold, so the read-modify-write cannot interleave with another receive.
func (s *Store) ReceiveStock(_ context.Context, productID string, qty int, operatorID string, reason string) (*domain.StockAdjustResponse, error) {
	if qty < 1 {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}

	product.Stock += qty
	product.UpdatedAt = time.Now().UTC()
	s.products[productID] = product

	s.movements = append(s.movements, domain.InventoryMovement{
		ID:         xid.New("mov"),
		ProductID:  productID,
		Direction:  domain.MovementIn,
		Qty:        qty,
		Reason:     reason,
		OperatorID: operatorID,
		CreatedAt:  product.UpdatedAt,
	})

	return &domain.StockAdjustResponse{ProductID: productID, NewStock: product.Stock}, nil
}

func (s *Store) LowStockProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	products := make([]domain.Product, 0, 8)
	for _, p := range s.products {
		if p.Stock <= p.MinStock {
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].Stock == products[j].Stock {
			return products[i].Name < products[j].Name
		}
		return products[i].Stock < products[j].Stock
	})
	return products, nil
}

func (s *Store) InventorySummary(_ context.Context) (domain.InventorySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary := domain.InventorySummary{TotalProducts: len(s.products)}
	for _, p := range s.products {
		summary.TotalUnits += p.Stock
		summary.TotalValueCents += int64(p.Stock) * p.PriceCents
		if p.Stock <= p.MinStock {
			summary.LowStockCount++
		}
	}
	return summary, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalid
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrConflict
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.usersByUsername[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := user
	return &found, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.usersByUsername[user.Username]
	if !ok {
		return store.ErrNotFound
	}
	if user.Password == "" {
		user.Password = existing.Password
	}
	if user.Role == "" {
		user.Role = existing.Role
	}
	user.CreatedAt = existing.CreatedAt
	s.usersByUsername[user.Username] = user
	return nil
}
