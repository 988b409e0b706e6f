package cache

import (
	"context"
	"time"

	"tiendapos/backend/internal/domain"
)

// LowStockCache is a read-through cache for the low-stock listing, which is
// polled frequently by dashboards and changes only when stock does.
type LowStockCache interface {
	Get(ctx context.Context) ([]domain.Product, bool)
	Set(ctx context.Context, products []domain.Product, ttl time.Duration)
	Invalidate(ctx context.Context)
	Close() error
}

// NoopLowStockCache is used when no Redis address is configured.
type NoopLowStockCache struct{}

func (NoopLowStockCache) Get(context.Context) ([]domain.Product, bool)         { return nil, false }
func (NoopLowStockCache) Set(context.Context, []domain.Product, time.Duration) {}
func (NoopLowStockCache) Invalidate(context.Context)                           {}
func (NoopLowStockCache) Close() error                                         { return nil }
