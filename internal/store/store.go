package store

import (
	"context"
	"time"

	"github.com/suppli-hq/suppli-cli/internal/model"
)

// adjustmentTypeQuantityBias is the only adjustment type the learning loop
// writes today; the column exists so future adjustment kinds share the table.
const adjustmentTypeQuantityBias = "quantity_bias"

// Store defines the persistence interface for the order generation engine.
// All queries are scoped to a business; aggregation of raw sales events into
// per-product statistics happens here, not in the engine.
type Store interface {
	// Catalog
	FetchActiveVendors(ctx context.Context, businessID string, vendorIDs []string) ([]model.Vendor, error)
	FetchVendorProductLinks(ctx context.Context, businessID string, vendorIDs []string) ([]model.VendorProductLink, error)

	// Historical evidence
	FetchSalesStats(ctx context.Context, businessID string, productIDs []string, periodStart, periodEnd time.Time) (map[string]model.SalesData, error)
	FetchLatestApprovedOrders(ctx context.Context, businessID string, productIDs []string) (map[string]model.PreviousOrder, error)
	FetchActivePromotions(ctx context.Context, businessID string, productIDs []string, periodStart, periodEnd time.Time) (map[string]model.Promotion, error)

	// Learning adjustments, keyed by (business, product, adjustment_type)
	// with insert-or-update semantics so "latest bias" lookups stay O(1).
	FetchLearningBiases(ctx context.Context, businessID string, productIDs []string) (map[string]float64, error)
	GetLearningBias(ctx context.Context, businessID, productID string) (float64, bool, error)
	UpsertLearningBias(ctx context.Context, businessID, productID string, value float64) error

	// Ingestion
	ImportSalesEvents(ctx context.Context, events []model.SalesEvent) (int64, error)
	ImportProducts(ctx context.Context, products []model.Product) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
