// Package generate orchestrates order generation: it resolves the vendor and
// product set for a business, gathers historical evidence, and fans out the
// quantity calculator over every (vendor, product) pair.
package generate

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/suppli-hq/suppli-cli/internal/engine"
	"github.com/suppli-hq/suppli-cli/internal/model"
)

// DataSource provides the historical facts the orchestrator fuses into
// per-product evidence bundles. Implementations aggregate; the engine never
// touches raw storage.
type DataSource interface {
	FetchActiveVendors(ctx context.Context, businessID string, vendorIDs []string) ([]model.Vendor, error)
	FetchVendorProductLinks(ctx context.Context, businessID string, vendorIDs []string) ([]model.VendorProductLink, error)
	FetchSalesStats(ctx context.Context, businessID string, productIDs []string, periodStart, periodEnd time.Time) (map[string]model.SalesData, error)
	FetchLatestApprovedOrders(ctx context.Context, businessID string, productIDs []string) (map[string]model.PreviousOrder, error)
	FetchActivePromotions(ctx context.Context, businessID string, productIDs []string, periodStart, periodEnd time.Time) (map[string]model.Promotion, error)
	FetchLearningBiases(ctx context.Context, businessID string, productIDs []string) (map[string]float64, error)
}

// Generator runs order generation against a data source.
type Generator struct {
	src DataSource
}

// NewGenerator creates a Generator.
func NewGenerator(src DataSource) *Generator {
	return &Generator{src: src}
}

// Generate produces the recommendation report for one business and period.
// It performs no persistence; saving the result as a draft order is a
// separate action taken by the delivery layer.
func (g *Generator) Generate(ctx context.Context, input model.GenerationInput) (*model.OrderGenerationResult, error) {
	vendors, err := g.src.FetchActiveVendors(ctx, input.BusinessID, input.VendorIDs)
	if err != nil {
		return nil, &DataFetchError{Dataset: "vendors", Err: err}
	}
	if len(vendors) == 0 {
		return nil, ErrNoVendors
	}

	vendorIDs := make([]string, len(vendors))
	for i, v := range vendors {
		vendorIDs[i] = v.ID
	}

	links, err := g.src.FetchVendorProductLinks(ctx, input.BusinessID, vendorIDs)
	if err != nil {
		return nil, &DataFetchError{Dataset: "vendor product links", Err: err}
	}
	if len(links) == 0 {
		return nil, ErrNoProducts
	}

	linksByVendor := make(map[string][]model.VendorProductLink)
	seen := make(map[string]bool)
	var productIDs []string
	for _, l := range links {
		linksByVendor[l.VendorID] = append(linksByVendor[l.VendorID], l)
		if !seen[l.ProductID] {
			seen[l.ProductID] = true
			productIDs = append(productIDs, l.ProductID)
		}
	}

	// The four historical datasets are independent; fetch them concurrently
	// and join before building bundles. Any failure aborts the run so no
	// partial recommendations escape.
	var (
		salesStats map[string]model.SalesData
		prevOrders map[string]model.PreviousOrder
		promotions map[string]model.Promotion
		biases     map[string]float64
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		stats, err := g.src.FetchSalesStats(egCtx, input.BusinessID, productIDs, input.PeriodStart, input.PeriodEnd)
		if err != nil {
			return &DataFetchError{Dataset: "sales stats", Err: err}
		}
		salesStats = stats
		return nil
	})
	eg.Go(func() error {
		orders, err := g.src.FetchLatestApprovedOrders(egCtx, input.BusinessID, productIDs)
		if err != nil {
			return &DataFetchError{Dataset: "approved orders", Err: err}
		}
		prevOrders = orders
		return nil
	})
	eg.Go(func() error {
		promos, err := g.src.FetchActivePromotions(egCtx, input.BusinessID, productIDs, input.PeriodStart, input.PeriodEnd)
		if err != nil {
			return &DataFetchError{Dataset: "promotions", Err: err}
		}
		promotions = promos
		return nil
	})
	eg.Go(func() error {
		b, err := g.src.FetchLearningBiases(egCtx, input.BusinessID, productIDs)
		if err != nil {
			return &DataFetchError{Dataset: "learning biases", Err: err}
		}
		biases = b
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	result := &model.OrderGenerationResult{}
	for _, vendor := range vendors {
		vendorLinks := linksByVendor[vendor.ID]
		if len(vendorLinks) == 0 {
			continue
		}

		lines := make([]model.OrderLineRecommendation, 0, len(vendorLinks))
		for _, link := range vendorLinks {
			bundle := model.ProductContext{
				ProductID:      link.ProductID,
				ProductName:    link.ProductName,
				WasteSensitive: link.WasteSensitive,
				UnitType:       link.UnitType,
				MaxStockAmount: link.MaxStockAmount,
				LearningBias:   biases[link.ProductID],
			}
			if sd, ok := salesStats[link.ProductID]; ok {
				bundle.SalesData = &sd
			}
			if po, ok := prevOrders[link.ProductID]; ok {
				bundle.PreviousOrder = &po
			}
			if promo, ok := promotions[link.ProductID]; ok {
				bundle.Promotion = &promo
			}

			lines = append(lines, engine.Recommend(bundle, input.Mode))
		}

		result.VendorOrders = append(result.VendorOrders, model.VendorOrder{
			VendorID:   vendor.ID,
			VendorName: vendor.Name,
			OrderLines: lines,
		})
	}

	for _, vo := range result.VendorOrders {
		for _, line := range vo.OrderLines {
			result.Summary.TotalProducts++
			switch line.ConfidenceLevel {
			case model.ConfidenceHigh:
				result.Summary.HighConfidence++
			case model.ConfidenceModerate:
				result.Summary.ModerateConfidence++
			case model.ConfidenceNeedsReview:
				result.Summary.NeedsReview++
			}
		}
	}

	zap.L().Info("generate: run complete",
		zap.String("business_id", input.BusinessID),
		zap.String("mode", string(input.Mode)),
		zap.Int("vendors", len(result.VendorOrders)),
		zap.Int("products", result.Summary.TotalProducts),
		zap.Int("needs_review", result.Summary.NeedsReview),
	)

	return result, nil
}
