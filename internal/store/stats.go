package store

import (
	"math"
	"sort"
	"time"

	"github.com/suppli-hq/suppli-cli/internal/model"
)

// buildSalesStats aggregates raw sales events into per-product statistics:
// average quantity, days since the most recent sale, and a consistency score
// of 1 minus the coefficient of variation, floored at 0.
func buildSalesStats(events []model.SalesEvent, now time.Time) map[string]model.SalesData {
	byProduct := make(map[string][]model.SalesEvent)
	for _, e := range events {
		byProduct[e.ProductID] = append(byProduct[e.ProductID], e)
	}

	stats := make(map[string]model.SalesData, len(byProduct))
	for productID, group := range byProduct {
		sort.Slice(group, func(i, j int) bool {
			return group[i].EventDate.Before(group[j].EventDate)
		})

		sum := 0.0
		recent := make([]model.SaleRecord, len(group))
		mostRecent := group[0].EventDate
		for i, e := range group {
			sum += e.Quantity
			recent[i] = model.SaleRecord{Date: e.EventDate, Quantity: e.Quantity}
			if e.EventDate.After(mostRecent) {
				mostRecent = e.EventDate
			}
		}
		mean := sum / float64(len(group))

		variance := 0.0
		for _, e := range group {
			variance += (e.Quantity - mean) * (e.Quantity - mean)
		}
		variance /= float64(len(group))

		consistency := 0.0
		if mean > 0 {
			consistency = math.Max(0, 1-math.Sqrt(variance)/mean)
		}

		recency := int(now.Sub(mostRecent).Hours() / 24)
		if recency < 0 {
			recency = 0
		}

		stats[productID] = model.SalesData{
			ProductID:       productID,
			AverageQuantity: mean,
			RecentSales:     recent,
			DataRecency:     recency,
			DataConsistency: consistency,
		}
	}

	return stats
}
