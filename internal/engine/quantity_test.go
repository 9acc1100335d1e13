package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suppli-hq/suppli-cli/internal/model"
)

func freshSales(avg float64) *model.SalesData {
	return &model.SalesData{
		AverageQuantity: avg,
		DataRecency:     1,
		DataConsistency: 0.9,
	}
}

func TestRecommend_SalesOnlyHighConfidence(t *testing.T) {
	ctx := model.ProductContext{
		ProductID: "p1",
		UnitType:  model.UnitTypeUnit,
		SalesData: freshSales(10),
	}

	rec := Recommend(ctx, model.ModeGuided)

	assert.Equal(t, model.ConfidenceHigh, rec.ConfidenceLevel)
	assert.Equal(t, 10.0, rec.RecommendedQuantity)
	assert.Equal(t, rec.RecommendedQuantity, rec.FinalQuantity)
	assert.Contains(t, rec.Explanation, "Based on recent sales data")
	assert.Empty(t, rec.AdjustmentReason)
}

func TestRecommend_WasteSensitivePromotionCapped(t *testing.T) {
	ctx := model.ProductContext{
		ProductID:      "p1",
		UnitType:       model.UnitTypeUnit,
		WasteSensitive: true,
		SalesData:      freshSales(10),
		Promotion:      &model.Promotion{Uplift: model.UpliftHigh},
	}

	rec := Recommend(ctx, model.ModeGuided)

	// baseline 10, promo high -> 13, guided waste-sensitive band [8, 11].
	assert.Equal(t, 11.0, rec.RecommendedQuantity)
	assert.Contains(t, rec.AdjustmentReason, "Promotion uplift: high")
	assert.Contains(t, rec.Explanation, "increased by 10%")
	assert.Contains(t, rec.Explanation, "due to active promotion")
}

func TestRecommend_EmptyBundle(t *testing.T) {
	rec := Recommend(model.ProductContext{ProductID: "p1", UnitType: model.UnitTypeUnit}, model.ModeGuided)

	assert.Equal(t, 1.0, rec.RecommendedQuantity)
	assert.Equal(t, model.ConfidenceNeedsReview, rec.ConfidenceLevel)
	assert.Contains(t, rec.Explanation, "Conservative estimate due to limited data")
	assert.Contains(t, rec.Explanation, "(needs review)")
}

func TestRecommend_BaselineFallsBackToPreviousOrder(t *testing.T) {
	ctx := model.ProductContext{
		ProductID:     "p1",
		UnitType:      model.UnitTypeUnit,
		PreviousOrder: &model.PreviousOrder{Quantity: 6, WasApproved: true},
	}

	rec := Recommend(ctx, model.ModeGuided)

	assert.Equal(t, 6.0, rec.RecommendedQuantity)
	assert.Contains(t, rec.Explanation, "Based on previous approved order")
}

func TestRecommend_ZeroAverageFallsThrough(t *testing.T) {
	ctx := model.ProductContext{
		ProductID:     "p1",
		UnitType:      model.UnitTypeUnit,
		SalesData:     &model.SalesData{AverageQuantity: 0, DataRecency: 2, DataConsistency: 0.5},
		PreviousOrder: &model.PreviousOrder{Quantity: 7, WasApproved: true},
	}

	rec := Recommend(ctx, model.ModeGuided)
	assert.Equal(t, 7.0, rec.RecommendedQuantity)
}

func TestRecommend_LearningBiasApplied(t *testing.T) {
	ctx := model.ProductContext{
		ProductID:    "p1",
		UnitType:     model.UnitTypeUnit,
		SalesData:    freshSales(10),
		LearningBias: 0.85,
	}

	rec := Recommend(ctx, model.ModeGuided)

	// 10 * 0.85 = 8.5, within guided band [8, 12].
	assert.Equal(t, 8.5, rec.RecommendedQuantity)
	assert.Contains(t, rec.Explanation, "decreased by 15%")
	assert.Contains(t, rec.AdjustmentReason, "Learning adjustment: decreased by 15%")
}

func TestRecommend_PromotionAndLearningReasonsJoined(t *testing.T) {
	ctx := model.ProductContext{
		ProductID:    "p1",
		UnitType:     model.UnitTypeUnit,
		SalesData:    freshSales(10),
		Promotion:    &model.Promotion{Uplift: model.UpliftLow},
		LearningBias: 1.05,
	}

	rec := Recommend(ctx, model.ModeGuided)

	assert.Contains(t, rec.AdjustmentReason, "Promotion uplift: low")
	assert.Contains(t, rec.AdjustmentReason, "; ")
	assert.Contains(t, rec.AdjustmentReason, "Learning adjustment: increased by 5%")
}

func TestRecommend_CapOrderingAcrossModes(t *testing.T) {
	// Score 0.8733 (>= 0.7) so full_auto gets the loose band.
	ctx := model.ProductContext{
		ProductID:     "p1",
		UnitType:      model.UnitTypeUnit,
		SalesData:     freshSales(10),
		PreviousOrder: &model.PreviousOrder{Quantity: 10, WasApproved: true},
		Promotion:     &model.Promotion{Uplift: model.UpliftHigh},
	}

	guided := Recommend(ctx, model.ModeGuided).RecommendedQuantity
	fullAuto := Recommend(ctx, model.ModeFullAuto).RecommendedQuantity
	simulation := Recommend(ctx, model.ModeSimulation).RecommendedQuantity

	// Uncapped 13 -> guided 12 (x1.20), full_auto 12.5 (x1.25), simulation 13.
	assert.Equal(t, 12.0, guided)
	assert.Equal(t, 12.5, fullAuto)
	assert.Equal(t, 13.0, simulation)
	assert.LessOrEqual(t, guided, fullAuto)
	assert.LessOrEqual(t, fullAuto, simulation)
}

func TestRecommend_FullAutoLowConfidenceUsesGuidedBand(t *testing.T) {
	ctx := model.ProductContext{
		ProductID: "p1",
		UnitType:  model.UnitTypeUnit,
		SalesData: &model.SalesData{AverageQuantity: 10, DataRecency: 40, DataConsistency: 0.3},
		Promotion: &model.Promotion{Uplift: model.UpliftHigh},
	}

	rec := Recommend(ctx, model.ModeFullAuto)

	// Score 0.4 + 0 + 0.06 - 0.1 = 0.36 < 0.7: conservative band [8, 12].
	assert.Equal(t, 12.0, rec.RecommendedQuantity)
}

func TestRecommend_DecreaseFloor(t *testing.T) {
	ctx := model.ProductContext{
		ProductID:    "p1",
		UnitType:     model.UnitTypeUnit,
		SalesData:    freshSales(10),
		LearningBias: 0.8,
	}

	// Uncapped 8.0 equals the guided floor exactly.
	rec := Recommend(ctx, model.ModeGuided)
	assert.Equal(t, 8.0, rec.RecommendedQuantity)
}

func TestRecommend_MaxStockCeilingTightensAfterCaps(t *testing.T) {
	maxStock := 9.0
	ctx := model.ProductContext{
		ProductID:      "p1",
		UnitType:       model.UnitTypeUnit,
		MaxStockAmount: &maxStock,
		SalesData:      freshSales(10),
		Promotion:      &model.Promotion{Uplift: model.UpliftHigh},
	}

	rec := Recommend(ctx, model.ModeGuided)

	// Capped to 12 by the guided band, then to 9 by max stock.
	assert.Equal(t, 9.0, rec.RecommendedQuantity)
}

func TestRecommend_MaxStockBelowFloorStillWins(t *testing.T) {
	maxStock := 5.0
	ctx := model.ProductContext{
		ProductID:      "p1",
		UnitType:       model.UnitTypeUnit,
		MaxStockAmount: &maxStock,
		SalesData:      freshSales(10),
	}

	rec := Recommend(ctx, model.ModeGuided)
	assert.Equal(t, 5.0, rec.RecommendedQuantity)
}

func TestRecommend_CaseRoundingNeverBreachesMaxStock(t *testing.T) {
	maxStock := 10.6
	ctx := model.ProductContext{
		ProductID:      "p1",
		UnitType:       model.UnitTypeCase,
		MaxStockAmount: &maxStock,
		SalesData:      freshSales(10),
		Promotion:      &model.Promotion{Uplift: model.UpliftHigh},
	}

	rec := Recommend(ctx, model.ModeGuided)

	// Clamped to 10.6 by max stock; rounding to the nearest case would give
	// 11, so the quantity rounds down to 10 instead.
	assert.Equal(t, 10.0, rec.RecommendedQuantity)
	assert.LessOrEqual(t, rec.RecommendedQuantity, maxStock)
	assert.Equal(t, rec.RecommendedQuantity, float64(int64(rec.RecommendedQuantity)))
}

func TestRecommend_UnitRoundingNeverBreachesMaxStock(t *testing.T) {
	maxStock := 10.555
	ctx := model.ProductContext{
		ProductID:      "p1",
		UnitType:       model.UnitTypeUnit,
		MaxStockAmount: &maxStock,
		SalesData:      freshSales(10),
		Promotion:      &model.Promotion{Uplift: model.UpliftHigh},
	}

	rec := Recommend(ctx, model.ModeGuided)

	// Clamped to 10.555; two-decimal rounding would give 10.56, so it
	// truncates to 10.55.
	assert.Equal(t, 10.55, rec.RecommendedQuantity)
	assert.LessOrEqual(t, rec.RecommendedQuantity, maxStock)
}

func TestRecommend_CaseRoundingIsIntegral(t *testing.T) {
	ctx := model.ProductContext{
		ProductID: "p1",
		UnitType:  model.UnitTypeCase,
		SalesData: freshSales(10.4),
	}

	for _, mode := range []model.OrderMode{model.ModeGuided, model.ModeFullAuto, model.ModeSimulation} {
		rec := Recommend(ctx, mode)
		assert.Equal(t, rec.RecommendedQuantity, float64(int64(rec.RecommendedQuantity)), "mode %s", mode)
	}
}

func TestRecommend_UnitRoundingTwoDecimals(t *testing.T) {
	ctx := model.ProductContext{
		ProductID:    "p1",
		UnitType:     model.UnitTypeUnit,
		SalesData:    freshSales(10),
		LearningBias: 1.111,
	}

	rec := Recommend(ctx, model.ModeSimulation)
	assert.Equal(t, 11.11, rec.RecommendedQuantity)
}

func TestRecommend_Idempotent(t *testing.T) {
	ctx := model.ProductContext{
		ProductID:      "p1",
		UnitType:       model.UnitTypeUnit,
		WasteSensitive: true,
		SalesData:      freshSales(7.3),
		Promotion:      &model.Promotion{Uplift: model.UpliftMedium},
		LearningBias:   1.1,
	}

	first := Recommend(ctx, model.ModeFullAuto)
	second := Recommend(ctx, model.ModeFullAuto)
	require.Equal(t, first, second)
}

func TestRecommend_ConfidenceFactorRescoresBeforeClassify(t *testing.T) {
	ctx := model.ProductContext{
		ProductID:        "p1",
		UnitType:         model.UnitTypeUnit,
		SalesData:        freshSales(10),
		ConfidenceFactor: 0.5,
	}

	rec := Recommend(ctx, model.ModeGuided)

	// 0.7733 * 0.5 = 0.3867 -> needs_review.
	assert.InDelta(t, 0.3867, rec.ConfidenceScore, 0.001)
	assert.Equal(t, model.ConfidenceNeedsReview, rec.ConfidenceLevel)
}
