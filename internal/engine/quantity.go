package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/suppli-hq/suppli-cli/internal/model"
)

// upliftMultipliers maps promotion tiers to baseline multipliers.
var upliftMultipliers = map[model.PromotionUplift]float64{
	model.UpliftLow:    1.1,
	model.UpliftMedium: 1.2,
	model.UpliftHigh:   1.3,
}

// Recommend computes the order line recommendation for one evidence bundle.
// Pure and total: an empty bundle yields a conservative default rather than
// an error. RecommendedQuantity and FinalQuantity are set to the same value;
// the delivery layer treats FinalQuantity as independently editable.
func Recommend(ctx model.ProductContext, mode model.OrderMode) model.OrderLineRecommendation {
	baseline := baselineQuantity(ctx)

	score := Score(ctx)
	if ctx.ConfidenceFactor != 0 {
		// Reserved extension point: external confidence multiplier.
		score = clamp01(score * ctx.ConfidenceFactor)
	}
	level := Classify(score)

	quantity := applyPromotionUplift(baseline, ctx.Promotion)

	bias := ctx.LearningBias
	if bias == 0 {
		bias = 1.0
	}
	quantity *= bias

	quantity = applyAdjustmentCaps(quantity, baseline, mode, score, ctx.WasteSensitive)

	// Hard ceiling after caps: it can only tighten the bound.
	if ctx.MaxStockAmount != nil {
		quantity = math.Min(quantity, *ctx.MaxStockAmount)
	}
	quantity = math.Max(0, quantity)

	quantity = roundForUnit(quantity, ctx.UnitType)

	// Rounding up must not breach the ceiling; round down instead.
	if ctx.MaxStockAmount != nil && quantity > *ctx.MaxStockAmount {
		quantity = math.Max(0, roundDownForUnit(*ctx.MaxStockAmount, ctx.UnitType))
	}

	return model.OrderLineRecommendation{
		ProductID:           ctx.ProductID,
		RecommendedQuantity: quantity,
		FinalQuantity:       quantity,
		UnitType:            ctx.UnitType,
		ConfidenceLevel:     level,
		ConfidenceScore:     score,
		Explanation:         buildExplanation(ctx, quantity, baseline, level),
		AdjustmentReason:    buildAdjustmentReason(ctx, bias),
	}
}

// baselineQuantity picks the quantity estimate before any adjustment:
// recent sales average, then last approved order, then a conservative 1.
func baselineQuantity(ctx model.ProductContext) float64 {
	if ctx.SalesData != nil && ctx.SalesData.AverageQuantity > 0 {
		return ctx.SalesData.AverageQuantity
	}
	if ctx.PreviousOrder != nil && ctx.PreviousOrder.WasApproved {
		return ctx.PreviousOrder.Quantity
	}
	return 1
}

func applyPromotionUplift(quantity float64, promo *model.Promotion) float64 {
	if promo == nil {
		return quantity
	}
	if m, ok := upliftMultipliers[promo.Uplift]; ok {
		return quantity * m
	}
	return quantity
}

// applyAdjustmentCaps clamps the adjusted quantity into a band around the
// baseline. The band depends on mode, confidence, and waste sensitivity;
// simulation mode passes through uncapped so users can preview the system's
// unconstrained opinion.
func applyAdjustmentCaps(quantity, baseline float64, mode model.OrderMode, score float64, wasteSensitive bool) float64 {
	if mode == model.ModeSimulation {
		return quantity
	}

	if mode == model.ModeFullAuto && score >= highConfidenceThreshold {
		maxIncrease := 1.25
		if wasteSensitive {
			maxIncrease = 1.15
		}
		return clampBand(quantity, baseline*0.7, baseline*maxIncrease)
	}

	// Guided, and full_auto below the confidence bar.
	maxIncrease := 1.2
	if wasteSensitive {
		maxIncrease = 1.1
	}
	return clampBand(quantity, baseline*0.8, baseline*maxIncrease)
}

func clampBand(v, floor, cap float64) float64 {
	return math.Max(floor, math.Min(v, cap))
}

func roundForUnit(quantity float64, unit model.UnitType) float64 {
	if unit == model.UnitTypeCase {
		return math.Round(quantity)
	}
	return math.Round(quantity*100) / 100
}

func roundDownForUnit(quantity float64, unit model.UnitType) float64 {
	if unit == model.UnitTypeCase {
		return math.Floor(quantity)
	}
	return math.Floor(quantity*100) / 100
}

// buildExplanation assembles the human-readable rationale: primary source,
// percent change with its cause, and a needs-review marker.
func buildExplanation(ctx model.ProductContext, final, baseline float64, level model.ConfidenceLevel) string {
	var parts []string

	switch {
	case ctx.SalesData != nil:
		parts = append(parts, "Based on recent sales data")
	case ctx.PreviousOrder != nil:
		parts = append(parts, "Based on previous approved order")
	default:
		parts = append(parts, "Conservative estimate due to limited data")
	}

	if final != baseline && baseline > 0 {
		percent := (final - baseline) / baseline * 100
		if percent > 0 {
			parts = append(parts, fmt.Sprintf("increased by %.0f%%", percent))
		} else {
			parts = append(parts, fmt.Sprintf("decreased by %.0f%%", math.Abs(percent)))
		}

		if ctx.Promotion != nil {
			parts = append(parts, "due to active promotion")
		}
	}

	if level == model.ConfidenceNeedsReview {
		parts = append(parts, "(needs review)")
	}

	return strings.Join(parts, ". ") + "."
}

// buildAdjustmentReason is set only when a promotion or a non-neutral
// learning bias contributed to the value.
func buildAdjustmentReason(ctx model.ProductContext, bias float64) string {
	var reasons []string

	if ctx.Promotion != nil {
		reasons = append(reasons, fmt.Sprintf("Promotion uplift: %s", ctx.Promotion.Uplift))
	}

	if bias != 1.0 {
		direction := "increased"
		if bias < 1.0 {
			direction = "decreased"
		}
		reasons = append(reasons, fmt.Sprintf("Learning adjustment: %s by %.0f%%", direction, math.Abs(bias-1)*100))
	}

	return strings.Join(reasons, "; ")
}
