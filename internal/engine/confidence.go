// Package engine implements the pure recommendation math: confidence scoring
// and quantity calculation over a per-product evidence bundle.
package engine

import (
	"math"

	"github.com/suppli-hq/suppli-cli/internal/model"
)

// Classification thresholds, inclusive at the lower bound of each band.
const (
	highConfidenceThreshold     = 0.7
	moderateConfidenceThreshold = 0.4
)

// Score converts an evidence bundle into a confidence score in [0,1].
// Deterministic; an empty bundle scores 0.
func Score(ctx model.ProductContext) float64 {
	score := 0.0

	if ctx.SalesData != nil {
		score += 0.4

		// Recency decays linearly to zero at 30 days.
		recency := math.Max(0, 1-float64(ctx.SalesData.DataRecency)/30)
		score += recency * 0.2

		score += ctx.SalesData.DataConsistency * 0.2
	}

	if ctx.PreviousOrder != nil && ctx.PreviousOrder.WasApproved {
		score += 0.2
	}

	// Promotions inject demand uncertainty.
	if ctx.Promotion != nil {
		score -= 0.1
	}

	// Waste-sensitive items must clear a higher bar before being trusted.
	if ctx.WasteSensitive && score < 0.6 {
		score *= 0.8
	}

	return clamp01(score)
}

// Classify maps a score to its three-tier level.
func Classify(score float64) model.ConfidenceLevel {
	switch {
	case score >= highConfidenceThreshold:
		return model.ConfidenceHigh
	case score >= moderateConfidenceThreshold:
		return model.ConfidenceModerate
	default:
		return model.ConfidenceNeedsReview
	}
}

// LevelFor scores and classifies a bundle in one step.
func LevelFor(ctx model.ProductContext) model.ConfidenceLevel {
	return Classify(Score(ctx))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
