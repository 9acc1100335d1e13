// Package learning implements the feedback loop that turns user edits of
// generated order lines into a bounded per-product quantity bias.
package learning

import (
	"context"
	"math"

	"go.uber.org/zap"
)

// Bias update tuning. A single edit can never push the bias beyond +/-20%,
// and repeated edits blend in slowly, so the loop only accumulates signal
// from consistent correction patterns.
const (
	biasFloor = 0.8
	biasCeil  = 1.2

	// emaAlpha is the weight of the newest edit in the moving average.
	emaAlpha = 0.3

	// Edits below both thresholds are rounding jitter, not signal.
	minAbsoluteDiff = 0.5
	minPercentDiff  = 0.05

	// Writes that barely move the stored bias are skipped to avoid churn.
	minBiasDelta = 0.01
)

// BiasStore is the persistence surface the tracker needs: point lookup and
// upsert of the bias keyed by (business, product).
type BiasStore interface {
	GetLearningBias(ctx context.Context, businessID, productID string) (float64, bool, error)
	FetchLearningBiases(ctx context.Context, businessID string, productIDs []string) (map[string]float64, error)
	UpsertLearningBias(ctx context.Context, businessID, productID string, value float64) error
}

// Tracker records order-line edits and serves stored biases.
type Tracker struct {
	store BiasStore
}

// NewTracker creates a Tracker backed by the given store.
func NewTracker(store BiasStore) *Tracker {
	return &Tracker{store: store}
}

// RecordEdit folds a user edit into the stored bias for the product.
// Best-effort: storage failures are logged and swallowed so a learning
// outage can never fail an order workflow.
func (t *Tracker) RecordEdit(ctx context.Context, businessID, productID string, recommended, final float64) {
	absoluteDiff := math.Abs(final - recommended)
	percentDiff := 0.0
	if recommended > 0 {
		percentDiff = absoluteDiff / recommended
	}
	if absoluteDiff < minAbsoluteDiff && percentDiff < minPercentDiff {
		return
	}

	editRatio := 1.0
	if recommended != 0 {
		editRatio = final / recommended
	}
	editRatio = clampBias(editRatio)

	existing, found, err := t.store.GetLearningBias(ctx, businessID, productID)
	if err != nil {
		zap.L().Warn("learning: fetch existing bias failed",
			zap.String("business_id", businessID),
			zap.String("product_id", productID),
			zap.Error(err),
		)
		return
	}

	newBias := editRatio
	if found {
		newBias = clampBias(existing*(1-emaAlpha) + editRatio*emaAlpha)
		if math.Abs(newBias-existing) < minBiasDelta {
			return
		}
	}

	if err := t.store.UpsertLearningBias(ctx, businessID, productID, newBias); err != nil {
		zap.L().Warn("learning: persist bias failed",
			zap.String("business_id", businessID),
			zap.String("product_id", productID),
			zap.Float64("bias", newBias),
			zap.Error(err),
		)
		return
	}

	zap.L().Debug("learning: bias updated",
		zap.String("business_id", businessID),
		zap.String("product_id", productID),
		zap.Float64("edit_ratio", editRatio),
		zap.Float64("bias", newBias),
	)
}

// Bias returns the stored bias for a product, defaulting to 1.0.
func (t *Tracker) Bias(ctx context.Context, businessID, productID string) float64 {
	bias, found, err := t.store.GetLearningBias(ctx, businessID, productID)
	if err != nil {
		zap.L().Warn("learning: fetch bias failed",
			zap.String("business_id", businessID),
			zap.String("product_id", productID),
			zap.Error(err),
		)
		return 1.0
	}
	if !found {
		return 1.0
	}
	return bias
}

// Biases returns stored biases for a batch of products. Products without a
// stored bias are absent from the map; callers default them to 1.0.
func (t *Tracker) Biases(ctx context.Context, businessID string, productIDs []string) (map[string]float64, error) {
	if len(productIDs) == 0 {
		return map[string]float64{}, nil
	}
	return t.store.FetchLearningBiases(ctx, businessID, productIDs)
}

func clampBias(v float64) float64 {
	return math.Max(biasFloor, math.Min(biasCeil, v))
}
