package model

import "time"

// OrderMode selects how aggressively generated quantities may deviate from
// the baseline before a human signs off.
type OrderMode string

const (
	// ModeGuided applies conservative caps; output is meant for manual review.
	ModeGuided OrderMode = "guided"
	// ModeFullAuto loosens caps for high-confidence lines; output may be
	// approved unattended.
	ModeFullAuto OrderMode = "full_auto"
	// ModeSimulation disables caps entirely; preview only, never persisted
	// as an actionable order.
	ModeSimulation OrderMode = "simulation"
)

// ConfidenceLevel is the user-facing three-tier classification of a line.
type ConfidenceLevel string

const (
	ConfidenceHigh        ConfidenceLevel = "high"
	ConfidenceModerate    ConfidenceLevel = "moderate"
	ConfidenceNeedsReview ConfidenceLevel = "needs_review"
)

// UnitType determines rounding granularity: cases are integral, units allow
// two decimal places.
type UnitType string

const (
	UnitTypeCase UnitType = "case"
	UnitTypeUnit UnitType = "unit"
)

// PromotionUplift is the expected demand uplift tier of a promotion.
type PromotionUplift string

const (
	UpliftLow    PromotionUplift = "low"
	UpliftMedium PromotionUplift = "medium"
	UpliftHigh   PromotionUplift = "high"
)

// SaleRecord is a single dated sale quantity.
type SaleRecord struct {
	Date     time.Time `json:"date"`
	Quantity float64   `json:"quantity"`
}

// SalesData summarizes a product's sales history over the generation period.
type SalesData struct {
	ProductID       string       `json:"product_id"`
	AverageQuantity float64      `json:"average_quantity"`
	RecentSales     []SaleRecord `json:"recent_sales"`
	DataRecency     int          `json:"data_recency"`     // days since most recent sale
	DataConsistency float64      `json:"data_consistency"` // 0-1, lower variance = higher
}

// PreviousOrder is the most recent approved order quantity for a product.
type PreviousOrder struct {
	ProductID   string    `json:"product_id"`
	Quantity    float64   `json:"quantity"`
	OrderDate   time.Time `json:"order_date"`
	WasApproved bool      `json:"was_approved"`
}

// Promotion is an active promotion overlapping the generation period.
type Promotion struct {
	ProductID string          `json:"product_id"`
	Uplift    PromotionUplift `json:"uplift"`
	StartDate time.Time       `json:"start_date"`
	EndDate   time.Time       `json:"end_date"`
}

// ProductContext is the per-product evidence bundle assembled fresh for each
// generation run. Any of the optional facets may be nil; the calculator
// degrades gracefully on an empty bundle.
type ProductContext struct {
	ProductID      string         `json:"product_id"`
	ProductName    string         `json:"product_name"`
	WasteSensitive bool           `json:"waste_sensitive"`
	UnitType       UnitType       `json:"unit_type"`
	MaxStockAmount *float64       `json:"max_stock_amount,omitempty"`
	SalesData      *SalesData     `json:"sales_data,omitempty"`
	PreviousOrder  *PreviousOrder `json:"previous_order,omitempty"`
	Promotion      *Promotion     `json:"active_promotion,omitempty"`

	// LearningBias is the multiplicative quantity bias from the learning
	// loop, bounded to [0.8, 1.2]. Zero means no stored bias (treated as 1.0).
	LearningBias float64 `json:"learning_bias,omitempty"`

	// ConfidenceFactor is a reserved confidence multiplier. Zero means unset;
	// the orchestrator never populates it.
	ConfidenceFactor float64 `json:"confidence_factor,omitempty"`
}

// OrderLineRecommendation is one generated order line. RecommendedQuantity is
// never mutated after creation; FinalQuantity is the only field a user edits.
type OrderLineRecommendation struct {
	ProductID           string          `json:"product_id"`
	RecommendedQuantity float64         `json:"recommended_quantity"`
	FinalQuantity       float64         `json:"final_quantity"`
	UnitType            UnitType        `json:"unit_type"`
	ConfidenceLevel     ConfidenceLevel `json:"confidence_level"`
	ConfidenceScore     float64         `json:"confidence_score"` // internal, not shown to end users
	Explanation         string          `json:"explanation"`
	AdjustmentReason    string          `json:"adjustment_reason,omitempty"`
}

// VendorOrder groups the generated lines for one vendor.
type VendorOrder struct {
	VendorID   string                    `json:"vendor_id"`
	VendorName string                    `json:"vendor_name"`
	OrderLines []OrderLineRecommendation `json:"order_lines"`
}

// Summary counts lines by confidence level across all vendor groups.
type Summary struct {
	TotalProducts      int `json:"total_products"`
	HighConfidence     int `json:"high_confidence"`
	ModerateConfidence int `json:"moderate_confidence"`
	NeedsReview        int `json:"needs_review"`
}

// OrderGenerationResult is the full report for one generation run.
type OrderGenerationResult struct {
	VendorOrders []VendorOrder `json:"vendor_orders"`
	Summary      Summary       `json:"summary"`
}

// GenerationInput describes one generation request.
type GenerationInput struct {
	BusinessID  string    `json:"business_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Mode        OrderMode `json:"mode"`
	// VendorIDs optionally restricts generation; empty means all active vendors.
	VendorIDs []string `json:"vendor_ids,omitempty"`
}
