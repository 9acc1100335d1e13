package model

import "time"

// Vendor is a supplier a business orders from.
type Vendor struct {
	ID         string     `json:"id"`
	BusinessID string     `json:"business_id"`
	Name       string     `json:"name"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// Product is a sellable item tracked by a business.
type Product struct {
	ID             string     `json:"id"`
	BusinessID     string     `json:"business_id"`
	Name           string     `json:"name"`
	WasteSensitive bool       `json:"waste_sensitive"`
	MaxStockAmount *float64   `json:"max_stock_amount,omitempty"`
	ArchivedAt     *time.Time `json:"archived_at,omitempty"`
}

// VendorProductLink joins a vendor to one of the products it supplies, with
// the static product attributes the generation engine needs.
type VendorProductLink struct {
	VendorID       string   `json:"vendor_id"`
	VendorName     string   `json:"vendor_name"`
	ProductID      string   `json:"product_id"`
	ProductName    string   `json:"product_name"`
	UnitType       UnitType `json:"unit_type"`
	WasteSensitive bool     `json:"waste_sensitive"`
	MaxStockAmount *float64 `json:"max_stock_amount,omitempty"`
}

// SalesEvent is one recorded sale, the raw input to sales aggregation.
type SalesEvent struct {
	BusinessID string    `json:"business_id"`
	ProductID  string    `json:"product_id"`
	Quantity   float64   `json:"quantity"`
	EventDate  time.Time `json:"event_date"`
}
