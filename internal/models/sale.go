package models

import "time"

// SaleItem is one line of a sale.
type SaleItem struct {
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name,omitempty"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Sale is the payload sent to POST /sales.
type Sale struct {
	Items      []SaleItem `json:"items"`
	WithTax    bool       `json:"with_tax"`
	CustomerID *int64     `json:"customer_id,omitempty"`
	Total      float64    `json:"total"`
}

// PendingSale is a sale recorded while offline. It carries a temporary
// identifier until the server assigns a canonical one.
type PendingSale struct {
	TempID   string    `json:"temp_id"`
	Sale     Sale      `json:"sale"`
	QueuedAt time.Time `json:"queued_at"`
}

// SalesSummary is a read-side projection of the pending-sales list,
// used for UI badges only.
type SalesSummary struct {
	Count        int        `json:"count"`
	Total        float64    `json:"total"`
	LastQueuedAt *time.Time `json:"last_queued_at,omitempty"`
}
