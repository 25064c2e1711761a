package models

import "time"

// Product mirrors the catalog entity of the remote backend. TempID and
// Pending are local bookkeeping for entities created offline and are
// stripped before the payload is replayed to the server.
type Product struct {
	ID            int64   `json:"id,omitempty"`
	Name          string  `json:"name"`
	SalePrice     float64 `json:"sale_price"`
	PurchasePrice float64 `json:"purchase_price"`
	Stock         float64 `json:"stock"`
	MinStock      float64 `json:"min_stock"`
	CategoryID    int64   `json:"category_id"`
	Active        bool    `json:"active"`

	TempID  string `json:"temp_id,omitempty"`
	Pending bool   `json:"pending,omitempty"`
}

// Product change actions.
const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// ProductChange is one entry of the local change log, kept separately from
// the generic operation queue so the UI summary does not have to re-derive
// intent from opaque payloads.
type ProductChange struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Product   Product   `json:"product"`
	ChangedAt time.Time `json:"changed_at"`
}

// ChangeSummary counts pending product changes by intent.
type ChangeSummary struct {
	Total         int        `json:"total"`
	Creates       int        `json:"creates"`
	Updates       int        `json:"updates"`
	Deletes       int        `json:"deletes"`
	LastChangedAt *time.Time `json:"last_changed_at,omitempty"`
}
