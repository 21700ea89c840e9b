package model

import "time"

// UnitState is the integer-coded sale state of an inventory unit.
type UnitState int

const (
	UnitAvailable UnitState = 0
	UnitSold      UnitState = 1
)

// InventoryUnit is one sellable, non-divisible item instance of a product.
type InventoryUnit struct {
	ID           string     `json:"id"`
	ProductID    string     `json:"product_id"`
	State        UnitState  `json:"state"`
	SoldToUserID int64      `json:"sold_to_user_id,omitempty"`
	ReservedAt   *time.Time `json:"reserved_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
