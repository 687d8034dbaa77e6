package inventory

import "time"

// Item is a finished-goods record created from a pool withdrawal. The fat
// percent is the manual percent the operator entered for the draw, kept for
// traceability from product back to milk composition.
type Item struct {
	ID           int64     `json:"id"`
	WithdrawalID int64     `json:"withdrawal_id"`
	ProductID    int64     `json:"product_id"`
	Quantity     float64   `json:"quantity"`
	Unit         string    `json:"unit"`
	FatPercent   float64   `json:"fat_percent"`
	CreatedAt    time.Time `json:"created_at"`
}
