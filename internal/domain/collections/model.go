package collections

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusPooled   Status = "pooled"
)

// Collection is one supplier delivery awaiting QC. Approved collections are
// the pooling set; the pool engine flips them to pooled when consumed.
type Collection struct {
	ID        int64      `json:"id"`
	Supplier  string     `json:"supplier"`
	QtyLiters float64    `json:"qty_liters"`
	Fat       float64    `json:"fat"`
	Snf       float64    `json:"snf"`
	Status    Status     `json:"status"`
	PoolID    *int64     `json:"pool_id,omitempty"`
	PooledAt  *time.Time `json:"pooled_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
