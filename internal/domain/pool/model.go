package pool

import "time"

type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Pool is the single blended-milk ledger. Totals only grow while the pool is
// active; remainders shrink with every withdrawal. Averages are derived:
// current_* from the remainders, original_* from the totals.
type Pool struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status Status `json:"status"`

	TotalMilkLiters float64 `json:"total_milk_liters"`
	TotalFatUnits   float64 `json:"total_fat_units"`
	TotalSnfUnits   float64 `json:"total_snf_units"`

	OriginalAvgFat float64 `json:"original_avg_fat"`
	OriginalAvgSnf float64 `json:"original_avg_snf"`

	RemainingMilkLiters float64 `json:"remaining_milk_liters"`
	RemainingFatUnits   float64 `json:"remaining_fat_units"`
	RemainingSnfUnits   float64 `json:"remaining_snf_units"`

	CurrentAvgFat float64 `json:"current_avg_fat"`
	CurrentAvgSnf float64 `json:"current_avg_snf"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Addition is an append-only log row: one approved collection landing in the
// pool, with the pool averages right after it landed.
type Addition struct {
	ID           int64     `json:"id"`
	PoolID       int64     `json:"pool_id"`
	CollectionID int64     `json:"collection_id"`
	Supplier     string    `json:"supplier"`
	Liters       float64   `json:"liters"`
	FatPercent   float64   `json:"fat_percent"`
	SnfPercent   float64   `json:"snf_percent"`
	FatUnits     float64   `json:"fat_units"`
	SnfUnits     float64   `json:"snf_units"`
	AvgFatAfter  float64   `json:"avg_fat_after"`
	AvgSnfAfter  float64   `json:"avg_snf_after"`
	CreatedAt    time.Time `json:"created_at"`
}

// Withdrawal is an append-only log row: one milk draw with the operator's
// manual composition, plus the pool state right after the draw.
type Withdrawal struct {
	ID               int64   `json:"id"`
	PoolID           int64   `json:"pool_id"`
	UsedLiters       float64 `json:"used_liters"`
	ManualFatPercent float64 `json:"manual_fat_percent"`
	ManualSnfPercent float64 `json:"manual_snf_percent"`
	UsedFatUnits     float64 `json:"used_fat_units"`
	UsedSnfUnits     float64 `json:"used_snf_units"`

	RemainingLitersAfter   float64 `json:"remaining_liters_after"`
	RemainingFatUnitsAfter float64 `json:"remaining_fat_units_after"`
	RemainingSnfUnitsAfter float64 `json:"remaining_snf_units_after"`
	AvgFatAfter            float64 `json:"avg_fat_after"`
	AvgSnfAfter            float64 `json:"avg_snf_after"`

	Purpose   string    `json:"purpose,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SourceCollection is the view of an approved, unpooled collection the engine
// needs to add it. The intake workflow lives in domain/collections.
type SourceCollection struct {
	ID         int64
	Supplier   string
	Liters     float64
	FatPercent float64
	SnfPercent float64
}

// InventoryDraw is a finished-goods creation request attached to a
// withdrawal. The engine passes quantities through without validating product
// identity.
type InventoryDraw struct {
	ProductID  int64   `json:"product_id"`
	Quantity   float64 `json:"quantity"`
	Unit       string  `json:"unit"`
	FatPercent float64 `json:"fat_percent"`
}

// Book is the immutable archive of a terminated pool: its terminal fields and
// full ordered history. Closing fields equal the pool's remainders at archive
// time and never change afterwards.
type Book struct {
	ID       int64  `json:"id"`
	PoolID   int64  `json:"pool_id"`
	PoolName string `json:"pool_name"`

	OpeningLiters   float64 `json:"opening_liters"`
	OpeningFatUnits float64 `json:"opening_fat_units"`
	OpeningSnfUnits float64 `json:"opening_snf_units"`
	OriginalAvgFat  float64 `json:"original_avg_fat"`
	OriginalAvgSnf  float64 `json:"original_avg_snf"`

	ClosingLiters   float64 `json:"closing_liters"`
	ClosingFatUnits float64 `json:"closing_fat_units"`
	ClosingSnfUnits float64 `json:"closing_snf_units"`
	ClosingAvgFat   float64 `json:"closing_avg_fat"`
	ClosingAvgSnf   float64 `json:"closing_avg_snf"`

	TotalUsedLiters  float64   `json:"total_used_liters"`
	AdditionsCount   int       `json:"additions_count"`
	WithdrawalsCount int       `json:"withdrawals_count"`
	ArchivedAt       time.Time `json:"archived_at"`

	// Populated by BookByID, empty in list reads.
	Additions   []Addition   `json:"collections_history,omitempty"`
	Withdrawals []Withdrawal `json:"usage_history,omitempty"`
}
