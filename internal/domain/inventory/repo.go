package inventory

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Items are inserted by the pool engine inside the withdrawal transaction;
// this repo only covers the read paths the dashboard needs.
type Repo struct{ db *pgxpool.Pool }

func NewRepo(db *pgxpool.Pool) *Repo { return &Repo{db: db} }

const cols = `id, withdrawal_id, product_id, quantity, unit, fat_percent, created_at`

func (r *Repo) ListByWithdrawal(ctx context.Context, withdrawalID int64) ([]Item, error) {
	return r.list(ctx, `SELECT `+cols+` FROM inventory_items WHERE withdrawal_id=$1 ORDER BY id ASC`, withdrawalID)
}

func (r *Repo) ListRecent(ctx context.Context, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx, `SELECT `+cols+` FROM inventory_items ORDER BY id DESC LIMIT $1`, limit)
}

func (r *Repo) list(ctx context.Context, q string, args ...any) ([]Item, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.WithdrawalID, &it.ProductID, &it.Quantity, &it.Unit, &it.FatPercent, &it.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
