package collections

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("collection not found")

type Repo struct{ db *pgxpool.Pool }

func NewRepo(db *pgxpool.Pool) *Repo { return &Repo{db: db} }

const cols = `id, supplier, qty_liters, fat, snf, status, pool_id, pooled_at, created_at`

func (r *Repo) Create(ctx context.Context, supplier string, qtyLiters, fat, snf float64) (*Collection, error) {
	if qtyLiters <= 0 {
		return nil, fmt.Errorf("qty_liters must be > 0")
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO collections (supplier, qty_liters, fat, snf, status)
		VALUES ($1,$2,$3,$4,'pending')
		RETURNING `+cols+`
	`, supplier, qtyLiters, fat, snf)
	return scan(row)
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*Collection, error) {
	row := r.db.QueryRow(ctx, `SELECT `+cols+` FROM collections WHERE id=$1`, id)
	c, err := scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return c, err
}

// SetStatus moves a pending collection to approved or rejected. Pooled rows
// are never touched here.
func (r *Repo) SetStatus(ctx context.Context, id int64, status Status) (*Collection, error) {
	if status != StatusApproved && status != StatusRejected {
		return nil, fmt.Errorf("invalid QC status %q", status)
	}
	row := r.db.QueryRow(ctx, `
		UPDATE collections SET status=$2
		WHERE id=$1 AND status='pending'
		RETURNING `+cols+`
	`, id, status)
	c, err := scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("collection %d is not pending", id)
	}
	return c, err
}

func (r *Repo) ListPending(ctx context.Context) ([]Collection, error) {
	return r.list(ctx, `SELECT `+cols+` FROM collections WHERE status='pending' ORDER BY id ASC`)
}

// ListApprovedUnpooled returns the set available for pooling.
func (r *Repo) ListApprovedUnpooled(ctx context.Context) ([]Collection, error) {
	return r.list(ctx, `SELECT `+cols+` FROM collections WHERE status='approved' ORDER BY id ASC`)
}

func (r *Repo) ListByPool(ctx context.Context, poolID int64) ([]Collection, error) {
	return r.list(ctx, `SELECT `+cols+` FROM collections WHERE pool_id=$1 ORDER BY id ASC`, poolID)
}

func (r *Repo) list(ctx context.Context, q string, args ...any) ([]Collection, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Collection{}
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scan(row pgx.Row) (*Collection, error) {
	var c Collection
	if err := row.Scan(&c.ID, &c.Supplier, &c.QtyLiters, &c.Fat, &c.Snf, &c.Status, &c.PoolID, &c.PooledAt, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
