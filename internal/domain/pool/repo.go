package pool

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the Postgres-backed Store. Mutating operations run under
// serializable isolation with SELECT ... FOR UPDATE on the pool row; a
// serialization failure or deadlock is retried once with a fresh read before
// surfacing as ErrConflict.
type Repo struct{ db *pgxpool.Pool }

var _ Store = (*Repo)(nil)

func NewRepo(db *pgxpool.Pool) *Repo { return &Repo{db: db} }

const poolColumns = `
	id, name, status,
	total_milk_liters, total_fat_units, total_snf_units,
	original_avg_fat, original_avg_snf,
	remaining_milk_liters, remaining_fat_units, remaining_snf_units,
	current_avg_fat, current_avg_snf,
	created_at, updated_at`

func scanPool(row pgx.Row) (*Pool, error) {
	var p Pool
	err := row.Scan(
		&p.ID, &p.Name, &p.Status,
		&p.TotalMilkLiters, &p.TotalFatUnits, &p.TotalSnfUnits,
		&p.OriginalAvgFat, &p.OriginalAvgSnf,
		&p.RemainingMilkLiters, &p.RemainingFatUnits, &p.RemainingSnfUnits,
		&p.CurrentAvgFat, &p.CurrentAvgSnf,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) ActivePool(ctx context.Context) (*Pool, error) {
	row := r.db.QueryRow(ctx, `SELECT `+poolColumns+` FROM milk_pools WHERE status='active'`)
	p, err := scanPool(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActivePool
		}
		return nil, err
	}
	return p, nil
}

func (r *Repo) PoolByID(ctx context.Context, id int64) (*Pool, error) {
	row := r.db.QueryRow(ctx, `SELECT `+poolColumns+` FROM milk_pools WHERE id=$1`, id)
	p, err := scanPool(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", ErrPoolNotFound, id)
		}
		return nil, err
	}
	return p, nil
}

func (r *Repo) Additions(ctx context.Context, poolID int64) ([]Addition, error) {
	rows, err := r.db.Query(ctx, additionsQuery, poolID)
	if err != nil {
		return nil, err
	}
	return scanAdditions(rows)
}

func (r *Repo) Withdrawals(ctx context.Context, poolID int64) ([]Withdrawal, error) {
	rows, err := r.db.Query(ctx, withdrawalsQuery, poolID)
	if err != nil {
		return nil, err
	}
	return scanWithdrawals(rows)
}

const bookColumns = `
	id, pool_id, pool_name,
	opening_liters, opening_fat_units, opening_snf_units,
	original_avg_fat, original_avg_snf,
	closing_liters, closing_fat_units, closing_snf_units,
	closing_avg_fat, closing_avg_snf,
	total_used_liters, additions_count, withdrawals_count, archived_at`

func scanBook(row pgx.Row) (*Book, error) {
	var b Book
	err := row.Scan(
		&b.ID, &b.PoolID, &b.PoolName,
		&b.OpeningLiters, &b.OpeningFatUnits, &b.OpeningSnfUnits,
		&b.OriginalAvgFat, &b.OriginalAvgSnf,
		&b.ClosingLiters, &b.ClosingFatUnits, &b.ClosingSnfUnits,
		&b.ClosingAvgFat, &b.ClosingAvgSnf,
		&b.TotalUsedLiters, &b.AdditionsCount, &b.WithdrawalsCount, &b.ArchivedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repo) Books(ctx context.Context) ([]Book, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookColumns+` FROM pool_books ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// BookByID loads the book plus its ordered histories; the log rows stay keyed
// by the archived pool id.
func (r *Repo) BookByID(ctx context.Context, id int64) (*Book, error) {
	row := r.db.QueryRow(ctx, `SELECT `+bookColumns+` FROM pool_books WHERE id=$1`, id)
	b, err := scanBook(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", ErrBookNotFound, id)
		}
		return nil, err
	}
	if b.Additions, err = r.Additions(ctx, b.PoolID); err != nil {
		return nil, err
	}
	if b.Withdrawals, err = r.Withdrawals(ctx, b.PoolID); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Repo) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	err := r.runOnce(ctx, fn)
	if isRetryable(err) {
		err = r.runOnce(ctx, fn)
	}
	if isRetryable(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func (r *Repo) runOnce(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// 40001 serialization_failure, 40P01 deadlock_detected
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) PoolForUpdate(ctx context.Context, id int64) (*Pool, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+poolColumns+` FROM milk_pools WHERE id=$1 FOR UPDATE`, id)
	p, err := scanPool(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", ErrPoolNotFound, id)
		}
		return nil, err
	}
	return p, nil
}

func (t *pgTx) UpdatePool(ctx context.Context, p *Pool) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE milk_pools SET
			name=$2, status=$3,
			total_milk_liters=$4, total_fat_units=$5, total_snf_units=$6,
			original_avg_fat=$7, original_avg_snf=$8,
			remaining_milk_liters=$9, remaining_fat_units=$10, remaining_snf_units=$11,
			current_avg_fat=$12, current_avg_snf=$13,
			updated_at=$14
		WHERE id=$1
	`, p.ID, p.Name, p.Status,
		p.TotalMilkLiters, p.TotalFatUnits, p.TotalSnfUnits,
		p.OriginalAvgFat, p.OriginalAvgSnf,
		p.RemainingMilkLiters, p.RemainingFatUnits, p.RemainingSnfUnits,
		p.CurrentAvgFat, p.CurrentAvgSnf,
		p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrPoolNotFound, p.ID)
	}
	return nil
}

func (t *pgTx) InsertPool(ctx context.Context, p *Pool) (int64, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO milk_pools
			(name, status,
			 total_milk_liters, total_fat_units, total_snf_units,
			 original_avg_fat, original_avg_snf,
			 remaining_milk_liters, remaining_fat_units, remaining_snf_units,
			 current_avg_fat, current_avg_snf,
			 created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING id
	`, p.Name, p.Status,
		p.TotalMilkLiters, p.TotalFatUnits, p.TotalSnfUnits,
		p.OriginalAvgFat, p.OriginalAvgSnf,
		p.RemainingMilkLiters, p.RemainingFatUnits, p.RemainingSnfUnits,
		p.CurrentAvgFat, p.CurrentAvgSnf,
		p.CreatedAt, p.UpdatedAt)
	var id int64
	return id, row.Scan(&id)
}

func (t *pgTx) CollectionsForPooling(ctx context.Context, ids []int64) ([]SourceCollection, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, supplier, qty_liters, fat, snf, status
		FROM collections
		WHERE id = ANY($1)
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[int64]SourceCollection, len(ids))
	for rows.Next() {
		var c SourceCollection
		var status string
		if err := rows.Scan(&c.ID, &c.Supplier, &c.Liters, &c.FatPercent, &c.SnfPercent, &status); err != nil {
			return nil, err
		}
		if status != "approved" {
			return nil, fmt.Errorf("%w: id %d is %s", ErrCollectionUnavailable, c.ID, status)
		}
		found[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Preserve selection order; a missing id is a referential error.
	out := make([]SourceCollection, 0, len(ids))
	for _, id := range ids {
		c, ok := found[id]
		if !ok {
			return nil, fmt.Errorf("%w: id %d", ErrCollectionNotFound, id)
		}
		out = append(out, c)
	}
	return out, nil
}

func (t *pgTx) MarkCollectionsPooled(ctx context.Context, ids []int64, poolID int64) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE collections SET status='pooled', pool_id=$2, pooled_at=NOW()
		WHERE id = ANY($1) AND status='approved'
	`, ids, poolID)
	if err != nil {
		return err
	}
	if int(tag.RowsAffected()) != len(ids) {
		return fmt.Errorf("%w: expected %d collections, updated %d", ErrCollectionUnavailable, len(ids), tag.RowsAffected())
	}
	return nil
}

func (t *pgTx) InsertAddition(ctx context.Context, a *Addition) error {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO pool_additions
			(pool_id, collection_id, supplier, liters, fat_percent, snf_percent,
			 fat_units, snf_units, avg_fat_after, avg_snf_after, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id
	`, a.PoolID, a.CollectionID, a.Supplier, a.Liters, a.FatPercent, a.SnfPercent,
		a.FatUnits, a.SnfUnits, a.AvgFatAfter, a.AvgSnfAfter, a.CreatedAt)
	return row.Scan(&a.ID)
}

func (t *pgTx) InsertWithdrawal(ctx context.Context, w *Withdrawal) (int64, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO pool_withdrawals
			(pool_id, used_liters, manual_fat_percent, manual_snf_percent,
			 used_fat_units, used_snf_units,
			 remaining_liters_after, remaining_fat_units_after, remaining_snf_units_after,
			 avg_fat_after, avg_snf_after, purpose, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id
	`, w.PoolID, w.UsedLiters, w.ManualFatPercent, w.ManualSnfPercent,
		w.UsedFatUnits, w.UsedSnfUnits,
		w.RemainingLitersAfter, w.RemainingFatUnitsAfter, w.RemainingSnfUnitsAfter,
		w.AvgFatAfter, w.AvgSnfAfter, w.Purpose, w.CreatedAt)
	var id int64
	return id, row.Scan(&id)
}

func (t *pgTx) InsertInventoryItems(ctx context.Context, withdrawalID int64, draws []InventoryDraw) error {
	for _, d := range draws {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO inventory_items (withdrawal_id, product_id, quantity, unit, fat_percent)
			VALUES ($1,$2,$3,$4,$5)
		`, withdrawalID, d.ProductID, d.Quantity, d.Unit, d.FatPercent); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) Additions(ctx context.Context, poolID int64) ([]Addition, error) {
	rows, err := t.tx.Query(ctx, additionsQuery, poolID)
	if err != nil {
		return nil, err
	}
	return scanAdditions(rows)
}

func (t *pgTx) Withdrawals(ctx context.Context, poolID int64) ([]Withdrawal, error) {
	rows, err := t.tx.Query(ctx, withdrawalsQuery, poolID)
	if err != nil {
		return nil, err
	}
	return scanWithdrawals(rows)
}

func (t *pgTx) InsertBook(ctx context.Context, b *Book) (int64, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO pool_books
			(pool_id, pool_name,
			 opening_liters, opening_fat_units, opening_snf_units,
			 original_avg_fat, original_avg_snf,
			 closing_liters, closing_fat_units, closing_snf_units,
			 closing_avg_fat, closing_avg_snf,
			 total_used_liters, additions_count, withdrawals_count, archived_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING id
	`, b.PoolID, b.PoolName,
		b.OpeningLiters, b.OpeningFatUnits, b.OpeningSnfUnits,
		b.OriginalAvgFat, b.OriginalAvgSnf,
		b.ClosingLiters, b.ClosingFatUnits, b.ClosingSnfUnits,
		b.ClosingAvgFat, b.ClosingAvgSnf,
		b.TotalUsedLiters, b.AdditionsCount, b.WithdrawalsCount, b.ArchivedAt)
	var id int64
	return id, row.Scan(&id)
}

const additionsQuery = `
	SELECT id, pool_id, collection_id, supplier, liters, fat_percent, snf_percent,
	       fat_units, snf_units, avg_fat_after, avg_snf_after, created_at
	FROM pool_additions
	WHERE pool_id=$1
	ORDER BY id ASC`

const withdrawalsQuery = `
	SELECT id, pool_id, used_liters, manual_fat_percent, manual_snf_percent,
	       used_fat_units, used_snf_units,
	       remaining_liters_after, remaining_fat_units_after, remaining_snf_units_after,
	       avg_fat_after, avg_snf_after, COALESCE(purpose,''), created_at
	FROM pool_withdrawals
	WHERE pool_id=$1
	ORDER BY id ASC`

func scanAdditions(rows pgx.Rows) ([]Addition, error) {
	defer rows.Close()
	out := []Addition{}
	for rows.Next() {
		var a Addition
		if err := rows.Scan(
			&a.ID, &a.PoolID, &a.CollectionID, &a.Supplier, &a.Liters, &a.FatPercent, &a.SnfPercent,
			&a.FatUnits, &a.SnfUnits, &a.AvgFatAfter, &a.AvgSnfAfter, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanWithdrawals(rows pgx.Rows) ([]Withdrawal, error) {
	defer rows.Close()
	out := []Withdrawal{}
	for rows.Next() {
		var w Withdrawal
		if err := rows.Scan(
			&w.ID, &w.PoolID, &w.UsedLiters, &w.ManualFatPercent, &w.ManualSnfPercent,
			&w.UsedFatUnits, &w.UsedSnfUnits,
			&w.RemainingLitersAfter, &w.RemainingFatUnitsAfter, &w.RemainingSnfUnitsAfter,
			&w.AvgFatAfter, &w.AvgSnfAfter, &w.Purpose, &w.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
