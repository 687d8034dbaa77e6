package pool

import "context"

// Store is the ledger persistence contract. Reads outside RunInTx are plain
// snapshot reads; every mutating engine operation runs inside RunInTx so that
// validation and write see the same pool state.
//
// The store enforces at most one pool with StatusActive and delivers
// serializable (or optimistic-equivalent) isolation for RunInTx: of two
// conflicting writers one commits, the other retries or fails with
// ErrConflict. Lost updates are not an outcome.
type Store interface {
	ActivePool(ctx context.Context) (*Pool, error)
	PoolByID(ctx context.Context, id int64) (*Pool, error)

	Additions(ctx context.Context, poolID int64) ([]Addition, error)
	Withdrawals(ctx context.Context, poolID int64) ([]Withdrawal, error)

	Books(ctx context.Context) ([]Book, error)
	BookByID(ctx context.Context, id int64) (*Book, error)

	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional view handed to RunInTx callbacks.
type Tx interface {
	PoolForUpdate(ctx context.Context, id int64) (*Pool, error)
	UpdatePool(ctx context.Context, p *Pool) error
	InsertPool(ctx context.Context, p *Pool) (int64, error)

	// CollectionsForPooling resolves ids to approved, unpooled collections.
	// A missing id fails with ErrCollectionNotFound, a consumed or
	// unapproved one with ErrCollectionUnavailable.
	CollectionsForPooling(ctx context.Context, ids []int64) ([]SourceCollection, error)
	MarkCollectionsPooled(ctx context.Context, ids []int64, poolID int64) error

	InsertAddition(ctx context.Context, a *Addition) error
	InsertWithdrawal(ctx context.Context, w *Withdrawal) (int64, error)
	InsertInventoryItems(ctx context.Context, withdrawalID int64, draws []InventoryDraw) error

	Additions(ctx context.Context, poolID int64) ([]Addition, error)
	Withdrawals(ctx context.Context, poolID int64) ([]Withdrawal, error)
	InsertBook(ctx context.Context, b *Book) (int64, error)
}
