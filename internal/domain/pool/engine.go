package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Engine runs the ledger operations. Each operation is one store transaction:
// validate against the freshly read pool, mutate and append log rows, or touch
// nothing at all.
type Engine struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

func NewEngine(store Store, log *slog.Logger) *Engine {
	return &Engine{store: store, log: log, now: time.Now}
}

type AddResult struct {
	PoolID      int64
	AddedLiters float64
	NewAvgFat   float64
	NewAvgSnf   float64
}

type UseResult struct {
	PoolID             int64
	WithdrawalID       int64
	UsedFatUnits       float64
	UsedSnfUnits       float64
	NewRemainingLiters float64
	NewAvgFat          float64
	NewAvgSnf          float64
}

// EnsureActive returns the active pool, creating a zeroed one if none exists.
func (e *Engine) EnsureActive(ctx context.Context) (*Pool, error) {
	p, err := e.store.ActivePool(ctx)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNoActivePool) {
		return nil, err
	}
	var created *Pool
	err = e.store.RunInTx(ctx, func(tx Tx) error {
		np := e.newPool()
		id, err := tx.InsertPool(ctx, np)
		if err != nil {
			return err
		}
		np.ID = id
		created = np
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("active pool created", "pool_id", created.ID, "name", created.Name)
	return created, nil
}

// AddCollections adds the selected approved collections to the pool,
// all-or-nothing across the set. Collections are applied in selection order
// so each log row carries the pool averages right after that collection.
func (e *Engine) AddCollections(ctx context.Context, poolID int64, collectionIDs []int64) (AddResult, error) {
	if len(collectionIDs) == 0 {
		return AddResult{}, ErrEmptySelection
	}
	var res AddResult
	err := e.store.RunInTx(ctx, func(tx Tx) error {
		p, err := e.activeForUpdate(ctx, tx, poolID)
		if err != nil {
			return err
		}
		cols, err := tx.CollectionsForPooling(ctx, collectionIDs)
		if err != nil {
			return err
		}

		now := e.now()
		var added float64
		for _, c := range cols {
			fatUnits := UnitsOf(c.Liters, c.FatPercent)
			snfUnits := UnitsOf(c.Liters, c.SnfPercent)

			p.TotalMilkLiters += c.Liters
			p.TotalFatUnits += fatUnits
			p.TotalSnfUnits += snfUnits
			p.RemainingMilkLiters += c.Liters
			p.RemainingFatUnits += fatUnits
			p.RemainingSnfUnits += snfUnits

			p.CurrentAvgFat = WeightedAverage(p.RemainingFatUnits, p.RemainingMilkLiters)
			p.CurrentAvgSnf = WeightedAverage(p.RemainingSnfUnits, p.RemainingMilkLiters)
			// Cumulative average over everything ever added this cycle,
			// recomputed on each addition.
			p.OriginalAvgFat = WeightedAverage(p.TotalFatUnits, p.TotalMilkLiters)
			p.OriginalAvgSnf = WeightedAverage(p.TotalSnfUnits, p.TotalMilkLiters)

			if err := tx.InsertAddition(ctx, &Addition{
				PoolID:       p.ID,
				CollectionID: c.ID,
				Supplier:     c.Supplier,
				Liters:       c.Liters,
				FatPercent:   c.FatPercent,
				SnfPercent:   c.SnfPercent,
				FatUnits:     fatUnits,
				SnfUnits:     snfUnits,
				AvgFatAfter:  p.CurrentAvgFat,
				AvgSnfAfter:  p.CurrentAvgSnf,
				CreatedAt:    now,
			}); err != nil {
				return err
			}
			added += c.Liters
		}

		p.UpdatedAt = now
		if err := tx.UpdatePool(ctx, p); err != nil {
			return err
		}
		if err := tx.MarkCollectionsPooled(ctx, collectionIDs, p.ID); err != nil {
			return err
		}
		res = AddResult{PoolID: p.ID, AddedLiters: added, NewAvgFat: p.CurrentAvgFat, NewAvgSnf: p.CurrentAvgSnf}
		return nil
	})
	if err != nil {
		return AddResult{}, err
	}
	e.log.Info("collections added to pool",
		"pool_id", res.PoolID, "collections", len(collectionIDs),
		"liters", res.AddedLiters, "avg_fat", res.NewAvgFat, "avg_snf", res.NewAvgSnf)
	return res, nil
}

// UseMilk withdraws useLiters at the operator's manual fat/SNF percents.
// Preconditions are checked in order against the transactional read; the
// first failure aborts with no mutation. When the manual percents differ from
// the current blend the remaining averages drift up or down accordingly.
func (e *Engine) UseMilk(ctx context.Context, poolID int64, useLiters, manualFat, manualSnf float64, purpose string, draws []InventoryDraw) (UseResult, error) {
	var res UseResult
	err := e.store.RunInTx(ctx, func(tx Tx) error {
		p, err := e.activeForUpdate(ctx, tx, poolID)
		if err != nil {
			return err
		}
		if useLiters <= 0 {
			return ErrInvalidLiters
		}
		if useLiters > p.RemainingMilkLiters {
			return fmt.Errorf("%w: requested %.3f L, remaining %.3f L", ErrInsufficientMilk, useLiters, p.RemainingMilkLiters)
		}
		if maxFat := MaxFeasiblePercent(p.RemainingFatUnits, useLiters); manualFat < 0 || manualFat > maxFat {
			return fmt.Errorf("%w: %.3f%% > %.3f%%", ErrFatExceedsFeasible, manualFat, maxFat)
		}
		if maxSnf := MaxFeasiblePercent(p.RemainingSnfUnits, useLiters); manualSnf < 0 || manualSnf > maxSnf {
			return fmt.Errorf("%w: %.3f%% > %.3f%%", ErrSnfExceedsFeasible, manualSnf, maxSnf)
		}

		usedFat := UnitsOf(useLiters, manualFat)
		usedSnf := UnitsOf(useLiters, manualSnf)

		p.RemainingMilkLiters -= useLiters
		p.RemainingFatUnits = clampUnits(p.RemainingFatUnits - usedFat)
		p.RemainingSnfUnits = clampUnits(p.RemainingSnfUnits - usedSnf)
		p.CurrentAvgFat = WeightedAverage(p.RemainingFatUnits, p.RemainingMilkLiters)
		p.CurrentAvgSnf = WeightedAverage(p.RemainingSnfUnits, p.RemainingMilkLiters)

		now := e.now()
		p.UpdatedAt = now
		if err := tx.UpdatePool(ctx, p); err != nil {
			return err
		}

		wid, err := tx.InsertWithdrawal(ctx, &Withdrawal{
			PoolID:                 p.ID,
			UsedLiters:             useLiters,
			ManualFatPercent:       manualFat,
			ManualSnfPercent:       manualSnf,
			UsedFatUnits:           usedFat,
			UsedSnfUnits:           usedSnf,
			RemainingLitersAfter:   p.RemainingMilkLiters,
			RemainingFatUnitsAfter: p.RemainingFatUnits,
			RemainingSnfUnitsAfter: p.RemainingSnfUnits,
			AvgFatAfter:            p.CurrentAvgFat,
			AvgSnfAfter:            p.CurrentAvgSnf,
			Purpose:                purpose,
			CreatedAt:              now,
		})
		if err != nil {
			return err
		}
		if len(draws) > 0 {
			if err := tx.InsertInventoryItems(ctx, wid, draws); err != nil {
				return err
			}
		}
		res = UseResult{
			PoolID:             p.ID,
			WithdrawalID:       wid,
			UsedFatUnits:       usedFat,
			UsedSnfUnits:       usedSnf,
			NewRemainingLiters: p.RemainingMilkLiters,
			NewAvgFat:          p.CurrentAvgFat,
			NewAvgSnf:          p.CurrentAvgSnf,
		}
		return nil
	})
	if err != nil {
		return UseResult{}, err
	}
	e.log.Info("milk used from pool",
		"pool_id", res.PoolID, "withdrawal_id", res.WithdrawalID,
		"liters", useLiters, "fat", manualFat, "snf", manualSnf,
		"remaining", res.NewRemainingLiters, "purpose", purpose)
	return res, nil
}

// ArchiveAndReset freezes the pool and its full history into a Book, flips
// the pool to archived and creates a fresh zeroed active pool, all in one
// transaction. Calling it on a non-active pool is a caller bug and fails
// loudly.
func (e *Engine) ArchiveAndReset(ctx context.Context, poolID int64) (*Book, error) {
	var book *Book
	var newPoolID int64
	err := e.store.RunInTx(ctx, func(tx Tx) error {
		p, err := e.activeForUpdate(ctx, tx, poolID)
		if err != nil {
			return err
		}
		adds, err := tx.Additions(ctx, p.ID)
		if err != nil {
			return err
		}
		uses, err := tx.Withdrawals(ctx, p.ID)
		if err != nil {
			return err
		}

		now := e.now()
		b := &Book{
			PoolID:   p.ID,
			PoolName: p.Name,

			OpeningLiters:   p.TotalMilkLiters,
			OpeningFatUnits: p.TotalFatUnits,
			OpeningSnfUnits: p.TotalSnfUnits,
			OriginalAvgFat:  p.OriginalAvgFat,
			OriginalAvgSnf:  p.OriginalAvgSnf,

			ClosingLiters:   p.RemainingMilkLiters,
			ClosingFatUnits: p.RemainingFatUnits,
			ClosingSnfUnits: p.RemainingSnfUnits,
			ClosingAvgFat:   p.CurrentAvgFat,
			ClosingAvgSnf:   p.CurrentAvgSnf,

			TotalUsedLiters:  p.TotalMilkLiters - p.RemainingMilkLiters,
			AdditionsCount:   len(adds),
			WithdrawalsCount: len(uses),
			ArchivedAt:       now,

			Additions:   adds,
			Withdrawals: uses,
		}
		id, err := tx.InsertBook(ctx, b)
		if err != nil {
			return err
		}
		b.ID = id

		p.Status = StatusArchived
		p.UpdatedAt = now
		if err := tx.UpdatePool(ctx, p); err != nil {
			return err
		}

		np := e.newPool()
		npID, err := tx.InsertPool(ctx, np)
		if err != nil {
			return err
		}
		newPoolID = npID
		book = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("pool archived",
		"pool_id", poolID, "book_id", book.ID, "new_pool_id", newPoolID,
		"closing_liters", book.ClosingLiters, "total_used", book.TotalUsedLiters)
	return book, nil
}

func (e *Engine) activeForUpdate(ctx context.Context, tx Tx, poolID int64) (*Pool, error) {
	p, err := tx.PoolForUpdate(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusActive {
		return nil, fmt.Errorf("%w: pool %d is %s", ErrPoolNotActive, p.ID, p.Status)
	}
	return p, nil
}

func (e *Engine) newPool() *Pool {
	now := e.now()
	return &Pool{
		Name:      "Milk Pool " + now.Format("2006-01-02 15:04"),
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
