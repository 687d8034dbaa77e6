package pool

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemStore is an in-memory Store. Transactions serialize on one mutex, which
// trivially satisfies the isolation contract; mutations buffer in the Tx and
// apply on commit so a failed callback leaves nothing behind.
type MemStore struct {
	mu sync.Mutex

	pools       map[int64]*Pool
	collections map[int64]*memCollection
	additions   []Addition
	withdrawals []Withdrawal
	inventory   map[int64][]InventoryDraw
	books       map[int64]*Book

	nextPoolID       int64
	nextAdditionID   int64
	nextWithdrawalID int64
	nextBookID       int64
}

var _ Store = (*MemStore)(nil)

type memCollection struct {
	SourceCollection
	pooled   bool
	pooledBy int64
	approved bool
}

func NewMemStore() *MemStore {
	return &MemStore{
		pools:       make(map[int64]*Pool),
		collections: make(map[int64]*memCollection),
		inventory:   make(map[int64][]InventoryDraw),
		books:       make(map[int64]*Book),
	}
}

// SeedCollection registers a collection available for pooling (approved and
// unpooled unless approved=false).
func (s *MemStore) SeedCollection(c SourceCollection, approved bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[c.ID] = &memCollection{SourceCollection: c, approved: approved}
}

func (s *MemStore) ActivePool(ctx context.Context) (*Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pools {
		if p.Status == StatusActive {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNoActivePool
}

func (s *MemStore) PoolByID(ctx context.Context, id int64) (*Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrPoolNotFound, id)
	}
	cp := *p
	return &cp, nil
}

func (s *MemStore) Additions(ctx context.Context, poolID int64) ([]Addition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.additionsLocked(poolID), nil
}

func (s *MemStore) Withdrawals(ctx context.Context, poolID int64) ([]Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withdrawalsLocked(poolID), nil
}

func (s *MemStore) Books(ctx context.Context) ([]Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Book, 0, len(s.books))
	for _, b := range s.books {
		cp := *b
		cp.Additions = nil
		cp.Withdrawals = nil
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *MemStore) BookByID(ctx context.Context, id int64) (*Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrBookNotFound, id)
	}
	cp := *b
	cp.Additions = append([]Addition(nil), b.Additions...)
	cp.Withdrawals = append([]Withdrawal(nil), b.Withdrawals...)
	return &cp, nil
}

func (s *MemStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *MemStore) additionsLocked(poolID int64) []Addition {
	var out []Addition
	for _, a := range s.additions {
		if a.PoolID == poolID {
			out = append(out, a)
		}
	}
	return out
}

func (s *MemStore) withdrawalsLocked(poolID int64) []Withdrawal {
	var out []Withdrawal
	for _, w := range s.withdrawals {
		if w.PoolID == poolID {
			out = append(out, w)
		}
	}
	return out
}

// memTx buffers writes until commit. Reads see committed state plus the
// buffer, which is enough for the engine's read-then-write pattern.
type memTx struct {
	store *MemStore

	updatedPools map[int64]*Pool
	newPools     []*Pool
	pooled       map[int64]int64
	additions    []Addition
	withdrawals  []Withdrawal
	inventory    map[int64][]InventoryDraw
	books        []*Book
}

func (t *memTx) PoolForUpdate(ctx context.Context, id int64) (*Pool, error) {
	if p, ok := t.updatedPools[id]; ok {
		cp := *p
		return &cp, nil
	}
	p, ok := t.store.pools[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrPoolNotFound, id)
	}
	cp := *p
	return &cp, nil
}

func (t *memTx) UpdatePool(ctx context.Context, p *Pool) error {
	if _, ok := t.store.pools[p.ID]; !ok {
		return fmt.Errorf("%w: id %d", ErrPoolNotFound, p.ID)
	}
	if t.updatedPools == nil {
		t.updatedPools = make(map[int64]*Pool)
	}
	cp := *p
	t.updatedPools[p.ID] = &cp
	return nil
}

func (t *memTx) InsertPool(ctx context.Context, p *Pool) (int64, error) {
	t.store.nextPoolID++
	cp := *p
	cp.ID = t.store.nextPoolID
	t.newPools = append(t.newPools, &cp)
	return cp.ID, nil
}

func (t *memTx) CollectionsForPooling(ctx context.Context, ids []int64) ([]SourceCollection, error) {
	out := make([]SourceCollection, 0, len(ids))
	for _, id := range ids {
		c, ok := t.store.collections[id]
		if !ok {
			return nil, fmt.Errorf("%w: id %d", ErrCollectionNotFound, id)
		}
		if !c.approved || c.pooled {
			return nil, fmt.Errorf("%w: id %d", ErrCollectionUnavailable, id)
		}
		out = append(out, c.SourceCollection)
	}
	return out, nil
}

func (t *memTx) MarkCollectionsPooled(ctx context.Context, ids []int64, poolID int64) error {
	if t.pooled == nil {
		t.pooled = make(map[int64]int64)
	}
	for _, id := range ids {
		t.pooled[id] = poolID
	}
	return nil
}

func (t *memTx) InsertAddition(ctx context.Context, a *Addition) error {
	t.store.nextAdditionID++
	cp := *a
	cp.ID = t.store.nextAdditionID
	t.additions = append(t.additions, cp)
	return nil
}

func (t *memTx) InsertWithdrawal(ctx context.Context, w *Withdrawal) (int64, error) {
	t.store.nextWithdrawalID++
	cp := *w
	cp.ID = t.store.nextWithdrawalID
	t.withdrawals = append(t.withdrawals, cp)
	return cp.ID, nil
}

func (t *memTx) InsertInventoryItems(ctx context.Context, withdrawalID int64, draws []InventoryDraw) error {
	if t.inventory == nil {
		t.inventory = make(map[int64][]InventoryDraw)
	}
	t.inventory[withdrawalID] = append(t.inventory[withdrawalID], draws...)
	return nil
}

func (t *memTx) Additions(ctx context.Context, poolID int64) ([]Addition, error) {
	out := t.store.additionsLocked(poolID)
	for _, a := range t.additions {
		if a.PoolID == poolID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *memTx) Withdrawals(ctx context.Context, poolID int64) ([]Withdrawal, error) {
	out := t.store.withdrawalsLocked(poolID)
	for _, w := range t.withdrawals {
		if w.PoolID == poolID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (t *memTx) InsertBook(ctx context.Context, b *Book) (int64, error) {
	t.store.nextBookID++
	cp := *b
	cp.ID = t.store.nextBookID
	cp.Additions = append([]Addition(nil), b.Additions...)
	cp.Withdrawals = append([]Withdrawal(nil), b.Withdrawals...)
	t.books = append(t.books, &cp)
	return cp.ID, nil
}

func (t *memTx) commit() {
	s := t.store
	for id, p := range t.updatedPools {
		s.pools[id] = p
	}
	for _, p := range t.newPools {
		s.pools[p.ID] = p
	}
	for id, poolID := range t.pooled {
		if c, ok := s.collections[id]; ok {
			c.pooled = true
			c.pooledBy = poolID
		}
	}
	s.additions = append(s.additions, t.additions...)
	s.withdrawals = append(s.withdrawals, t.withdrawals...)
	for wid, draws := range t.inventory {
		s.inventory[wid] = append(s.inventory[wid], draws...)
	}
	for _, b := range t.books {
		s.books[b.ID] = b
	}
}
