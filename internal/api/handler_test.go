package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/milk-pool/internal/domain/collections"
	"github.com/Spok95/milk-pool/internal/domain/pool"
)

// fakeCollections keeps the QC ledger in memory for handler tests.
type fakeCollections struct {
	byID   map[int64]*collections.Collection
	nextID int64
}

var _ CollectionStore = (*fakeCollections)(nil)

func newFakeCollections() *fakeCollections {
	return &fakeCollections{byID: map[int64]*collections.Collection{}}
}

func (f *fakeCollections) Create(_ context.Context, supplier string, qtyLiters, fat, snf float64) (*collections.Collection, error) {
	f.nextID++
	c := &collections.Collection{
		ID: f.nextID, Supplier: supplier, QtyLiters: qtyLiters, Fat: fat, Snf: snf,
		Status: collections.StatusPending, CreatedAt: time.Now(),
	}
	f.byID[c.ID] = c
	return c, nil
}

func (f *fakeCollections) GetByID(_ context.Context, id int64) (*collections.Collection, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", collections.ErrNotFound, id)
	}
	return c, nil
}

func (f *fakeCollections) SetStatus(ctx context.Context, id int64, status collections.Status) (*collections.Collection, error) {
	c, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Status = status
	return c, nil
}

func (f *fakeCollections) ListPending(context.Context) ([]collections.Collection, error) {
	return f.filter(func(c *collections.Collection) bool { return c.Status == collections.StatusPending }), nil
}

func (f *fakeCollections) ListApprovedUnpooled(context.Context) ([]collections.Collection, error) {
	return f.filter(func(c *collections.Collection) bool { return c.Status == collections.StatusApproved }), nil
}

func (f *fakeCollections) ListByPool(_ context.Context, poolID int64) ([]collections.Collection, error) {
	return f.filter(func(c *collections.Collection) bool { return c.PoolID != nil && *c.PoolID == poolID }), nil
}

func (f *fakeCollections) filter(keep func(*collections.Collection) bool) []collections.Collection {
	out := []collections.Collection{}
	for id := int64(1); id <= f.nextID; id++ {
		if c, ok := f.byID[id]; ok && keep(c) {
			out = append(out, *c)
		}
	}
	return out
}

func newTestServer(t *testing.T) (*httptest.Server, *pool.MemStore, int64) {
	t.Helper()
	store := pool.NewMemStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := pool.NewEngine(store, log)

	p, err := engine.EnsureActive(context.Background())
	require.NoError(t, err)

	h := NewHandler(engine, store, nil, nil, nil, 0, log)
	mux := http.NewServeMux()
	h.Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store, p.ID
}

func newCollectionsServer(t *testing.T) (*httptest.Server, *fakeCollections) {
	t.Helper()
	store := pool.NewMemStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := pool.NewEngine(store, log)

	_, err := engine.EnsureActive(context.Background())
	require.NoError(t, err)

	cols := newFakeCollections()
	h := NewHandler(engine, store, cols, nil, nil, 0, log)
	mux := http.NewServeMux()
	h.Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, cols
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestGetPool(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/pool")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode(t, resp)
	assert.Equal(t, "active", body["status"])
	assert.Equal(t, 0.0, body["remaining_milk_liters"])
}

func TestAddUseArchiveRoundTrip(t *testing.T) {
	srv, store, poolID := newTestServer(t)

	store.SeedCollection(pool.SourceCollection{ID: 1, Supplier: "Ramesh", Liters: 100, FatPercent: 4.0, SnfPercent: 8.5}, true)

	resp := postJSON(t, srv.URL+"/api/pool/collections", map[string]any{
		"pool_id":        poolID,
		"collection_ids": []int64{1},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, 100.0, body["added_liters"])
	assert.Equal(t, 4.0, body["new_avg_fat"])

	resp = postJSON(t, srv.URL+"/api/pool/usage", map[string]any{
		"pool_id":     poolID,
		"liters":      30,
		"fat_percent": 5.0,
		"snf_percent": 8.0,
		"purpose":     "paneer",
		"inventory": []map[string]any{
			{"product_id": 11, "quantity": 25, "unit": "kg", "fat_percent": 5.0},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decode(t, resp)
	assert.Equal(t, 150.0, body["used_fat_units"])
	assert.Equal(t, 70.0, body["new_remaining_liters"])

	resp = postJSON(t, srv.URL+"/api/pool/archive", map[string]any{"pool_id": poolID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	book := decode(t, resp)
	assert.Equal(t, 70.0, book["closing_liters"])

	// The book is readable with full history.
	id := int64(book["id"].(float64))
	resp, err := http.Get(fmt.Sprintf("%s/api/books/%d", srv.URL, id))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	full := decode(t, resp)
	assert.Len(t, full["usage_history"], 1)

	// And exportable as xlsx.
	resp, err = http.Get(fmt.Sprintf("%s/api/books/%d/export", srv.URL, id))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "spreadsheetml")
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestUseMilkValidationMapsTo422(t *testing.T) {
	srv, store, poolID := newTestServer(t)
	store.SeedCollection(pool.SourceCollection{ID: 1, Supplier: "A", Liters: 70, FatPercent: 4.0, SnfPercent: 8.5}, true)
	resp := postJSON(t, srv.URL+"/api/pool/collections", map[string]any{
		"pool_id":        poolID,
		"collection_ids": []int64{1},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/pool/usage", map[string]any{
		"pool_id":     poolID,
		"liters":      80,
		"fat_percent": 4.0,
		"snf_percent": 8.5,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decode(t, resp)
	assert.Contains(t, body["error"], "not enough milk")
}

func TestUnknownBookIs404(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/books/999")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetCollectionByID(t *testing.T) {
	srv, cols := newCollectionsServer(t)

	c, err := cols.Create(context.Background(), "Ramesh", 100, 4.0, 8.5)
	require.NoError(t, err)

	resp, err := http.Get(fmt.Sprintf("%s/api/collections/%d", srv.URL, c.ID))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "Ramesh", body["supplier"])
	assert.Equal(t, "pending", body["status"])

	resp, err = http.Get(srv.URL + "/api/collections/999")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body = decode(t, resp)
	assert.Contains(t, body["error"], "collection not found")
}

func TestListPoolCollectionsDrillDown(t *testing.T) {
	srv, cols := newCollectionsServer(t)
	ctx := context.Background()

	a, err := cols.Create(ctx, "Ramesh", 100, 4.0, 8.5)
	require.NoError(t, err)
	b, err := cols.Create(ctx, "Suresh", 50, 3.5, 8.0)
	require.NoError(t, err)

	poolID := int64(7)
	a.Status, a.PoolID = collections.StatusPooled, &poolID
	_ = b // never pooled, must not appear

	resp, err := http.Get(fmt.Sprintf("%s/api/pool/%d/collections", srv.URL, poolID))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer func() { _ = resp.Body.Close() }()

	var out []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 1)
	assert.Equal(t, "Ramesh", out[0]["supplier"])
	assert.Equal(t, float64(poolID), out[0]["pool_id"])
}

func TestEmptySelectionIs422(t *testing.T) {
	srv, _, poolID := newTestServer(t)
	resp := postJSON(t, srv.URL+"/api/pool/collections", map[string]any{
		"pool_id":        poolID,
		"collection_ids": []int64{},
	})
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}
