package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Spok95/milk-pool/internal/domain/collections"
	"github.com/Spok95/milk-pool/internal/domain/inventory"
	"github.com/Spok95/milk-pool/internal/domain/pool"
	"github.com/Spok95/milk-pool/internal/infra/metrics"
	"github.com/Spok95/milk-pool/internal/infra/notify"
	"github.com/Spok95/milk-pool/internal/report"
)

// CollectionStore is the slice of the collections repo the API uses.
// *collections.Repo satisfies it.
type CollectionStore interface {
	Create(ctx context.Context, supplier string, qtyLiters, fat, snf float64) (*collections.Collection, error)
	GetByID(ctx context.Context, id int64) (*collections.Collection, error)
	SetStatus(ctx context.Context, id int64, status collections.Status) (*collections.Collection, error)
	ListPending(ctx context.Context) ([]collections.Collection, error)
	ListApprovedUnpooled(ctx context.Context) ([]collections.Collection, error)
	ListByPool(ctx context.Context, poolID int64) ([]collections.Collection, error)
}

// Handler is the JSON surface the dashboard calls. It maps fields, delegates
// to the engine and repos, and owns no ledger logic.
type Handler struct {
	engine      *pool.Engine
	store       pool.Store
	collections CollectionStore
	inventory   *inventory.Repo
	notifier    *notify.Telegram
	lowMilk     float64
	log         *slog.Logger
}

func NewHandler(engine *pool.Engine, store pool.Store, cols CollectionStore, inv *inventory.Repo, notifier *notify.Telegram, lowMilkThreshold float64, log *slog.Logger) *Handler {
	return &Handler{
		engine:      engine,
		store:       store,
		collections: cols,
		inventory:   inv,
		notifier:    notifier,
		lowMilk:     lowMilkThreshold,
		log:         log,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/pool", h.getPool)
	mux.HandleFunc("GET /api/pool/history", h.getPoolHistory)
	mux.HandleFunc("POST /api/pool/collections", h.addCollections)
	mux.HandleFunc("POST /api/pool/usage", h.useMilk)
	mux.HandleFunc("POST /api/pool/archive", h.archive)
	mux.HandleFunc("GET /api/books", h.listBooks)
	mux.HandleFunc("GET /api/books/{id}", h.getBook)
	mux.HandleFunc("GET /api/books/{id}/export", h.exportBook)
	if h.collections != nil {
		mux.HandleFunc("GET /api/collections", h.listCollections)
		mux.HandleFunc("POST /api/collections", h.createCollection)
		mux.HandleFunc("GET /api/collections/{id}", h.getCollection)
		mux.HandleFunc("POST /api/collections/{id}/status", h.setCollectionStatus)
		mux.HandleFunc("GET /api/pool/{id}/collections", h.listPoolCollections)
	}
	if h.inventory != nil {
		mux.HandleFunc("GET /api/inventory", h.listInventory)
		mux.HandleFunc("GET /api/usage/{id}/inventory", h.listWithdrawalInventory)
	}
}

func (h *Handler) getPool(w http.ResponseWriter, r *http.Request) {
	p, err := h.engine.EnsureActive(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	metrics.RemainingLiters.Set(p.RemainingMilkLiters)
	h.ok(w, http.StatusOK, p)
}

func (h *Handler) getPoolHistory(w http.ResponseWriter, r *http.Request) {
	p, err := h.engine.EnsureActive(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	adds, err := h.store.Additions(r.Context(), p.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	uses, err := h.store.Withdrawals(r.Context(), p.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, http.StatusOK, map[string]any{
		"pool":                p,
		"collections_history": adds,
		"usage_history":       uses,
	})
}

type addRequest struct {
	PoolID        int64   `json:"pool_id"`
	CollectionIDs []int64 `json:"collection_ids"`
}

func (h *Handler) addCollections(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid JSON body")
		return
	}
	res, err := h.engine.AddCollections(r.Context(), req.PoolID, req.CollectionIDs)
	if err != nil {
		h.fail(w, err)
		return
	}
	metrics.AdditionsTotal.Add(float64(len(req.CollectionIDs)))
	h.ok(w, http.StatusOK, map[string]any{
		"pool_id":      res.PoolID,
		"added_liters": res.AddedLiters,
		"new_avg_fat":  res.NewAvgFat,
		"new_avg_snf":  res.NewAvgSnf,
	})
}

type useRequest struct {
	PoolID     int64   `json:"pool_id"`
	Liters     float64 `json:"liters"`
	FatPercent float64 `json:"fat_percent"`
	SnfPercent float64 `json:"snf_percent"`
	Purpose    string  `json:"purpose"`
	Inventory  []struct {
		ProductID  int64   `json:"product_id"`
		Quantity   float64 `json:"quantity"`
		Unit       string  `json:"unit"`
		FatPercent float64 `json:"fat_percent"`
	} `json:"inventory"`
}

func (h *Handler) useMilk(w http.ResponseWriter, r *http.Request) {
	var req useRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid JSON body")
		return
	}
	draws := make([]pool.InventoryDraw, 0, len(req.Inventory))
	for _, d := range req.Inventory {
		draws = append(draws, pool.InventoryDraw{
			ProductID:  d.ProductID,
			Quantity:   d.Quantity,
			Unit:       d.Unit,
			FatPercent: d.FatPercent,
		})
	}
	res, err := h.engine.UseMilk(r.Context(), req.PoolID, req.Liters, req.FatPercent, req.SnfPercent, req.Purpose, draws)
	if err != nil {
		h.fail(w, err)
		return
	}
	metrics.WithdrawalsTotal.Inc()
	metrics.RemainingLiters.Set(res.NewRemainingLiters)
	if h.lowMilk > 0 && res.NewRemainingLiters < h.lowMilk {
		if p, err := h.store.PoolByID(r.Context(), res.PoolID); err == nil {
			h.notifier.LowMilk(p, h.lowMilk)
		}
	}
	h.ok(w, http.StatusOK, map[string]any{
		"pool_id":              res.PoolID,
		"withdrawal_id":        res.WithdrawalID,
		"used_fat_units":       res.UsedFatUnits,
		"used_snf_units":       res.UsedSnfUnits,
		"new_remaining_liters": res.NewRemainingLiters,
		"new_avg_fat":          res.NewAvgFat,
		"new_avg_snf":          res.NewAvgSnf,
	})
}

type archiveRequest struct {
	PoolID int64 `json:"pool_id"`
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	var req archiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid JSON body")
		return
	}
	book, err := h.engine.ArchiveAndReset(r.Context(), req.PoolID)
	if err != nil {
		h.fail(w, err)
		return
	}
	metrics.ArchivesTotal.Inc()
	metrics.RemainingLiters.Set(0)
	h.notifier.PoolArchived(book)
	h.ok(w, http.StatusOK, book)
}

func (h *Handler) listBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.store.Books(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, http.StatusOK, books)
}

func (h *Handler) getBook(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	book, err := h.store.BookByID(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, http.StatusOK, book)
}

func (h *Handler) exportBook(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	book, err := h.store.BookByID(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	data, err := report.BookExcel(book)
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="pool_book_%d.xlsx"`, book.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) listCollections(w http.ResponseWriter, r *http.Request) {
	var (
		out []collections.Collection
		err error
	)
	switch r.URL.Query().Get("status") {
	case "pending":
		out, err = h.collections.ListPending(r.Context())
	default:
		out, err = h.collections.ListApprovedUnpooled(r.Context())
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, http.StatusOK, out)
}

type createCollectionRequest struct {
	Supplier  string  `json:"supplier"`
	QtyLiters float64 `json:"qty_liters"`
	Fat       float64 `json:"fat"`
	Snf       float64 `json:"snf"`
}

func (h *Handler) createCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid JSON body")
		return
	}
	c, err := h.collections.Create(r.Context(), req.Supplier, req.QtyLiters, req.Fat, req.Snf)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	h.ok(w, http.StatusCreated, c)
}

func (h *Handler) getCollection(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	c, err := h.collections.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, http.StatusOK, c)
}

// listPoolCollections is the drill-down from an archived book back to the
// source collections that fed that pool.
func (h *Handler) listPoolCollections(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	out, err := h.collections.ListByPool(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, http.StatusOK, out)
}

func (h *Handler) setCollectionStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid JSON body")
		return
	}
	c, err := h.collections.SetStatus(r.Context(), id, collections.Status(req.Status))
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	h.ok(w, http.StatusOK, c)
}

func (h *Handler) listInventory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.inventory.ListRecent(r.Context(), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, http.StatusOK, items)
}

func (h *Handler) listWithdrawalInventory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	items, err := h.inventory.ListByWithdrawal(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, http.StatusOK, items)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.badRequest(w, "invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handler) ok(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("encode response", "err", err)
	}
}

func (h *Handler) badRequest(w http.ResponseWriter, reason string) {
	h.writeError(w, http.StatusBadRequest, reason)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case pool.IsValidation(err):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case pool.IsNotFound(err), errors.Is(err, collections.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, pool.ErrConflict):
		metrics.ConflictsTotal.Inc()
		h.writeError(w, http.StatusConflict, err.Error())
	default:
		h.log.Error("pool operation failed", "err", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": reason})
}
