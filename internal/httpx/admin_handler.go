package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-shop-backend.git/internal/auth"
	"github.com/ariefcatur/go-shop-backend.git/internal/catalog"
	"github.com/ariefcatur/go-shop-backend.git/internal/orders"
)

type AdminCatalogStore interface {
	Create(ctx context.Context, p catalog.Product) (catalog.Product, error)
	ApplyPatch(ctx context.Context, id string, patch catalog.ProductPatch) (catalog.Product, error)
	Deactivate(ctx context.Context, id string) error
	List(ctx context.Context, f catalog.ListFilter) ([]catalog.Product, int, error)
}

type AdminHandler struct {
	Orders  OrderService
	Catalog AdminCatalogStore
}

func (h *AdminHandler) audit(r *http.Request, action string, kv ...any) {
	id, _ := auth.FromContext(r.Context())
	slog.Info(action, append([]any{"admin_id", id.UserID}, kv...)...)
}

type CreateProductReq struct {
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Description *string `json:"description,omitempty"`
	PriceCents  int     `json:"price_cents"`
	Currency    string  `json:"currency"`
	Stock       int     `json:"stock"`
	CategoryID  *string `json:"category_id,omitempty"`
}

type TransitionReq struct {
	Status string `json:"status"`
}

func (h *AdminHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Code: "validation", Detail: "invalid body"})
		return
	}
	if req.SKU == "" || req.Name == "" || req.Slug == "" || req.PriceCents < 0 || req.Stock < 0 {
		writeJSON(w, http.StatusBadRequest, apiError{Code: "validation", Detail: "sku, name, slug required; price and stock must be >= 0"})
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Catalog.Create(ctx, catalog.Product{
		SKU:         req.SKU,
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Currency:    req.Currency,
		Stock:       req.Stock,
		IsActive:    true,
		CategoryID:  req.CategoryID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.audit(r, "product_created", "product_id", p.ID)
	writeJSON(w, http.StatusCreated, p)
}

func (h *AdminHandler) patchProduct(w http.ResponseWriter, r *http.Request) {
	var patch catalog.ProductPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Code: "validation", Detail: "invalid body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Catalog.ApplyPatch(ctx, chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	h.audit(r, "product_updated", "product_id", p.ID)
	writeJSON(w, http.StatusOK, p)
}

func (h *AdminHandler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id := chi.URLParam(r, "id")
	if err := h.Catalog.Deactivate(ctx, id); err != nil {
		writeError(w, err)
		return
	}
	h.audit(r, "product_deactivated", "product_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	f := orders.ListFilter{
		Status:   orders.Status(r.URL.Query().Get("status")),
		Page:     atoiDefault(r.URL.Query().Get("page"), 1),
		PageSize: atoiDefault(r.URL.Query().Get("page_size"), 20),
	}
	f.Normalize()

	list, total, err := h.Orders.List(ctx, f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginate(list, total, f.Page, f.PageSize))
}

func (h *AdminHandler) transitionOrder(w http.ResponseWriter, r *http.Request) {
	var req TransitionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Code: "validation", Detail: "status required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.Transition(ctx, chi.URLParam(r, "id"), orders.Status(req.Status))
	if err != nil {
		writeError(w, err)
		return
	}
	h.audit(r, "order_status_updated", "order_id", o.ID, "status", string(o.Status))
	writeJSON(w, http.StatusOK, o)
}

// replayPayment re-runs the confirmation for a payment reference; it is
// safe because confirmation is idempotent on the reference.
func (h *AdminHandler) replayPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.ConfirmPayment(ctx, chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.audit(r, "payment_replayed", "order_id", o.ID)
	writeJSON(w, http.StatusOK, o)
}
