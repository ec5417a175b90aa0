package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-shop-backend.git/internal/auth"
	"github.com/ariefcatur/go-shop-backend.git/internal/cart"
)

type CartStore interface {
	GetOrCreateDraft(ctx context.Context, userID string) (cart.Cart, error)
	AddItem(ctx context.Context, cartID, productID string, qty int) (cart.Item, error)
	UpdateItem(ctx context.Context, cartID, itemID string, qty int) (cart.Item, error)
	RemoveItem(ctx context.Context, cartID, itemID string) error
}

type CartHandler struct {
	Store CartStore
}

type AddItemReq struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type UpdateItemReq struct {
	Qty int `json:"qty"`
}

func (h *CartHandler) getCart(w http.ResponseWriter, r *http.Request) {
	id, err := auth.FromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c, err := h.Store.GetOrCreateDraft(ctx, id.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	id, err := auth.FromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	var req AddItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Code: "validation", Detail: "product_id and qty required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c, err := h.Store.GetOrCreateDraft(ctx, id.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	item, err := h.Store.AddItem(ctx, c.ID, req.ProductID, req.Qty)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *CartHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, err := auth.FromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	var req UpdateItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Code: "validation", Detail: "invalid body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c, err := h.Store.GetOrCreateDraft(ctx, id.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	item, err := h.Store.UpdateItem(ctx, c.ID, chi.URLParam(r, "id"), req.Qty)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, err := auth.FromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c, err := h.Store.GetOrCreateDraft(ctx, id.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.Store.RemoveItem(ctx, c.ID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
