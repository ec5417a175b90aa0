package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-shop-backend.git/internal/catalog"
)

type CatalogStore interface {
	List(ctx context.Context, f catalog.ListFilter) ([]catalog.Product, int, error)
	GetByID(ctx context.Context, id string) (catalog.Product, error)
	GetBySlug(ctx context.Context, slug string) (catalog.Product, error)
	ListCategories(ctx context.Context) ([]catalog.Category, error)
}

type CatalogHandler struct {
	Store CatalogStore
}

func (h *CatalogHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	f := catalog.ListFilter{
		CategoryID: r.URL.Query().Get("category_id"),
		Page:       atoiDefault(r.URL.Query().Get("page"), 1),
		PageSize:   atoiDefault(r.URL.Query().Get("page_size"), 20),
	}
	list, total, err := h.Store.List(ctx, f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginate(list, total, f.Page, f.PageSize))
}

// getProduct resolves the path segment as an id first, then as a slug.
func (h *CatalogHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := chi.URLParam(r, "id")
	p, err := h.Store.GetByID(ctx, key)
	if errors.Is(err, catalog.ErrNotFound) {
		p, err = h.Store.GetBySlug(ctx, key)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if !p.IsActive {
		writeJSON(w, http.StatusNotFound, apiError{Code: "not_found", Detail: "not found"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *CatalogHandler) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	cats, err := h.Store.ListCategories(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, catalog.BuildTree(cats))
}
