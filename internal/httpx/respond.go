package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ariefcatur/go-shop-backend.git/internal/cart"
	"github.com/ariefcatur/go-shop-backend.git/internal/catalog"
	"github.com/ariefcatur/go-shop-backend.git/internal/orders"
)

type apiError struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

type paginated struct {
	Items    any `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Pages    int `json:"pages"`
}

func paginate(items any, total, page, pageSize int) paginated {
	pages := 1
	if pageSize > 0 {
		pages = (total + pageSize - 1) / pageSize
	}
	return paginated{Items: items, Total: total, Page: page, PageSize: pageSize, Pages: pages}
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto the API surface. Unknown and unowned
// resources produce the same 404 body so existence never leaks.
func writeError(w http.ResponseWriter, err error) {
	var unavailable *orders.ProductUnavailableError

	switch {
	case errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, cart.ErrProductNotFound):
		writeJSON(w, http.StatusNotFound, apiError{Code: "not_found", Detail: "not found"})
	case errors.As(err, &unavailable):
		writeJSON(w, http.StatusBadRequest, apiError{Code: "product_unavailable", Detail: unavailable.Error()})
	case errors.Is(err, orders.ErrEmptyCart):
		writeJSON(w, http.StatusBadRequest, apiError{Code: "empty_cart", Detail: err.Error()})
	case errors.Is(err, orders.ErrCartMismatch):
		writeJSON(w, http.StatusBadRequest, apiError{Code: "cart_mismatch", Detail: err.Error()})
	case errors.Is(err, orders.ErrInvalidTransition):
		writeJSON(w, http.StatusBadRequest, apiError{Code: "invalid_transition", Detail: err.Error()})
	case errors.Is(err, cart.ErrInsufficientStock):
		writeJSON(w, http.StatusBadRequest, apiError{Code: "insufficient_stock", Detail: err.Error()})
	case errors.Is(err, cart.ErrValidation), errors.Is(err, catalog.ErrValidation):
		writeJSON(w, http.StatusBadRequest, apiError{Code: "validation", Detail: err.Error()})
	case errors.Is(err, orders.ErrPaymentGateway):
		writeJSON(w, http.StatusBadGateway, apiError{Code: "payment_gateway", Detail: "payment could not be initiated"})
	default:
		slog.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Code: "internal", Detail: "internal error"})
	}
}
