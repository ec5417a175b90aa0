package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-shop-backend.git/internal/auth"
	"github.com/ariefcatur/go-shop-backend.git/internal/orders"
	"github.com/ariefcatur/go-shop-backend.git/internal/redisx"
)

// OrderService is what the handlers need from the order engine.
type OrderService interface {
	Checkout(ctx context.Context, userID, cartID string) (*orders.Order, string, string, error)
	ConfirmPayment(ctx context.Context, paymentRef string) (*orders.Order, error)
	Transition(ctx context.Context, orderID string, target orders.Status) (*orders.Order, error)
	Get(ctx context.Context, orderID, userID string) (*orders.Order, error)
	List(ctx context.Context, f orders.ListFilter) ([]orders.Order, int, error)
}

type OrdersHandler struct {
	Service OrderService
	Redis   *redis.Client
}

type CheckoutReq struct {
	CartID string `json:"cart_id"`
}

type CheckoutResp struct {
	OrderID      string `json:"order_id"`
	PaymentRef   string `json:"payment_ref"`
	ClientSecret string `json:"client_secret"`
}

type PaymentWebhookReq struct {
	PaymentRef string `json:"payment_ref"`
}

// statusView is the cached order status document. user_id is kept so the
// cache read can enforce ownership without hitting the database.
type statusView struct {
	UserID string     `json:"user_id"`
	Status string     `json:"status"`
	PaidAt *time.Time `json:"paid_at,omitempty"`
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	id, err := auth.FromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	var req CheckoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CartID == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Code: "validation", Detail: "cart_id required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, ref, secret, err := h.Service.Checkout(ctx, id.UserID, req.CartID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusCreated, CheckoutResp{OrderID: o.ID, PaymentRef: ref, ClientSecret: secret})
}

func (h *OrdersHandler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentWebhookReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PaymentRef == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Code: "validation", Detail: "payment_ref required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.ConfirmPayment(ctx, req.PaymentRef)
	if err != nil {
		writeError(w, err)
		return
	}

	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyPaymentConfirmed, req.PaymentRef)
		_ = h.Redis.Set(ctx, key, o.ID, redisx.TTLConfirmed).Err()
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	id, err := auth.FromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	f := orders.ListFilter{
		UserID:   id.UserID,
		Status:   orders.Status(r.URL.Query().Get("status")),
		Page:     atoiDefault(r.URL.Query().Get("page"), 1),
		PageSize: atoiDefault(r.URL.Query().Get("page_size"), 20),
	}
	f.Normalize()

	list, total, err := h.Service.List(ctx, f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginate(list, total, f.Page, f.PageSize))
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := auth.FromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.Get(ctx, chi.URLParam(r, "id"), id.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// getOrderStatus serves the payment-polling loop from cache when it can.
func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := auth.FromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			var v statusView
			if json.Unmarshal([]byte(s), &v) == nil && v.UserID == id.UserID {
				writeJSON(w, http.StatusOK, map[string]any{"status": v.Status, "paid_at": v.PaidAt})
				return
			}
		}
	}

	o, err := h.Service.Get(ctx, orderID, id.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, map[string]any{"status": o.Status, "paid_at": o.PaidAt})
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o *orders.Order) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	b, _ := json.Marshal(statusView{UserID: o.UserID, Status: string(o.Status), PaidAt: o.PaidAt})
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}
