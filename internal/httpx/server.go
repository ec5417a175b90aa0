package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-shop-backend.git/internal/auth"
)

type Deps struct {
	Orders    OrderService
	Carts     CartStore
	Catalog   CatalogStore
	AdminCat  AdminCatalogStore
	Redis     *redis.Client
	JWTSecret string
}

func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	oh := &OrdersHandler{Service: d.Orders, Redis: d.Redis}
	ch := &CartHandler{Store: d.Carts}
	ph := &CatalogHandler{Store: d.Catalog}
	ah := &AdminHandler{Orders: d.Orders, Catalog: d.AdminCat}

	// public catalog
	r.Get("/products", ph.listProducts)
	r.Get("/products/{id}", ph.getProduct)
	r.Get("/categories", ph.listCategories)

	// the payment gateway calls back here; its signature check happens
	// upstream of this service
	r.Post("/webhooks/mock-payments", oh.confirmPayment)

	// authenticated user surface
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(d.JWTSecret))

		r.Get("/cart", ch.getCart)
		r.Post("/cart/items", ch.addItem)
		r.Patch("/cart/items/{id}", ch.updateItem)
		r.Delete("/cart/items/{id}", ch.removeItem)

		r.Post("/checkout", oh.checkout)
		r.Get("/orders", oh.listOrders)
		r.Get("/orders/{id}", oh.getOrder)
		r.Get("/orders/{id}/status", oh.getOrderStatus)
	})

	// admin surface
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(d.JWTSecret), auth.RequireAdmin)

		r.Post("/admin/products", ah.createProduct)
		r.Patch("/admin/products/{id}", ah.patchProduct)
		r.Delete("/admin/products/{id}", ah.deleteProduct)
		r.Get("/admin/orders", ah.listOrders)
		r.Patch("/admin/orders/{id}", ah.transitionOrder)
		r.Post("/admin/payments/{ref}/replay", ah.replayPayment)
	})

	return r
}
