package api

import (
	"net/http"

	"github.com/shaiso/orders/internal/ratelimit"
)

// Лимиты эндпоинтов заказов.
var (
	CreateOrderLimit = ratelimit.PerMinute("create_order", 5)
	GetOrderLimit    = ratelimit.PerMinute("get_order", 10)
	UpdateOrderLimit = ratelimit.PerMinute("update_order", 5)
	ListOrdersLimit  = ratelimit.PerMinute("list_orders", 10)
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Metrics(),
		Logging(h.logger),
	)
	protected := func(rule ratelimit.Rule, fn http.HandlerFunc) http.Handler {
		return Chain(
			chain,
			Authenticate(h.tokens, h.users, h.logger),
			RateLimit(h.limiter, rule),
		)(fn)
	}

	// Service
	mux.Handle("GET /health", chain(http.HandlerFunc(h.Welcome)))
	mux.Handle("GET /healthz", chain(http.HandlerFunc(h.Healthz)))

	// Auth
	mux.Handle("POST /register/{$}", chain(http.HandlerFunc(h.Register)))
	mux.Handle("POST /token", chain(http.HandlerFunc(h.Login)))

	// Orders
	mux.Handle("POST /orders/{$}", protected(CreateOrderLimit, h.CreateOrder))
	mux.Handle("GET /orders/{order_id}/{$}", protected(GetOrderLimit, h.GetOrder))
	mux.Handle("PATCH /orders/{order_id}/{$}", protected(UpdateOrderLimit, h.UpdateOrder))
	mux.Handle("GET /orders/user/{user_id}", protected(ListOrdersLimit, h.ListUserOrders))
}

// Routes возвращает готовый http.Handler с CORS.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return CORS()(mux)
}
