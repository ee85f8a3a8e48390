package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/orders/internal/cache"
	"github.com/shaiso/orders/internal/domain"
	"github.com/shaiso/orders/internal/telemetry"
)

// CreateOrder записывает заказ и публикует new_order.
// POST /orders/
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	price, err := domain.ParsePrice(req.TotalPrice.String())
	if err != nil {
		ValidationError(w, err)
		return
	}
	order, err := domain.NewOrder(userID, req.Items, price)
	if err != nil {
		ValidationError(w, err)
		return
	}

	if err := h.orders.Create(r.Context(), order); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	logger := telemetry.WithOrderID(h.logger, order.ID.String())
	if err := h.publisher.PublishNewOrder(r.Context(), order.ID.String()); err != nil {
		// Заказ уже записан: сообщаем его ID, доставку догонит reconciler.
		logger.Error("order stored but new_order not published", "error", err)
		JSON(w, http.StatusServiceUnavailable, PublishFailedResponse{
			Error: ErrorDetail{
				Code:    ErrCodeUnavailable,
				Message: "order created but processing could not be scheduled",
			},
			OrderID: order.ID,
		})
		return
	}

	logger.Info("order created", "user_id", userID)
	Created(w, CreateOrderResponse{Status: "Order created successfully", OrderID: order.ID})
}

// GetOrder возвращает заказ текущего пользователя, сначала из кеша.
// GET /orders/{order_id}/
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	id, err := uuid.Parse(r.PathValue("order_id"))
	if err != nil {
		BadRequest(w, "invalid order id")
		return
	}

	cached, err := h.cache.Get(r.Context(), id)
	switch {
	case err == nil && cached.UserID == userID:
		Success(w, OrderFromDomain(*cached))
		return
	case err != nil && !errors.Is(err, cache.ErrCacheMiss):
		h.logger.Warn("order cache read failed", "order_id", id, "error", err)
	}

	order, err := h.orders.GetForUser(r.Context(), id, userID)
	if HandleRepoError(w, h.logger, err, "Order not found") {
		return
	}

	if err := h.cache.Set(r.Context(), order); err != nil {
		h.logger.Warn("order cache write failed", "order_id", id, "error", err)
	}

	Success(w, OrderFromDomain(*order))
}

// UpdateOrder меняет статус заказа и обновляет кеш.
// PATCH /orders/{order_id}/
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	id, err := uuid.Parse(r.PathValue("order_id"))
	if err != nil {
		BadRequest(w, "invalid order id")
		return
	}

	var req UpdateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		ValidationError(w, err)
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), id, userID, status)
	if HandleRepoError(w, h.logger, err, "Order not found") {
		return
	}

	if err := h.cache.Set(r.Context(), order); err != nil {
		h.logger.Warn("order cache write failed", "order_id", id, "error", err)
	}

	Success(w, OrderFromDomain(*order))
}

// ListUserOrders возвращает заказы текущего пользователя, новые первыми.
// Пользователь берётся из токена, {user_id} в пути не используется.
// GET /orders/user/{user_id}
func (h *Handler) ListUserOrders(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	orders, err := h.orders.ListByUser(r.Context(), userID)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]OrderResponse, len(orders))
	for i, o := range orders {
		result[i] = OrderFromDomain(o)
	}

	Success(w, OrdersResponse{Orders: result})
}
