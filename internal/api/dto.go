package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/orders/internal/domain"
)

// Auth DTOs

// RegisterRequest — запрос на регистрацию.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// StatusResponse — ответ с текстовым статусом.
type StatusResponse struct {
	Status string `json:"status"`
}

// TokenResponse — ответ /token в формате OAuth2 password flow.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Order DTOs

// CreateOrderRequest — запрос на создание заказа.
//
// TotalPrice — json.Number, чтобы проверить число знаков до округления.
type CreateOrderRequest struct {
	Items      []domain.OrderItem `json:"items"`
	TotalPrice json.Number        `json:"total_price"`
}

// CreateOrderResponse — ответ на создание заказа.
type CreateOrderResponse struct {
	Status  string    `json:"status"`
	OrderID uuid.UUID `json:"order_id"`
}

// PublishFailedResponse — заказ записан, но new_order не отправлен.
type PublishFailedResponse struct {
	Error   ErrorDetail `json:"error"`
	OrderID uuid.UUID   `json:"order_id"`
}

// UpdateOrderRequest — запрос на смену статуса.
type UpdateOrderRequest struct {
	Status string `json:"status"`
}

// OrderResponse — ответ с заказом.
type OrderResponse struct {
	ID          uuid.UUID          `json:"id"`
	Items       []domain.OrderItem `json:"items"`
	TotalPrice  float64            `json:"total_price"`
	Status      domain.OrderStatus `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	ProcessedAt *time.Time         `json:"processed_at,omitempty"`
}

// OrderFromDomain конвертирует domain.Order в OrderResponse.
func OrderFromDomain(o domain.Order) OrderResponse {
	return OrderResponse{
		ID:          o.ID,
		Items:       o.Items,
		TotalPrice:  o.TotalPrice,
		Status:      o.Status,
		CreatedAt:   o.CreatedAt,
		ProcessedAt: o.ProcessedAt,
	}
}

// OrdersResponse — список заказов пользователя.
type OrdersResponse struct {
	Orders []OrderResponse `json:"orders"`
}
