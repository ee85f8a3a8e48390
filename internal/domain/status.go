package domain

import "fmt"

// OrderStatus — статус заказа.
//
// Жизненный цикл:
//
//	PENDING → PAID → SHIPPED
//	        ↘ CANCELLED
//
// Переходы задаёт пользователь через PATCH /orders/{id}/; сервис их не
// ограничивает, как и исходная система.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан и ждёт обработки.
	OrderStatusPending OrderStatus = "PENDING"

	// OrderStatusPaid — заказ оплачен.
	OrderStatusPaid OrderStatus = "PAID"

	// OrderStatusShipped — заказ отгружен.
	OrderStatusShipped OrderStatus = "SHIPPED"

	// OrderStatusCancelled — заказ отменён.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// IsValid возвращает true для известных статусов.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление OrderStatus.
func (s OrderStatus) String() string {
	return string(s)
}

// ParseOrderStatus парсит строку в OrderStatus.
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}
