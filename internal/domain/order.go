package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Ошибки валидации заказа.
var (
	ErrInvalidItems  = errors.New("invalid order items")
	ErrInvalidPrice  = errors.New("invalid total price")
	ErrInvalidStatus = errors.New("invalid order status")
)

// Ограничения на total_price: NUMERIC(10, 2).
const (
	priceMaxDigits   = 10
	priceMaxDecimals = 2
)

// OrderItem — позиция заказа: название товара → количество (>= 1).
//
// Формат наследуется от API: [{"laptop": 1}, {"mouse": 2}].
type OrderItem map[string]int

// Order — заказ пользователя.
type Order struct {
	// ID — уникальный идентификатор заказа.
	ID uuid.UUID `json:"id"`

	// UserID — владелец заказа.
	UserID int64 `json:"user_id"`

	// Items — позиции заказа.
	Items []OrderItem `json:"items"`

	// TotalPrice — общая стоимость, максимум два знака после запятой.
	TotalPrice float64 `json:"total_price"`

	// Status — текущий статус.
	Status OrderStatus `json:"status"`

	// CreatedAt — время создания (UTC).
	CreatedAt time.Time `json:"created_at"`

	// ProcessedAt — время завершения фоновой обработки.
	// Nil, пока обработка не выполнена. Служит ключом идемпотентности
	// для повторных доставок одного и того же new_order.
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// NewOrder создаёт заказ в статусе PENDING после валидации.
func NewOrder(userID int64, items []OrderItem, totalPrice float64) (*Order, error) {
	if err := ValidateItems(items); err != nil {
		return nil, err
	}
	if totalPrice <= 0 {
		return nil, fmt.Errorf("%w: must be positive", ErrInvalidPrice)
	}

	return &Order{
		ID:         uuid.New(),
		UserID:     userID,
		Items:      items,
		TotalPrice: totalPrice,
		Status:     OrderStatusPending,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// IsProcessed возвращает true, если фоновая обработка уже выполнена.
func (o *Order) IsProcessed() bool {
	return o.ProcessedAt != nil
}

// ValidateItems проверяет позиции: хотя бы одна, у каждой непустое имя и количество >= 1.
func ValidateItems(items []OrderItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one item required", ErrInvalidItems)
	}
	for i, item := range items {
		if len(item) == 0 {
			return fmt.Errorf("%w: item %d is empty", ErrInvalidItems, i)
		}
		for name, qty := range item {
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("%w: item %d has empty name", ErrInvalidItems, i)
			}
			if qty < 1 {
				return fmt.Errorf("%w: quantity of %q must be >= 1", ErrInvalidItems, name)
			}
		}
	}
	return nil
}

// ParsePrice парсит десятичную строку цены.
//
// Правила: > 0, не больше двух знаков после запятой, не больше десяти цифр всего.
// Строка, а не float64, чтобы отличить "19.99" от "19.999" до округления.
func ParsePrice(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidPrice)
	}

	intPart, fracPart, _ := strings.Cut(strings.TrimPrefix(s, "+"), ".")
	if len(fracPart) > priceMaxDecimals {
		return 0, fmt.Errorf("%w: at most %d decimal places", ErrInvalidPrice, priceMaxDecimals)
	}
	if len(strings.TrimLeft(intPart, "0"))+len(fracPart) > priceMaxDigits {
		return 0, fmt.Errorf("%w: at most %d digits", ErrInvalidPrice, priceMaxDigits)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%w: must be positive", ErrInvalidPrice)
	}
	return v, nil
}
