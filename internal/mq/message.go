package mq

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

// MessageVersion — текущая версия схемы OrderMessage.
const MessageVersion = 1

// ErrMalformedMessage — тело сообщения не декодируется или в нём нет order_id.
var ErrMalformedMessage = errors.New("malformed message")

// OrderMessage — тело сообщения в очереди new_order.
type OrderMessage struct {
	// OrderID — идентификатор созданного заказа. Обязателен.
	OrderID string `json:"order_id"`

	// Version — версия схемы. Отсутствие поля означает версию 1.
	Version int `json:"v,omitempty"`
}

// EncodeOrderMessage кодирует сообщение о новом заказе.
func EncodeOrderMessage(orderID string) ([]byte, error) {
	return json.Marshal(OrderMessage{OrderID: orderID, Version: MessageVersion})
}

// DecodeOrderMessage декодирует тело сообщения.
// Неизвестные поля игнорируются.
func DecodeOrderMessage(body []byte) (OrderMessage, error) {
	var msg OrderMessage
	if err := sonic.Unmarshal(body, &msg); err != nil {
		return OrderMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if strings.TrimSpace(msg.OrderID) == "" {
		return OrderMessage{}, fmt.Errorf("%w: order_id is missing", ErrMalformedMessage)
	}
	if msg.Version == 0 {
		msg.Version = MessageVersion
	}
	return msg, nil
}
