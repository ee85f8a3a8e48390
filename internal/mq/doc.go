// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - message.go    — формат сообщения new_order
//   - topology.go   — объявление очереди и dead-letter обвязки
//   - connection.go — соединение публикатора с автоматическим reconnect
//   - publisher.go  — публикация new_order
//   - delivery.go   — доставка с однократным ack/nack
//   - consumer.go   — одна сессия потребления (prefetch, ручной ack)
//   - supervisor.go — бесконечный цикл пересоздания сессий
//   - backoff.go    — задержка между сессиями
//
// По умолчанию (AMQP_MAX_REDELIVERIES = 0) new_order — обычная durable classic
// очередь: сообщение, которое не удаётся обработать, возвращается в очередь
// бесконечно.
//
// Топология с лимитом доставок (AMQP_MAX_REDELIVERIES > 0):
//
//	"" (default exchange)
//	└── new_order [quorum, x-delivery-limit]
//	        Consumer: orders-consumer
//	        DLX: new_order.dlx
//
//	new_order.dlx (direct)
//	└── new_order.dead [routing: new_order]
//	        Manual processing
//
// Существующую classic очередь нельзя переобъявить как quorum: включение
// лимита требует пересоздания new_order.
package mq
