// Package api содержит HTTP API сервиса заказов.
//
// Структура:
//   - handler.go       — Handler и интерфейсы зависимостей
//   - routes.go        — регистрация маршрутов и лимитов
//   - middleware.go    — logging, recovery, metrics, CORS, auth, rate limit
//   - response.go      — JSON-ответы и обработка ошибок
//   - dto.go           — запросы и ответы
//   - auth_handler.go  — /register/, /token
//   - order_handler.go — /orders/...
//
// Создание заказа: запись в БД, затем публикация new_order. Публикация не
// транзакционна с записью: при ошибке брокера клиент получает 503 с order_id.
package api
