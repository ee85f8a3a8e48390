// Package cli реализует инструмент командной строки orders.
//
// # Обзор
//
// CLI — клиент HTTP API сервиса заказов. Не импортирует внутренние
// пакеты сервера: типы ответов продублированы в client.go.
//
// ## Client
//
// HTTP-клиент: регистрация, получение токена и операции с заказами.
// Токен передаётся флагом --token или переменной ORDERS_TOKEN.
//
//	client := cli.NewClient("http://localhost:8080", token)
//	order, err := client.GetOrder(id)
//
// ## Output
//
// Таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные — в stdout, сообщения — в stderr:
//
//	orders order list --json | jq '.[].status'
//
// ## Commands
//
//   - register --email --password
//   - login --email --password
//   - order: create, get, update, list
package cli
