// Package reconciler повторно публикует new_order для заказов,
// которые записаны в БД, но так и не были обработаны.
//
// Публикация в API не транзакционна с записью заказа: если брокер
// недоступен, клиент получает 503, а заказ остаётся без сообщения.
// Reconciler по расписанию (cron) находит такие заказы
// (processed_at IS NULL, created_at старше порога) и публикует их снова.
// Повторная обработка безопасна: задача идемпотентна по processed_at.
//
// Структура:
//   - reconciler.go — Tick и цикл по расписанию
//   - cron.go       — парсинг расписания
//
// Leader Election:
//
// Tick выполняет только лидер. Лидерство — pg_try_advisory_lock
// (repo.AdvisoryLock), поэтому несколько воркеров не дублируют публикации.
package reconciler
