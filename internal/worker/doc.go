// Package worker связывает очередь new_order с task backend.
//
// Поток одного сообщения:
//
//	Received → Dispatched → {Acked | NackedRequeue}
//
// Dispatcher декодирует сообщение, ставит задачу process_order
// и ждёт её результат не дольше WaitTimeout. Успех → ack, всё остальное
// (битое сообщение, ошибка задачи, таймаут ожидания) → nack с requeue.
// Таймаут ожидания не отменяет задачу: повторная доставка присоединяется
// к ней через ключ уникальности.
package worker
