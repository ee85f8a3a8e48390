// Package taskq реализует task backend поверх Redis.
//
// Клиент (Client) ставит задачи в очередь и ждёт их результат,
// сервер (Server) исполняет зарегистрированные обработчики с ретраями.
//
// Раскладка ключей (hash tag очереди держит всё в одном слоте):
//
//	taskq:{queue}:pending        LIST  — ID задач, готовых к исполнению
//	taskq:{queue}:delayed        ZSET  — ID задач, ждущих countdown (score = ms)
//	taskq:{queue}:active         ZSET  — ID исполняемых задач (score = visibility deadline)
//	taskq:{queue}:task:{id}      STRING — JSON-запись задачи с TTL
//	taskq:{queue}:unique:{n}:{k} STRING — ID задачи, владеющей ключом уникальности
//
// Жизненный цикл задачи:
//
//	PENDING → STARTED → SUCCESS
//	                  → RETRY → (countdown) → STARTED → ...
//	                  → FAILURE
package taskq
