package taskq

import "github.com/redis/go-redis/v9"

// submitUniqueScript атомарно занимает ключ уникальности и ставит задачу.
// Если ключ уже занят, возвращает ID задачи-владельца.
//
// KEYS: unique, task, pending. ARGV: id, record, ttl(ms).
var submitUniqueScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  return cur
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
redis.call('LPUSH', KEYS[3], ARGV[1])
return ARGV[1]
`)

// dequeueScript забирает следующий ID из pending и кладёт его в active
// с visibility deadline.
//
// KEYS: pending, active. ARGV: deadline(ms).
var dequeueScript = redis.NewScript(`
local id = redis.call('RPOP', KEYS[1])
if not id then return false end
redis.call('ZADD', KEYS[2], ARGV[1], id)
return id
`)

// moveDueScript переносит один созревший элемент из ZSET в pending.
// Используется и для delayed (countdown истёк), и для active (visibility истекла).
//
// KEYS: zset, pending. ARGV: now(ms).
var moveDueScript = redis.NewScript(`
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #items == 0 then return false end
local id = items[1]
if redis.call('ZREM', KEYS[1], id) == 1 then
  redis.call('LPUSH', KEYS[2], id)
  return id
end
return false
`)

// finishScript сохраняет терминальную запись, снимает задачу с active
// и освобождает ключ уникальности, если он всё ещё принадлежит задаче.
//
// KEYS: task, active, [unique]. ARGV: id, record, ttl(ms).
var finishScript = redis.NewScript(`
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
redis.call('ZREM', KEYS[2], ARGV[1])
if #KEYS > 2 and redis.call('GET', KEYS[3]) == ARGV[1] then
  redis.call('DEL', KEYS[3])
end
return 1
`)
