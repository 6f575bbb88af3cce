package redis

import goredis "github.com/redis/go-redis/v9"

// Lua scripts for the transitions that must be atomic. Each script is
// loaded once (EVALSHA) by go-redis.

// claimScript pops the best waiting job, marks it active, counts the
// attempt, and takes the lease — in one atomic step. Returns the job ID
// or false when the queue is empty or paused.
//
// KEYS[1] = waiting zset
// KEYS[2] = active zset
// KEYS[3] = paused flag
// ARGV[1] = job key prefix
// ARGV[2] = now (RFC3339Nano)
// ARGV[3] = lease expiry (RFC3339Nano)
// ARGV[4] = lease expiry (unix ms, active-set score)
// ARGV[5] = worker id
var claimScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[3]) == 1 then
    return false
end
local popped = redis.call("ZPOPMIN", KEYS[1])
if #popped == 0 then
    return false
end
local jid = popped[1]
local key = ARGV[1] .. jid
redis.call("HINCRBY", key, "attempts_made", 1)
redis.call("HSET", key,
    "state", "active",
    "processed_at", ARGV[2],
    "updated_at", ARGV[2],
    "lease_expiry", ARGV[3],
    "worker_id", ARGV[5])
redis.call("ZADD", KEYS[2], ARGV[4], jid)
return jid
`)

// ackScript applies a terminal or retry transition to an active job.
// Removing the job from the active set is the idempotency gate: a miss
// means the job was already acked and the call is a no-op. Count-bounded
// retention is trimmed inline for terminal outcomes.
//
// KEYS[1] = active zset
// KEYS[2] = completed zset
// KEYS[3] = failed zset
// KEYS[4] = delayed zset
// ARGV[1] = job key prefix
// ARGV[2] = job id
// ARGV[3] = status ("completed" | "retry" | "failed")
// ARGV[4] = now (RFC3339Nano)
// ARGV[5] = now (unix ms)
// ARGV[6] = last error
// ARGV[7] = retry at (RFC3339Nano)
// ARGV[8] = retry at (unix ms)
// ARGV[9] = retention count for the terminal set (0 = unbounded)
var ackScript = goredis.NewScript(`
if redis.call("ZREM", KEYS[1], ARGV[2]) == 0 then
    return 0
end
local key = ARGV[1] .. ARGV[2]
redis.call("HDEL", key, "lease_expiry", "worker_id")
redis.call("HSET", key, "updated_at", ARGV[4])

local function trim(zkey, retain)
    if retain <= 0 then
        return
    end
    local excess = redis.call("ZCARD", zkey) - retain
    if excess > 0 then
        local old = redis.call("ZRANGE", zkey, 0, excess - 1)
        for _, oid in ipairs(old) do
            redis.call("DEL", ARGV[1] .. oid)
        end
        redis.call("ZREMRANGEBYRANK", zkey, 0, excess - 1)
    end
end

if ARGV[3] == "completed" then
    redis.call("HSET", key, "state", "completed", "finished_at", ARGV[4])
    redis.call("ZADD", KEYS[2], ARGV[5], ARGV[2])
    trim(KEYS[2], tonumber(ARGV[9]))
elseif ARGV[3] == "retry" then
    redis.call("HSET", key, "state", "delayed", "last_error", ARGV[6], "run_at", ARGV[7])
    redis.call("ZADD", KEYS[4], ARGV[8], ARGV[2])
else
    redis.call("HSET", key, "state", "failed", "last_error", ARGV[6], "finished_at", ARGV[4])
    redis.call("ZADD", KEYS[3], ARGV[5], ARGV[2])
    trim(KEYS[3], tonumber(ARGV[9]))
end
return 1
`)

// promoteScript moves due delayed jobs into the waiting set, recomputing
// each job's priority+FIFO score from its hash.
//
// KEYS[1] = delayed zset
// KEYS[2] = waiting zset
// ARGV[1] = job key prefix
// ARGV[2] = now (unix ms)
// ARGV[3] = batch limit
// ARGV[4] = now (RFC3339Nano)
var promoteScript = goredis.NewScript(`
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[2], "LIMIT", 0, tonumber(ARGV[3]))
for _, jid in ipairs(due) do
    local key = ARGV[1] .. jid
    local pri = tonumber(redis.call("HGET", key, "priority")) or 0
    local seq = tonumber(redis.call("HGET", key, "seq")) or 0
    redis.call("ZREM", KEYS[1], jid)
    redis.call("ZADD", KEYS[2], pri + seq / 1e15, jid)
    redis.call("HSET", key, "state", "waiting", "updated_at", ARGV[4])
end
return #due
`)

// extendLeaseScript renews the lease on a still-active job. Returns 0
// when the job is no longer active.
//
// KEYS[1] = active zset
// ARGV[1] = job key prefix
// ARGV[2] = job id
// ARGV[3] = new lease expiry (unix ms)
// ARGV[4] = new lease expiry (RFC3339Nano)
var extendLeaseScript = goredis.NewScript(`
if redis.call("ZSCORE", KEYS[1], ARGV[2]) == false then
    return 0
end
redis.call("ZADD", KEYS[1], ARGV[3], ARGV[2])
redis.call("HSET", ARGV[1] .. ARGV[2], "lease_expiry", ARGV[4])
return 1
`)

// cleanScript removes terminal jobs that finished before the cutoff,
// deleting both the retention entries and the job hashes.
//
// KEYS[1] = completed or failed zset
// ARGV[1] = job key prefix
// ARGV[2] = cutoff (unix ms)
var cleanScript = goredis.NewScript(`
local old = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[2])
for _, jid in ipairs(old) do
    redis.call("DEL", ARGV[1] .. jid)
end
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[2])
return #old
`)
