package redis

// Redis key naming conventions for queue data.
// All keys are prefixed with "kycq:" to avoid collisions.

const keyPrefix = "kycq:"

// jobKeyPrefix is passed to Lua scripts so they can derive hash keys
// from member IDs.
const jobKeyPrefix = keyPrefix + "job:"

// promoteBatch bounds how many delayed jobs one promotion pass moves.
const promoteBatch = 512

// jobKey returns the Hash key for a job entity: kycq:job:{id}
func jobKey(id string) string { return jobKeyPrefix + id }

// waitingKey returns the waiting Sorted Set: kycq:{queue}:waiting
// Score = priority + seq/1e15, so lower priority values dequeue first
// and equal priorities dequeue FIFO.
func waitingKey(queue string) string { return keyPrefix + queue + ":waiting" }

// delayedKey returns the delayed Sorted Set: kycq:{queue}:delayed
// Score = RunAt in unix milliseconds.
func delayedKey(queue string) string { return keyPrefix + queue + ":delayed" }

// activeKey returns the active Sorted Set: kycq:{queue}:active
// Score = lease expiry in unix milliseconds.
func activeKey(queue string) string { return keyPrefix + queue + ":active" }

// completedKey returns the completed retention Sorted Set, scored by
// finish time: kycq:{queue}:completed
func completedKey(queue string) string { return keyPrefix + queue + ":completed" }

// failedKey returns the failed retention Sorted Set, scored by finish
// time: kycq:{queue}:failed
func failedKey(queue string) string { return keyPrefix + queue + ":failed" }

// pausedKey is the queue's pause flag: kycq:{queue}:paused
func pausedKey(queue string) string { return keyPrefix + queue + ":paused" }

// seqKey is the queue's atomic enqueue counter: kycq:{queue}:seq
func seqKey(queue string) string { return keyPrefix + queue + ":seq" }

// waitingScore orders the waiting set: priority first (lower = sooner),
// then enqueue sequence. The sequence fraction stays well inside float64
// integer precision for any realistic queue lifetime.
func waitingScore(priority int, seq int64) float64 {
	return float64(priority) + float64(seq)/1e15
}
