package queue

// Lua scripts enforcing the admission invariants. Each runs as a single
// atomic unit inside Redis; no invariant is maintained by client-side
// check-then-act sequences.

// enterQueueScript issues a queue number exactly once per user.
//
// KEYS[1] waiting ZSET
// KEYS[2] nextNumber counter
// KEYS[3] user's working slot key
// ARGV[1] user id
//
// Returns {flag, sequence}:
//
//	flag -1  user already holds a working slot, sequence is 0
//	flag  1  user was already waiting, sequence is the original number
//	flag  0  new entry, sequence is freshly issued
const enterQueueScript = `
local waiting = KEYS[1]
local nextNum = KEYS[2]
local working = KEYS[3]
local userId = ARGV[1]

if redis.call('EXISTS', working) == 1 then
    return {-1, 0}
end

local existing = redis.call('ZSCORE', waiting, userId)
if existing then
    return {1, tonumber(existing)}
end

local seq = redis.call('INCR', nextNum)
redis.call('ZADD', waiting, seq, userId)
return {0, seq}
`

// promoteScript pops up to the free slot count from the head of the waiting
// queue and grants each popped user a TTL-bound working slot.
//
// KEYS[1] waiting ZSET
// KEYS[2] activeSlots counter
// KEYS[3] maxConcurrent key
// ARGV[1] event id (for working key construction)
// ARGV[2] working slot TTL in seconds
// ARGV[3] default max concurrent when the key is unset
//
// Returns the list of promoted user ids, oldest first.
const promoteScript = `
local waiting = KEYS[1]
local active = KEYS[2]
local maxKey = KEYS[3]
local eventId = ARGV[1]
local ttl = tonumber(ARGV[2])

local max = tonumber(redis.call('GET', maxKey) or ARGV[3])
local current = tonumber(redis.call('GET', active) or '0')
local free = max - current
if free <= 0 then
    return {}
end

local popped = redis.call('ZPOPMIN', waiting, free)
local promoted = {}
for i = 1, #popped, 2 do
    local member = popped[i]
    redis.call('SET', 'queue:' .. eventId .. ':working:' .. member, '1', 'EX', ttl)
    redis.call('INCR', active)
    table.insert(promoted, member)
end
return promoted
`

// releaseWorkingScript frees a working slot and decrements the active
// counter, clamping at zero so a double release cannot corrupt capacity.
//
// KEYS[1] user's working slot key
// KEYS[2] activeSlots counter
//
// Returns 1 when a slot was released, 0 when none existed.
const releaseWorkingScript = `
local working = KEYS[1]
local active = KEYS[2]

if redis.call('DEL', working) == 1 then
    if redis.call('DECR', active) < 0 then
        redis.call('SET', active, '0')
    end
    return 1
end
return 0
`

// heartbeatScript renews a live working slot's lease without resurrecting an
// expired one.
//
// KEYS[1] user's working slot key
// ARGV[1] TTL in seconds
//
// Returns 1 on renewal, 0 when the slot no longer exists.
const heartbeatScript = `
if redis.call('EXISTS', KEYS[1]) == 1 then
    redis.call('EXPIRE', KEYS[1], tonumber(ARGV[1]))
    return 1
end
return 0
`
