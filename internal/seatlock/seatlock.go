package seatlock

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tixgate/internal/shared/apperrors"
	"tixgate/internal/shared/keys"
	"tixgate/internal/shared/store"
	"tixgate/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

// Locker claims seats for one order. Acquisition is all-or-nothing: either
// every requested seat is locked in one atomic step or none is, and the
// caller learns exactly which seats were contested. Owners are order scoped,
// so two orders by the same buyer contend like strangers and can never free
// or downgrade each other's locks.
type Locker interface {
	Acquire(ctx context.Context, scheduleID uint64, seatIDs []uint64, owner string) error

	// Release frees only locks still held by owner; locks taken over by
	// another buyer after expiry are left alone.
	Release(ctx context.Context, scheduleID uint64, seatIDs []uint64, owner string) error

	// Confirm removes the TTL from the owner's locks, pinning them for the
	// lifetime of a paid order. Fails with ErrLockExpired when any lock has
	// lapsed or changed hands.
	Confirm(ctx context.Context, scheduleID uint64, seatIDs []uint64, owner string) error

	Holder(ctx context.Context, scheduleID, seatID uint64) (string, error)
}

// acquireScript locks every seat or none.
//
// KEYS    seat lock keys
// ARGV[1] owner
// ARGV[2] TTL in seconds
//
// A key without a TTL is a permanent assignment of a paid order and always
// conflicts, even for the requesting owner; only the same owner's still
// leased locks may be re-taken (retry of the same order).
//
// Returns the list of conflicting keys; empty means all locks were taken.
const acquireScript = `
local conflicts = {}
for i = 1, #KEYS do
    local owner = redis.call('GET', KEYS[i])
    if owner and (owner ~= ARGV[1] or redis.call('TTL', KEYS[i]) < 0) then
        table.insert(conflicts, KEYS[i])
    end
end
if #conflicts > 0 then
    return conflicts
end
for i = 1, #KEYS do
    redis.call('SET', KEYS[i], ARGV[1], 'EX', tonumber(ARGV[2]))
end
return {}
`

// releaseScript deletes only locks still held by the owner.
//
// Returns the number of locks released.
const releaseScript = `
local released = 0
for i = 1, #KEYS do
    if redis.call('GET', KEYS[i]) == ARGV[1] then
        redis.call('DEL', KEYS[i])
        released = released + 1
    end
end
return released
`

// confirmScript verifies ownership of every lock, then strips the TTLs.
//
// Returns 1 on success, 0 when any lock expired or changed hands.
const confirmScript = `
for i = 1, #KEYS do
    if redis.call('GET', KEYS[i]) ~= ARGV[1] then
        return 0
    end
end
for i = 1, #KEYS do
    redis.call('PERSIST', KEYS[i])
end
return 1
`

type locker struct {
	store *store.Store
	ttl   int64 // seat lock TTL, seconds
	mtx   *metrics.Metrics
}

func NewLocker(st *store.Store, ttl time.Duration, mtx *metrics.Metrics) Locker {
	st.RegisterScript(acquireScript)
	st.RegisterScript(releaseScript)
	st.RegisterScript(confirmScript)

	return &locker{
		store: st,
		ttl:   int64(ttl.Seconds()),
		mtx:   mtx,
	}
}

func (l *locker) Acquire(ctx context.Context, scheduleID uint64, seatIDs []uint64, owner string) error {
	if len(seatIDs) == 0 {
		return fmt.Errorf("no seats requested")
	}

	lockKeys := buildKeys(scheduleID, seatIDs)
	result, err := l.store.EvalSlice(ctx, acquireScript, lockKeys, owner, l.ttl)
	if err != nil {
		return fmt.Errorf("seat lock acquire failed: %w", err)
	}

	if len(result) > 0 {
		conflicted := make([]uint64, 0, len(result))
		for _, v := range result {
			if key, ok := v.(string); ok {
				if id, ok := seatIDFromKey(key); ok {
					conflicted = append(conflicted, id)
				}
			}
		}
		l.mtx.SeatLockAttempts.WithLabelValues("conflict").Inc()
		l.mtx.SeatLockConflicts.WithLabelValues(strconv.FormatUint(scheduleID, 10)).Add(float64(len(conflicted)))
		return &apperrors.SeatUnavailableError{SeatMappingIDs: conflicted}
	}

	l.mtx.SeatLockAttempts.WithLabelValues("acquired").Inc()
	return nil
}

func (l *locker) Release(ctx context.Context, scheduleID uint64, seatIDs []uint64, owner string) error {
	if len(seatIDs) == 0 {
		return nil
	}

	_, err := l.store.EvalInt(ctx, releaseScript, buildKeys(scheduleID, seatIDs), owner)
	if err != nil {
		return fmt.Errorf("seat lock release failed: %w", err)
	}
	return nil
}

func (l *locker) Confirm(ctx context.Context, scheduleID uint64, seatIDs []uint64, owner string) error {
	confirmed, err := l.store.EvalInt(ctx, confirmScript, buildKeys(scheduleID, seatIDs), owner)
	if err != nil {
		return fmt.Errorf("seat lock confirm failed: %w", err)
	}
	if confirmed == 0 {
		return apperrors.ErrLockExpired
	}
	return nil
}

func (l *locker) Holder(ctx context.Context, scheduleID, seatID uint64) (string, error) {
	owner, err := l.store.Client().Get(ctx, keys.SeatLock(scheduleID, seatID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("seat lock lookup failed: %w", err)
	}
	return owner, nil
}

func buildKeys(scheduleID uint64, seatIDs []uint64) []string {
	lockKeys := make([]string, len(seatIDs))
	for i, id := range seatIDs {
		lockKeys[i] = keys.SeatLock(scheduleID, id)
	}
	return lockKeys
}

// seatIDFromKey recovers the seat mapping id from "seatLock:{schedule}:{seat}".
func seatIDFromKey(key string) (uint64, bool) {
	idx := strings.LastIndex(key, ":")
	if idx < 0 || idx == len(key)-1 {
		return 0, false
	}
	id, err := strconv.ParseUint(key[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
