package seatlock

import (
	"context"
	"testing"
	"time"

	"tixgate/internal/shared/apperrors"
	"tixgate/internal/shared/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Script tests run the Lua against a real command implementation so the
// atomicity and ownership rules are exercised, not just the call shapes.

func setupScriptLocker(t *testing.T) (Locker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewLocker(store.New(client), 10*time.Minute, testMetrics), mr
}

func TestAcquireScript_SingleWinnerPerSeat(t *testing.T) {
	locker, _ := setupScriptLocker(t)
	ctx := context.Background()

	require.NoError(t, locker.Acquire(ctx, 5, []uint64{77, 78}, "order:p1"))

	err := locker.Acquire(ctx, 5, []uint64{77}, "order:p2")
	su, ok := apperrors.IsSeatUnavailable(err)
	require.True(t, ok)
	assert.Equal(t, []uint64{77}, su.SeatMappingIDs)

	// An uncontested seat is still free for the loser.
	assert.NoError(t, locker.Acquire(ctx, 5, []uint64{79}, "order:p2"))
}

func TestAcquireScript_NoPartialWrites(t *testing.T) {
	locker, mr := setupScriptLocker(t)
	ctx := context.Background()

	require.NoError(t, locker.Acquire(ctx, 5, []uint64{77}, "order:p1"))

	err := locker.Acquire(ctx, 5, []uint64{76, 77}, "order:p2")
	su, ok := apperrors.IsSeatUnavailable(err)
	require.True(t, ok)
	assert.Equal(t, []uint64{77}, su.SeatMappingIDs)

	// The losing request must not have locked the free seat.
	assert.False(t, mr.Exists("seatLock:5:76"))
}

func TestAcquireScript_PermanentAssignmentNeverReacquired(t *testing.T) {
	locker, mr := setupScriptLocker(t)
	ctx := context.Background()

	require.NoError(t, locker.Acquire(ctx, 5, []uint64{101}, "order:p1"))
	require.NoError(t, locker.Confirm(ctx, 5, []uint64{101}, "order:p1"))
	require.Zero(t, mr.TTL("seatLock:5:101"))

	// Not even the owning order may convert the assignment back to a lease.
	err := locker.Acquire(ctx, 5, []uint64{101}, "order:p1")
	su, ok := apperrors.IsSeatUnavailable(err)
	require.True(t, ok)
	assert.Equal(t, []uint64{101}, su.SeatMappingIDs)

	err = locker.Acquire(ctx, 5, []uint64{101}, "order:p2")
	_, ok = apperrors.IsSeatUnavailable(err)
	require.True(t, ok)

	// The assignment survives the attempts with no TTL.
	assert.Zero(t, mr.TTL("seatLock:5:101"))
	assert.True(t, mr.Exists("seatLock:5:101"))
}

func TestAcquireScript_SameOrderRetryKeepsLease(t *testing.T) {
	locker, mr := setupScriptLocker(t)
	ctx := context.Background()

	require.NoError(t, locker.Acquire(ctx, 5, []uint64{77}, "order:p1"))
	require.NoError(t, locker.Acquire(ctx, 5, []uint64{77}, "order:p1"))

	assert.Greater(t, mr.TTL("seatLock:5:77"), time.Duration(0))
}

func TestReleaseScript_LeavesOtherOrdersLocks(t *testing.T) {
	locker, mr := setupScriptLocker(t)
	ctx := context.Background()

	require.NoError(t, locker.Acquire(ctx, 5, []uint64{1}, "order:p1"))
	require.NoError(t, locker.Acquire(ctx, 5, []uint64{2}, "order:p2"))

	require.NoError(t, locker.Release(ctx, 5, []uint64{1, 2}, "order:p1"))

	assert.False(t, mr.Exists("seatLock:5:1"))
	assert.True(t, mr.Exists("seatLock:5:2"))
}

func TestConfirmScript_FailsAfterLeaseExpiry(t *testing.T) {
	locker, mr := setupScriptLocker(t)
	ctx := context.Background()

	require.NoError(t, locker.Acquire(ctx, 5, []uint64{77}, "order:p1"))
	mr.FastForward(11 * time.Minute)

	err := locker.Confirm(ctx, 5, []uint64{77}, "order:p1")
	assert.ErrorIs(t, err, apperrors.ErrLockExpired)
}
