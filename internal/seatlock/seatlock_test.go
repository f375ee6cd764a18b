package seatlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"tixgate/internal/shared/apperrors"
	"tixgate/internal/shared/store"
	"tixgate/pkg/metrics"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMetrics = metrics.New()

func setupTestLocker() (Locker, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	return NewLocker(store.New(db), 10*time.Minute, testMetrics), mock
}

func expectScript(mock redismock.ClientMock, script string, keys []string, args ...interface{}) *redismock.ExpectedCmd {
	mock.ExpectEvalSha(script, keys, args...).SetErr(errors.New("NOSCRIPT No matching script"))
	return mock.ExpectEval(script, keys, args...)
}

func TestAcquire_AllOrNothing_Success(t *testing.T) {
	locker, mock := setupTestLocker()
	defer mock.ClearExpect()

	expectScript(mock, acquireScript, []string{
		"seatLock:5:101",
		"seatLock:5:102",
	}, "order:pay-1", int64(600)).SetVal([]interface{}{})

	err := locker.Acquire(context.Background(), 5, []uint64{101, 102}, "order:pay-1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquire_ReportsConflictingSeats(t *testing.T) {
	locker, mock := setupTestLocker()
	defer mock.ClearExpect()

	expectScript(mock, acquireScript, []string{
		"seatLock:5:101",
		"seatLock:5:102",
		"seatLock:5:103",
	}, "order:pay-1", int64(600)).SetVal([]interface{}{"seatLock:5:102", "seatLock:5:103"})

	err := locker.Acquire(context.Background(), 5, []uint64{101, 102, 103}, "order:pay-1")
	require.Error(t, err)

	su, ok := apperrors.IsSeatUnavailable(err)
	require.True(t, ok)
	assert.Equal(t, []uint64{102, 103}, su.SeatMappingIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirm_ExpiredLock(t *testing.T) {
	locker, mock := setupTestLocker()
	defer mock.ClearExpect()

	expectScript(mock, confirmScript, []string{
		"seatLock:5:101",
	}, "order:pay-1").SetVal(int64(0))

	err := locker.Confirm(context.Background(), 5, []uint64{101}, "order:pay-1")
	assert.ErrorIs(t, err, apperrors.ErrLockExpired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirm_PinsHeldLocks(t *testing.T) {
	locker, mock := setupTestLocker()
	defer mock.ClearExpect()

	expectScript(mock, confirmScript, []string{
		"seatLock:5:101",
		"seatLock:5:102",
	}, "order:pay-1").SetVal(int64(1))

	err := locker.Confirm(context.Background(), 5, []uint64{101, 102}, "order:pay-1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelease_OnlyOwnedLocks(t *testing.T) {
	locker, mock := setupTestLocker()
	defer mock.ClearExpect()

	expectScript(mock, releaseScript, []string{
		"seatLock:5:101",
		"seatLock:5:102",
	}, "order:pay-1").SetVal(int64(1))

	err := locker.Release(context.Background(), 5, []uint64{101, 102}, "order:pay-1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
