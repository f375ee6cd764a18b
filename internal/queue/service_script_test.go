package queue

import (
	"context"
	"testing"
	"time"

	"tixgate/internal/events"
	"tixgate/internal/shared/apperrors"
	"tixgate/internal/shared/config"
	"tixgate/internal/shared/store"
	"tixgate/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Script tests run the Lua against a real command implementation so the
// FIFO and capacity invariants are exercised end to end.

func setupScriptService(t *testing.T, maxConcurrent int) (Service, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := &config.Config{
		Queue: config.QueueConfig{
			AlmostDoneThreshold:  100,
			DefaultMaxConcurrent: maxConcurrent,
			PromoteInterval:      2 * time.Second,
		},
		Redis: config.RedisConfig{
			WorkingSlotTTL: 2 * time.Minute,
		},
	}

	service := NewService(store.New(client), NoopTopicManager{}, cfg, logger.New(), testMetrics)

	err := service.OpenWindow(context.Background(), &events.EventSchedule{
		ID:            1,
		EventID:       "concert-1",
		MaxConcurrent: maxConcurrent,
	})
	require.NoError(t, err)

	return service, mr
}

// Three users against two slots: the first two are admitted on entry, the
// third waits at the front, and an expired slot hands over to them.
func TestAdmission_SlotHandoverAfterExpiry(t *testing.T) {
	service, mr := setupScriptService(t, 2)
	ctx := context.Background()

	s1, err := service.EnterQueue(ctx, "concert-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, s1.Status)

	s2, err := service.EnterQueue(ctx, "concert-1", "u2")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, s2.Status)

	s3, err := service.EnterQueue(ctx, "concert-1", "u3")
	require.NoError(t, err)
	assert.Equal(t, StatusAlmostDone, s3.Status)
	assert.Equal(t, int64(1), s3.Rank)

	// u1's lease lapses; reconcile notices and promotion backfills with u3.
	mr.SetTTL("queue:concert-1:working:u1", time.Millisecond)
	mr.FastForward(time.Second)

	active, err := service.ReconcileSlots(ctx, "concert-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)

	promoted, err := service.Promote(ctx, "concert-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u3"}, promoted)

	admitted, err := service.IsAdmitted(ctx, "concert-1", "u3")
	require.NoError(t, err)
	assert.True(t, admitted)

	stats, err := service.GetStats(ctx, "concert-1")
	require.NoError(t, err)
	assert.Zero(t, stats.TotalWaiting)
	assert.Equal(t, int64(2), stats.ActiveSlots)
}

func TestAdmission_CapacityNeverExceeded(t *testing.T) {
	service, _ := setupScriptService(t, 2)
	ctx := context.Background()

	users := []string{"u1", "u2", "u3", "u4", "u5"}
	for _, u := range users {
		_, err := service.EnterQueue(ctx, "concert-1", u)
		require.NoError(t, err)
	}

	stats, err := service.GetStats(ctx, "concert-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.ActiveSlots)
	assert.Equal(t, int64(3), stats.TotalWaiting)

	// A promotion sweep against full capacity admits nobody.
	promoted, err := service.Promote(ctx, "concert-1")
	require.NoError(t, err)
	assert.Empty(t, promoted)
}

func TestAdmission_FIFOAndIdempotentSequence(t *testing.T) {
	service, _ := setupScriptService(t, 1)
	ctx := context.Background()

	_, err := service.EnterQueue(ctx, "concert-1", "u1") // takes the slot
	require.NoError(t, err)

	s2, err := service.EnterQueue(ctx, "concert-1", "u2")
	require.NoError(t, err)
	s3, err := service.EnterQueue(ctx, "concert-1", "u3")
	require.NoError(t, err)
	assert.Less(t, s2.Rank, s3.Rank)

	again, err := service.EnterQueue(ctx, "concert-1", "u2")
	require.NoError(t, err)
	assert.Equal(t, s2.Sequence, again.Sequence)
	assert.Equal(t, s2.Rank, again.Rank)
}

func TestAdmission_ExpiredSlotCannotBeRenewed(t *testing.T) {
	service, mr := setupScriptService(t, 1)
	ctx := context.Background()

	s1, err := service.EnterQueue(ctx, "concert-1", "u1")
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, s1.Status)

	require.NoError(t, service.Heartbeat(ctx, "concert-1", "u1"))

	mr.SetTTL("queue:concert-1:working:u1", time.Millisecond)
	mr.FastForward(time.Second)

	err = service.Heartbeat(ctx, "concert-1", "u1")
	assert.ErrorIs(t, err, apperrors.ErrNotAdmitted)
	assert.False(t, mr.Exists("queue:concert-1:working:u1"))
}
