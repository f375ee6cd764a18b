package queue

import (
	"context"
	"fmt"
	"strconv"

	"tixgate/internal/events"
	"tixgate/internal/shared/apperrors"
	"tixgate/internal/shared/config"
	"tixgate/internal/shared/keys"
	"tixgate/internal/shared/store"
	"tixgate/pkg/logger"
	"tixgate/pkg/metrics"
)

// Service is the waiting-room admission API. All mutation paths go through
// Lua scripts in the store so that concurrent instances observe the same
// FIFO and capacity invariants.
type Service interface {
	EnterQueue(ctx context.Context, eventID, userID string) (*MyQueueStatusResponse, error)
	GetStatus(ctx context.Context, eventID, userID string) (*MyQueueStatusResponse, error)
	LeaveQueue(ctx context.Context, eventID, userID string) error
	Heartbeat(ctx context.Context, eventID, userID string) error

	// ReleaseWorking frees the user's slot after an order completes or is
	// abandoned, making room for the next promotion.
	ReleaseWorking(ctx context.Context, eventID, userID string) error
	IsAdmitted(ctx context.Context, eventID, userID string) (bool, error)

	// Promote pops waiting users into free working slots. Called by the
	// promoter loop, exported for tests and manual draining.
	Promote(ctx context.Context, eventID string) ([]string, error)

	// ReconcileSlots recounts live working keys and rewrites the active
	// counter. Slots released by TTL expiry never decrement it themselves.
	ReconcileSlots(ctx context.Context, eventID string) (int64, error)

	OpenWindow(ctx context.Context, schedule *events.EventSchedule) error
	CloseWindow(ctx context.Context, eventID string) error
	OpenEvents(ctx context.Context) ([]string, error)

	GetStats(ctx context.Context, eventID string) (*QueueStatsResponse, error)
}

// TopicManager handles the per-event Kafka topic lifecycle tied to the
// ticketing window.
type TopicManager interface {
	CreateQueueTopic(eventID string) error
	DeleteQueueTopic(eventID string) error
}

type service struct {
	store  *store.Store
	topics TopicManager
	cfg    config.QueueConfig
	ttl    int64 // working slot TTL, seconds
	log    *logger.Logger
	mtx    *metrics.Metrics
}

func NewService(st *store.Store, topics TopicManager, cfg *config.Config, log *logger.Logger, mtx *metrics.Metrics) Service {
	st.RegisterScript(enterQueueScript)
	st.RegisterScript(promoteScript)
	st.RegisterScript(releaseWorkingScript)
	st.RegisterScript(heartbeatScript)

	return &service{
		store:  st,
		topics: topics,
		cfg:    cfg.Queue,
		ttl:    int64(cfg.Redis.WorkingSlotTTL.Seconds()),
		log:    log,
		mtx:    mtx,
	}
}

func (s *service) EnterQueue(ctx context.Context, eventID, userID string) (*MyQueueStatusResponse, error) {
	open, err := s.isOpen(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !open {
		return nil, apperrors.ErrWindowClosed
	}

	result, err := s.store.EvalSlice(ctx, enterQueueScript,
		[]string{
			keys.QueueWaiting(eventID),
			keys.QueueNextNumber(eventID),
			keys.QueueWorking(eventID, userID),
		},
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("enter queue failed: %w", err)
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("enter queue: unexpected reply length %d", len(result))
	}

	flag, _ := result[0].(int64)
	sequence, _ := result[1].(int64)

	if flag == -1 {
		return nil, apperrors.ErrAlreadyAdmitted
	}

	if flag == 0 {
		s.mtx.QueueEntered.WithLabelValues(eventID).Inc()
		s.log.LogQueueEntered(ctx, eventID, userID, sequence)
	}

	// A free slot admits the head of the queue right away.
	if _, err := s.Promote(ctx, eventID); err != nil {
		s.log.ErrorWithContext(ctx, "Promotion on enter failed", err, map[string]interface{}{
			"event_id": eventID,
		})
	}

	admitted, err := s.IsAdmitted(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	if admitted {
		return &MyQueueStatusResponse{
			EventID:  eventID,
			UserID:   userID,
			Sequence: sequence,
			Rank:     -1,
			Status:   StatusInProgress,
		}, nil
	}

	status, err := s.buildWaitingStatus(ctx, eventID, userID, sequence)
	if err != nil {
		return nil, err
	}
	return status, nil
}

func (s *service) GetStatus(ctx context.Context, eventID, userID string) (*MyQueueStatusResponse, error) {
	admitted, err := s.IsAdmitted(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	if admitted {
		return &MyQueueStatusResponse{
			EventID: eventID,
			UserID:  userID,
			Rank:    -1,
			Status:  StatusInProgress,
		}, nil
	}
	return s.buildWaitingStatus(ctx, eventID, userID, 0)
}

// buildWaitingStatus derives the queue-side status from the user's rank.
func (s *service) buildWaitingStatus(ctx context.Context, eventID, userID string, sequence int64) (*MyQueueStatusResponse, error) {
	waitingKey := keys.QueueWaiting(eventID)

	rank, err := s.store.ZRank(ctx, waitingKey, userID)
	if err != nil {
		return nil, fmt.Errorf("rank lookup failed: %w", err)
	}
	total, err := s.store.ZCard(ctx, waitingKey)
	if err != nil {
		return nil, fmt.Errorf("queue size lookup failed: %w", err)
	}

	resp := &MyQueueStatusResponse{
		EventID:      eventID,
		UserID:       userID,
		Sequence:     sequence,
		TotalWaiting: total,
	}

	if rank < 0 {
		resp.Rank = -1
		resp.Status = StatusCancelled
		return resp, nil
	}

	resp.Rank = rank + 1
	if resp.Rank <= s.cfg.AlmostDoneThreshold {
		resp.Status = StatusAlmostDone
	} else {
		resp.Status = StatusWaiting
	}
	return resp, nil
}

func (s *service) LeaveQueue(ctx context.Context, eventID, userID string) error {
	removed, err := s.store.ZRem(ctx, keys.QueueWaiting(eventID), userID)
	if err != nil {
		return fmt.Errorf("leave queue failed: %w", err)
	}
	if removed > 0 {
		return nil
	}

	// Not waiting; an admitted user leaving gives the slot back.
	released, err := s.store.EvalInt(ctx, releaseWorkingScript,
		[]string{keys.QueueWorking(eventID, userID), keys.QueueActiveSlots(eventID)},
	)
	if err != nil {
		return fmt.Errorf("release on leave failed: %w", err)
	}
	if released == 1 {
		s.log.LogSlotReleased(ctx, eventID, userID, "leave")
		s.promoteAfterRelease(ctx, eventID)
	}
	return nil
}

func (s *service) Heartbeat(ctx context.Context, eventID, userID string) error {
	renewed, err := s.store.EvalInt(ctx, heartbeatScript,
		[]string{keys.QueueWorking(eventID, userID)},
		s.ttl,
	)
	if err != nil {
		return fmt.Errorf("heartbeat failed: %w", err)
	}
	if renewed == 0 {
		return apperrors.ErrNotAdmitted
	}
	return nil
}

func (s *service) ReleaseWorking(ctx context.Context, eventID, userID string) error {
	released, err := s.store.EvalInt(ctx, releaseWorkingScript,
		[]string{keys.QueueWorking(eventID, userID), keys.QueueActiveSlots(eventID)},
	)
	if err != nil {
		return fmt.Errorf("release working failed: %w", err)
	}
	if released == 1 {
		s.log.LogSlotReleased(ctx, eventID, userID, "released")
		s.promoteAfterRelease(ctx, eventID)
	}
	return nil
}

// promoteAfterRelease backfills the freed slot immediately instead of waiting
// for the next promoter tick.
func (s *service) promoteAfterRelease(ctx context.Context, eventID string) {
	if _, err := s.Promote(ctx, eventID); err != nil {
		s.log.ErrorWithContext(ctx, "Promotion after release failed", err, map[string]interface{}{
			"event_id": eventID,
		})
	}
}

func (s *service) IsAdmitted(ctx context.Context, eventID, userID string) (bool, error) {
	exists, err := s.store.Exists(ctx, keys.QueueWorking(eventID, userID))
	if err != nil {
		return false, fmt.Errorf("admission check failed: %w", err)
	}
	return exists, nil
}

func (s *service) Promote(ctx context.Context, eventID string) ([]string, error) {
	result, err := s.store.EvalSlice(ctx, promoteScript,
		[]string{
			keys.QueueWaiting(eventID),
			keys.QueueActiveSlots(eventID),
			keys.QueueMaxConcurrent(eventID),
		},
		eventID,
		s.ttl,
		s.cfg.DefaultMaxConcurrent,
	)
	if err != nil {
		return nil, fmt.Errorf("promote failed: %w", err)
	}

	promoted := make([]string, 0, len(result))
	for _, v := range result {
		if userID, ok := v.(string); ok {
			promoted = append(promoted, userID)
			s.mtx.QueuePromotions.WithLabelValues(eventID).Inc()
			s.log.LogUserPromoted(ctx, eventID, userID)
		}
	}
	return promoted, nil
}

func (s *service) ReconcileSlots(ctx context.Context, eventID string) (int64, error) {
	var count int64
	var cursor uint64
	client := s.store.Client()

	for {
		batch, next, err := client.Scan(ctx, cursor, keys.QueueWorkingPattern(eventID), 200).Result()
		if err != nil {
			return 0, fmt.Errorf("working slot scan failed: %w", err)
		}
		count += int64(len(batch))
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if err := s.store.Set(ctx, keys.QueueActiveSlots(eventID), strconv.FormatInt(count, 10), 0); err != nil {
		return 0, fmt.Errorf("active slot rewrite failed: %w", err)
	}
	return count, nil
}

func (s *service) OpenWindow(ctx context.Context, schedule *events.EventSchedule) error {
	eventID := schedule.EventID

	maxConcurrent := schedule.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = s.cfg.DefaultMaxConcurrent
	}
	if err := s.store.Set(ctx, keys.QueueMaxConcurrent(eventID), strconv.Itoa(maxConcurrent), 0); err != nil {
		return fmt.Errorf("set max concurrent failed: %w", err)
	}

	if err := s.store.Client().SAdd(ctx, keys.OpenEvents(), eventID).Err(); err != nil {
		return fmt.Errorf("mark window open failed: %w", err)
	}

	if err := s.topics.CreateQueueTopic(eventID); err != nil {
		return fmt.Errorf("queue topic create failed: %w", err)
	}

	s.log.InfoWithContext(ctx, "Ticketing Window Opened", map[string]interface{}{
		"event_id":       eventID,
		"schedule_id":    schedule.ID,
		"max_concurrent": maxConcurrent,
	})
	return nil
}

func (s *service) CloseWindow(ctx context.Context, eventID string) error {
	if err := s.store.Client().SRem(ctx, keys.OpenEvents(), eventID).Err(); err != nil {
		return fmt.Errorf("mark window closed failed: %w", err)
	}

	if err := s.store.Del(ctx,
		keys.QueueWaiting(eventID),
		keys.QueueNextNumber(eventID),
		keys.QueueActiveSlots(eventID),
		keys.QueueMaxConcurrent(eventID),
	); err != nil {
		return fmt.Errorf("queue key cleanup failed: %w", err)
	}

	// Working slots are keyed per user; clean them with a scan.
	client := s.store.Client()
	var cursor uint64
	for {
		batch, next, err := client.Scan(ctx, cursor, keys.QueueWorkingPattern(eventID), 200).Result()
		if err != nil {
			return fmt.Errorf("working slot cleanup scan failed: %w", err)
		}
		if len(batch) > 0 {
			if err := client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("working slot cleanup failed: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if err := s.topics.DeleteQueueTopic(eventID); err != nil {
		return fmt.Errorf("queue topic delete failed: %w", err)
	}

	s.log.InfoWithContext(ctx, "Ticketing Window Closed", map[string]interface{}{
		"event_id": eventID,
	})
	return nil
}

func (s *service) OpenEvents(ctx context.Context) ([]string, error) {
	return s.store.SMembers(ctx, keys.OpenEvents())
}

func (s *service) GetStats(ctx context.Context, eventID string) (*QueueStatsResponse, error) {
	total, err := s.store.ZCard(ctx, keys.QueueWaiting(eventID))
	if err != nil {
		return nil, fmt.Errorf("queue size lookup failed: %w", err)
	}
	active, err := s.store.GetInt(ctx, keys.QueueActiveSlots(eventID))
	if err != nil {
		return nil, fmt.Errorf("active slots lookup failed: %w", err)
	}
	max, err := s.store.GetInt(ctx, keys.QueueMaxConcurrent(eventID))
	if err != nil {
		return nil, fmt.Errorf("max concurrent lookup failed: %w", err)
	}
	issued, err := s.store.GetInt(ctx, keys.QueueNextNumber(eventID))
	if err != nil {
		return nil, fmt.Errorf("issued numbers lookup failed: %w", err)
	}

	return &QueueStatsResponse{
		EventID:       eventID,
		TotalWaiting:  total,
		ActiveSlots:   active,
		MaxConcurrent: max,
		IssuedNumbers: issued,
	}, nil
}

func (s *service) isOpen(ctx context.Context, eventID string) (bool, error) {
	open, err := s.store.Client().SIsMember(ctx, keys.OpenEvents(), eventID).Result()
	if err != nil {
		return false, fmt.Errorf("window check failed: %w", err)
	}
	return open, nil
}
