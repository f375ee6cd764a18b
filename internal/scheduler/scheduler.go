package scheduler

import (
	"context"
	"time"

	"tixgate/internal/events"
	"tixgate/internal/queue"
	"tixgate/internal/shared/config"
	"tixgate/pkg/logger"
)

// Scheduler reconciles ticketing windows once a day: events with a schedule
// ticketing today get an open waiting room, everything else gets closed and
// cleaned up. Reconciling the full set instead of firing per-event actions
// makes a missed tick harmless.
type Scheduler struct {
	queues    queue.Service
	schedules events.Repository
	openHour  int
	log       *logger.Logger

	stop chan struct{}
	done chan struct{}
}

func New(queues queue.Service, schedules events.Repository, cfg config.SchedulerConfig, log *logger.Logger) *Scheduler {
	return &Scheduler{
		queues:    queues,
		schedules: schedules,
		openHour:  cfg.OpenHour,
		log:       log,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start reconciles immediately, then once a day at the configured hour.
func (s *Scheduler) Start() {
	go s.run()
}

func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)

	s.reconcile()

	for {
		timer := time.NewTimer(time.Until(s.nextTick(time.Now())))
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
			s.reconcile()
		}
	}
}

// nextTick is the next occurrence of the open hour, strictly in the future.
func (s *Scheduler) nextTick(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.openHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *Scheduler) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	todays, err := s.schedules.GetSchedulesTicketingBetween(ctx, dayStart, dayEnd)
	if err != nil {
		s.log.ErrorWithContext(ctx, "Scheduler: schedule lookup failed", err, nil)
		return
	}

	desired := make(map[string]*events.EventSchedule, len(todays))
	for i := range todays {
		schedule := &todays[i]
		// One event may have several schedules ticketing the same day; any
		// of them keeps the window open.
		if _, ok := desired[schedule.EventID]; !ok {
			desired[schedule.EventID] = schedule
		}
	}

	open, err := s.queues.OpenEvents(ctx)
	if err != nil {
		s.log.ErrorWithContext(ctx, "Scheduler: open event lookup failed", err, nil)
		return
	}
	openSet := make(map[string]struct{}, len(open))
	for _, eventID := range open {
		openSet[eventID] = struct{}{}
	}

	for _, eventID := range open {
		if _, wanted := desired[eventID]; !wanted {
			if err := s.queues.CloseWindow(ctx, eventID); err != nil {
				s.log.ErrorWithContext(ctx, "Scheduler: close window failed", err, map[string]interface{}{
					"event_id": eventID,
				})
			}
		}
	}

	for eventID, schedule := range desired {
		if _, alreadyOpen := openSet[eventID]; alreadyOpen {
			continue
		}
		if err := s.queues.OpenWindow(ctx, schedule); err != nil {
			s.log.ErrorWithContext(ctx, "Scheduler: open window failed", err, map[string]interface{}{
				"event_id": eventID,
			})
		}
	}
}
