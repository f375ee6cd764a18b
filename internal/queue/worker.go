package queue

import (
	"context"
	"time"

	"tixgate/pkg/logger"
	"tixgate/pkg/metrics"
)

// Promoter drives admissions in the background. Every tick it reconciles the
// active slot counter against live working keys, then fills the freed
// capacity from the head of each open event's queue.
type Promoter struct {
	service  Service
	interval time.Duration
	log      *logger.Logger
	mtx      *metrics.Metrics

	stop chan struct{}
	done chan struct{}
}

func NewPromoter(service Service, interval time.Duration, log *logger.Logger, mtx *metrics.Metrics) *Promoter {
	return &Promoter{
		service:  service,
		interval: interval,
		log:      log,
		mtx:      mtx,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the promotion loop until Stop is called.
func (p *Promoter) Start() {
	go p.run()
}

func (p *Promoter) Stop() {
	close(p.stop)
	<-p.done
}

func (p *Promoter) run() {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Promoter) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()

	eventIDs, err := p.service.OpenEvents(ctx)
	if err != nil {
		p.log.ErrorWithContext(ctx, "Promoter: open event lookup failed", err, nil)
		return
	}

	for _, eventID := range eventIDs {
		active, err := p.service.ReconcileSlots(ctx, eventID)
		if err != nil {
			p.log.ErrorWithContext(ctx, "Promoter: slot reconcile failed", err, map[string]interface{}{
				"event_id": eventID,
			})
			continue
		}
		p.mtx.WorkingSlots.WithLabelValues(eventID).Set(float64(active))

		if _, err := p.service.Promote(ctx, eventID); err != nil {
			p.log.ErrorWithContext(ctx, "Promoter: promotion failed", err, map[string]interface{}{
				"event_id": eventID,
			})
			continue
		}

		if stats, err := p.service.GetStats(ctx, eventID); err == nil {
			p.mtx.QueueDepth.WithLabelValues(eventID).Set(float64(stats.TotalWaiting))
		}
	}
}
