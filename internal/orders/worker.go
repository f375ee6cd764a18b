package orders

import (
	"context"
	"time"

	"tixgate/pkg/logger"
)

// Sweeper periodically settles paid orders stuck waiting for a seat mapping
// verdict past their deadline.
type Sweeper struct {
	service  Service
	interval time.Duration
	log      *logger.Logger

	stop chan struct{}
	done chan struct{}
}

func NewSweeper(service Service, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		service:  service,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go s.run()
}

func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sweeper) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			settled, err := s.service.SweepExpired(ctx)
			cancel()

			if err != nil {
				s.log.ErrorWithContext(context.Background(), "Order sweep failed", err, nil)
				continue
			}
			if settled > 0 {
				s.log.InfoWithContext(context.Background(), "Order sweep settled expired orders", map[string]interface{}{
					"settled": settled,
				})
			}
		}
	}
}
