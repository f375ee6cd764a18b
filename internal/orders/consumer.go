package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"tixgate/internal/shared/keys"

	"github.com/IBM/sarama"
)

// SeatMappingResult is the seat service's verdict on a paid order.
type SeatMappingResult struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Success   bool   `json:"success"`
	Reason    string `json:"reason,omitempty"`
}

// ResultConsumer drains the seat-mapping result topic and feeds each verdict
// into the saga.
type ResultConsumer interface {
	Start(ctx context.Context) error
	Stop() error
}

type kafkaResultConsumer struct {
	consumerGroup sarama.ConsumerGroup
	service       Service
	topics        []string
	cancel        context.CancelFunc
}

func NewKafkaResultConsumer(brokers []string, groupID string, service Service) (ResultConsumer, error) {
	saramaConfig := sarama.NewConfig()

	saramaConfig.Consumer.Group.Session.Timeout = 30 * time.Second
	saramaConfig.Consumer.Group.Heartbeat.Interval = 3 * time.Second
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Offsets.AutoCommit.Interval = 1 * time.Second

	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &kafkaResultConsumer{
		consumerGroup: consumerGroup,
		service:       service,
		topics:        []string{keys.TopicSeatMappingEvents},
	}, nil
}

func (c *kafkaResultConsumer) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	go func() {
		for err := range c.consumerGroup.Errors() {
			log.Printf("📥 Seat mapping consumer error: %v", err)
		}
	}()

	go func() {
		handler := &resultHandler{service: c.service}
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if err := c.consumerGroup.Consume(ctx, c.topics, handler); err != nil {
					log.Printf("📥 Error consuming seat mapping events: %v", err)
					time.Sleep(time.Second)
				}
			}
		}
	}()

	log.Printf("📥 Seat mapping result consumer started for topics: %v", c.topics)
	return nil
}

func (c *kafkaResultConsumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	if err := c.consumerGroup.Close(); err != nil {
		return fmt.Errorf("failed to close consumer group: %w", err)
	}
	log.Println("📥 Seat mapping result consumer stopped")
	return nil
}

type resultHandler struct {
	service Service
}

func (h *resultHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *resultHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *resultHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}
			if err := h.processMessage(session.Context(), message); err != nil {
				// Leave the offset unmarked so the verdict is retried; the
				// saga transitions are idempotent under replay.
				log.Printf("📥 Error processing seat mapping result: %v", err)
			} else {
				session.MarkMessage(message, "")
			}

		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *resultHandler) processMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	var result SeatMappingResult
	if err := json.Unmarshal(message.Value, &result); err != nil {
		// Unparseable messages are skipped, not retried forever.
		log.Printf("📥 Dropping malformed seat mapping result at offset %d: %v", message.Offset, err)
		return nil
	}

	return h.service.OnSeatMappingResult(ctx, &result)
}
