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

// EventProducer publishes saga progress to the bus: lifecycle facts on the
// order-events topic and seat confirmation requests on the seat-mapping
// request topic.
type EventProducer interface {
	PublishOrderEvent(ctx context.Context, event *OrderEvent) error
	PublishSeatMappingRequest(ctx context.Context, request *SeatMappingRequest) error
	Close() error
}

// OrderEvent is the fact other services consume when an order moves.
type OrderEvent struct {
	OrderID         string    `json:"orderId"`
	PaymentID       string    `json:"paymentId"`
	UserID          uint64    `json:"userId"`
	EventScheduleID uint64    `json:"eventScheduleId"`
	Status          Status    `json:"status"`
	OccurredAt      time.Time `json:"occurredAt"`
}

// SeatMappingRequest asks the seat service to bind locked seats to an order.
type SeatMappingRequest struct {
	OrderID         string   `json:"orderId"`
	PaymentID       string   `json:"paymentId"`
	UserID          uint64   `json:"userId"`
	EventScheduleID uint64   `json:"eventScheduleId"`
	SeatMappingIDs  []uint64 `json:"seatMappingIds"`
}

type kafkaEventProducer struct {
	producer sarama.SyncProducer
}

func NewKafkaEventProducer(brokers []string) (EventProducer, error) {
	saramaConfig := sarama.NewConfig()

	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Timeout = 10 * time.Second
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1

	// Hash partitioner keeps all events of one order in order.
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	log.Printf("📤 Kafka order event producer created successfully")
	return &kafkaEventProducer{producer: producer}, nil
}

func (p *kafkaEventProducer) PublishOrderEvent(ctx context.Context, event *OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic:     keys.TopicOrderEvents,
		Key:       sarama.StringEncoder(event.OrderID),
		Value:     sarama.ByteEncoder(payload),
		Timestamp: event.OccurredAt,
		Headers: []sarama.RecordHeader{
			{Key: []byte("status"), Value: []byte(event.Status)},
			{Key: []byte("producer"), Value: []byte("tixgate-orders")},
		},
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to send order event: %w", err)
	}

	log.Printf("📤 Order event published - Order: %s, Status: %s, Partition: %d, Offset: %d",
		event.OrderID, event.Status, partition, offset)
	return nil
}

func (p *kafkaEventProducer) PublishSeatMappingRequest(ctx context.Context, request *SeatMappingRequest) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal seat mapping request: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: keys.TopicSeatMappingRequest,
		Key:   sarama.StringEncoder(request.OrderID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("producer"), Value: []byte("tixgate-orders")},
		},
	}

	if _, _, err := p.producer.SendMessage(message); err != nil {
		return fmt.Errorf("failed to send seat mapping request: %w", err)
	}
	return nil
}

func (p *kafkaEventProducer) Close() error {
	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			return fmt.Errorf("failed to close Kafka producer: %w", err)
		}
		log.Printf("📤 Kafka order event producer closed")
	}
	return nil
}
