package queue

import (
	"errors"
	"fmt"

	"tixgate/internal/shared/keys"

	"github.com/IBM/sarama"
)

// KafkaTopicManager creates and deletes the per-event queue topic that other
// services subscribe to for window lifecycle notifications.
type KafkaTopicManager struct {
	admin sarama.ClusterAdmin
}

func NewKafkaTopicManager(brokers []string) (*KafkaTopicManager, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_8_0_0

	admin, err := sarama.NewClusterAdmin(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka admin client: %w", err)
	}

	return &KafkaTopicManager{admin: admin}, nil
}

func (m *KafkaTopicManager) CreateQueueTopic(eventID string) error {
	topic := keys.QueueLifecycleTopic(eventID)
	detail := &sarama.TopicDetail{
		NumPartitions:     3,
		ReplicationFactor: 1,
	}

	err := m.admin.CreateTopic(topic, detail, false)
	if err != nil {
		var topicErr *sarama.TopicError
		if errors.As(err, &topicErr) && topicErr.Err == sarama.ErrTopicAlreadyExists {
			return nil
		}
		return fmt.Errorf("failed to create topic %s: %w", topic, err)
	}
	return nil
}

func (m *KafkaTopicManager) DeleteQueueTopic(eventID string) error {
	topic := keys.QueueLifecycleTopic(eventID)

	err := m.admin.DeleteTopic(topic)
	if err != nil {
		var topicErr *sarama.TopicError
		if errors.As(err, &topicErr) && topicErr.Err == sarama.ErrUnknownTopicOrPartition {
			return nil
		}
		if errors.Is(err, sarama.ErrUnknownTopicOrPartition) {
			return nil
		}
		return fmt.Errorf("failed to delete topic %s: %w", topic, err)
	}
	return nil
}

func (m *KafkaTopicManager) Close() error {
	return m.admin.Close()
}

// NoopTopicManager is used when Kafka is disabled in local development.
type NoopTopicManager struct{}

func (NoopTopicManager) CreateQueueTopic(string) error { return nil }
func (NoopTopicManager) DeleteQueueTopic(string) error { return nil }
