package events

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var dialKafka = func(broker string) (*kafka.Conn, error) {
	return kafka.Dial("tcp", broker)
}

// EnsureTopic creates the topic if the broker does not have it yet. The
// broker is retried while it comes up.
func EnsureTopic(brokers []string, topic string, logger *zap.Logger) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured for topic %s", topic)
	}

	var conn *kafka.Conn
	connect := func() error {
		var err error
		conn, err = dialKafka(brokers[0])
		if err != nil {
			logger.Warn("kafka not reachable yet", zap.String("broker", brokers[0]), zap.Error(err))
		}
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(connect, b); err != nil {
		return fmt.Errorf("failed to dial kafka: %w", err)
	}
	defer conn.Close()

	err := conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     3,
		ReplicationFactor: 1,
	})
	if err != nil {
		logger.Warn("failed to create topic (may already exist)", zap.String("topic", topic), zap.Error(err))
	}
	return nil
}
