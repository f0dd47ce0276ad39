package events

import (
	"context"
	"fmt"

	e "github.com/gartstein/insurecrm/internal/policy/errors"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	TemplateCustomerReminder = "policy-expiry-reminder"
	TemplateAgentReminder    = "agent-policy-expiry-notification"
)

// Notification is an email request handed to the delivery pipeline.
type Notification struct {
	Template string                 `json:"template"`
	To       string                 `json:"to"`
	Subject  string                 `json:"subject"`
	PolicyID uuid.UUID              `json:"policyId"`
	Data     map[string]interface{} `json:"data"`
}

// KafkaNotifier publishes notifications synchronously so the caller learns
// about delivery failures.
type KafkaNotifier struct {
	writer KafkaWriter
	logger *zap.Logger
}

func NewKafkaNotifier(brokers []string, logger *zap.Logger, topic string) (*KafkaNotifier, error) {
	if err := EnsureTopic(brokers, topic, logger); err != nil {
		return nil, err
	}
	return newKafkaNotifier(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		Topic:        topic,
		RequiredAcks: kafka.RequireOne,
	}, logger), nil
}

func newKafkaNotifier(writer KafkaWriter, logger *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{writer: writer, logger: logger.Named("notifier")}
}

func (n *KafkaNotifier) Notify(ctx context.Context, notification Notification) error {
	value, err := jsonMarshal(notification)
	if err != nil {
		return fmt.Errorf("%w: %v", e.ErrNotificationDelivery, err)
	}
	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(notification.PolicyID.String()),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("%w: %s to %s: %v", e.ErrNotificationDelivery, notification.Template, notification.To, err)
	}
	return nil
}

func (n *KafkaNotifier) Close() {
	if err := n.writer.Close(); err != nil {
		n.logger.Error("Failed to close Kafka writer", zap.Error(err))
	}
}

// LogNotifier only logs notifications. It is used when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notifier")}
}

func (n *LogNotifier) Notify(_ context.Context, notification Notification) error {
	n.logger.Info("notification",
		zap.String("template", notification.Template),
		zap.String("to", notification.To),
		zap.String("subject", notification.Subject),
		zap.String("policy_id", notification.PolicyID.String()),
	)
	return nil
}

func (n *LogNotifier) Close() {}
