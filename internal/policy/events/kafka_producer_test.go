package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	e "github.com/gartstein/insurecrm/internal/policy/errors"
	"github.com/gartstein/insurecrm/internal/policy/models"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// MockKafkaWriter implements KafkaWriter for testing
type MockKafkaWriter struct {
	mock.Mock
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockKafkaWriter) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestNewProducerNamesLogger(t *testing.T) {
	producer := newProducer(new(MockKafkaWriter), zaptest.NewLogger(t), 10)

	assert.NotNil(t, producer.events)
	assert.NotNil(t, producer.closeChan)
	assert.Equal(t, "kafka_producer", producer.logger.Check(zap.InfoLevel, "").LoggerName)
}

func TestProducer_Produce(t *testing.T) {
	policy := &models.Policy{ID: uuid.New(), PolicyNumber: "POL-2026-000001"}

	t.Run("queued", func(t *testing.T) {
		producer := newProducer(new(MockKafkaWriter), zaptest.NewLogger(t), 10)

		producer.Produce(PolicyEvent(PolicyActivated, policy, time.Now()))

		assert.Equal(t, 1, len(producer.events))
	})

	t.Run("dropped event when queue full", func(t *testing.T) {
		core, recorded := observer.New(zap.WarnLevel)
		producer := newProducer(new(MockKafkaWriter), zap.New(core), 1)

		producer.Produce(PolicyEvent(PolicyActivated, policy, time.Now()))
		producer.Produce(PolicyEvent(PolicyCancelled, policy, time.Now()))

		assert.Equal(t, 1, recorded.FilterMessage("Kafka producer queue full, dropping event").Len())
		assert.Equal(t, 1, recorded.FilterField(zap.String("policy_id", policy.ID.String())).Len())
	})
}

func TestProducer_SendEvent(t *testing.T) {
	policy := &models.Policy{ID: uuid.New(), PolicyNumber: "POL-2026-000001", Status: models.StatusActive}
	occurred := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	t.Run("successful send", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		mockWriter.On("WriteMessages", mock.Anything, mock.Anything).Return(nil)
		producer := newProducer(mockWriter, zaptest.NewLogger(t), 1)

		event := PolicyEvent(PolicyActivated, policy, occurred)
		producer.sendEvent(context.Background(), event)

		mockWriter.AssertCalled(t, "WriteMessages", mock.Anything, []kafka.Message{
			{
				Key:   []byte(policy.ID.String()),
				Value: mustMarshal(event),
			},
		})
	})

	t.Run("sale events are keyed by policy", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		mockWriter.On("WriteMessages", mock.Anything, mock.Anything).Return(nil)
		producer := newProducer(mockWriter, zaptest.NewLogger(t), 1)
		sale := &models.Sale{ID: uuid.New(), PolicyID: policy.ID}

		producer.sendEvent(context.Background(), SaleEvent(sale, occurred))

		msgs := mockWriter.Calls[0].Arguments.Get(1).([]kafka.Message)
		require.Len(t, msgs, 1)
		assert.Equal(t, policy.ID.String(), string(msgs[0].Key))

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(msgs[0].Value, &decoded))
		assert.Equal(t, "sale_recorded", decoded["type"])
		assert.Nil(t, decoded["policy"])
	})

	t.Run("serialization error", func(t *testing.T) {
		core, recorded := observer.New(zap.ErrorLevel)
		producer := newProducer(new(MockKafkaWriter), zap.New(core), 1)

		oldMarshal := jsonMarshal
		jsonMarshal = func(_ interface{}) ([]byte, error) {
			return nil, errors.New("mock marshal error")
		}
		defer func() { jsonMarshal = oldMarshal }()

		producer.sendEvent(context.Background(), PolicyEvent(PolicyActivated, policy, occurred))

		assert.Equal(t, 1, recorded.FilterMessage("Failed to serialize event").Len())
		assert.Equal(t, 1, recorded.FilterField(zap.String("policy_id", policy.ID.String())).Len())
	})

	t.Run("write error", func(t *testing.T) {
		core, recorded := observer.New(zap.ErrorLevel)
		mockWriter := new(MockKafkaWriter)
		mockWriter.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("kafka error"))
		producer := newProducer(mockWriter, zap.New(core), 1)

		producer.sendEvent(context.Background(), PolicyEvent(PolicyActivated, policy, occurred))

		assert.Equal(t, 1, recorded.FilterMessage("Failed to produce event").Len())
	})
}

func TestProducer_CloseDrainsQueue(t *testing.T) {
	mockWriter := new(MockKafkaWriter)
	mockWriter.On("WriteMessages", mock.Anything, mock.Anything).Return(nil)
	mockWriter.On("Close").Return(nil)

	producer := newProducer(mockWriter, zaptest.NewLogger(t), 10)
	policy := &models.Policy{ID: uuid.New()}
	producer.Produce(PolicyEvent(PolicyActivated, policy, time.Now()))
	producer.Produce(PolicyEvent(PolicyCancelled, policy, time.Now()))

	go producer.eventLoop()
	producer.Close()

	select {
	case <-producer.closeChan:
	default:
		t.Error("closeChan not closed")
	}
	mockWriter.AssertNumberOfCalls(t, "WriteMessages", 2)
	mockWriter.AssertCalled(t, "Close")
}

func TestProducer_EventLoop(t *testing.T) {
	sent := make(chan struct{}, 1)
	mockWriter := new(MockKafkaWriter)
	mockWriter.On("WriteMessages", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { sent <- struct{}{} }).
		Return(nil)
	mockWriter.On("Close").Return(nil)

	producer := newProducer(mockWriter, zaptest.NewLogger(t), 1)
	go producer.eventLoop()
	defer producer.Close()

	producer.Produce(PolicyEvent(PolicyExpired, &models.Policy{ID: uuid.New()}, time.Now()))

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("event was not written")
	}
}

func TestKafkaNotifier_Notify(t *testing.T) {
	notification := Notification{
		Template: TemplateCustomerReminder,
		To:       "ada@example.com",
		Subject:  "Policy Expiry Reminder - Auto",
		PolicyID: uuid.New(),
		Data:     map[string]interface{}{"policyNumber": "POL-2026-000001"},
	}

	t.Run("published", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		mockWriter.On("WriteMessages", mock.Anything, mock.Anything).Return(nil)
		notifier := newKafkaNotifier(mockWriter, zaptest.NewLogger(t))

		require.NoError(t, notifier.Notify(context.Background(), notification))

		msgs := mockWriter.Calls[0].Arguments.Get(1).([]kafka.Message)
		require.Len(t, msgs, 1)
		assert.Equal(t, notification.PolicyID.String(), string(msgs[0].Key))
		assert.JSONEq(t, string(mustMarshal(notification)), string(msgs[0].Value))
	})

	t.Run("write failure is a delivery error", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		mockWriter.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down"))
		notifier := newKafkaNotifier(mockWriter, zaptest.NewLogger(t))

		err := notifier.Notify(context.Background(), notification)
		assert.ErrorIs(t, err, e.ErrNotificationDelivery)
	})
}

func TestLogNotifier(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	notifier := NewLogNotifier(zap.New(core))

	err := notifier.Notify(context.Background(), Notification{Template: TemplateAgentReminder, To: "agent@example.com"})

	require.NoError(t, err)
	assert.Equal(t, 1, recorded.FilterField(zap.String("template", TemplateAgentReminder)).Len())
}

func TestEnsureTopicWithoutBrokers(t *testing.T) {
	err := EnsureTopic(nil, "policy.events", zaptest.NewLogger(t))
	assert.Error(t, err)
}

func mustMarshal(v interface{}) []byte {
	data, _ := json.Marshal(v)
	return data
}
