package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gartstein/insurecrm/internal/policy/models"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var jsonMarshal = json.Marshal

const queueSize = 1000

type EventType string

const (
	PolicySubmitted EventType = "policy_submitted"
	PolicyActivated EventType = "policy_activated"
	PolicyCancelled EventType = "policy_cancelled"
	PolicyExpired   EventType = "policy_expired"
	PolicyUpdated   EventType = "policy_updated"
	SaleRecorded    EventType = "sale_recorded"
)

// Event is one lifecycle change. Exactly one of Policy and Sale is set.
type Event struct {
	Type       EventType      `json:"type"`
	Policy     *models.Policy `json:"policy,omitempty"`
	Sale       *models.Sale   `json:"sale,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// PolicyEvent builds a lifecycle event for a policy.
func PolicyEvent(t EventType, policy *models.Policy, at time.Time) Event {
	return Event{Type: t, Policy: policy, OccurredAt: at}
}

// SaleEvent builds the event of a recorded sale.
func SaleEvent(sale *models.Sale, at time.Time) Event {
	return Event{Type: SaleRecorded, Sale: sale, OccurredAt: at}
}

// key partitions events by policy so a consumer sees a policy's changes in order.
func (ev Event) key() uuid.UUID {
	switch {
	case ev.Policy != nil:
		return ev.Policy.ID
	case ev.Sale != nil:
		return ev.Sale.PolicyID
	}
	return uuid.Nil
}

type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes lifecycle events asynchronously. Produce never blocks
// the caller; when the queue is full the event is dropped and logged.
type Producer struct {
	writer    KafkaWriter
	events    chan Event
	logger    *zap.Logger
	closeChan chan struct{}
	done      chan struct{}
}

func NewProducer(brokers []string, logger *zap.Logger, topic string) (*Producer, error) {
	if err := EnsureTopic(brokers, topic, logger); err != nil {
		return nil, err
	}

	p := newProducer(&kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.Hash{},
		Topic:    topic,
	}, logger, queueSize)

	go p.eventLoop()
	return p, nil
}

func newProducer(writer KafkaWriter, logger *zap.Logger, size int) *Producer {
	return &Producer{
		writer:    writer,
		events:    make(chan Event, size),
		logger:    logger.Named("kafka_producer"),
		closeChan: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (p *Producer) Produce(event Event) {
	select {
	case p.events <- event:
	default:
		p.logger.Warn("Kafka producer queue full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("policy_id", event.key().String()),
		)
	}
}

func (p *Producer) eventLoop() {
	defer close(p.done)
	for {
		select {
		case event := <-p.events:
			p.sendEvent(context.Background(), event)
		case <-p.closeChan:
			p.drain()
			return
		}
	}
}

// drain flushes whatever is still queued at shutdown.
func (p *Producer) drain() {
	for {
		select {
		case event := <-p.events:
			p.sendEvent(context.Background(), event)
		default:
			return
		}
	}
}

func (p *Producer) sendEvent(ctx context.Context, event Event) {
	value, err := jsonMarshal(event)
	if err != nil {
		p.logger.Error("Failed to serialize event",
			zap.Error(err),
			zap.String("policy_id", event.key().String()),
		)
		return
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.key().String()),
		Value: value,
	})
	if err != nil {
		p.logger.Error("Failed to produce event",
			zap.Error(err),
			zap.String("event_type", string(event.Type)),
			zap.String("policy_id", event.key().String()),
		)
		return
	}
}

func (p *Producer) Close() {
	close(p.closeChan)
	<-p.done
	if err := p.writer.Close(); err != nil {
		p.logger.Error("Failed to close Kafka writer", zap.Error(err))
	}
}

// LogProducer stands in for Producer when no broker is configured.
type LogProducer struct {
	logger *zap.Logger
}

func NewLogProducer(logger *zap.Logger) *LogProducer {
	return &LogProducer{logger: logger.Named("events")}
}

func (p *LogProducer) Produce(event Event) {
	p.logger.Debug("lifecycle event",
		zap.String("event_type", string(event.Type)),
		zap.String("policy_id", event.key().String()),
	)
}

func (p *LogProducer) Close() {}
