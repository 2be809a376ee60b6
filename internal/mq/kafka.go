package mq

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/logger"
)

// DefaultTopic - топик событий транзакций.
const DefaultTopic = "escrow.transactions"

// Message - событие outbox, готовое к публикации.
type Message struct {
	Key     string
	Type    string
	Payload []byte
}

// Publisher публикует события во внешнюю шину.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// KafkaPublisher - синхронный продюсер Kafka.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaConfig - настройки продюсера: подтверждение всех реплик, 3 повтора.
func NewKafkaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	return cfg
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewKafkaConfig())
	if err != nil {
		return nil, fmt.Errorf("mq: create kafka producer %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, topic), nil
}

func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		// ключ - id транзакции: события одной транзакции попадают в одну партицию
		Key:   sarama.StringEncoder(msg.Key),
		Value: sarama.ByteEncoder(msg.Payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(msg.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("mq: send %w", err)
	}
	logger.Log.WithFields(logrus.Fields{
		"topic":     p.topic,
		"key":       msg.Key,
		"partition": partition,
		"offset":    offset,
	}).Debug("event published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// LogPublisher пишет события в лог, когда брокер не настроен.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, msg Message) error {
	logger.Log.WithFields(logrus.Fields{
		"key":   msg.Key,
		"event": msg.Type,
	}).Info(string(msg.Payload))
	return nil
}

func (LogPublisher) Close() error { return nil }
