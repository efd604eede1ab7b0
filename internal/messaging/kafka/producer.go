// Package kafka публикует события заказов в Kafka через sarama.
package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// ParseBrokers разбирает список брокеров "host:port,host:port", пропуская пустые элементы.
func ParseBrokers(raw string) []string {
	var brokers []string
	for _, chunk := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// SyncProducerConfig возвращает настройки идемпотентного синхронного producer.
// Сообщения партиционируются по ключу, то есть по ID заказа.
func SyncProducerConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	if clientID != "" {
		cfg.ClientID = clientID
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Idempotent = true
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	// идемпотентный producer требует ровно один in-flight запрос
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

// Producer отправляет сообщения синхронно и логирует результат.
type Producer struct {
	sync   sarama.SyncProducer
	logger *log.Entry
	now    func() time.Time
}

// ProducerOption настраивает Producer.
type ProducerOption func(*Producer)

// WithProducerLogger задаёт logger producer.
func WithProducerLogger(logger *log.Entry) ProducerOption {
	return func(p *Producer) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProducer подключается к брокерам с настройками SyncProducerConfig.
func NewProducer(brokers []string, clientID string, options ...ProducerOption) (*Producer, error) {
	sync, err := sarama.NewSyncProducer(brokers, SyncProducerConfig(clientID))
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return newProducer(sync, options...), nil
}

func newProducer(sync sarama.SyncProducer, options ...ProducerOption) *Producer {
	p := &Producer{
		sync:   sync,
		logger: log.WithField("component", "kafka-producer"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Message описывает сообщение для отправки в topic.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

func (m Message) producerMessage(at time.Time) *sarama.ProducerMessage {
	msg := &sarama.ProducerMessage{
		Topic:     m.Topic,
		Key:       sarama.StringEncoder(m.Key),
		Value:     sarama.ByteEncoder(m.Value),
		Timestamp: at,
	}
	for key, value := range m.Headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
	}
	return msg
}

// Send отправляет сообщение и ждёт подтверждения. Отменённый ctx не доходит до брокера.
func (p *Producer) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entry := p.logger.WithFields(log.Fields{"topic": m.Topic, "key": m.Key})
	partition, offset, err := p.sync.SendMessage(m.producerMessage(p.now()))
	if err != nil {
		entry.WithError(err).Error("kafka send failed")
		return fmt.Errorf("send to %s: %w", m.Topic, err)
	}

	entry.WithFields(log.Fields{"partition": partition, "offset": offset}).Debug("kafka message sent")
	return nil
}

// Close закрывает producer.
func (p *Producer) Close() error {
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
