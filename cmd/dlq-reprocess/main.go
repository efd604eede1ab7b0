// Команда dlq-reprocess возвращает события заказов из DLQ в основной topic.
// По умолчанию работает в режиме dry-run и только печатает кандидатов.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pedidos/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pedidos/internal/service/outbox"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second

	// headerReplayedAt помечает событие, возвращённое из DLQ.
	headerReplayedAt = "x-replayed-at"
)

var (
	errNotDeadLetter   = errors.New("message is not an outbox dead letter")
	errMissingOriginal = errors.New("dead letter does not contain the original event payload")
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

// offsetClient покрывает часть sarama.Client, нужную для определения границ партиций.
type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

// replayProducer повторяет подмножество sarama.SyncProducer.
type replayProducer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	return a.consumer.ConsumePartition(topic, partition, offset)
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

// replayCandidate описывает событие, готовое к повторной публикации.
type replayCandidate struct {
	topic   string
	key     string
	value   []byte
	headers map[string]string
}

type replayStats struct {
	scanned  int
	replayed int
	skipped  int
}

func (s *replayStats) add(other replayStats) {
	s.scanned += other.scanned
	s.replayed += other.replayed
	s.skipped += other.skipped
}

var newReplayDependencies = func(cfg config) (offsetClient, partitionConsumerSource, replayProducer, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	if !cfg.execute {
		return client, saramaConsumerAdapter{consumer: consumer}, nil, nil
	}

	producer, err := sarama.NewSyncProducer(cfg.brokers, kafka.SyncProducerConfig("pedidos-dlq-reprocess"))
	if err != nil {
		_ = consumer.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return client, saramaConsumerAdapter{consumer: consumer}, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := parseConfig(os.Args[1:], os.LookupEnv)
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		stop()
		fail("dlq replay failed: %v", err)
	}
}

func parseConfig(args []string, lookup func(string) (string, bool)) (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: KAFKA_BROKERS)")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	fs.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicOrderEvents, "fallback target topic when the dead letter has no x-original-topic header")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "publish replayed events; default is dry-run")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan the latest messages of each partition (bounded by limit)")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading a partition after this idle period")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw, _ = lookup("KAFKA_BROKERS")
	}
	cfg.brokers = kafka.ParseBrokers(brokersRaw)
	cfg.sourceTopic = strings.TrimSpace(cfg.sourceTopic)
	cfg.targetTopic = strings.TrimSpace(cfg.targetTopic)

	switch {
	case len(cfg.brokers) == 0:
		return config{}, errors.New("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	case cfg.sourceTopic == "":
		return config{}, errors.New("source-topic is required")
	case cfg.targetTopic == "":
		return config{}, errors.New("target-topic is required")
	case cfg.sourceTopic == cfg.targetTopic:
		return config{}, errors.New("source-topic and target-topic must differ")
	case cfg.limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, errors.New("idle-timeout must be > 0")
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config) error {
	client, consumer, producer, err := newReplayDependencies(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if producer != nil {
			_ = producer.Close()
		}
		if consumer != nil {
			_ = consumer.Close()
		}
		if client != nil {
			_ = client.Close()
		}
	}()

	_, err = runReplay(ctx, cfg, client, consumer, producer)
	return err
}

// runReplay обходит партиции DLQ по возрастанию номера, пока не исчерпан limit.
func runReplay(ctx context.Context, cfg config, client offsetClient, consumer partitionConsumerSource, producer replayProducer) (replayStats, error) {
	var total replayStats
	if client == nil || consumer == nil {
		return total, errors.New("kafka client and consumer are required")
	}
	if cfg.execute && producer == nil {
		return total, errors.New("producer is required in execute mode")
	}

	logger := log.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"execute":      cfg.execute,
	})
	logger.WithField("limit", cfg.limit).Info("starting dlq replay")

	partitions, err := client.Partitions(cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", cfg.sourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		remaining := cfg.limit - total.scanned
		if remaining <= 0 {
			break
		}
		stats, err := replayPartition(ctx, cfg, client, consumer, producer, partition, remaining)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	logger.WithFields(log.Fields{
		"scanned":  total.scanned,
		"replayed": total.replayed,
		"skipped":  total.skipped,
	}).Info("dlq replay finished")
	return total, nil
}

// replayPartition читает партицию от стартового offset до high-water mark, зафиксированного
// на момент начала, чтобы не зациклиться на сообщениях, пришедших во время обхода.
func replayPartition(
	ctx context.Context,
	cfg config,
	client offsetClient,
	consumer partitionConsumerSource,
	producer replayProducer,
	partition int32,
	limit int,
) (replayStats, error) {
	var stats replayStats

	oldest, err := client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if cfg.fromNewest {
		start = max(newest-int64(limit), oldest)
	}

	pc, err := consumer.ConsumePartition(cfg.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(cfg.idleTimeout)
	defer idle.Stop()

	for stats.scanned < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case consumeErr := <-pc.Errors():
			if consumeErr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, consumeErr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(cfg.idleTimeout)
			stats.scanned++

			fields := log.Fields{"partition": msg.Partition, "offset": msg.Offset}
			candidate, err := extractReplayCandidate(msg, cfg.targetTopic, time.Now().UTC())
			if err != nil {
				stats.skipped++
				log.WithError(err).WithFields(fields).Warn("skip dlq message")
			} else {
				if cfg.execute {
					if err := publishCandidate(producer, candidate); err != nil {
						return stats, fmt.Errorf("publish replay message: %w", err)
					}
				}
				stats.replayed++
				log.WithFields(fields).WithFields(log.Fields{
					"target_topic": candidate.topic,
					"key":          candidate.key,
					"event_type":   candidate.headers[kafka.HeaderEventType],
				}).Info("dlq replay candidate")
			}

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

// extractReplayCandidate восстанавливает исходный конверт события заказа из dead letter
// outbox worker. Исходный topic берётся из заголовка x-original-topic.
func extractReplayCandidate(msg *sarama.ConsumerMessage, fallbackTopic string, now time.Time) (replayCandidate, error) {
	var letter outbox.DeadLetter
	if err := json.Unmarshal(msg.Value, &letter); err != nil {
		return replayCandidate{}, fmt.Errorf("%w: %w", errNotDeadLetter, err)
	}
	if letter.OutboxID == "" || letter.EventType == "" {
		return replayCandidate{}, errNotDeadLetter
	}
	if len(letter.Payload) == 0 || string(letter.Payload) == "null" {
		return replayCandidate{}, errMissingOriginal
	}

	value, err := json.Marshal(kafka.OrderEventEnvelope{
		ID:            letter.OutboxID,
		AggregateType: letter.AggregateType,
		AggregateID:   letter.AggregateID,
		EventType:     letter.EventType,
		Payload:       letter.Payload,
		PublishedAt:   now,
	})
	if err != nil {
		return replayCandidate{}, fmt.Errorf("encode replay envelope: %w", err)
	}

	topic := fallbackTopic
	if original := headerValue(msg, kafka.HeaderOriginalTopic); original != "" {
		topic = original
	}
	key := letter.AggregateID
	if key == "" {
		key = letter.OutboxID
	}

	return replayCandidate{
		topic: topic,
		key:   key,
		value: value,
		headers: map[string]string{
			kafka.HeaderEventType:     letter.EventType,
			kafka.HeaderAggregateType: letter.AggregateType,
			kafka.HeaderOutboxID:      letter.OutboxID,
			headerReplayedAt:          now.Format(time.RFC3339Nano),
		},
	}, nil
}

func headerValue(msg *sarama.ConsumerMessage, key string) string {
	for _, header := range msg.Headers {
		if header != nil && string(header.Key) == key {
			return strings.TrimSpace(string(header.Value))
		}
	}
	return ""
}

func publishCandidate(producer replayProducer, candidate replayCandidate) error {
	if producer == nil {
		return errors.New("producer is nil")
	}

	msg := &sarama.ProducerMessage{
		Topic:     candidate.topic,
		Key:       sarama.StringEncoder(candidate.key),
		Value:     sarama.ByteEncoder(candidate.value),
		Timestamp: time.Now().UTC(),
	}
	for key, value := range candidate.headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
	}

	_, _, err := producer.SendMessage(msg)
	return err
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
