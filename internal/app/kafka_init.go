package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
	"github.com/vladislavdragonenkov/pedidos/internal/messaging/kafka"
)

const kafkaClientID = "pedidos-order-service"

// initKafkaProducer подключается к KAFKA_BROKERS. Пустой список не ошибка:
// сервис работает без Kafka, события копятся в outbox.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	list := kafka.ParseBrokers(brokers)
	if len(list) == 0 {
		logger.Info("KAFKA_BROKERS не задан, публикация событий выключена")
		return nil, nil
	}

	producer, err := kafka.NewProducer(list, kafkaClientID,
		kafka.WithProducerLogger(logger.WithField("component", "kafka-producer")))
	if err != nil {
		return nil, err
	}

	logger.WithField("brokers", list).Info("kafka producer готов")
	return producer, nil
}

// outboxPublishers собирает publisher событий и DLQ publisher. Без producer
// оба остаются nil-интерфейсами, и outbox worker только считает backlog.
func outboxPublishers(producer *kafka.Producer, cfg Config) (events, dlq domain.OutboxPublisher) {
	if producer == nil {
		return nil, nil
	}
	return kafka.NewOutboxPublisher(producer, cfg.OrderEventsTopic),
		kafka.NewDLQPublisher(producer, cfg.DLQTopic, cfg.OrderEventsTopic)
}

func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("kafka producer закрыт с ошибкой")
		return
	}
	logger.Info("kafka producer закрыт")
}
