package app

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestInitKafkaProducer(t *testing.T) {
	logger := log.WithField("test", "kafka")

	for _, brokers := range []string{"", " ", " , "} {
		producer, err := initKafkaProducer(brokers, logger)
		assert.NoError(t, err, "brokers %q", brokers)
		assert.Nil(t, producer, "brokers %q", brokers)
	}

	producer, err := initKafkaProducer("127.0.0.1:1, 127.0.0.1:2", logger)
	assert.Error(t, err)
	assert.Nil(t, producer)
}

func TestOutboxPublishers_WithoutProducer(t *testing.T) {
	events, dlq := outboxPublishers(nil, DefaultConfig())

	// typed-nil здесь заставил бы worker публиковать в пустоту
	assert.Nil(t, events)
	assert.Nil(t, dlq)

	closeKafka(nil, log.WithField("test", "kafka"))
}
