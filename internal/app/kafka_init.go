package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/myshop/internal/domain"
	"github.com/vladislavdragonenkov/myshop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/myshop/internal/service/notification"
)

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, logger.WithField("component", "kafka-producer"))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// messaging определяет, куда уходят письма и события заказа.
type messaging struct {
	notifier domain.Notifier
	events   domain.EventPublisher
	producer *kafka.Producer
	consumer *kafka.Consumer
}

// initMessaging выбирает транспорт уведомлений. Без Kafka письма пишутся в лог
// сразу, с Kafka они публикуются в топик и отправляются consumer'ом с DLQ.
func initMessaging(ctx context.Context, cfg Config, logger *log.Entry) messaging {
	logNotifier := notification.NewLogNotifier(logger.WithField("component", "email"))

	producer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if producer == nil || err != nil {
		return messaging{notifier: logNotifier}
	}

	events := kafka.NewOrderEventPublisher(producer, cfg.KafkaEventsTopic)

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:    cfg.KafkaBrokers,
		GroupID:    cfg.KafkaConsumerGroup,
		Topics:     []string{cfg.KafkaNotificationsTopic},
		MaxRetries: cfg.KafkaMaxRetries,
	}, kafka.NewEmailHandler(logNotifier), producer, logger.WithField("component", "kafka-consumer"))
	if err == nil {
		err = consumer.Start(ctx)
	}
	if err != nil {
		logger.WithError(err).Warn("email consumer unavailable, sending emails directly")
		return messaging{notifier: logNotifier, events: events, producer: producer}
	}

	return messaging{
		notifier: kafka.NewEmailNotifier(producer, cfg.KafkaNotificationsTopic),
		events:   events,
		producer: producer,
		consumer: consumer,
	}
}

// close останавливает consumer до producer: DLQ пишет через тот же producer.
func (m messaging) close(logger *log.Entry) {
	if m.consumer != nil {
		if err := m.consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop kafka consumer")
		}
	}
	closeKafka(m.producer, logger)
}
