package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"marketlive-ws/internal/domain"
	"marketlive-ws/internal/logging"
	"marketlive-ws/internal/metrics"
)

// Domain event topics published by the order and catalog services.
const (
	TopicOrderPlaced        = "order-placed"
	TopicOrderPaymentStatus = "order-payment-status"
	TopicOrderCancelled     = "order-cancelled"
	TopicProductPublished   = "product-published"
)

// DomainTopics lists every topic the consumer subscribes to.
var DomainTopics = []string{TopicOrderPlaced, TopicOrderPaymentStatus, TopicOrderCancelled, TopicProductPublished}

type DomainEventHandler interface {
	HandleOrderPlaced(ctx context.Context, ev domain.OrderPlacedEvent) error
	HandlePaymentStatusChanged(ctx context.Context, ev domain.PaymentStatusChangedEvent) error
	HandleOrderCancelled(ctx context.Context, ev domain.OrderCancelledEvent) error
	HandleProductPublished(ctx context.Context, ev domain.ProductPublishedEvent) error
}

var errUnknownTopic = errors.New("unknown topic")

type KafkaConsumer struct {
	readers []*kafka.Reader
	handler DomainEventHandler
	wg      sync.WaitGroup
	log     zerolog.Logger
}

func NewKafkaConsumer(brokers []string, groupID string, topics []string, handler DomainEventHandler) *KafkaConsumer {
	var readers []*kafka.Reader

	for _, topic := range topics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,    // Read immediately, don't wait for batches
			MaxBytes:       10e6, // 10MB max
			CommitInterval: 100 * time.Millisecond,
			StartOffset:    kafka.LastOffset,
			MaxWait:        100 * time.Millisecond,
		})
		readers = append(readers, reader)
	}

	return &KafkaConsumer{
		readers: readers,
		handler: handler,
		log:     logging.With("kafka-consumer"),
	}
}

// Start runs one reader goroutine per topic until ctx is cancelled.
func (k *KafkaConsumer) Start(ctx context.Context) error {
	for _, reader := range k.readers {
		k.wg.Add(1)
		go k.run(ctx, reader)
	}
	return nil
}

func (k *KafkaConsumer) run(ctx context.Context, reader *kafka.Reader) {
	defer k.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			k.log.Error().Interface("panic", r).Str("topic", reader.Config().Topic).Msg("Recovered from panic in Kafka consumer")
		}
	}()

	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				k.log.Info().Str("topic", reader.Config().Topic).Msg("Kafka consumer stopping")
				return
			}
			if errors.Is(err, kafka.RebalanceInProgress) || errors.Is(err, kafka.LeaderNotAvailable) {
				k.log.Warn().Err(err).Msg("Kafka cluster busy, retrying")
				continue
			}
			k.log.Error().Err(err).Msg("Error reading Kafka message")
			continue
		}

		k.handleMessage(ctx, m.Topic, m.Value)
	}
}

func (k *KafkaConsumer) handleMessage(ctx context.Context, topic string, value []byte) {
	defer func() {
		if r := recover(); r != nil {
			k.log.Error().Interface("panic", r).Str("topic", topic).Msg("Recovered from panic in handleMessage")
			metrics.DomainEventsConsumed.WithLabelValues(topic, "panic").Inc()
		}
	}()

	if k.handler == nil {
		return
	}
	if err := dispatch(ctx, k.handler, topic, value); err != nil {
		k.log.Error().Err(err).Str("topic", topic).Msg("Failed to handle domain event")
		metrics.DomainEventsConsumed.WithLabelValues(topic, "error").Inc()
		return
	}
	metrics.DomainEventsConsumed.WithLabelValues(topic, "ok").Inc()
}

// dispatch decodes value according to topic and hands it to h.
func dispatch(ctx context.Context, h DomainEventHandler, topic string, value []byte) error {
	switch topic {
	case TopicOrderPlaced:
		var ev domain.OrderPlacedEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", topic, err)
		}
		return h.HandleOrderPlaced(ctx, ev)

	case TopicOrderPaymentStatus:
		var ev domain.PaymentStatusChangedEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", topic, err)
		}
		return h.HandlePaymentStatusChanged(ctx, ev)

	case TopicOrderCancelled:
		var ev domain.OrderCancelledEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", topic, err)
		}
		return h.HandleOrderCancelled(ctx, ev)

	case TopicProductPublished:
		var ev domain.ProductPublishedEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", topic, err)
		}
		return h.HandleProductPublished(ctx, ev)

	default:
		return fmt.Errorf("%w: %s", errUnknownTopic, topic)
	}
}

// Close stops the readers and waits for their goroutines.
func (k *KafkaConsumer) Close() error {
	var errs []error
	for _, reader := range k.readers {
		if err := reader.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	k.wg.Wait()
	return errors.Join(errs...)
}
