package kafka

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"marketlive-ws/internal/domain"
	"marketlive-ws/internal/logging"
)

const (
	TopicChatMessages  = "chat-messages"
	TopicNotifications = "notifications"
)

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer mirrors persisted chat messages and notifications for other
// services.
type KafkaProducer struct {
	writer messageWriter
	log    zerolog.Logger
}

func NewKafkaProducer(brokers []string) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.Hash{},
		// Optimize for low latency
		BatchSize:    1,
		BatchTimeout: time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return newProducer(writer)
}

func newProducer(w messageWriter) *KafkaProducer {
	return &KafkaProducer{writer: w, log: logging.With("kafka-producer")}
}

func (k *KafkaProducer) SendMessage(ctx context.Context, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	topic, key := routeMessage(message)

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		k.log.Error().Err(err).Str("topic", topic).Msg("Failed to send message to Kafka")
		return err
	}

	k.log.Debug().Str("topic", topic).Msg("Message sent to Kafka")
	return nil
}

// routeMessage picks the topic by payload type, and a key that keeps one
// conversation's or one recipient's records on a single partition.
func routeMessage(message interface{}) (topic, key string) {
	switch m := message.(type) {
	case domain.Message:
		return TopicChatMessages, m.ConversationID
	case *domain.Message:
		return TopicChatMessages, m.ConversationID
	case domain.Notification:
		return TopicNotifications, notificationKey(&m)
	case *domain.Notification:
		return TopicNotifications, notificationKey(m)
	default:
		return TopicChatMessages, ""
	}
}

func notificationKey(n *domain.Notification) string {
	if n.StoreID != nil {
		return *n.StoreID
	}
	if n.UserID != nil {
		return *n.UserID
	}
	return n.ID
}

func (k *KafkaProducer) Close() error {
	return k.writer.Close()
}
