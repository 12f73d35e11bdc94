package services

import (
	"context"
	"encoding/json"

	"github.com/sbilibin2017/gw-wallet-transfer/internal/logger"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/models"
	"github.com/segmentio/kafka-go"
)

// KafkaWriter defines a Kafka writer abstraction.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error // Writes messages to Kafka
	Close() error                                                   // Closes the Kafka writer
}

// FeedService streams terminal transaction events to Kafka, where the
// webhook and notification collaborators consume them with their own
// durable retry queues. The in-process channel is at-most-once; Kafka is
// the durable hand-off at the boundary.
type FeedService struct {
	kafkaWriter KafkaWriter
}

// NewFeedService creates a new FeedService.
func NewFeedService(kafkaWriter KafkaWriter) *FeedService {
	return &FeedService{kafkaWriter: kafkaWriter}
}

// RegisterHandlers subscribes the feed to both terminal events.
func (s *FeedService) RegisterHandlers(ctx context.Context, ch EventSubscriber) error {
	if err := ch.Subscribe(ctx, models.EventTransactionCompleted, s.onTerminalEvent); err != nil {
		return err
	}
	return ch.Subscribe(ctx, models.EventTransactionFailed, s.onTerminalEvent)
}

// onTerminalEvent forwards one envelope to Kafka, keyed by transaction id
// so all events for one transfer land on the same partition.
func (s *FeedService) onTerminalEvent(ctx context.Context, evt models.Envelope) error {
	if s.kafkaWriter == nil {
		logger.Log.Warnw("Kafka writer not configured, skipping publishing", "transaction_id", evt.TransactionID)
		return nil
	}

	data, err := json.Marshal(evt)
	if err != nil {
		logger.Log.Errorw("Failed to marshal event for Kafka", "transaction_id", evt.TransactionID, "error", err)
		return err
	}

	msg := kafka.Message{
		Key:   []byte(evt.TransactionID.String()),
		Value: data,
	}

	if err := s.kafkaWriter.WriteMessages(ctx, msg); err != nil {
		logger.Log.Errorw("Failed to publish event to Kafka", "transaction_id", evt.TransactionID, "error", err)
		return err
	}

	logger.Log.Infow("Terminal event published to Kafka", "transaction_id", evt.TransactionID, "event_type", evt.Type)
	return nil
}
