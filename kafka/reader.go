package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace/config"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var defaultReaderBackoff = time.Second

// MessageReader is the subset of *kafkago.Reader used by ReadLoop.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
}

func NewReader(cfg config.Config, topic string) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.ConsumerGroup + "-" + topic,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// ReadLoop fetches, handles and commits messages one at a time until ctx is done.
// A message whose handler fails is retried, then committed so the partition
// keeps moving.
func ReadLoop(ctx context.Context, reader MessageReader, tracerName string, handler Handler, logger *zap.Logger) error {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		msgCtx := otel.GetTextMapPropagator().Extract(ctx, readerHeaderCarrier(msg.Headers))
		msgCtx, span := otel.Tracer(tracerName).Start(msgCtx, "Consume "+msg.Topic)
		span.SetAttributes(
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		)

		if err := handleWithRetry(msgCtx, logger, 3, defaultReaderBackoff, func() error {
			return handler(msgCtx, msg.Key, msg.Value)
		}); err != nil {
			span.RecordError(err)
			logger.Error("Failed to handle message after retries",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
		span.End()

		if err := reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit message: %w", err)
		}
	}
}
