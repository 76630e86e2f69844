package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace/config"
	"marketplace/middleware"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// Handler processes one message value. ctx carries the producer's trace.
type Handler func(ctx context.Context, key, value []byte) error

func InitConsumerGroup(cfg config.Config, logger *zap.Logger) (sarama.ConsumerGroup, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Version = sarama.V2_8_0_0
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaCfg.Consumer.Retry.Backoff = 1 * time.Second

	group, err := sarama.NewConsumerGroup(cfg.KafkaBrokers, cfg.ConsumerGroup, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer group: %w", err)
	}

	logger.Info("Kafka consumer group initialized", zap.String("group", cfg.ConsumerGroup))
	return group, nil
}

// Consume joins the group and blocks until ctx is cancelled or the group is closed.
func Consume(ctx context.Context, group sarama.ConsumerGroup, topics []string, tracerName string, handler Handler, logger *zap.Logger) error {
	go func() {
		for err := range group.Errors() {
			logger.Error("Kafka consumer error", zap.Error(err))
		}
	}()

	gh := &groupHandler{
		handler:    handler,
		tracerName: tracerName,
		logger:     logger,
		maxRetries: 3,
		backoff:    time.Second,
	}

	logger.Info("Kafka consumer started", zap.Strings("topics", topics))
	for {
		if err := group.Consume(ctx, topics, gh); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return fmt.Errorf("consume %v: %w", topics, err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

type groupHandler struct {
	handler    Handler
	tracerName string
	logger     *zap.Logger
	maxRetries int
	backoff    time.Duration
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.process(sess.Context(), msg); err != nil {
				h.logger.Error("Failed to handle message after retries",
					zap.String("topic", msg.Topic),
					zap.Int32("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
			}
			sess.MarkMessage(msg, "")
		case <-sess.Context().Done():
			return nil
		}
	}
}

func (h *groupHandler) process(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var propagator propagation.TextMapPropagator = otel.GetTextMapPropagator()
	ctx = propagator.Extract(ctx, consumerHeaderCarrier(msg.Headers))

	ctx, span := otel.Tracer(h.tracerName).Start(ctx, "Consume "+msg.Topic)
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.destination", msg.Topic),
		attribute.Int64("messaging.kafka.offset", msg.Offset),
	)

	err := handleWithRetry(ctx, h.logger, h.maxRetries, h.backoff, func() error {
		return h.handler(ctx, msg.Key, msg.Value)
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// handleWithRetry runs fn up to maxRetries times with a linearly growing pause.
func handleWithRetry(ctx context.Context, logger *zap.Logger, maxRetries int, backoff time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == maxRetries {
			break
		}

		wait := time.Duration(attempt) * backoff
		logger.Warn("Retrying message handling",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}
